package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
	case "seed":
		return seedTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `node_id = "remotectl"
addr = ":9400"
path = "/v1/chains"
cors_origins = ["http://localhost:3000"]
max_payload_bytes = 8388608
rate_rps = 20.0
rate_burst = 40
# otel_endpoint = "localhost:4318"
# context_seed = "seed.toml"
# auth_token = "change-me"
`

const clientTemplate = `# transport is http, exec or ssh
transport = "http"
url = "http://localhost:9400/v1/chains"
h2c = false
timeout = "30s"
policy = "error"
# token = "change-me"
scripts = "scripts"
command = ["remotectl", "receive"]

[ssh]
host = "edge-1"
port = "22"
user = "ops"
key_path = "~/.ssh/id_ed25519"
known_hosts_path = "~/.ssh/known_hosts"
`

const seedTemplate = `region = "local"
max_retries = 3

[labels]
owner = "ops"
`
