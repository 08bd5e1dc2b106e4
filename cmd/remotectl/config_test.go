package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/danmuck/remotectl/internal/client"
	"github.com/danmuck/remotectl/internal/config"
	"github.com/danmuck/remotectl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadClientConfigDefaultsWithoutFile(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadClientConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, defaultClientConfig()) {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadClientConfigOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
transport = "SSH"
timeout = "5s"
policy = "string"
command = [" /opt/remotectl ", "", "receive"]

[ssh]
host = "edge-2"
user = "ops"
key_path = "/keys/id"
insecure_skip_host_key_checking = true
`)
	cfg, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != transportSSH || cfg.Timeout != 5*time.Second || cfg.Policy != client.PolicyString {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Command, []string{"/opt/remotectl", "receive"}) {
		t.Fatalf("unexpected command: %v", cfg.Command)
	}
	if cfg.SSH.Host != "edge-2" || cfg.SSH.User != "ops" || cfg.SSH.KeyPath != "/keys/id" || !cfg.SSH.InsecureSkipHostKeyChecking {
		t.Fatalf("unexpected ssh: %+v", cfg.SSH)
	}
	// untouched keys keep their default
	if cfg.URL != defaultClientConfig().URL {
		t.Fatalf("url default lost: %q", cfg.URL)
	}
}

func TestLoadClientConfigRejects(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		body string
	}{
		{"unknown transport", `transport = "carrier-pigeon"`},
		{"bad timeout", `timeout = "soon"`},
		{"bad policy", `policy = "maybe"`},
		{"empty url", `url = ""`},
		{"empty command", "transport = \"exec\"\ncommand = []"},
		{"not toml", `transport = `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadClientConfig(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestClientTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "client.toml")
	if err := config.WriteTemplate(path, "client", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if cfg.Transport != transportHTTP || cfg.SSH.Host != "edge-1" {
		t.Fatalf("unexpected template values: %+v", cfg)
	}
}

func TestExpandHome(t *testing.T) {
	testlog.Start(t)
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandHome("~/.ssh/id"); got != filepath.Join(home, ".ssh", "id") {
		t.Fatalf("unexpected expansion: %q", got)
	}
	if got := expandHome("/abs/~/x"); got != "/abs/~/x" {
		t.Fatalf("non-leading tilde expanded: %q", got)
	}
}
