package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/remotectl/internal/client"
	"github.com/danmuck/remotectl/internal/transport/httpx"
)

const (
	transportHTTP = "http"
	transportExec = "exec"
	transportSSH  = "ssh"
)

type sshConfig struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
}

// clientConfig drives `remotectl exec`.
type clientConfig struct {
	Transport string
	URL       string
	H2C       bool
	Token     string
	Timeout   time.Duration
	Policy    client.Policy
	Scripts   string
	Command   []string
	SSH       sshConfig
}

type fileSSH struct {
	Host                        string `toml:"host"`
	Port                        string `toml:"port"`
	User                        string `toml:"user"`
	KeyPath                     string `toml:"key_path"`
	KnownHostsPath              string `toml:"known_hosts_path"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
}

type fileConfig struct {
	Transport string   `toml:"transport"`
	URL       string   `toml:"url"`
	H2C       bool     `toml:"h2c"`
	Token     string   `toml:"token"`
	Timeout   string   `toml:"timeout"`
	Policy    string   `toml:"policy"`
	Scripts   string   `toml:"scripts"`
	Command   []string `toml:"command"`
	SSH       fileSSH  `toml:"ssh"`
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		Transport: transportHTTP,
		URL:       "http://localhost:9400" + httpx.DefaultPath,
		Timeout:   30 * time.Second,
		Policy:    client.PolicyError,
		Scripts:   ".",
		Command:   []string{"remotectl", "receive"},
	}
}

// loadClientConfig layers the file at path over the defaults. Keys absent
// from the file keep their default.
func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("h2c") {
		cfg.H2C = raw.H2C
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("policy") {
		p, err := parsePolicy(raw.Policy)
		if err != nil {
			return clientConfig{}, err
		}
		cfg.Policy = p
	}
	if meta.IsDefined("scripts") {
		cfg.Scripts = expandHome(strings.TrimSpace(raw.Scripts))
	}
	if meta.IsDefined("command") {
		cfg.Command = normalizeCommand(raw.Command)
	}

	if meta.IsDefined("ssh", "host") {
		cfg.SSH.Host = strings.TrimSpace(raw.SSH.Host)
	}
	if meta.IsDefined("ssh", "port") {
		cfg.SSH.Port = strings.TrimSpace(raw.SSH.Port)
	}
	if meta.IsDefined("ssh", "user") {
		cfg.SSH.User = strings.TrimSpace(raw.SSH.User)
	}
	if meta.IsDefined("ssh", "key_path") {
		cfg.SSH.KeyPath = expandHome(strings.TrimSpace(raw.SSH.KeyPath))
	}
	if meta.IsDefined("ssh", "known_hosts_path") {
		cfg.SSH.KnownHostsPath = expandHome(strings.TrimSpace(raw.SSH.KnownHostsPath))
	}
	if meta.IsDefined("ssh", "insecure_skip_host_key_checking") {
		cfg.SSH.InsecureSkipHostKeyChecking = raw.SSH.InsecureSkipHostKeyChecking
	}

	if err := cfg.validate(); err != nil {
		return clientConfig{}, err
	}
	return cfg, nil
}

func (c clientConfig) validate() error {
	switch c.Transport {
	case transportHTTP:
		if c.URL == "" {
			return fmt.Errorf("client config: url is required for http transport")
		}
	case transportExec, transportSSH:
		if len(c.Command) == 0 {
			return fmt.Errorf("client config: command is required for %s transport", c.Transport)
		}
	default:
		return fmt.Errorf("client config: unknown transport %q", c.Transport)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("client config: timeout must not be negative")
	}
	return nil
}

func parsePolicy(raw string) (client.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "error":
		return client.PolicyError, nil
	case "null":
		return client.PolicyNull, nil
	case "string":
		return client.PolicyString, nil
	default:
		return 0, fmt.Errorf("client config: unknown policy %q", raw)
	}
}

func normalizeCommand(argv []string) []string {
	out := make([]string, 0, len(argv))
	for _, a := range argv {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
