package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrMissingAddr    = errors.New("config: addr is required")
	ErrInvalidPath    = errors.New("config: path must start with /")
	ErrInvalidPayload = errors.New("config: max_payload_bytes must be positive")
	ErrInvalidRate    = errors.New("config: rate_rps and rate_burst must both be zero or both positive")
)

// ServerConfig configures `remotectl serve` and `remotectl receive`.
// Environment variables override the file.
type ServerConfig struct {
	NodeID          string   `toml:"node_id"           env:"REMOTECTL_NODE_ID"`
	Addr            string   `toml:"addr"              env:"REMOTECTL_ADDR"`
	Path            string   `toml:"path"              env:"REMOTECTL_PATH"`
	CorsOrigins     []string `toml:"cors_origins"      env:"REMOTECTL_CORS_ORIGINS" envSeparator:","`
	MaxPayloadBytes uint64   `toml:"max_payload_bytes" env:"REMOTECTL_MAX_PAYLOAD_BYTES"`
	RateRPS         float64  `toml:"rate_rps"          env:"REMOTECTL_RATE_RPS"`
	RateBurst       int      `toml:"rate_burst"        env:"REMOTECTL_RATE_BURST"`
	OtelEndpoint    string   `toml:"otel_endpoint"     env:"REMOTECTL_OTEL_ENDPOINT"`
	ContextSeed     string   `toml:"context_seed"      env:"REMOTECTL_CONTEXT_SEED"`
	AuthToken       string   `toml:"auth_token"        env:"REMOTECTL_AUTH_TOKEN"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		NodeID:          "remotectl",
		Addr:            ":9400",
		Path:            "/v1/chains",
		MaxPayloadBytes: frame.DefaultLimits().MaxPayloadBytes,
		RateRPS:         20,
		RateBurst:       40,
	}
}

// LoadServerConfig applies defaults, then the TOML file at path (skipped when
// path is empty), then the environment, and validates the result.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if strings.TrimSpace(path) != "" {
		if err := loadToml(path, &cfg); err != nil {
			return ServerConfig{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config env parse failed: %w", err)
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return ErrMissingAddr
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, cfg.Path)
	}
	if cfg.MaxPayloadBytes == 0 {
		return ErrInvalidPayload
	}
	if cfg.RateRPS < 0 || cfg.RateBurst < 0 || (cfg.RateRPS > 0) != (cfg.RateBurst > 0) {
		return fmt.Errorf("%w: rps=%v burst=%d", ErrInvalidRate, cfg.RateRPS, cfg.RateBurst)
	}
	return nil
}

func (c ServerConfig) Limits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: c.MaxPayloadBytes}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
