package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var ErrUnknownSeedFormat = errors.New("config: context seed must be .toml, .yaml or .yml")

// LoadContextSeed reads the template every chain's context starts from.
func LoadContextSeed(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("context seed load failed (%s): %w", path, err)
	}
	out := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSeedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("context seed parse failed (%s): %w", path, err)
	}
	return out, nil
}
