package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roomieai/concierge-go/pkg/errors"
)

// Load reads a yaml config file, overlays it on the defaults and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read config file"),
			errors.Fields{"path": path},
		)
	}
	return Parse(data)
}

// Parse decodes yaml config bytes over the defaults and validates them.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to parse config yaml")
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateConfig(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ValidationFailed, "invalid configuration")
	}

	return cfg, nil
}

// LoadPersona reads the static instruction block. It is loaded once at
// startup; callers must treat the returned text as immutable.
func LoadPersona(cfg PersonaConfig) (string, error) {
	if cfg.Path == "" {
		return "", nil
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return "", errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read persona file"),
			errors.Fields{"path": cfg.Path},
		)
	}

	persona := strings.TrimSpace(string(data))
	if persona == "" {
		return "", errors.New(errors.ValidationFailed, "persona file is empty")
	}
	return persona, nil
}
