package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roomieai/concierge-go/pkg/errors"
)

// Config represents the complete configuration for the concierge engine.
type Config struct {
	// Engine configuration
	Engine EngineConfig `yaml:"engine" validate:"required"`

	// Generation collaborator configuration
	Generation GenerationConfig `yaml:"generation" validate:"required"`

	// Persistent store configuration
	Store StoreConfig `yaml:"store" validate:"required"`

	// Persona configuration (static instruction block)
	Persona PersonaConfig `yaml:"persona,omitempty" validate:"omitempty"`

	// Catalog configuration
	Catalog CatalogConfig `yaml:"catalog,omitempty" validate:"omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// EngineConfig holds the context and learning tunables.
type EngineConfig struct {
	// Number of recent turns included in assembled context
	HistoryLimit int `yaml:"history_limit" validate:"min=1"`

	// Minimum success rate for a pattern to enter assembled context
	TrustThreshold float64 `yaml:"trust_threshold" validate:"min=0,max=1"`

	// Maximum trusted patterns included per prompt
	PatternCap int `yaml:"pattern_cap" validate:"min=1"`

	// Weight of a new observation when blending pattern success rates
	ReinforcementWeight float64 `yaml:"reinforcement_weight" validate:"gt=0,max=1"`

	// Satisfaction scale bounds; 1 = worst, 5 = best
	ScaleMin float64 `yaml:"scale_min" validate:"min=0"`
	ScaleMax float64 `yaml:"scale_max" validate:"gtfield=ScaleMin"`

	// Default profile language when detection is inconclusive
	DefaultLanguage string `yaml:"default_language" validate:"omitempty,bcp47_language_tag"`
}

// GenerationConfig holds settings for the external generation collaborator.
type GenerationConfig struct {
	// Provider name; anthropic is the only wired provider
	Provider string `yaml:"provider" validate:"required,oneof=anthropic"`

	// Model ID (e.g. claude-sonnet-4-5)
	ModelID string `yaml:"model_id" validate:"required"`

	// API key; falls back to the provider environment variable when empty
	APIKey string `yaml:"api_key,omitempty"`

	// Maximum tokens to generate per turn
	MaxTokens int `yaml:"max_tokens" validate:"min=1"`

	// Sampling temperature
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`

	// Wall-clock bound on a single generation call
	Timeout time.Duration `yaml:"timeout" validate:"required"`
}

// UnmarshalYAML decodes generation settings, accepting the timeout as a
// duration string ("30s", "2m"). Fields absent from the yaml keep whatever
// value the struct already holds, so decoding overlays the defaults.
func (g *GenerationConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Provider    *string  `yaml:"provider"`
		ModelID     *string  `yaml:"model_id"`
		APIKey      *string  `yaml:"api_key"`
		MaxTokens   *int     `yaml:"max_tokens"`
		Temperature *float64 `yaml:"temperature"`
		Timeout     *string  `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Provider != nil {
		g.Provider = *raw.Provider
	}
	if raw.ModelID != nil {
		g.ModelID = *raw.ModelID
	}
	if raw.APIKey != nil {
		g.APIKey = *raw.APIKey
	}
	if raw.MaxTokens != nil {
		g.MaxTokens = *raw.MaxTokens
	}
	if raw.Temperature != nil {
		g.Temperature = *raw.Temperature
	}
	if raw.Timeout != nil {
		timeout, err := time.ParseDuration(*raw.Timeout)
		if err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.InvalidInput, "invalid generation timeout"),
				errors.Fields{"timeout": *raw.Timeout},
			)
		}
		g.Timeout = timeout
	}
	return nil
}

// StoreConfig holds persistent store settings.
type StoreConfig struct {
	// SQLite database path; ":memory:" for ephemeral stores
	Path string `yaml:"path" validate:"required"`
}

// PersonaConfig locates the static instruction block. The block is loaded
// once at startup and treated as immutable for the process lifetime.
type PersonaConfig struct {
	// Path to the instruction text; empty means no static instructions
	Path string `yaml:"path,omitempty"`
}

// CatalogConfig locates the read-only recommendation catalog.
type CatalogConfig struct {
	// Path to the yaml catalog; empty disables catalog lookups
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Minimum severity: DEBUG, INFO, WARN, ERROR, FATAL
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`

	// Optional JSON-lines log file in addition to console output
	FilePath string `yaml:"file_path,omitempty"`
}

// DefaultConfig returns the engine defaults matching the documented design:
// a 10-turn window, a 0.7 trust threshold, 3 patterns per prompt and a
// fixed-weight 0.1 reinforcement blend.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			HistoryLimit:        10,
			TrustThreshold:      0.7,
			PatternCap:          3,
			ReinforcementWeight: 0.1,
			ScaleMin:            1,
			ScaleMax:            5,
			DefaultLanguage:     "fr",
		},
		Generation: GenerationConfig{
			Provider:    "anthropic",
			ModelID:     "claude-sonnet-4-5",
			MaxTokens:   500,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		},
		Store: StoreConfig{
			Path: "data/concierge.db",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}
