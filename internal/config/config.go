// Package config loads and validates curator configuration.
// Configuration is read once at batch start from a YAML file; after Load
// returns, every structure here is read-only.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all curator configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Ontology: the fixed set of event category labels
	Ontology OntologyConfig `yaml:"ontology"`

	// Per-venue policies, keyed by venue key
	Venues map[string]VenueConfig `yaml:"venues"`

	// Per-category field templates, keyed by ontology label
	Templates map[string]FieldTemplate `yaml:"templates"`

	// Validation behavior
	Validation ValidationConfig `yaml:"validation"`

	// Batch execution
	Batch BatchConfig `yaml:"batch"`

	// Audit store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, anthropic
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// OntologyConfig holds the fixed label set events can be classified into.
type OntologyConfig struct {
	Labels []string `yaml:"labels"`
}

// VenueConfig is the raw per-venue policy as it appears on disk.
// Enabled flags are pointers so a missing flag can be distinguished from an
// explicit false; a missing flag is a config error, never a silent default.
type VenueConfig struct {
	Classification ClassificationPolicy `yaml:"classification"`
	Enrichment     EnrichmentPolicy     `yaml:"enrichment"`
}

// ClassificationPolicy controls whether a venue's events are classified by
// the model or assigned a fixed category.
type ClassificationPolicy struct {
	Enabled              *bool  `yaml:"enabled"`
	AssumedEventCategory string `yaml:"assumed_event_category"`
}

// EnrichmentPolicy controls whether a venue's events have missing fields
// filled in, and whether citation-backed (online-sourced) values are allowed.
type EnrichmentPolicy struct {
	Enabled        *bool `yaml:"enabled"`
	AllowCitations bool  `yaml:"allow_citations"`
}

// FieldTemplate lists the fields a category must carry before publish.
type FieldTemplate struct {
	RequiredOnPublish []string `yaml:"required_on_publish"`
}

// ValidationConfig configures the validator.
type ValidationConfig struct {
	// FailFast decides whether a validation violation aborts the event or
	// is recorded as a non-fatal incompleteness marker.
	FailFast bool `yaml:"fail_fast"`
}

// BatchConfig configures batch execution.
type BatchConfig struct {
	// Concurrency bounds the number of events processed in parallel.
	// 0 or 1 means sequential.
	Concurrency int `yaml:"concurrency"`
}

// StoreConfig configures the SQLite audit store.
type StoreConfig struct {
	// Path to the SQLite database file. Empty disables the audit store.
	Path string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "curator",
		Version: "1.0.0",
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "60s",
		},
		Ontology: OntologyConfig{
			Labels: []string{"movie", "book_club", "concert", "opera", "dance", "other"},
		},
		Validation: ValidationConfig{FailFast: true},
		Batch:      BatchConfig{Concurrency: 1},
		Logging:    LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path, applies environment overrides, and
// validates the result. Any schema problem is fatal here, not at lookup time.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides fills LLM credentials from the environment.
// An explicit api_key in the file wins over the environment.
func (c *Config) applyEnvOverrides() {
	if c.LLM.APIKey != "" {
		return
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
		return
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "anthropic"
		}
	}
}

// snakeCaseRe matches lower snake_case identifiers.
var snakeCaseRe = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

// IsSnakeCase reports whether name is a lower snake_case identifier.
func IsSnakeCase(name string) bool {
	return snakeCaseRe.MatchString(name)
}

// Validate checks the loaded configuration for structural problems.
// It fails fast: a single malformed venue or template aborts the load.
func (c *Config) Validate() error {
	if len(c.Ontology.Labels) == 0 {
		return fmt.Errorf("config: ontology.labels must not be empty")
	}
	seen := make(map[string]bool, len(c.Ontology.Labels))
	for _, label := range c.Ontology.Labels {
		if label == "" {
			return fmt.Errorf("config: ontology.labels contains an empty label")
		}
		if seen[label] {
			return fmt.Errorf("config: duplicate ontology label %q", label)
		}
		seen[label] = true
	}

	for category, tmpl := range c.Templates {
		if !seen[category] {
			return fmt.Errorf("config: template for unknown category %q", category)
		}
		for _, field := range tmpl.RequiredOnPublish {
			if !IsSnakeCase(field) {
				return fmt.Errorf("config: template %q: field %q is not snake_case", category, field)
			}
		}
	}

	for venue, vc := range c.Venues {
		if strings.TrimSpace(venue) == "" {
			return fmt.Errorf("config: venue with empty key")
		}
		if vc.Classification.Enabled == nil {
			return fmt.Errorf("config: venue %q: classification.enabled is missing", venue)
		}
		if vc.Enrichment.Enabled == nil {
			return fmt.Errorf("config: venue %q: enrichment.enabled is missing", venue)
		}
		if assumed := vc.Classification.AssumedEventCategory; assumed != "" && !seen[assumed] {
			return fmt.Errorf("config: venue %q: assumed_event_category %q is not an ontology label", venue, assumed)
		}
	}

	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("config: batch.concurrency must not be negative")
	}
	return nil
}

// HasLabel reports whether label is a member of the configured ontology.
func (c *Config) HasLabel(label string) bool {
	for _, l := range c.Ontology.Labels {
		if l == label {
			return true
		}
	}
	return false
}
