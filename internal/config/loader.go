package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "deepseek", "ollama", "mistral", "groq"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required; intent routing and rollups need a completion model"))
	}

	// Embeddings ↔ memory dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but memory.embedding_dimensions is not set; defaulting to 1536")
	}

	// Memory
	if cfg.Memory.PostgresDSN == "" {
		errs = append(errs, errors.New("memory.postgres_dsn is required"))
	}
	if cfg.Memory.ContextLines < 0 {
		errs = append(errs, fmt.Errorf("memory.context_lines %d must not be negative", cfg.Memory.ContextLines))
	}

	// Cache
	if cfg.Cache.RedisAddr == "" {
		slog.Warn("cache.redis_addr is empty; session caching is disabled")
	}
	if cfg.Cache.SessionWindow < 0 {
		errs = append(errs, fmt.Errorf("cache.session_window %d must not be negative", cfg.Cache.SessionWindow))
	}

	// Rollup
	if cfg.Rollup.Hour < 0 || cfg.Rollup.Hour > 23 {
		errs = append(errs, fmt.Errorf("rollup.hour %d is out of range [0, 23]", cfg.Rollup.Hour))
	}
	if cfg.Rollup.DowntimeThresholdHours < 0 {
		errs = append(errs, fmt.Errorf("rollup.downtime_threshold_hours %d must not be negative", cfg.Rollup.DowntimeThresholdHours))
	}

	return errors.Join(errs...)
}

// ApplyDefaults fills unset optional fields with their documented defaults.
// Call after [Validate]; invalid values are rejected there, not papered over
// here.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8000"
	}
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = "Assistant"
	}
	if cfg.Memory.EmbeddingDimensions <= 0 {
		cfg.Memory.EmbeddingDimensions = 1536
	}
	if cfg.Memory.ContextLines == 0 {
		cfg.Memory.ContextLines = 20
	}
	if cfg.Cache.SessionWindow == 0 {
		cfg.Cache.SessionWindow = 20
	}
	if cfg.Rollup.Hour == 0 {
		cfg.Rollup.Hour = 3
	}
	if cfg.Rollup.DowntimeThresholdHours == 0 {
		cfg.Rollup.DowntimeThresholdHours = 24
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
