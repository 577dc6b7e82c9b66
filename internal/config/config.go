// Package config loads and validates the TOML configuration file.
// Loading happens once at startup; nothing in the core reads the
// filesystem for configuration afterward.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ExecutionConfig is the [execution] table.
type ExecutionConfig struct {
	MaxIterations     int    `toml:"max_iterations"`
	ParallelEnabled    bool   `toml:"parallel_enabled"`
	ArtifactDir        string `toml:"artifact_dir"`
	CleanupOnExit      bool   `toml:"cleanup_on_exit"`
	DisableAutoGit     bool   `toml:"disable_auto_git"`
	IsolatedExecution  bool   `toml:"isolated_execution"`
}

// UIConfig is the [ui] table.
type UIConfig struct {
	Colorful     bool   `toml:"colorful"`
	ProgressBars bool   `toml:"progress_bars"`
	Metrics      bool   `toml:"metrics"`
	OutputFormat string `toml:"output_format"` // "terminal" or "json"
}

// ContextConfig is the [context] table.
type ContextConfig struct {
	MaxTokens             int     `toml:"max_tokens"`
	CompressionThreshold  float64 `toml:"compression_threshold"` // (0,1]
	CacheEnabled          bool    `toml:"cache_enabled"`
	CacheDir              string  `toml:"cache_dir"`
}

// AIProviderConfig is one [ai_providers.<name>] table.
type AIProviderConfig struct {
	Enabled               bool    `toml:"enabled"`
	Model                 string  `toml:"model"`
	Temperature           float64 `toml:"temperature"`
	CostPer1MInputTokens  float64 `toml:"cost_per_1m_input_tokens"`
	CostPer1MOutputTokens float64 `toml:"cost_per_1m_output_tokens"`
	MaxTokens             int     `toml:"max_tokens"`
	BaseURL               string  `toml:"base_url,omitempty"`
}

// Config is the full, validated configuration tree: a value-typed tree
// of option structs, checked in one explicit validation pass at load time.
type Config struct {
	Execution   ExecutionConfig             `toml:"execution"`
	UI          UIConfig                    `toml:"ui"`
	Context     ContextConfig               `toml:"context"`
	AIProviders map[string]AIProviderConfig `toml:"ai_providers"`

	// Verbose and NoDashboard are populated from CLI flags, not the file;
	// they are not part of the TOML schema.
	Verbose     bool `toml:"-"`
	NoDashboard bool `toml:"-"`
}

// Default returns conservative, test-friendly defaults for fields with
// no documented default.
func Default() *Config {
	return &Config{
		Execution: ExecutionConfig{
			MaxIterations: 10,
			ArtifactDir:   "artifacts",
		},
		UI: UIConfig{
			Colorful:     true,
			ProgressBars: true,
			Metrics:      true,
			OutputFormat: "terminal",
		},
		Context: ContextConfig{
			MaxTokens:            100_000,
			CompressionThreshold: 0.8,
		},
		AIProviders: map[string]AIProviderConfig{},
	}
}

// SearchPaths returns the config file candidates in lookup order.
func SearchPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	paths := []string{"cli_engineer.toml", ".cli_engineer.toml"}
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		if home, err := os.UserHomeDir(); err == nil {
			xdg = filepath.Join(home, ".config")
		}
	}
	if xdg != "" {
		paths = append(paths, filepath.Join(xdg, "cli_engineer", "config.toml"))
	}
	return paths
}

// Load resolves the first existing candidate in SearchPaths(explicit),
// decodes it over Default(), and validates the result. A missing file at
// every candidate is not an error; Default() alone is returned.
func Load(explicit string) (*Config, error) {
	cfg := Default()

	var path string
	for _, candidate := range SearchPaths(explicit) {
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}

	if path == "" {
		if explicit != "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("config file not found: %s", explicit)}
		}
		return cfg, Validate(cfg)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("parse %s: %v", path, err), Err: err}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigError reports a configuration problem; callers map it to exit code 2.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Validate checks the invariants the loader must enforce: at most one
// ai_providers entry enabled, a valid output format, and sane numeric ranges.
func Validate(cfg *Config) error {
	if cfg.Context.CompressionThreshold <= 0 || cfg.Context.CompressionThreshold > 1 {
		return &ConfigError{Reason: fmt.Sprintf("context.compression_threshold must be in (0,1], got %v", cfg.Context.CompressionThreshold)}
	}
	if cfg.Execution.MaxIterations <= 0 {
		return &ConfigError{Reason: "execution.max_iterations must be positive"}
	}
	switch cfg.UI.OutputFormat {
	case "terminal", "json", "":
	default:
		return &ConfigError{Reason: fmt.Sprintf("ui.output_format must be terminal or json, got %q", cfg.UI.OutputFormat)}
	}

	enabled := 0
	for _, p := range cfg.AIProviders {
		if p.Enabled {
			enabled++
		}
	}
	if enabled > 1 {
		return &ConfigError{Reason: fmt.Sprintf("exactly one ai_providers entry may be enabled, found %d", enabled)}
	}
	return nil
}

// EnabledProvider returns the name and config of the single enabled
// provider, or ("", nil, false) if none is enabled; the caller falls
// back to the deterministic local provider.
func EnabledProvider(cfg *Config) (string, *AIProviderConfig, bool) {
	for name, p := range cfg.AIProviders {
		if p.Enabled {
			pc := p
			return name, &pc, true
		}
	}
	return "", nil, false
}
