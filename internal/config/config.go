// Package config handles configuration loading and validation for calltree.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigFile is the default configuration file name (without extension).
	DefaultConfigFile = ".calltree"
	// DefaultConfigType is the default configuration file type.
	DefaultConfigType = "yaml"
	// EnvPrefix prefixes environment overrides, e.g. CALLTREE_RUN_WORKERS.
	EnvPrefix = "CALLTREE"
)

// Config holds all configuration for calltree.
type Config struct {
	// SourceDir is the fuzz project root searched for entry points.
	SourceDir string `mapstructure:"source_dir" yaml:"source_dir"`
	// OutputDir receives the fuzzerLogFile-*.data files.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// Catalog configures where function records come from.
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	// Harness configures entry point discovery.
	Harness HarnessConfig `mapstructure:"harness" yaml:"harness"`
	// Render configures call tree rendering.
	Render RenderConfig `mapstructure:"render" yaml:"render"`
	// Run configures how entry points are processed.
	Run RunConfig `mapstructure:"run" yaml:"run"`
	// Watch configures the watch command.
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`
}

// CatalogConfig holds catalog sources.
type CatalogConfig struct {
	// Path is a JSON or YAML catalog file loaded on every run.
	Path string `mapstructure:"path" yaml:"path"`
	// DBPath is the persistent catalog store directory.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	// Scan builds the catalog from the source tree when no file is given.
	Scan bool `mapstructure:"scan" yaml:"scan"`
}

// HarnessConfig holds entry point discovery settings.
type HarnessConfig struct {
	// Trigger is the macro name marking an entry point.
	Trigger string `mapstructure:"trigger" yaml:"trigger"`
	// Extension is the source file extension, including the dot.
	Extension string `mapstructure:"extension" yaml:"extension"`
	// Structural requires a real macro invocation, not just the text.
	Structural bool `mapstructure:"structural" yaml:"structural"`
}

// RenderConfig holds rendering settings.
type RenderConfig struct {
	// MaxDepth limits tree depth; 0 means unlimited.
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`
}

// RunConfig holds processing settings.
type RunConfig struct {
	// Workers is the number of entry points processed at once.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// ContinueOnError skips entry points that fail to parse or write.
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error"`
}

// WatchConfig holds file watching configuration.
type WatchConfig struct {
	// Exclude lists glob patterns to exclude from watching.
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

// Load loads configuration from file, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// A config file passed with --config is stored in the global viper.
	if configFile := viper.GetViper().GetString("config_file"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(DefaultConfigFile)
		v.SetConfigType(DefaultConfigType)
		v.AddConfigPath(".")
	}

	// A .env in the working directory may carry CALLTREE_* overrides; it
	// never replaces variables already set in the environment.
	_ = godotenv.Load()

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Harness.Trigger == "" {
		return fmt.Errorf("harness trigger must not be empty")
	}
	if strings.ContainsAny(c.Harness.Trigger, "! \t\n") {
		return fmt.Errorf("harness trigger must be a bare macro name, got %q", c.Harness.Trigger)
	}
	if !strings.HasPrefix(c.Harness.Extension, ".") {
		return fmt.Errorf("harness extension must start with '.', got %q", c.Harness.Extension)
	}
	if c.Render.MaxDepth < 0 {
		return fmt.Errorf("render max_depth must be >= 0, got %d", c.Render.MaxDepth)
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("run workers must be >= 1, got %d", c.Run.Workers)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("source_dir", "")
	v.SetDefault("output_dir", ".")

	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.db_path", ".calltree/catalog.db")
	v.SetDefault("catalog.scan", false)

	v.SetDefault("harness.trigger", "fuzz_target")
	v.SetDefault("harness.extension", ".rs")
	v.SetDefault("harness.structural", false)

	v.SetDefault("render.max_depth", 0)

	v.SetDefault("run.workers", 1)
	v.SetDefault("run.continue_on_error", false)

	v.SetDefault("watch.exclude", []string{
		"**/target/**",
		"**/.git/**",
		"**/corpus/**",
		"**/artifacts/**",
	})
}
