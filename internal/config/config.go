// Package config handles configuration loading and validation for daotrace.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigFile is the default configuration file name (without extension).
	DefaultConfigFile = ".daotrace"
	// DefaultConfigType is the default configuration file type.
	DefaultConfigType = "yaml"
	// DefaultStoreDir is where analyze --store keeps the graph when no
	// directory is given.
	DefaultStoreDir = ".daotrace"
	// EnvPrefix prefixes environment overrides, e.g. DAOTRACE_ANALYZE_WORKERS.
	EnvPrefix = "DAOTRACE"
)

// Config holds all configuration for daotrace.
type Config struct {
	// Analyze holds the defaults of the analyze command.
	Analyze AnalyzeConfig `mapstructure:"analyze" yaml:"analyze" toml:"analyze"`
	// Patterns tunes the pattern catalog and the layer classifier.
	Patterns PatternConfig `mapstructure:"patterns" yaml:"patterns" toml:"patterns"`
	// Store is the embedded graph store.
	Store StoreConfig `mapstructure:"store" yaml:"store" toml:"store"`
	// Neo4j is the export target of "export neo4j".
	Neo4j Neo4jConfig `mapstructure:"neo4j" yaml:"neo4j" toml:"neo4j"`
}

// AnalyzeConfig holds analysis defaults. Flags override them.
type AnalyzeConfig struct {
	// Workers bounds parsing and extraction. Zero means one per CPU.
	Workers int `mapstructure:"workers" yaml:"workers" toml:"workers"`
	// Format is json, csv or text.
	Format string `mapstructure:"format" yaml:"format" toml:"format"`
	// Color is auto, always or never.
	Color string `mapstructure:"color" yaml:"color" toml:"color"`
	// Exclude lists gitignore-style patterns skipped during discovery.
	Exclude []string `mapstructure:"exclude" yaml:"exclude" toml:"exclude"`
	// MaxFileSize skips larger files, in bytes. Zero means no limit.
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size" toml:"max_file_size"`
	// SkipMappers disables the mapper XML index.
	SkipMappers bool `mapstructure:"skip_mappers" yaml:"skip_mappers" toml:"skip_mappers"`
	// MetricsFile receives prometheus metrics in textfile format.
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty" toml:"metrics_file,omitempty"`
	// DebounceMS is the quiet period of --watch before re-analysis.
	DebounceMS int `mapstructure:"debounce_ms" yaml:"debounce_ms" toml:"debounce_ms"`
}

// StoreConfig holds embedded store settings.
type StoreConfig struct {
	// Dir is the badger directory.
	Dir string `mapstructure:"dir" yaml:"dir" toml:"dir"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri" toml:"uri"`
	Username string `mapstructure:"username" yaml:"username" toml:"username"`
	Password string `mapstructure:"password" yaml:"password,omitempty" toml:"password,omitempty"`
	Database string `mapstructure:"database" yaml:"database,omitempty" toml:"database,omitempty"`
}

// Load loads configuration from file, environment variables, and defaults.
// configFile overrides the search for .daotrace.yaml in the working directory.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(DefaultConfigFile)
		v.SetConfigType(DefaultConfigType)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
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
	if c.Analyze.Workers < 0 {
		return fmt.Errorf("analyze.workers must not be negative, got %d", c.Analyze.Workers)
	}
	switch c.Analyze.Format {
	case "", "json", "csv", "text":
	default:
		return fmt.Errorf("analyze.format must be 'json', 'csv' or 'text', got %q", c.Analyze.Format)
	}
	switch c.Analyze.Color {
	case "", "auto", "always", "never":
	default:
		return fmt.Errorf("analyze.color must be 'auto', 'always' or 'never', got %q", c.Analyze.Color)
	}
	if c.Analyze.MaxFileSize < 0 {
		return fmt.Errorf("analyze.max_file_size must not be negative, got %d", c.Analyze.MaxFileSize)
	}
	if err := c.Patterns.Validate(); err != nil {
		return err
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("analyze.workers", 0)
	v.SetDefault("analyze.format", "json")
	v.SetDefault("analyze.color", "auto")
	v.SetDefault("analyze.exclude", []string{
		"**/target/**",
		"**/build/**",
		"**/.git/**",
		"**/node_modules/**",
	})
	v.SetDefault("analyze.max_file_size", 2<<20)
	v.SetDefault("analyze.skip_mappers", false)
	v.SetDefault("analyze.debounce_ms", 500)

	v.SetDefault("store.dir", DefaultStoreDir)

	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")
}
