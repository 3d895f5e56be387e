package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v3"
)

// Default returns the configuration Load yields without a file or
// environment overrides, with the built-in patterns spelled out.
func Default() *Config {
	return &Config{
		Analyze: AnalyzeConfig{
			Format:      "json",
			Color:       "auto",
			Exclude:     []string{"**/target/**", "**/build/**", "**/.git/**", "**/node_modules/**"},
			MaxFileSize: 2 << 20,
			DebounceMS:  500,
		},
		Patterns: DefaultPatternConfig(),
		Store:    StoreConfig{Dir: DefaultStoreDir},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
	}
}

// Marshal serializes cfg as TOML when format is "toml" and as YAML
// otherwise.
func Marshal(cfg *Config, format string) ([]byte, error) {
	if strings.EqualFold(format, "toml") {
		data, err := toml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal toml: %w", err)
		}
		return data, nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return data, nil
}

// WriteConfig serializes cfg and writes it to path, as TOML when path ends
// in .toml and as YAML otherwise.
func WriteConfig(cfg *Config, path string) error {
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	data, err := Marshal(cfg, format)
	if err != nil {
		return err
	}
	content := "# daotrace configuration\n" + string(data)
	return os.WriteFile(path, []byte(content), 0644)
}
