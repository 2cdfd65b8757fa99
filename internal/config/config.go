// Package config loads and persists opcode's per-store configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ConfigDirName is the directory opcode keeps its state in, under the store root.
const ConfigDirName = ".opcode"

// Config is the complete opcode configuration.
type Config struct {
	Version  int            `json:"version" mapstructure:"version"`
	DataDir  string         `json:"dataDir,omitempty" mapstructure:"dataDir"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Chunking ChunkingConfig `json:"chunking" mapstructure:"chunking"`
	Git      GitConfig      `json:"git" mapstructure:"git"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
}

// ChunkingConfig holds defaults for processing passes.
type ChunkingConfig struct {
	MaxAstDepth             int      `json:"maxAstDepth" mapstructure:"maxAstDepth"`
	MaxCommits              int      `json:"maxCommits" mapstructure:"maxCommits"`
	IncludeDynamicCallgraph bool     `json:"includeDynamicCallgraph" mapstructure:"includeDynamicCallgraph"`
	IgnorePatterns          []string `json:"ignorePatterns" mapstructure:"ignorePatterns"`
}

// GitConfig controls mirroring of snapshots into the project's git repository.
type GitConfig struct {
	MirrorSnapshots bool `json:"mirrorSnapshots" mapstructure:"mirrorSnapshots"`
	TimeoutMs       int  `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Chunking: ChunkingConfig{
			MaxAstDepth: 50,
			MaxCommits:  100,
			IgnorePatterns: []string{
				"node_modules/**",
				"target/**",
				"dist/**",
				"build/**",
				".git/**",
			},
		},
		Git: GitConfig{
			MirrorSnapshots: false,
			TimeoutMs:       5000,
		},
	}
}

// ConfigPath returns the path of the config file under root.
func ConfigPath(root string) string {
	return filepath.Join(root, ConfigDirName, "config.json")
}

// Load reads the config file under root, falling back to defaults when absent.
func Load(root string) (*Config, error) {
	path := ConfigPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config as indented JSON under root, creating the
// .opcode directory if needed.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ConfigDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", ConfigDirName, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
