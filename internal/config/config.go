// Package config loads the lower thirds settings file.
//
// The settings file is YAML. Its path comes from the --config flag, or the
// LOWER_THIRDS_TOOL_CONFIG environment variable, or defaults to
// settings.yml in the working directory.
//
// Channels are listed either as a bare display name, from which the slug is
// derived, or as a mapping with an explicit name and slug:
//
//	channels:
//	  - Main Stage
//	  - name: Studio B
//	    slug: studio_b
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the settings path.
const EnvConfigPath = "LOWER_THIRDS_TOOL_CONFIG"

// DefaultConfigPath is used when neither the flag nor the environment
// variable is set.
const DefaultConfigPath = "settings.yml"

// DefaultListen is the server's default listen address.
const DefaultListen = ":5000"

// Config is the lower thirds settings file.
type Config struct {
	// Channels lists the configured channels in file order.
	Channels []ChannelConfig `yaml:"channels"`

	// Listen is the HTTP listen address of the server.
	Listen string `yaml:"listen"`

	// Database is the SQLite file for channel state and history.
	// Empty keeps everything in memory.
	Database string `yaml:"database"`

	// ExclusiveShow rejects a show while another lower third is visible
	// on the same channel, until it is hidden or killed.
	ExclusiveShow bool `yaml:"exclusive_show"`
}

// ChannelConfig is one channel entry. Slug is filled in by Load.
type ChannelConfig struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
}

// UnmarshalYAML accepts a bare string as shorthand for a channel name.
func (c *ChannelConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.Name = value.Value
		return nil
	}
	type plain ChannelConfig
	return value.Decode((*plain)(c))
}

// ResolvePath picks the settings path from the flag value, the environment
// or the default, in that order.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultConfigPath
}

// Load reads and validates the settings file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse validates settings file contents and derives missing slugs.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("configuration format invalid: %w", err)
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("at least one channel must be defined")
	}

	seen := make(map[string]string, len(cfg.Channels))
	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		if ch.Name == "" {
			return nil, fmt.Errorf("channel %d has no name", i+1)
		}
		slug, err := ChannelSlug(ch.Name, ch.Slug)
		if err != nil {
			return nil, err
		}
		if owner, ok := seen[slug]; ok {
			return nil, fmt.Errorf("channel slug %s already in use by the channel %s: %w", slug, owner, ErrDuplicateSlug)
		}
		seen[slug] = ch.Name
		ch.Slug = slug
	}

	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	return &cfg, nil
}
