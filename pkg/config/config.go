// Package config loads Huginn configuration from a YAML file with
// environment variable overrides.
//
// Configuration is deliberately small: Huginn is an embedded database,
// so everything an application needs at runtime is in graph.Options.
// This package exists for the CLI and for deployments that want a
// config file next to the data file.
//
// Example Usage:
//
//	cfg, err := config.Load("huginn.yaml")
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	db, err := graph.Open(cfg.Path, cfg.GraphOptions())
//
// Environment Variables:
//   - HUGINN_PATH: database file path
//   - HUGINN_MAP_SIZE: initial memory-map size in bytes
//   - HUGINN_NO_SYNC=true: skip fsync on commit (crash-unsafe, fast bulk loads)
//   - HUGINN_READ_ONLY=true: open the file read-only
//
// Environment variables win over file values; file values win over
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/huginn/pkg/graph"
)

// Config holds the settings needed to open a database.
type Config struct {
	// Path is the database file. Created on first open.
	Path string `yaml:"path"`

	// MapSize is the initial memory-map size in bytes. The file grows
	// beyond it on demand; sizing it up front avoids remaps during bulk
	// loads. Zero uses the engine default.
	MapSize int `yaml:"map_size"`

	// NoSync skips fsync on commit. Crash safety is lost while set;
	// meant for bulk imports that can be redone.
	NoSync bool `yaml:"no_sync"`

	// ReadOnly opens the file without write access. Multiple read-only
	// processes can share one file.
	ReadOnly bool `yaml:"read_only"`

	// IndexedProperties lists the property keys maintained in the value
	// index. Keys not listed are stored but not indexed.
	IndexedProperties []string `yaml:"indexed_properties"`
}

// Default returns the configuration used when no file and no environment
// variables are present.
func Default() *Config {
	return &Config{
		Path: "huginn.db",
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. A missing file is not an error; the defaults
// plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to env
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HUGINN_PATH"); v != "" {
		c.Path = v
	}
	if v := os.Getenv("HUGINN_MAP_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HUGINN_MAP_SIZE: %w", err)
		}
		c.MapSize = n
	}
	for env, field := range map[string]*bool{
		"HUGINN_NO_SYNC":   &c.NoSync,
		"HUGINN_READ_ONLY": &c.ReadOnly,
	} {
		if v := os.Getenv(env); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			*field = b
		}
	}
	return nil
}

// Validate checks the configuration for contradictions before any file
// is touched.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("config: path must not be empty")
	}
	if c.MapSize < 0 {
		return fmt.Errorf("config: map_size must not be negative, got %d", c.MapSize)
	}
	if c.NoSync && c.ReadOnly {
		return fmt.Errorf("config: no_sync is meaningless with read_only")
	}
	seen := make(map[string]struct{}, len(c.IndexedProperties))
	for _, key := range c.IndexedProperties {
		if key == "" {
			return fmt.Errorf("config: indexed_properties contains an empty key")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("config: indexed_properties lists %q twice", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// GraphOptions translates the configuration into options for graph.Open.
func (c *Config) GraphOptions() *graph.Options {
	return &graph.Options{
		MapSize:           c.MapSize,
		NoSync:            c.NoSync,
		ReadOnly:          c.ReadOnly,
		IndexedProperties: c.IndexedProperties,
	}
}
