// Package config holds the sampler and postprocessor's typed,
// YAML-loadable configuration, adapted from the teacher's
// pkg/config.Config nested-struct-plus-yaml-tags pattern.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full sampler configuration (spec §4.5, §6).
type Config struct {
	Sampler   SamplerConfig   `yaml:"sampler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
}

// SamplerConfig carries the knobs spec §4.5.1 lists.
type SamplerConfig struct {
	NumParticles     int     `yaml:"num_particles"`
	NumThreads       int     `yaml:"num_threads"`
	NewLevelInterval int     `yaml:"new_level_interval"`
	SaveInterval     int     `yaml:"save_interval"`
	Thin             float64 `yaml:"thin"` // probability a saved particle keeps its blob, in (0,1]
	MaxNumLevels     int     `yaml:"max_num_levels"` // 0 means unset
	Lambda           float64 `yaml:"lambda"`
	Beta             float64 `yaml:"beta"`
	MaxNumSaves      int     `yaml:"max_num_saves"`
	Seed             int64   `yaml:"seed"` // 0 means derive from time
}

// LoggingConfig controls the shared zerolog wrapper.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig names the sqlite database file.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration spec §6 lists as CLI flag defaults.
func Default() *Config {
	return &Config{
		Sampler: SamplerConfig{
			NumParticles:     100,
			NumThreads:       4,
			NewLevelInterval: 10000,
			SaveInterval:     100,
			Thin:             0.1,
			MaxNumLevels:     0,
			Lambda:           10,
			Beta:             100,
			MaxNumSaves:      10000,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Store:   StoreConfig{Path: "dns.db"},
	}
}

// Load reads a YAML config file over top of Default, returning the
// defaults unmodified if path is empty or absent.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces the divisibility and positivity invariants spec
// §4.5.1 and §7 require before a run starts.
func (c *Config) Validate() error {
	s := c.Sampler
	if s.NumParticles < 1 {
		return fmt.Errorf("config: sampler.num_particles must be at least 1")
	}
	if s.NumThreads < 1 {
		return fmt.Errorf("config: sampler.num_threads must be at least 1")
	}
	if s.NumParticles%s.NumThreads != 0 {
		return fmt.Errorf("config: sampler.num_particles (%d) must be divisible by sampler.num_threads (%d)", s.NumParticles, s.NumThreads)
	}
	if s.NewLevelInterval < 1 {
		return fmt.Errorf("config: sampler.new_level_interval must be at least 1")
	}
	if s.SaveInterval < 1 {
		return fmt.Errorf("config: sampler.save_interval must be at least 1")
	}
	if s.SaveInterval%s.NumThreads != 0 {
		return fmt.Errorf("config: sampler.save_interval (%d) must be divisible by sampler.num_threads (%d)", s.SaveInterval, s.NumThreads)
	}
	if s.Thin <= 0 || s.Thin > 1 {
		return fmt.Errorf("config: sampler.thin must be a probability in (0,1]")
	}
	if s.MaxNumLevels < 0 {
		return fmt.Errorf("config: sampler.max_num_levels must not be negative")
	}
	if s.Lambda <= 0 {
		return fmt.Errorf("config: sampler.lambda must be positive")
	}
	if s.Beta < 0 {
		return fmt.Errorf("config: sampler.beta must not be negative")
	}
	if s.MaxNumSaves < 1 {
		return fmt.Errorf("config: sampler.max_num_saves must be at least 1")
	}
	if s.MaxNumSaves%s.NumThreads != 0 {
		return fmt.Errorf("config: sampler.max_num_saves (%d) must be divisible by sampler.num_threads (%d)", s.MaxNumSaves, s.NumThreads)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path is required")
	}
	return nil
}
