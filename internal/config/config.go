package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/patchsync/internal/fingerprint"
	"github.com/schaermu/patchsync/internal/queue"
)

// Names of the state files kept next to the Target series.
const (
	SnapshotFile       = ".series.checksums"
	OriginalSeriesFile = ".series.orig"
	LockFile           = ".patchsync.lock"
)

// Config represents the complete patchsync configuration
type Config struct {
	Paths       PathsConfig       `yaml:"paths" toml:"paths"`
	Queue       QueueConfig       `yaml:"queue" toml:"queue"`
	Fingerprint FingerprintConfig `yaml:"fingerprint" toml:"fingerprint"`
}

// PathsConfig configures the two patch directories and the tree they apply to
type PathsConfig struct {
	SourceDir   string `yaml:"source_dir" toml:"source_dir"`
	TargetDir   string `yaml:"target_dir" toml:"target_dir"`
	CheckoutDir string `yaml:"checkout_dir" toml:"checkout_dir"`
}

// QueueConfig configures the patch queue tool managing the Target
type QueueConfig struct {
	Tool queue.Tool `yaml:"tool" toml:"tool"`
	// Reapply pushes the Target back to its previous top after a sync.
	Reapply bool `yaml:"reapply" toml:"reapply"`
}

// FingerprintConfig selects the content hash
type FingerprintConfig struct {
	Algorithm fingerprint.Algorithm `yaml:"algorithm" toml:"algorithm"`
}

// Load reads and parses the configuration file. Files ending in .toml are
// parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("failed to parse config file: unknown key %q", undecoded[0].String())
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all path fields
func (c *Config) expandEnv() {
	c.Paths.SourceDir = os.ExpandEnv(c.Paths.SourceDir)
	c.Paths.TargetDir = os.ExpandEnv(c.Paths.TargetDir)
	c.Paths.CheckoutDir = os.ExpandEnv(c.Paths.CheckoutDir)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Queue.Tool == "" {
		c.Queue.Tool = queue.Hg
	}
	if c.Fingerprint.Algorithm == "" {
		c.Fingerprint.Algorithm = fingerprint.SHA256
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	paths := []struct {
		key   string
		value string
	}{
		{"paths.source_dir", c.Paths.SourceDir},
		{"paths.target_dir", c.Paths.TargetDir},
		{"paths.checkout_dir", c.Paths.CheckoutDir},
	}
	for _, p := range paths {
		if p.value == "" {
			return fmt.Errorf("%s is required", p.key)
		}
		if !filepath.IsAbs(p.value) {
			return fmt.Errorf("%s must be an absolute path: %s", p.key, p.value)
		}
	}

	if filepath.Clean(c.Paths.SourceDir) == filepath.Clean(c.Paths.TargetDir) {
		return fmt.Errorf("paths.source_dir and paths.target_dir must differ")
	}

	switch c.Queue.Tool {
	case queue.Hg, queue.Quilt:
		// valid
	default:
		return fmt.Errorf("invalid queue.tool: %s (must be hg or quilt)", c.Queue.Tool)
	}

	switch c.Fingerprint.Algorithm {
	case fingerprint.SHA256, fingerprint.BLAKE3:
		// valid
	default:
		return fmt.Errorf("invalid fingerprint.algorithm: %s (must be sha256 or blake3)", c.Fingerprint.Algorithm)
	}

	return nil
}

// SnapshotPath returns the path of the checksum snapshot
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Paths.TargetDir, SnapshotFile)
}

// OriginalSeriesPath returns the path of the series file as of the last sync
func (c *Config) OriginalSeriesPath() string {
	return filepath.Join(c.Paths.TargetDir, OriginalSeriesFile)
}

// LockPath returns the path of the advisory lock held during a sync
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.TargetDir, LockFile)
}
