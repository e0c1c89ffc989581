package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/schaermu/patchsync/internal/fingerprint"
	"github.com/schaermu/patchsync/internal/queue"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func validConfig() Config {
	return Config{
		Paths: PathsConfig{
			SourceDir:   "/src/fork/patches",
			TargetDir:   "/src/upstream/.hg/patches",
			CheckoutDir: "/src/upstream",
		},
		Queue:       QueueConfig{Tool: queue.Hg},
		Fingerprint: FingerprintConfig{Algorithm: fingerprint.SHA256},
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
paths:
  source_dir: "/src/fork/patches"
  target_dir: "/src/upstream/.hg/patches"
  checkout_dir: "/src/upstream"

queue:
  tool: quilt
  reapply: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Paths.SourceDir != "/src/fork/patches" {
		t.Errorf("expected source dir /src/fork/patches, got %s", cfg.Paths.SourceDir)
	}
	if cfg.Queue.Tool != queue.Quilt {
		t.Errorf("expected queue tool quilt, got %s", cfg.Queue.Tool)
	}
	if !cfg.Queue.Reapply {
		t.Error("expected queue.reapply to be set")
	}
	if cfg.Fingerprint.Algorithm != fingerprint.SHA256 {
		t.Errorf("expected default algorithm sha256, got %s", cfg.Fingerprint.Algorithm)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[paths]
source_dir = "/src/fork/patches"
target_dir = "/src/upstream/.hg/patches"
checkout_dir = "/src/upstream"

[fingerprint]
algorithm = "blake3"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Paths.TargetDir != "/src/upstream/.hg/patches" {
		t.Errorf("expected target dir /src/upstream/.hg/patches, got %s", cfg.Paths.TargetDir)
	}
	if cfg.Fingerprint.Algorithm != fingerprint.BLAKE3 {
		t.Errorf("expected algorithm blake3, got %s", cfg.Fingerprint.Algorithm)
	}
	if cfg.Queue.Tool != queue.Hg {
		t.Errorf("expected default queue tool hg, got %s", cfg.Queue.Tool)
	}
}

func TestLoad_TOMLUnknownKey(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[paths]
source_dir = "/src/fork/patches"
target_dir = "/src/upstream/.hg/patches"
checkout_dir = "/src/upstream"
sourcedir = "/typo"
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "sourcedir") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "config.yaml", "paths: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}

	path = writeConfig(t, "config.yaml", "paths:\n  source_dir: relative\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(*Config) {},
		},
		{
			name:    "missing source dir",
			modify:  func(c *Config) { c.Paths.SourceDir = "" },
			wantErr: "paths.source_dir is required",
		},
		{
			name:    "missing checkout dir",
			modify:  func(c *Config) { c.Paths.CheckoutDir = "" },
			wantErr: "paths.checkout_dir is required",
		},
		{
			name:    "relative target dir",
			modify:  func(c *Config) { c.Paths.TargetDir = "relative/path" },
			wantErr: "paths.target_dir must be an absolute path",
		},
		{
			name:    "same directory on both sides",
			modify:  func(c *Config) { c.Paths.TargetDir = c.Paths.SourceDir + "/" },
			wantErr: "must differ",
		},
		{
			name:    "unknown queue tool",
			modify:  func(c *Config) { c.Queue.Tool = "git" },
			wantErr: "invalid queue.tool",
		},
		{
			name:    "unknown algorithm",
			modify:  func(c *Config) { c.Fingerprint.Algorithm = "md5" },
			wantErr: "invalid fingerprint.algorithm",
		},
		{
			name:   "quilt with blake3",
			modify: func(c *Config) { c.Queue.Tool = queue.Quilt; c.Fingerprint.Algorithm = fingerprint.BLAKE3 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := validConfig()
	target := cfg.Paths.TargetDir

	if got := cfg.SnapshotPath(); got != filepath.Join(target, ".series.checksums") {
		t.Errorf("SnapshotPath() = %s", got)
	}
	if got := cfg.OriginalSeriesPath(); got != filepath.Join(target, ".series.orig") {
		t.Errorf("OriginalSeriesPath() = %s", got)
	}
	if got := cfg.LockPath(); got != filepath.Join(target, ".patchsync.lock") {
		t.Errorf("LockPath() = %s", got)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.Queue.Tool != queue.Hg {
		t.Errorf("applyDefaults() did not set queue tool, got %q, want %q", cfg.Queue.Tool, queue.Hg)
	}
	if cfg.Fingerprint.Algorithm != fingerprint.SHA256 {
		t.Errorf("applyDefaults() did not set algorithm, got %q", cfg.Fingerprint.Algorithm)
	}

	// Explicit value must not be overwritten
	cfg2 := Config{Queue: QueueConfig{Tool: queue.Quilt}}
	cfg2.applyDefaults()

	if cfg2.Queue.Tool != queue.Quilt {
		t.Errorf("applyDefaults() overwrote explicit queue tool, got %q", cfg2.Queue.Tool)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("PATCHSYNC_TEST_HOME", "/home/testuser")

	cfg := Config{
		Paths: PathsConfig{
			SourceDir:   "${PATCHSYNC_TEST_HOME}/fork/patches",
			TargetDir:   "${PATCHSYNC_TEST_HOME}/upstream/.hg/patches",
			CheckoutDir: "$PATCHSYNC_TEST_HOME/upstream",
		},
	}

	cfg.expandEnv()

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Paths.SourceDir", cfg.Paths.SourceDir, "/home/testuser/fork/patches"},
		{"Paths.TargetDir", cfg.Paths.TargetDir, "/home/testuser/upstream/.hg/patches"},
		{"Paths.CheckoutDir", cfg.Paths.CheckoutDir, "/home/testuser/upstream"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("expandEnv() %s = %s, want %s", c.name, c.got, c.want)
		}
	}
}
