package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/schaermu/patchsync/internal/merge3"
	"github.com/schaermu/patchsync/internal/reconcile"
	"github.com/schaermu/patchsync/internal/sync"
	"github.com/schaermu/patchsync/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeTestConfig lays out source and target patch directories with the
// given patches and returns the path of a config file pointing at them.
func writeTestConfig(t *testing.T, files map[string]string) (cfgPath, srcDir, tgtDir string) {
	t.Helper()
	tmpDir := t.TempDir()
	srcDir = filepath.Join(tmpDir, "fork", "patches")
	checkout := filepath.Join(tmpDir, "upstream")
	tgtDir = filepath.Join(checkout, ".hg", "patches")

	var names []string
	for name := range files {
		names = append(names, name)
	}
	testutil.WritePatchDir(t, srcDir, names, files)
	testutil.WritePatchDir(t, tgtDir, names, files)

	content := []byte(`paths:
  source_dir: "` + srcDir + `"
  target_dir: "` + tgtDir + `"
  checkout_dir: "` + checkout + `"
queue:
  tool: hg
`)
	cfgPath = filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return cfgPath, srcDir, tgtDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	origCfgFile, origLevel, origDryRun := cfgFile, logLevel, dryRun
	origUseSource, origUseTarget := useSource, useTarget
	t.Cleanup(func() {
		cfgFile, logLevel, dryRun = origCfgFile, origLevel, origDryRun
		useSource, useTarget = origUseSource, origUseTarget
	})

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text"},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "WARN", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}
}

func TestLoadConfig_WithExplicitPath(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgPath, srcDir, _ := writeTestConfig(t, map[string]string{"a.patch": "a\n"})
	cfgFile = cfgPath

	cfg, err := loadConfig(quietLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Paths.SourceDir != srcDir {
		t.Errorf("source dir = %s, want %s", cfg.Paths.SourceDir, srcDir)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")

	if _, err := loadConfig(quietLogger()); err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_DefaultPath(t *testing.T) {
	origCfgFile := cfgFile
	defer func() { cfgFile = origCfgFile }()
	cfgFile = ""
	t.Setenv("HOME", t.TempDir())

	// Expect error because the default config file doesn't exist
	_, err := loadConfig(quietLogger())
	if err == nil {
		t.Fatal("expected error when default config file doesn't exist")
	}
	if !strings.Contains(err.Error(), filepath.Join(".config", "patchsync", "config.yaml")) &&
		!strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	// versionCmd.Run simply prints version info; should not panic.
	versionCmd.Run(versionCmd, []string{})
}

func TestSyncThenStatus(t *testing.T) {
	cfgPath, srcDir, _ := writeTestConfig(t, map[string]string{"a.patch": "a\n"})

	out, err := execute(t, "--config", cfgPath, "status", "a.patch")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	want := "Status of 'a.patch':\n  source: new (active)\n  target: new (active)\n"
	if out != want {
		t.Errorf("status output = %q, want %q", out, want)
	}

	// Nothing is applied, so sync does not need to run the queue tool.
	if _, err := execute(t, "--config", cfgPath, "sync"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if err := os.WriteFile(filepath.Join(srcDir, "a.patch"), []byte("changed\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "--config", cfgPath, "status", "a.patch")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	want = "Status of 'a.patch':\n  source: modified (active)\n  target: unmodified (active)\n"
	if out != want {
		t.Errorf("status output = %q, want %q", out, want)
	}

	if _, err := execute(t, "--config", cfgPath, "status", "nope.patch"); err == nil {
		t.Error("expected error for unknown patch")
	}
}

func TestConflictsAndResolve(t *testing.T) {
	cfgPath, srcDir, tgtDir := writeTestConfig(t, map[string]string{"a.patch": "a\n"})
	if _, err := execute(t, "--config", cfgPath, "sync"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	out, err := execute(t, "--config", cfgPath, "conflicts")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "There are no conflicts") {
		t.Errorf("unexpected output %q", out)
	}

	if err := os.WriteFile(filepath.Join(srcDir, "a.patch"), []byte("source\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tgtDir, "a.patch"), []byte("target\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "--config", cfgPath, "sync"); err == nil {
		t.Fatal("expected sync to fail on a conflict")
	}

	out, err = execute(t, "--config", cfgPath, "conflicts")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "  a.patch\n") {
		t.Errorf("conflict not listed: %q", out)
	}

	if _, err := execute(t, "--config", cfgPath, "resolve", "a.patch"); err == nil {
		t.Error("resolve without a side should fail")
	}
	if _, err := execute(t, "--config", cfgPath, "resolve", "a.patch", "--use-target"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := testutil.ReadFile(t, filepath.Join(srcDir, "a.patch")); got != "target\n" {
		t.Errorf("source copy = %q, want target content", got)
	}

	if _, err := execute(t, "--config", cfgPath, "sync"); err != nil {
		t.Fatalf("sync after resolve: %v", err)
	}
}

func TestPrintConflicts(t *testing.T) {
	out := &bytes.Buffer{}
	printConflicts(out, &sync.ConflictReport{Manifest: &merge3.Result{Text: "<<<<<<< source\nx.patch\n"}})
	if !strings.Contains(out.String(), "could not be merged") || !strings.Contains(out.String(), "<<<<<<< source") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	printConflicts(out, &sync.ConflictReport{Patches: []reconcile.ResolvedPatch{{Name: "b.patch", Reason: "both modified"}}})
	if !strings.Contains(out.String(), "  b.patch\n      both modified\n") {
		t.Errorf("unexpected output %q", out.String())
	}
}
