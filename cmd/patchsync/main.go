package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/patchsync/internal/config"
	"github.com/schaermu/patchsync/internal/queue"
	"github.com/schaermu/patchsync/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool

	// Resolve flags
	useSource bool
	useTarget bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "patchsync",
	Short: "Keep a patch series in revision control and a patch queue in sync",
	Long: `patchsync reconciles two copies of the same patch series: the Source copy
kept in revision control and the Target copy managed by a patch queue tool
(Mercurial mq or quilt) next to an upstream checkout.

Changes made on either side since the last sync are merged automatically.
Patches modified on both sides are reported as conflicts and must be resolved
with the resolve command before the next sync.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the Source and Target patch series",
	Long: `Sync merges both series files against the copy saved by the previous sync,
decides per patch which copy is authoritative, unwinds the patch queue as far
as needed and copies, deletes and records patches so both locations agree.

Nothing is modified when any patch is in conflict.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status <patch>",
	Short: "Show the status of a patch in both locations",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List the patches sync cannot resolve automatically",
	Args:  cobra.NoArgs,
	RunE:  runConflicts,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <patch>",
	Short: "Resolve a conflict by keeping one copy of a patch",
	Long: `Resolve overwrites one copy of a conflicting patch with the other and records
the result, so that the next sync considers the patch resolved.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("patchsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/patchsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	resolveCmd.Flags().BoolVar(&useSource, "use-source", false, "keep the copy stored in revision control")
	resolveCmd.Flags().BoolVar(&useTarget, "use-target", false, "keep the copy stored in the patch queue")
	resolveCmd.MarkFlagsMutuallyExclusive("use-source", "use-target")
	resolveCmd.MarkFlagsOneRequired("use-source", "use-target")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	engine, err := newEngine(logger)
	if err != nil {
		return err
	}

	if _, err := engine.Sync(ctx, dryRun); err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	engine, err := newEngine(setupLogger())
	if err != nil {
		return err
	}

	status, err := engine.Status(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status of '%s':\n", status.Name)
	fmt.Fprintf(out, "  source: %s\n", status.Source)
	fmt.Fprintf(out, "  target: %s\n", status.Target)
	return nil
}

func runConflicts(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	engine, err := newEngine(setupLogger())
	if err != nil {
		return err
	}

	report, err := engine.Conflicts(ctx)
	if err != nil {
		return err
	}
	printConflicts(cmd.OutOrStdout(), report)
	return nil
}

func printConflicts(out io.Writer, report *sync.ConflictReport) {
	switch {
	case report.Empty():
		fmt.Fprintln(out, "There are no conflicts")
	case report.Manifest != nil:
		fmt.Fprintln(out, "The series files could not be merged, please see the results of the attempted merge below:")
		fmt.Fprintln(out)
		fmt.Fprint(out, report.Manifest.Text)
	default:
		fmt.Fprintln(out, "The following patches have been modified in both locations, so it is not possible to determine which copy to keep:")
		for _, p := range report.Patches {
			fmt.Fprintf(out, "  %s\n", p.Name)
			if p.Reason != "" {
				fmt.Fprintf(out, "      %s\n", p.Reason)
			}
		}
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	engine, err := newEngine(logger)
	if err != nil {
		return err
	}

	side := sync.SourceSide
	if useTarget {
		side = sync.TargetSide
	}
	if err := engine.Resolve(ctx, args[0], side); err != nil {
		logger.Error("resolve failed", "patch", args[0], "error", err)
		return err
	}
	return nil
}

// newEngine loads the configuration and wires the queue tool it names.
func newEngine(logger *slog.Logger) (*sync.Engine, error) {
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	q, err := queue.New(cfg.Queue.Tool, cfg.Paths.CheckoutDir, cfg.Paths.TargetDir)
	if err != nil {
		return nil, err
	}

	return sync.NewEngine(cfg, q, logger)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "patchsync", "config.yaml")
	}

	logger.Debug("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"source_dir", cfg.Paths.SourceDir,
		"target_dir", cfg.Paths.TargetDir,
		"checkout_dir", cfg.Paths.CheckoutDir,
		"queue", cfg.Queue.Tool,
		"fingerprint", cfg.Fingerprint.Algorithm)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
