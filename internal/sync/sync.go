package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"github.com/otiai10/copy"

	"github.com/schaermu/patchsync/internal/config"
	"github.com/schaermu/patchsync/internal/fingerprint"
	"github.com/schaermu/patchsync/internal/reconcile"
	"github.com/schaermu/patchsync/internal/series"
	"github.com/schaermu/patchsync/internal/snapshot"
	"github.com/schaermu/patchsync/internal/syncerr"
)

// ErrLocked is returned when another process holds the sync lock.
var ErrLocked = errors.New("another sync is in progress")

// Engine orchestrates the sync process
type Engine struct {
	cfg    *config.Config
	queue  series.Queue
	hasher fingerprint.Hasher
	logger *slog.Logger
}

// NewEngine creates a new sync engine
func NewEngine(cfg *config.Config, queue series.Queue, logger *slog.Logger) (*Engine, error) {
	hasher, err := fingerprint.New(cfg.Fingerprint.Algorithm)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:    cfg,
		queue:  queue,
		hasher: hasher,
		logger: logger,
	}, nil
}

// Sync computes the plan for the current state and, unless dryRun is set,
// executes it. The returned plan is nil when reconciliation failed.
func (e *Engine) Sync(ctx context.Context, dryRun bool) (*reconcile.Plan, error) {
	e.logger.Info("starting sync",
		"source", e.cfg.Paths.SourceDir,
		"target", e.cfg.Paths.TargetDir,
		"dry_run", dryRun)

	unlock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := e.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := reconcile.Calculate(state.Input())
	if err != nil {
		return nil, err
	}

	if plan.Empty() {
		e.logger.Info("no series file in either location, nothing to sync")
		return plan, nil
	}

	e.logger.Info("sync plan",
		"patches", len(plan.Patches),
		"copy", len(plan.Copies()),
		"remove", len(plan.FilesToRemove),
		"unapply_to", plan.UnapplyTo)

	if dryRun {
		e.logPlanDetails(state, plan)
		e.logger.Info("dry-run complete, no changes applied")
		return plan, nil
	}

	if _, err := e.Execute(ctx, plan); err != nil {
		return plan, err
	}

	e.logger.Info("sync completed successfully")
	return plan, nil
}

// Execute applies plan and returns the state re-read afterwards. The plan
// must come from a successful reconcile.Calculate.
func (e *Engine) Execute(ctx context.Context, plan *reconcile.Plan) (*State, error) {
	const op syncerr.Op = "sync.execute"

	if plan == nil {
		return nil, syncerr.E(op, "no sync plan was calculated")
	}
	if conflicts := plan.Conflicts(); len(conflicts) > 0 {
		issues := make([]syncerr.Issue, 0, len(conflicts))
		for _, c := range conflicts {
			issues = append(issues, syncerr.Issue{Name: c.Name, Reason: c.Reason})
		}
		return nil, syncerr.E(op, syncerr.PatchConflict, issues, "refusing to execute a plan with conflicts")
	}
	if plan.Empty() {
		return e.LoadState(ctx)
	}

	target, err := series.ReadTarget(ctx, e.cfg.Paths.TargetDir, e.hasher, e.queue)
	if err != nil {
		return nil, fmt.Errorf("failed to read target series: %w", err)
	}
	previousTop := target.Top()

	// Unwind the queue before any file it has applied is touched.
	if previousTop != "" && previousTop != plan.UnapplyTo &&
		(plan.UnapplyTo == "" || target.IsApplied(plan.UnapplyTo)) {
		e.logger.Info("unwinding patch queue", "from", previousTop, "to", orNone(plan.UnapplyTo))
		if _, err := target.SeekTop(ctx, plan.UnapplyTo); err != nil {
			return nil, syncerr.E(op, syncerr.ToolFailure, err)
		}
	}

	if plan.HasManifest {
		if err := e.writeManifests(plan.Manifest); err != nil {
			return nil, syncerr.E(op, syncerr.ToolFailure, err)
		}
	}

	if err := e.applyFiles(plan); err != nil {
		return nil, syncerr.E(op, syncerr.ToolFailure, err)
	}

	snap := snapshot.Snapshot{}
	for _, rp := range plan.Patches {
		if rp.Fingerprint != "" {
			snap[rp.Name] = rp.Fingerprint
		}
	}
	if err := snapshot.Save(e.cfg.SnapshotPath(), snap); err != nil {
		return nil, syncerr.E(op, syncerr.ToolFailure, err)
	}

	state, err := e.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	if e.cfg.Queue.Reapply && previousTop != "" && previousTop != state.Target.Top() {
		if p, ok := state.Target.Get(previousTop); ok && p.Active {
			e.logger.Info("reapplying patch queue", "to", previousTop)
			target, err := state.Target.SeekTop(ctx, previousTop)
			if err != nil {
				return nil, syncerr.E(op, syncerr.ToolFailure, err)
			}
			state.Target = target
		} else {
			e.logger.Warn("previous top patch is no longer active, not reapplying", "patch", previousTop)
		}
	}

	return state, nil
}

// lock takes the advisory sync lock and returns its release function.
func (e *Engine) lock() (func(), error) {
	if err := os.MkdirAll(e.cfg.Paths.TargetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}

	lock := flock.New(e.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return func() { _ = lock.Unlock() }, nil
}

// writeManifests writes the merged series file to both locations and
// keeps a copy as the base of the next merge.
func (e *Engine) writeManifests(text string) error {
	paths := []string{
		filepath.Join(e.cfg.Paths.SourceDir, series.ManifestName),
		filepath.Join(e.cfg.Paths.TargetDir, series.ManifestName),
		e.cfg.OriginalSeriesPath(),
	}
	for _, path := range paths {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		e.logger.Debug("writing series file", "path", path)
		if err := atomic.WriteFile(path, strings.NewReader(text)); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// applyFiles copies every patch to its non-authoritative location and
// deletes the files no longer part of the result.
func (e *Engine) applyFiles(plan *reconcile.Plan) error {
	for _, rp := range plan.Copies() {
		src := filepath.Join(e.cfg.Paths.SourceDir, rp.Name)
		dst := filepath.Join(e.cfg.Paths.TargetDir, rp.Name)
		if rp.Resolution == reconcile.UseTarget {
			src, dst = dst, src
		}
		e.logger.Info("copying patch", "patch", rp.Name, "resolution", rp.Resolution, "dest", dst)
		if err := copyPatch(src, dst); err != nil {
			return fmt.Errorf("failed to copy %s: %w", rp.Name, err)
		}
	}

	for _, path := range plan.FilesToRemove {
		e.logger.Info("deleting patch", "path", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	}
	return nil
}

// copyPatch copies src over dst through a temporary file in dst's
// directory, so dst is either the old or the new content.
func copyPatch(src, dst string) error {
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".patchsync-tmp")
	defer func() {
		_ = os.Remove(tmp)
	}()

	if err := copy.Copy(src, tmp, copy.Options{Sync: true}); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// logPlanDetails logs detailed plan information for dry-run
func (e *Engine) logPlanDetails(state *State, plan *reconcile.Plan) {
	switch {
	case plan.UnapplyTo == state.Target.Top():
		e.logger.Info("[dry-run] patch queue would not be unwound")
	case plan.UnapplyTo == "":
		e.logger.Info("[dry-run] patch queue would be fully unwound")
	default:
		e.logger.Info("[dry-run] patch queue would be unwound", "to", plan.UnapplyTo)
	}

	for _, rp := range plan.Patches {
		e.logger.Info("[dry-run] final patch",
			"patch", rp.Name,
			"active", rp.Active,
			"resolution", rp.Resolution)
	}
	for _, rp := range plan.Copies() {
		src, dst := e.cfg.Paths.SourceDir, e.cfg.Paths.TargetDir
		if rp.Resolution == reconcile.UseTarget {
			src, dst = dst, src
		}
		e.logger.Info("[dry-run] would copy",
			"source", filepath.Join(src, rp.Name),
			"dest", filepath.Join(dst, rp.Name))
	}
	for _, path := range plan.FilesToRemove {
		e.logger.Info("[dry-run] would delete", "path", path)
	}
}

func orNone(name string) string {
	if name == "" {
		return "(none)"
	}
	return name
}
