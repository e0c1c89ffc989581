package sync

import (
	"context"
	"fmt"

	"github.com/schaermu/patchsync/internal/merge3"
	"github.com/schaermu/patchsync/internal/reconcile"
	"github.com/schaermu/patchsync/internal/series"
	"github.com/schaermu/patchsync/internal/snapshot"
	"github.com/schaermu/patchsync/internal/syncerr"
)

// Side selects one location's copy of a patch.
type Side string

const (
	SourceSide Side = "source"
	TargetSide Side = "target"
)

// PatchStatus describes one patch in both locations relative to the last
// sync, e.g. "modified (active)" or "deleted".
type PatchStatus struct {
	Name   string
	Source string
	Target string
}

// Status reports the state of name in both locations. It fails if neither
// location nor the snapshot knows the patch.
func (e *Engine) Status(ctx context.Context, name string) (*PatchStatus, error) {
	state, err := e.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	src, inSource := state.Source.Get(name)
	tgt, inTarget := state.Target.Get(name)
	recorded := state.Snapshot.Has(name)
	if !inSource && !inTarget && !recorded {
		return nil, fmt.Errorf("the specified patch %q cannot be found", name)
	}

	describe := func(p series.Patch, present bool) string {
		if !present {
			if recorded {
				return "deleted"
			}
			return "missing"
		}
		status := "unmodified"
		switch {
		case !recorded:
			status = "new"
		case state.Snapshot.Get(name) != p.Fingerprint:
			status = "modified"
		}
		if p.Active {
			return status + " (active)"
		}
		return status + " (inactive)"
	}

	return &PatchStatus{
		Name:   name,
		Source: describe(src, inSource),
		Target: describe(tgt, inTarget),
	}, nil
}

// ConflictReport lists what a sync cannot decide on its own. When the
// series files cannot be merged, Manifest holds the attempted merge and
// Patches is empty.
type ConflictReport struct {
	Patches  []reconcile.ResolvedPatch
	Manifest *merge3.Result
}

// Empty reports whether there is nothing to resolve.
func (r *ConflictReport) Empty() bool {
	return len(r.Patches) == 0 && r.Manifest == nil
}

// Conflicts returns the patches modified in both locations, or the failed
// series merge.
func (e *Engine) Conflicts(ctx context.Context) (*ConflictReport, error) {
	state, err := e.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	in := state.Input()
	patches, err := reconcile.ListConflicts(in)
	if err != nil {
		if syncerr.Is(err, syncerr.ManifestConflict) {
			merged := reconcile.MergeManifests(in)
			return &ConflictReport{Manifest: &merged}, nil
		}
		return nil, err
	}
	return &ConflictReport{Patches: patches}, nil
}

// Resolve settles the conflict on name by keeping the copy from side. The
// kept file overwrites the other one and becomes the recorded fingerprint,
// so the next sync treats the patch as resolved.
func (e *Engine) Resolve(ctx context.Context, name string, side Side) error {
	const op syncerr.Op = "sync.resolve"

	if side != SourceSide && side != TargetSide {
		return fmt.Errorf("invalid side %q (must be %s or %s)", side, SourceSide, TargetSide)
	}

	unlock, err := e.lock()
	if err != nil {
		return err
	}
	defer unlock()

	report, err := e.Conflicts(ctx)
	if err != nil {
		return err
	}
	if report.Manifest != nil {
		return syncerr.E(op, syncerr.ManifestConflict,
			"only conflicts in individual patches can be resolved; fix the series files first")
	}
	if report.Empty() {
		return fmt.Errorf("there are no conflicts to resolve")
	}

	listed := false
	for _, c := range report.Patches {
		if c.Name == name {
			listed = true
			break
		}
	}
	if !listed {
		return fmt.Errorf("patch %q is not in the list of conflicts", name)
	}

	state, err := e.LoadState(ctx)
	if err != nil {
		return err
	}

	src := state.Source.Path(name)
	dst := state.Target.Path(name)
	if side == TargetSide {
		src, dst = dst, src
	} else if state.Target.IsApplied(name) {
		// The Target copy is about to change underneath the queue.
		below := ""
		if i := state.Target.Index(name); i > 0 {
			below = state.Target.At(i - 1).Name
		}
		e.logger.Info("unwinding patch queue", "to", orNone(below))
		if _, err := state.Target.SeekTop(ctx, below); err != nil {
			return syncerr.E(op, syncerr.ToolFailure, err)
		}
	}

	e.logger.Info("resolving conflict", "patch", name, "keep", side, "dest", dst)
	if err := copyPatch(src, dst); err != nil {
		return syncerr.E(op, syncerr.ToolFailure, fmt.Errorf("failed to copy %s: %w", name, err))
	}

	fp, err := e.hasher.File(src)
	if err != nil {
		return fmt.Errorf("failed to fingerprint %s: %w", src, err)
	}

	snap := snapshot.Snapshot{}
	for n, v := range state.Snapshot {
		snap[n] = v
	}
	snap[name] = fp
	if err := snapshot.Save(e.cfg.SnapshotPath(), snap); err != nil {
		return syncerr.E(op, syncerr.ToolFailure, err)
	}
	return nil
}
