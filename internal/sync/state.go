package sync

import (
	"context"
	"fmt"
	"os"

	"github.com/schaermu/patchsync/internal/reconcile"
	"github.com/schaermu/patchsync/internal/series"
	"github.com/schaermu/patchsync/internal/snapshot"
)

// State is everything read from disk that a plan is computed from.
type State struct {
	Source   *series.Series
	Target   *series.Target
	Snapshot snapshot.Snapshot
	// Original is the series text written by the last successful sync.
	Original    string
	HasOriginal bool
}

// Input returns the reconciler input for s.
func (s *State) Input() reconcile.Input {
	return reconcile.Input{
		Source:      s.Source,
		Target:      s.Target,
		Snapshot:    s.Snapshot,
		Original:    s.Original,
		HasOriginal: s.HasOriginal,
	}
}

// LoadState reads both patch directories, the applied stack, the snapshot
// and the original series file.
func (e *Engine) LoadState(ctx context.Context) (*State, error) {
	source, err := series.Read(e.cfg.Paths.SourceDir, e.hasher)
	if err != nil {
		return nil, fmt.Errorf("failed to read source series: %w", err)
	}

	target, err := series.ReadTarget(ctx, e.cfg.Paths.TargetDir, e.hasher, e.queue)
	if err != nil {
		return nil, fmt.Errorf("failed to read target series: %w", err)
	}

	snap, err := snapshot.Load(e.cfg.SnapshotPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load checksum snapshot: %w", err)
	}

	state := &State{Source: source, Target: target, Snapshot: snap}
	data, err := os.ReadFile(e.cfg.OriginalSeriesPath())
	switch {
	case err == nil:
		state.Original = string(data)
		state.HasOriginal = true
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read original series: %w", err)
	}

	return state, nil
}
