package series

import (
	"context"
	"fmt"

	"github.com/schaermu/patchsync/internal/fingerprint"
)

// Queue is the patch-queue tool managing the Target series. All calls
// block until the tool exits; an error means the tool failed.
type Queue interface {
	// Push applies patches until name is the top of the stack.
	Push(ctx context.Context, name string) error
	// PopTo unapplies patches until name is the top of the stack, or
	// until nothing is applied when name is "".
	PopTo(ctx context.Context, name string) error
	// Applied returns the applied patches, bottom first.
	Applied(ctx context.Context) ([]string, error)
}

// Target is the series materialized against the downstream checkout. Each
// active patch additionally records whether it is currently applied.
type Target struct {
	*Series
	queue Queue
}

// ReadTarget reads dir and marks the patches the queue reports as applied.
func ReadTarget(ctx context.Context, dir string, hasher fingerprint.Hasher, queue Queue) (*Target, error) {
	s, err := Read(dir, hasher)
	if err != nil {
		return nil, err
	}

	applied, err := queue.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied patches: %w", err)
	}

	t, err := NewTarget(s, applied)
	if err != nil {
		return nil, err
	}
	t.queue = queue
	return t, nil
}

// NewTarget marks the named patches of s as applied. The applied names
// must be a prefix of the active patches, bottom first.
func NewTarget(s *Series, applied []string) (*Target, error) {
	patches := s.Patches()
	for i, name := range applied {
		if i >= len(patches) || !patches[i].Active || patches[i].Name != name {
			return nil, fmt.Errorf("applied patch %s is not at position %d of the series in %s", name, i, s.dir)
		}
		patches[i].Applied = true
	}

	marked, err := New(s.dir, s.manifest, s.hasManifest, patches)
	if err != nil {
		return nil, err
	}
	marked.hasher = s.hasher
	return &Target{Series: marked}, nil
}

// Top returns the last applied patch, or "" when nothing is applied.
func (t *Target) Top() string {
	top := ""
	for _, p := range t.patches {
		if !p.Applied {
			break
		}
		top = p.Name
	}
	return top
}

// IsApplied reports whether the named patch is currently applied.
func (t *Target) IsApplied(name string) bool {
	p, ok := t.Get(name)
	return ok && p.Applied
}

// Refresh re-reads the directory and the applied state.
func (t *Target) Refresh(ctx context.Context) (*Target, error) {
	if t.queue == nil || t.hasher == nil {
		return nil, fmt.Errorf("target series %s was not read from disk", t.dir)
	}
	return ReadTarget(ctx, t.dir, t.hasher, t.queue)
}

// SeekTop pushes or pops the queue until name is the top of the stack and
// returns the refreshed view. An empty name unwinds everything.
func (t *Target) SeekTop(ctx context.Context, name string) (*Target, error) {
	if t.queue == nil {
		return nil, fmt.Errorf("target series %s has no queue tool", t.dir)
	}
	if name == t.Top() {
		return t, nil
	}

	switch {
	case name == "":
		if err := t.queue.PopTo(ctx, ""); err != nil {
			return nil, err
		}
	case !t.Contains(name) || !t.patches[t.Index(name)].Active:
		return nil, fmt.Errorf("patch %s is not an active patch of this series", name)
	case t.IsApplied(name):
		if err := t.queue.PopTo(ctx, name); err != nil {
			return nil, err
		}
	default:
		if err := t.queue.Push(ctx, name); err != nil {
			return nil, err
		}
	}

	return t.Refresh(ctx)
}
