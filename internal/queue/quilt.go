package queue

import (
	"context"
	"path/filepath"

	"github.com/schaermu/patchsync/internal/syncerr"
)

// QuiltClient drives a quilt stack whose patches live outside the tree.
type QuiltClient struct {
	runner
	checkoutDir string
}

// NewQuiltClient returns a client for the tree in checkoutDir using the
// patches in patchDir.
func NewQuiltClient(checkoutDir, patchDir string) *QuiltClient {
	return &QuiltClient{
		runner: runner{
			bin: "quilt",
			dir: checkoutDir,
			env: []string{"QUILT_PATCHES=" + patchDir, "QUILT_PC=.pc"},
		},
		checkoutDir: checkoutDir,
	}
}

// WithBinary replaces the quilt executable.
func (c *QuiltClient) WithBinary(bin string) *QuiltClient {
	c.bin = bin
	return c
}

// Push applies patches until name is the top one.
func (c *QuiltClient) Push(ctx context.Context, name string) error {
	_, err := c.run(ctx, "quilt.push", "push", "-q", name)
	return err
}

// PopTo unapplies patches until name is the top one. An empty name pops
// everything.
func (c *QuiltClient) PopTo(ctx context.Context, name string) error {
	if name == "" {
		_, err := c.run(ctx, "quilt.pop", "pop", "-q", "-a")
		return err
	}
	_, err := c.run(ctx, "quilt.pop", "pop", "-q", name)
	return err
}

// Applied reads .pc/applied-patches, bottom of the stack first.
func (c *QuiltClient) Applied(_ context.Context) ([]string, error) {
	lines, err := readLines(filepath.Join(c.checkoutDir, ".pc", "applied-patches"))
	if err != nil {
		return nil, syncerr.E(syncerr.Op("quilt.applied"), syncerr.ToolFailure, err)
	}
	return lines, nil
}
