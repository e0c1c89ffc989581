package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/schaermu/patchsync/internal/syncerr"
)

// HgClient drives a Mercurial patch queue with hg qgoto and hg qpop.
type HgClient struct {
	runner
	patchDir string
}

// NewHgClient returns a client for the queue in patchDir, normally
// <checkoutDir>/.hg/patches.
func NewHgClient(checkoutDir, patchDir string) *HgClient {
	return &HgClient{
		runner:   runner{bin: "hg", dir: checkoutDir},
		patchDir: patchDir,
	}
}

// WithBinary replaces the hg executable.
func (c *HgClient) WithBinary(bin string) *HgClient {
	c.bin = bin
	return c
}

// Push applies patches until name is the top one.
func (c *HgClient) Push(ctx context.Context, name string) error {
	_, err := c.run(ctx, "hg.push", "qgoto", name)
	return err
}

// PopTo unapplies patches until name is the top one. An empty name pops
// everything.
func (c *HgClient) PopTo(ctx context.Context, name string) error {
	if name == "" {
		_, err := c.run(ctx, "hg.pop", "qpop", "-a")
		return err
	}
	_, err := c.run(ctx, "hg.pop", "qgoto", name)
	return err
}

// Applied reads the mq status file. Each line is "<node>:<patch>", bottom
// of the stack first.
func (c *HgClient) Applied(_ context.Context) ([]string, error) {
	const op syncerr.Op = "hg.applied"

	path := filepath.Join(c.patchDir, "status")
	lines, err := readLines(path)
	if err != nil {
		return nil, syncerr.E(op, syncerr.ToolFailure, err)
	}

	applied := make([]string, 0, len(lines))
	for _, line := range lines {
		_, name, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, syncerr.E(op, syncerr.ToolFailure, fmt.Errorf("malformed line %q in %s", line, path))
		}
		applied = append(applied, name)
	}
	return applied, nil
}
