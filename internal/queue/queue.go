// Package queue drives the external patch queue tool that owns the Target
// patch directory.
package queue

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/schaermu/patchsync/internal/series"
	"github.com/schaermu/patchsync/internal/syncerr"
)

// Tool names a supported patch queue implementation.
type Tool string

const (
	// Hg is the Mercurial mq extension.
	Hg Tool = "hg"
	// Quilt is quilt.
	Quilt Tool = "quilt"
)

// New returns the client for tool. checkoutDir is the tree the patches
// apply to, patchDir the Target patch directory.
func New(tool Tool, checkoutDir, patchDir string) (series.Queue, error) {
	switch tool {
	case Hg, "":
		return NewHgClient(checkoutDir, patchDir), nil
	case Quilt:
		return NewQuiltClient(checkoutDir, patchDir), nil
	default:
		return nil, fmt.Errorf("unsupported queue tool %q (expected hg or quilt)", tool)
	}
}

// ExecError describes a failed queue tool invocation.
type ExecError struct {
	Command string
	Args    []string
	Err     error
	StdOut  string
	StdErr  string
}

func (e *ExecError) Error() string {
	b := new(strings.Builder)
	b.WriteString(e.Command)
	if len(e.Args) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(e.Args, " "))
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if msg := strings.TrimSpace(e.StdErr); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error { return e.Err }

// ExitCode returns the exit status of the tool, or -1 if it did not run.
func (e *ExecError) ExitCode() int {
	if exitErr, ok := e.Err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// runner executes one tool binary inside the checkout.
type runner struct {
	bin string
	dir string
	env []string
}

func (r runner) run(ctx context.Context, op syncerr.Op, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), r.env...)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return "", syncerr.E(op, syncerr.ToolFailure, &ExecError{
			Command: r.bin,
			Args:    args,
			Err:     err,
			StdOut:  stdout.String(),
			StdErr:  stderr.String(),
		})
	}
	return stdout.String(), nil
}

// readLines returns the non-empty lines of path, or nothing when the file
// does not exist.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
