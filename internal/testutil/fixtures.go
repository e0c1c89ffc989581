// Package testutil provides patch directory fixtures and an in-memory
// patch queue for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WritePatchDir creates dir with the given patch files. When manifest is
// non-nil it is written as the series file, one name per line.
func WritePatchDir(t *testing.T, dir string, manifest []string, files map[string]string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if manifest != nil {
		WriteManifest(t, dir, manifest)
	}
}

// WriteManifest writes the series file of dir.
func WriteManifest(t *testing.T, dir string, names []string) {
	t.Helper()
	content := ""
	if len(names) > 0 {
		content = strings.Join(names, "\n") + "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "series"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// ReadFile returns the content of path, failing the test on error.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Queue is an in-memory patch queue over the series file in Dir. It
// records every call so tests can assert on the unwind protocol.
type Queue struct {
	Dir     string
	applied []string
	Calls   []string
	// FailOn makes Push or PopTo fail when asked to reach this patch.
	FailOn string
}

// NewQueue returns a queue with the given patches applied, bottom first.
func NewQueue(dir string, applied ...string) *Queue {
	return &Queue{Dir: dir, applied: append([]string(nil), applied...)}
}

func (q *Queue) Push(_ context.Context, name string) error {
	q.Calls = append(q.Calls, "push "+name)
	if q.FailOn != "" && name == q.FailOn {
		return fmt.Errorf("patch %s does not apply", name)
	}
	data, err := os.ReadFile(filepath.Join(q.Dir, "series"))
	if err != nil {
		return err
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			names = append(names, line)
		}
	}
	for i, n := range names {
		if n == name {
			q.applied = append([]string(nil), names[:i+1]...)
			return nil
		}
	}
	return fmt.Errorf("patch %s not in series", name)
}

func (q *Queue) PopTo(_ context.Context, name string) error {
	q.Calls = append(q.Calls, "pop "+name)
	if q.FailOn != "" && name == q.FailOn {
		return fmt.Errorf("cannot pop to %s", name)
	}
	if name == "" {
		q.applied = nil
		return nil
	}
	for i, n := range q.applied {
		if n == name {
			q.applied = q.applied[:i+1]
			return nil
		}
	}
	return fmt.Errorf("patch %s is not applied", name)
}

func (q *Queue) Applied(_ context.Context) ([]string, error) {
	return append([]string(nil), q.applied...), nil
}
