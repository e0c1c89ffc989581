// Package snapshot reads the checksum record written after the last
// successful sync. It is the common ancestor of the three-way comparison.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

const (
	// FileName is the snapshot record inside the Target series directory.
	FileName = ".series.checksums"
	// legacyFileName is where older tooling kept the record.
	legacyFileName = "series.checksums"
)

// Snapshot maps patch filenames to the fingerprint they had at the last
// successful sync. It carries no ordering.
type Snapshot map[string]string

// Load reads the snapshot at path. A missing file is an empty snapshot.
// If only the legacy record next to it exists, it is renamed first.
func Load(path string) (Snapshot, error) {
	if err := migrateLegacy(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes "name:fingerprint" lines. The name ends at the first colon.
func Parse(text string) (Snapshot, error) {
	snap := Snapshot{}
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, fp, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed snapshot record on line %d: %q", i+1, line)
		}
		snap[name] = fp
	}
	return snap, nil
}

// Encode renders the snapshot sorted by filename.
func Encode(snap Snapshot) string {
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	b := new(strings.Builder)
	for _, name := range names {
		fmt.Fprintf(b, "%s:%s\n", name, snap[name])
	}
	return b.String()
}

// Save atomically replaces the snapshot at path.
func Save(path string, snap Snapshot) error {
	if err := atomic.WriteFile(path, strings.NewReader(Encode(snap))); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Get returns the recorded fingerprint, "" when the patch has no record.
func (s Snapshot) Get(name string) string {
	return s[name]
}

// Has reports whether name has a record.
func (s Snapshot) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func migrateLegacy(path string) error {
	if filepath.Base(path) != FileName {
		return nil
	}
	legacy := filepath.Join(filepath.Dir(path), legacyFileName)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}
	if _, err := os.Stat(legacy); err != nil {
		return nil
	}
	if err := os.Rename(legacy, path); err != nil {
		return fmt.Errorf("failed to migrate legacy snapshot: %w", err)
	}
	return nil
}
