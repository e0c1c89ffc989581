// Package series reads one location's view of a patch queue: the active
// patches listed in the series manifest, in apply order, followed by any
// stray patch files in the same directory.
package series

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/patchsync/internal/fingerprint"
)

const (
	// ManifestName is the file listing active patches in apply order.
	ManifestName = "series"
	// PatchExt marks files in a series directory that are patches.
	PatchExt = ".patch"
)

// Patch is a snapshot of one patch file taken when the series was read.
// An empty Fingerprint means the file is listed but missing.
type Patch struct {
	Name        string
	Fingerprint string
	Active      bool
	Applied     bool
}

// Series is an immutable view of a patch directory. Refresh returns a new
// value rather than updating the receiver.
type Series struct {
	dir         string
	hasManifest bool
	manifest    string
	patches     []Patch
	index       map[string]int
	hasher      fingerprint.Hasher
}

// Read scans dir and its manifest. A missing directory yields an empty
// series without a manifest.
func Read(dir string, hasher fingerprint.Hasher) (*Series, error) {
	s := &Series{dir: dir, hasher: hasher}

	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	switch {
	case err == nil:
		s.hasManifest = true
		s.manifest = string(data)
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var patches []Patch
	for _, name := range ParseManifest(s.manifest) {
		fp, err := hasher.File(filepath.Join(dir, name))
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to fingerprint %s: %w", name, err)
		}
		patches = append(patches, Patch{Name: name, Fingerprint: fp, Active: true})
	}

	strays, err := discoverPatches(dir)
	if err != nil {
		return nil, err
	}
	listed := make(map[string]bool, len(patches))
	for _, p := range patches {
		listed[p.Name] = true
	}
	for _, name := range strays {
		if listed[name] {
			continue
		}
		fp, err := hasher.File(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to fingerprint %s: %w", name, err)
		}
		patches = append(patches, Patch{Name: name, Fingerprint: fp})
	}

	if err := s.setPatches(patches); err != nil {
		return nil, err
	}
	return s, nil
}

// New builds a series from already known patches. Active patches must come
// before inactive ones. It is used for in-memory fixtures.
func New(dir string, manifest string, hasManifest bool, patches []Patch) (*Series, error) {
	s := &Series{dir: dir, manifest: manifest, hasManifest: hasManifest}
	if err := s.setPatches(patches); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Series) setPatches(patches []Patch) error {
	s.patches = patches
	s.index = make(map[string]int, len(patches))
	seenInactive := false
	for i, p := range patches {
		if _, dup := s.index[p.Name]; dup {
			return fmt.Errorf("patch %s is listed more than once in %s", p.Name, s.dir)
		}
		if p.Active && seenInactive {
			return fmt.Errorf("active patch %s follows an inactive patch", p.Name)
		}
		seenInactive = seenInactive || !p.Active
		s.index[p.Name] = i
	}
	return nil
}

// Refresh re-reads the directory this series was read from.
func (s *Series) Refresh() (*Series, error) {
	if s.hasher == nil {
		return nil, fmt.Errorf("series %s was not read from disk", s.dir)
	}
	return Read(s.dir, s.hasher)
}

// ParseManifest returns the patch names listed in a manifest, skipping
// blank lines and "#" comments.
func ParseManifest(text string) []string {
	var names []string
	for _, line := range strings.Split(text, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		names = append(names, name)
	}
	return names
}

// discoverPatches lists the patch files in dir, sorted by name.
func discoverPatches(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != PatchExt {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (s *Series) Dir() string { return s.dir }

// ManifestPath returns the path of the series manifest.
func (s *Series) ManifestPath() string { return filepath.Join(s.dir, ManifestName) }

// HasManifest reports whether a manifest file existed when read.
func (s *Series) HasManifest() bool { return s.hasManifest }

// Manifest returns the raw manifest text.
func (s *Series) Manifest() string { return s.manifest }

// Path returns the path of the named patch file in this series.
func (s *Series) Path(name string) string { return filepath.Join(s.dir, name) }

func (s *Series) Len() int { return len(s.patches) }

// At returns the patch at index i.
func (s *Series) At(i int) Patch { return s.patches[i] }

// Get looks a patch up by filename.
func (s *Series) Get(name string) (Patch, bool) {
	i, ok := s.index[name]
	if !ok {
		return Patch{}, false
	}
	return s.patches[i], true
}

// Contains reports whether the series has a patch with this filename.
func (s *Series) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Index returns the position of the named patch, or -1.
func (s *Series) Index(name string) int {
	i, ok := s.index[name]
	if !ok {
		return -1
	}
	return i
}

// Fingerprint returns the fingerprint of the named patch, "" if the patch
// is absent or its file is missing.
func (s *Series) Fingerprint(name string) string {
	p, _ := s.Get(name)
	return p.Fingerprint
}

// Patches returns a copy of all patches, active ones first.
func (s *Series) Patches() []Patch {
	out := make([]Patch, len(s.patches))
	copy(out, s.patches)
	return out
}

// Active returns the active patches in manifest order.
func (s *Series) Active() []Patch {
	var out []Patch
	for _, p := range s.patches {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}
