// Package reconcile computes how to bring the Source and Target copies of
// a patch queue back into agreement. It is pure: it reads the series it is
// given and never touches the filesystem or the queue tool.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/schaermu/patchsync/internal/merge3"
	"github.com/schaermu/patchsync/internal/series"
	"github.com/schaermu/patchsync/internal/snapshot"
	"github.com/schaermu/patchsync/internal/syncerr"
)

const opCalculate syncerr.Op = "reconcile.calculate"

// Labels used in conflict markers of the series merge.
var manifestLabels = merge3.Labels{Ours: "source", Base: "original", Theirs: "target"}

// Input is everything the reconciler looks at.
type Input struct {
	Source   *series.Series
	Target   *series.Target
	Snapshot snapshot.Snapshot
	// Original is the series text as of the last successful sync.
	Original    string
	HasOriginal bool
}

// Calculate returns the plan for in. It fails with a *syncerr.Error when
// the outcome cannot be determined automatically; no partial plan is
// returned in that case.
func Calculate(in Input) (*Plan, error) {
	plan, err := build(in)
	if err != nil {
		return nil, err
	}

	var unrecorded, conflicts []syncerr.Issue
	for _, rp := range plan.Patches {
		if rp.Resolution != Conflict {
			continue
		}
		issue := syncerr.Issue{Name: rp.Name, Reason: rp.Reason}
		if rp.unrecorded {
			unrecorded = append(unrecorded, issue)
		} else {
			conflicts = append(conflicts, issue)
		}
	}
	if len(unrecorded) > 0 {
		return nil, syncerr.E(opCalculate, syncerr.InconsistentState, unrecorded,
			"patches differ between locations and were never synchronized")
	}
	if len(conflicts) > 0 {
		return nil, syncerr.E(opCalculate, syncerr.PatchConflict, conflicts,
			"patches were modified in both locations")
	}
	return plan, nil
}

// ListConflicts runs the same classification as Calculate but reports the
// conflicting entries instead of failing on them. Errors that prevent
// classification (series merge, ordering) are still returned.
func ListConflicts(in Input) ([]ResolvedPatch, error) {
	plan, err := build(in)
	if err != nil {
		return nil, err
	}
	return plan.Conflicts(), nil
}

// MergeManifests returns the raw three-way merge of both series files,
// with conflict markers if they cannot be merged.
func MergeManifests(in Input) merge3.Result {
	return merge3.Merge(in.Source.Manifest(), in.Original, in.Target.Manifest(), manifestLabels)
}

// result is the merged result under construction.
type result struct {
	lines   []string
	entries []*ResolvedPatch
}

func (r *result) index(name string) int {
	for i, e := range r.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (r *result) isActive(name string) bool {
	i := r.index(name)
	return i >= 0 && r.entries[i].Active
}

func (r *result) insert(at int, e *ResolvedPatch) {
	r.entries = append(r.entries, nil)
	copy(r.entries[at+1:], r.entries[at:])
	r.entries[at] = e
}

func build(in Input) (*Plan, error) {
	text, ok, err := mergedManifest(in)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Plan{}, nil
	}

	r := &result{lines: merge3.SplitLines(text)}
	for _, name := range series.ParseManifest(text) {
		if r.index(name) >= 0 {
			return nil, syncerr.E(opCalculate, syncerr.ManifestConflict,
				syncerr.Issue{Name: name, Reason: "listed more than once in the merged series"},
				"merged series is invalid")
		}
		r.entries = append(r.entries, &ResolvedPatch{Name: name, Active: true})
	}

	if err := insertTargetOnly(in, r); err != nil {
		return nil, err
	}
	addInactive(in.Source, r)
	addInactive(in.Target.Series, r)

	plan := &Plan{Manifest: merge3.JoinLines(r.lines), HasManifest: true}
	for _, e := range r.entries {
		classify(in, e)
		if e.Resolution == Remove {
			plan.Removed = append(plan.Removed, *e)
			continue
		}
		plan.Patches = append(plan.Patches, *e)
	}

	kept := make(map[string]bool, len(plan.Patches))
	for _, rp := range plan.Patches {
		kept[rp.Name] = true
	}
	for _, s := range []*series.Series{in.Source, in.Target.Series} {
		for _, p := range s.Patches() {
			if !kept[p.Name] {
				plan.FilesToRemove = append(plan.FilesToRemove, s.Path(p.Name))
			}
		}
	}

	plan.UnapplyTo = unwindBoundary(in.Target, plan.Patches)
	return plan, nil
}

// mergedManifest picks or merges the series text. ok is false when neither
// location has a manifest.
func mergedManifest(in Input) (string, bool, error) {
	src, tgt := in.Source, in.Target
	switch {
	case !src.HasManifest() && !tgt.HasManifest():
		return "", false, nil
	case !tgt.HasManifest():
		return src.Manifest(), true, nil
	case !src.HasManifest():
		return tgt.Manifest(), true, nil
	case !in.HasOriginal:
		if src.Manifest() != tgt.Manifest() {
			return "", false, syncerr.E(opCalculate, syncerr.InconsistentState,
				"the series files differ and there is no original copy to merge against")
		}
		return src.Manifest(), true, nil
	}

	res := MergeManifests(in)
	if !res.Clean() {
		return "", false, syncerr.E(opCalculate, syncerr.ManifestConflict,
			fmt.Sprintf("3-way merge of the series files produced %d conflict(s) and must be resolved manually", res.Conflicts))
	}
	return res.Text, true, nil
}

// insertTargetOnly places applied Target patches that neither the Source
// nor the snapshot knows about and the merge dropped. Each one goes into
// the unique gap between its nearest surviving neighbours in Target order.
func insertTargetOnly(in Input, r *result) error {
	active := in.Target.Active()
	for i, p := range active {
		if !p.Applied || in.Source.Contains(p.Name) || in.Snapshot.Has(p.Name) || r.isActive(p.Name) {
			continue
		}

		pred, succ := "", ""
		for j := i - 1; j >= 0; j-- {
			if r.isActive(active[j].Name) {
				pred = active[j].Name
				break
			}
		}
		for j := i + 1; j < len(active); j++ {
			if r.isActive(active[j].Name) {
				succ = active[j].Name
				break
			}
		}

		if !adjacent(r, pred, succ) {
			return syncerr.E(opCalculate, syncerr.OrderAmbiguity, syncerr.Issue{
				Name:   p.Name,
				Reason: fmt.Sprintf("cannot place between %s and %s in the merged series", orDefault(pred, "the start of the series"), orDefault(succ, "the end of the series")),
			}, "position of a new patch cannot be determined")
		}

		entry := &ResolvedPatch{Name: p.Name, Active: true}
		switch {
		case pred != "":
			r.insert(r.index(pred)+1, entry)
			r.lines = insertLine(r.lines, lineOf(r.lines, pred)+1, p.Name)
		case succ != "":
			r.insert(r.index(succ), entry)
			r.lines = insertLine(r.lines, lineOf(r.lines, succ), p.Name)
		default:
			r.insert(0, entry)
			r.lines = append(r.lines, p.Name)
		}
	}
	return nil
}

// adjacent reports whether pred and succ are neighbours in the active
// order of r, with "" standing for either end.
func adjacent(r *result, pred, succ string) bool {
	var names []string
	for _, e := range r.entries {
		if e.Active {
			names = append(names, e.Name)
		}
	}

	matches := 0
	for gap := 0; gap <= len(names); gap++ {
		before, after := "", ""
		if gap > 0 {
			before = names[gap-1]
		}
		if gap < len(names) {
			after = names[gap]
		}
		if before == pred && after == succ {
			matches++
		}
	}
	return matches == 1
}

// addInactive appends every patch of s missing from the result as an
// inactive entry, right after its nearest preceding neighbour in s that is
// part of the result.
func addInactive(s *series.Series, r *result) {
	after := ""
	for _, p := range s.Patches() {
		if r.index(p.Name) >= 0 {
			after = p.Name
			continue
		}
		at := 0
		if after != "" {
			at = r.index(after) + 1
		}
		r.insert(at, &ResolvedPatch{Name: p.Name})
		after = p.Name
	}
}

// classify sets the resolution of e from the three fingerprints.
func classify(in Input, e *ResolvedPatch) {
	s := in.Source.Fingerprint(e.Name)
	t := in.Target.Fingerprint(e.Name)
	o := in.Snapshot.Get(e.Name)

	e.Resolution = Classify(s, t, o, e.Active)
	switch e.Resolution {
	case Resolved, UseSource:
		e.Fingerprint = s
	case UseTarget:
		e.Fingerprint = t
	case Conflict:
		if o == "" {
			e.unrecorded = true
			e.Reason = "the copies in revision control and in the patch queue are different, " +
				"and it is not possible to determine which one to keep because they were never synchronized"
		} else {
			e.Reason = "the copies in revision control and in the patch queue were both modified " +
				"since the last sync, and it is not possible to determine which one to keep"
		}
	}
}

// Classify is the per-patch three-way decision. s, t and o are the Source,
// Target and snapshot fingerprints, "" meaning absent.
func Classify(s, t, o string, active bool) Resolution {
	switch {
	case s == t:
		return Resolved
	case t == "":
		if !active && o != "" {
			return Remove
		}
		return UseSource
	case s == "":
		if !active && o != "" {
			return Remove
		}
		return UseTarget
	case o == "":
		return Conflict
	case s == o:
		return UseTarget
	case t == o:
		return UseSource
	default:
		return Conflict
	}
}

// unwindBoundary walks the applied Target stack from the bottom and stops
// at the first patch that is not identical, at the same position, in the
// merged result.
func unwindBoundary(target *series.Target, patches []ResolvedPatch) string {
	boundary := ""
	for i := 0; i < target.Len(); i++ {
		tp := target.At(i)
		if !tp.Applied || i >= len(patches) {
			break
		}
		rp := patches[i]
		if !rp.Active || rp.Name != tp.Name {
			break
		}
		if rp.Resolution == Conflict || rp.Resolution == UseTarget || rp.Resolution == UseSource {
			break
		}
		boundary = tp.Name
	}
	return boundary
}

func lineOf(lines []string, name string) int {
	for i, line := range lines {
		if strings.TrimSpace(line) == name {
			return i
		}
	}
	return len(lines)
}

func insertLine(lines []string, at int, line string) []string {
	lines = append(lines, "")
	copy(lines[at+1:], lines[at:])
	lines[at] = line
	return lines
}

func orDefault(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
