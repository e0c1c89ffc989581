// Package merge3 performs a line-based three-way merge, the way diff3
// --merge does, on top of go-difflib's matching blocks.
package merge3

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Labels name the three inputs in conflict markers.
type Labels struct {
	Ours   string
	Base   string
	Theirs string
}

// DefaultLabels are used by Merge when none are given.
var DefaultLabels = Labels{Ours: "ours", Base: "base", Theirs: "theirs"}

// Result is the outcome of a merge. Text contains conflict markers when
// Conflicts is non-zero.
type Result struct {
	Text      string
	Lines     []string
	Conflicts int
}

// Clean reports whether the merge succeeded without conflicts.
func (r Result) Clean() bool { return r.Conflicts == 0 }

type regionKind int

const (
	unchanged regionKind = iota
	same
	takeOurs
	takeTheirs
	conflict
)

// region is a half-open span of lines in each input.
type region struct {
	kind               regionKind
	baseLo, baseHi     int
	oursLo, oursHi     int
	theirsLo, theirsHi int
}

// Merge combines ours and theirs, both derived from base.
func Merge(ours, base, theirs string, labels Labels) Result {
	a := SplitLines(ours)
	o := SplitLines(base)
	b := SplitLines(theirs)

	var lines []string
	conflicts := 0
	for _, r := range mergeRegions(a, o, b) {
		switch r.kind {
		case unchanged:
			lines = append(lines, o[r.baseLo:r.baseHi]...)
		case same, takeOurs:
			lines = append(lines, a[r.oursLo:r.oursHi]...)
		case takeTheirs:
			lines = append(lines, b[r.theirsLo:r.theirsHi]...)
		case conflict:
			conflicts++
			lines = append(lines, "<<<<<<< "+labels.Ours)
			lines = append(lines, a[r.oursLo:r.oursHi]...)
			lines = append(lines, "||||||| "+labels.Base)
			lines = append(lines, o[r.baseLo:r.baseHi]...)
			lines = append(lines, "=======")
			lines = append(lines, b[r.theirsLo:r.theirsHi]...)
			lines = append(lines, ">>>>>>> "+labels.Theirs)
		}
	}

	return Result{Text: JoinLines(lines), Lines: lines, Conflicts: conflicts}
}

// SplitLines splits text into lines without their terminators.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// JoinLines is the inverse of SplitLines; non-empty output always ends
// with a newline.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

type syncRegion struct {
	baseLo, baseHi     int
	oursLo, oursHi     int
	theirsLo, theirsHi int
}

// syncRegions returns the spans of base matched by both sides at once,
// terminated by an empty sentinel at the end of every input.
func syncRegions(a, o, b []string) []syncRegion {
	am := difflib.NewMatcherWithJunk(o, a, false, nil).GetMatchingBlocks()
	bm := difflib.NewMatcherWithJunk(o, b, false, nil).GetMatchingBlocks()

	var out []syncRegion
	ia, ib := 0, 0
	for ia < len(am) && ib < len(bm) {
		ma, mb := am[ia], bm[ib]

		lo := max(ma.A, mb.A)
		hi := min(ma.A+ma.Size, mb.A+mb.Size)
		if lo < hi {
			oursLo := ma.B + (lo - ma.A)
			theirsLo := mb.B + (lo - mb.A)
			out = append(out, syncRegion{
				baseLo: lo, baseHi: hi,
				oursLo: oursLo, oursHi: oursLo + (hi - lo),
				theirsLo: theirsLo, theirsHi: theirsLo + (hi - lo),
			})
		}

		if ma.A+ma.Size < mb.A+mb.Size {
			ia++
		} else {
			ib++
		}
	}

	out = append(out, syncRegion{
		baseLo: len(o), baseHi: len(o),
		oursLo: len(a), oursHi: len(a),
		theirsLo: len(b), theirsHi: len(b),
	})
	return out
}

func mergeRegions(a, o, b []string) []region {
	var out []region
	iz, ia, ib := 0, 0, 0

	for _, s := range syncRegions(a, o, b) {
		if s.oursLo > ia || s.theirsLo > ib {
			oursChunk := a[ia:s.oursLo]
			theirsChunk := b[ib:s.theirsLo]
			baseChunk := o[iz:s.baseLo]

			r := region{
				baseLo: iz, baseHi: s.baseLo,
				oursLo: ia, oursHi: s.oursLo,
				theirsLo: ib, theirsHi: s.theirsLo,
			}
			oursKept := equal(oursChunk, baseChunk)
			theirsKept := equal(theirsChunk, baseChunk)
			switch {
			case equal(oursChunk, theirsChunk):
				r.kind = same
			case oursKept:
				r.kind = takeTheirs
			case theirsKept:
				r.kind = takeOurs
			default:
				r.kind = conflict
			}
			out = append(out, r)
			ia, ib = s.oursLo, s.theirsLo
		}
		iz = s.baseLo

		if s.baseHi > s.baseLo {
			out = append(out, region{kind: unchanged, baseLo: s.baseLo, baseHi: s.baseHi})
			iz, ia, ib = s.baseHi, s.oursHi, s.theirsHi
		}
	}
	return out
}

func equal(x, y []string) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
