package reconcile

// Resolution says which copy of a patch wins.
type Resolution string

const (
	// Resolved means both locations already agree.
	Resolved Resolution = "resolved"
	// UseSource copies the Source file over the Target one.
	UseSource Resolution = "use-source"
	// UseTarget copies the Target file over the Source one.
	UseTarget Resolution = "use-target"
	// Remove deletes the patch from both locations.
	Remove Resolution = "remove"
	// Conflict means the authoritative copy cannot be determined.
	Conflict Resolution = "conflict"
)

// ResolvedPatch is one entry of the merged result.
type ResolvedPatch struct {
	Name   string
	Active bool
	// Resolution is empty until classification ran.
	Resolution Resolution
	// Fingerprint is the content both locations will share after the
	// sync. Empty when neither location has the file.
	Fingerprint string
	// Reason explains a conflict.
	Reason string
	// unrecorded marks a conflict between two copies that were never
	// synced, which is reported as an inconsistent state.
	unrecorded bool
}

// Unrecorded reports whether a conflict has no recorded ancestor.
func (p ResolvedPatch) Unrecorded() bool { return p.unrecorded }

// Plan is the set of changes that brings both locations into agreement.
type Plan struct {
	// Manifest is the merged series text. Empty with HasManifest false
	// when neither location has a manifest.
	Manifest    string
	HasManifest bool
	// Patches is the merged result in order, without removed patches.
	Patches []ResolvedPatch
	// Removed lists patches scheduled for deletion.
	Removed []ResolvedPatch
	// FilesToRemove are paths in either location that are not part of
	// the merged result.
	FilesToRemove []string
	// UnapplyTo is the Target patch that must be the top of the stack
	// before files are touched; "" means fully unwound.
	UnapplyTo string
}

// Empty reports whether there is nothing to synchronize.
func (p *Plan) Empty() bool {
	return !p.HasManifest && len(p.Patches) == 0 && len(p.FilesToRemove) == 0
}

// Get returns the result entry for name.
func (p *Plan) Get(name string) (ResolvedPatch, bool) {
	for _, rp := range p.Patches {
		if rp.Name == name {
			return rp, true
		}
	}
	for _, rp := range p.Removed {
		if rp.Name == name {
			return rp, true
		}
	}
	return ResolvedPatch{}, false
}

// Conflicts returns every entry that could not be resolved.
func (p *Plan) Conflicts() []ResolvedPatch {
	var out []ResolvedPatch
	for _, rp := range p.Patches {
		if rp.Resolution == Conflict {
			out = append(out, rp)
		}
	}
	return out
}

// Copies returns the entries whose file moves between locations.
func (p *Plan) Copies() []ResolvedPatch {
	var out []ResolvedPatch
	for _, rp := range p.Patches {
		if rp.Resolution == UseSource || rp.Resolution == UseTarget {
			out = append(out, rp)
		}
	}
	return out
}

// Active returns the names of the active patches in apply order.
func (p *Plan) Active() []string {
	var out []string
	for _, rp := range p.Patches {
		if rp.Active {
			out = append(out, rp.Name)
		}
	}
	return out
}
