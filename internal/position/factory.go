package position

import "github.com/scigolib/elfrw/internal/config"

// Factory builds the right Position variant for a new child, per
// spec.md §4.A. Unlike the original's process-wide singleton, Factory is
// a small value threaded explicitly by internal/mutator — constructed
// once from a config.ArchProfile and passed down, never looked up
// globally (spec.md §9 redesign flag).
type Factory struct {
	profile config.ArchProfile
}

// NewFactory returns a Factory configured by profile's three position
// feature flags.
func NewFactory(profile config.ArchProfile) Factory {
	return Factory{profile: profile}
}

// Make builds the position for a chunk being inserted as a child of
// parent, after priorSibling (nil if it will be the container's first
// child), at offsetFromParent bytes into parent (meaningful only for the
// first-child case).
//
// Mirrors spec.md §4.A's rule: if priorSibling is non-nil, the new
// position always follows it (SubsequentPosition) — parent.size()
// already reflects this child's own contribution by the time anyone
// reads the position, since internal/mutator assigns the position
// before propagating the size increase, so a SubsequentPosition can
// never legitimately reference its own container. The container's
// first child therefore always gets an OffsetPosition anchored to the
// parent, at offsetFromParent when the profile calls for a distinct
// first-entry treatment and at zero otherwise; needsSpecialCaseFirst
// only changes whether that offset can be non-zero, not whether the
// first child gets this variant.
func (f Factory) Make(parent, priorSibling Ref, offsetFromParent uint64) Position {
	var pos Position
	switch {
	case priorSibling != nil:
		pos = NewSubsequentPosition(priorSibling)
	case f.profile.NeedsSpecialCaseFirst:
		pos = NewOffsetPosition(parent, offsetFromParent)
	default:
		pos = NewOffsetPosition(parent, 0)
	}

	if f.profile.NeedsGenerationTracking {
		pos = NewGenerationalPosition(pos)
	}
	return pos
}

// MakeAbsoluteOffset builds an OffsetPosition anchored to parent at a
// fixed, caller-computed offset, independent of the first-entry/
// prior-sibling rules Make applies. internal/mutator's
// SplitBlockBefore uses this to anchor the new block's position at
// point.address-function.address — a one-time fixed delta, not
// something that should shift if the original block later gains or
// loses instructions (spec.md §4.C "splitBlockBefore in detail").
func (f Factory) MakeAbsoluteOffset(parent Ref, offset uint64) Position {
	pos := Position(NewOffsetPosition(parent, offset))
	if f.profile.NeedsGenerationTracking {
		pos = NewGenerationalPosition(pos)
	}
	return pos
}

// Profile returns the ArchProfile this factory was built from.
func (f Factory) Profile() config.ArchProfile { return f.profile }
