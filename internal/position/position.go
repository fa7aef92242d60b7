// Package position implements the position algebra described in
// spec.md §3.A and §4.A: the Absolute/Offset/Subsequent variants, the
// optional generational-invalidation cache, and the PositionFactory that
// builds the right variant for a given insertion site and ArchProfile.
//
// Deliberately, Position knows nothing about internal/chunk.Chunk beyond
// the minimal Ref interface below (size + own position) — internal/
// mutator is the only package that understands both Position and Chunk,
// and it alone is permitted to create, replace, or destroy a chunk's
// position, and to resolve the nearest-Absolute "authority" a position
// should validate its generation against (spec.md §3.A "Lifecycle",
// §4.A "updateAuthority").
package position

import "github.com/scigolib/elfrw/internal/utils"

// Ref is the minimal view of a chunk a relative position needs to
// compute its own address: the chunk's size and its own position.
// OffsetPosition uses it for the parent; SubsequentPosition uses it for
// the prior sibling ("after-this").
type Ref interface {
	Size() uint64
	Position() Position
}

// Position answers address(chunk) on demand (spec.md §3.A). Every
// variant below implements it.
type Position interface {
	// Get returns the computed address, consulting the generational
	// cache (if wrapped) before recomputing.
	Get() (uint64, error)

	// Set is only meaningful on AbsolutePosition; every other variant
	// panics. internal/mutator.SetPosition type-asserts *AbsolutePosition
	// before calling Set, turning a misuse into a
	// rwerrors.StructuralError instead of reaching this panic in
	// practice.
	Set(addr uint64)

	GetGeneration() int
	SetGeneration(n int)

	// UpdateAuthority caches the position, if any, that internal/
	// mutator has resolved as the nearest ancestor-or-self Absolute
	// position — the ground truth a GenerationalPosition checks its
	// cache against (spec.md §4.A). A no-op on variants that don't
	// cache (Absolute, and Offset/Subsequent when unwrapped).
	UpdateAuthority(authority Position)

	// Recalculate forces the position to re-derive its address from
	// its inputs; a no-op on AbsolutePosition (spec.md §4.A).
	Recalculate() error
}

// AbsolutePosition stores an explicit address. It is the authoritative
// root of an address subtree, typically owned by a Function (spec.md
// §3.A).
type AbsolutePosition struct {
	addr       uint64
	generation int
}

// NewAbsolutePosition creates an AbsolutePosition at addr.
func NewAbsolutePosition(addr uint64) *AbsolutePosition {
	return &AbsolutePosition{addr: addr}
}

func (p *AbsolutePosition) Get() (uint64, error)    { return p.addr, nil }
func (p *AbsolutePosition) Set(addr uint64)         { p.addr = addr }
func (p *AbsolutePosition) GetGeneration() int      { return p.generation }
func (p *AbsolutePosition) SetGeneration(n int)     { p.generation = n }
func (p *AbsolutePosition) UpdateAuthority(Position) {}
func (p *AbsolutePosition) Recalculate() error      { return nil }

// IsAbsolute reports whether pos is an *AbsolutePosition — the tag
// inspection spec.md §9 recommends in place of a dynamic_cast.
func IsAbsolute(pos Position) bool {
	_, ok := pos.(*AbsolutePosition)
	return ok
}

// OffsetPosition computes address = parent.address + a fixed offset.
// Used for the first entry of a container (spec.md §3.A, §4.A). The
// offset is usually zero; MakeAbsoluteOffset builds a non-zero one on
// any profile, as SplitBlockBefore does for the block it creates.
type OffsetPosition struct {
	parent     Ref
	offset     uint64
	generation int
}

// NewOffsetPosition creates an OffsetPosition relative to parent.
func NewOffsetPosition(parent Ref, offset uint64) *OffsetPosition {
	return &OffsetPosition{parent: parent, offset: offset}
}

func (p *OffsetPosition) Get() (uint64, error) {
	base, err := p.parent.Position().Get()
	if err != nil {
		return 0, err
	}
	return utils.SafeAdd(base, p.offset)
}

func (p *OffsetPosition) Set(uint64) {
	panic("OffsetPosition.Set: only meaningful on AbsolutePosition")
}

func (p *OffsetPosition) GetGeneration() int      { return p.generation }
func (p *OffsetPosition) SetGeneration(n int)     { p.generation = n }
func (p *OffsetPosition) UpdateAuthority(Position) {}

func (p *OffsetPosition) Recalculate() error {
	_, err := p.Get()
	return err
}

// Offset returns the fixed offset from the parent's address.
func (p *OffsetPosition) Offset() uint64 { return p.offset }

// SetParent repoints the chunk this position is offset from. Used when
// internal/mutator replaces a displaced first child's position.
func (p *OffsetPosition) SetParent(parent Ref) { p.parent = parent }

// SubsequentPosition computes address = afterThis.address +
// afterThis.size. Holds a non-owning back-reference ("after-this") to
// the prior sibling it depends on (spec.md §3.A).
type SubsequentPosition struct {
	afterThis  Ref
	generation int
}

// NewSubsequentPosition creates a SubsequentPosition following afterThis.
func NewSubsequentPosition(afterThis Ref) *SubsequentPosition {
	return &SubsequentPosition{afterThis: afterThis}
}

func (p *SubsequentPosition) Get() (uint64, error) {
	prevAddr, err := p.afterThis.Position().Get()
	if err != nil {
		return 0, err
	}
	return utils.SafeAdd(prevAddr, p.afterThis.Size())
}

func (p *SubsequentPosition) Set(uint64) {
	panic("SubsequentPosition.Set: only meaningful on AbsolutePosition")
}

func (p *SubsequentPosition) GetGeneration() int      { return p.generation }
func (p *SubsequentPosition) SetGeneration(n int)     { p.generation = n }
func (p *SubsequentPosition) UpdateAuthority(Position) {}

func (p *SubsequentPosition) Recalculate() error {
	_, err := p.Get()
	return err
}

// SetAfterThis repoints the sibling this position follows. Called by
// internal/mutator whenever sibling links are rewritten, keeping the
// "after-this" back-reference coherent (spec.md §5).
func (p *SubsequentPosition) SetAfterThis(a Ref) { p.afterThis = a }

// AfterThis returns the sibling this position is computed relative to.
func (p *SubsequentPosition) AfterThis() Ref { return p.afterThis }

// GenerationalPosition wraps another Position (typically an Offset or
// Subsequent one) with a lazily-invalidated address cache, per spec.md
// §3.A: it caches a computed address plus the generation at which that
// address was last derived, and is considered stale once its authority's
// generation has advanced past that cached value. The factory only
// produces this wrapper when the ArchProfile sets
// needsGenerationTracking — on profiles that don't, address recomputation
// is cheap enough that the inner position is returned unwrapped.
type GenerationalPosition struct {
	inner Position

	// declared is this position's own generation number, the one
	// internal/mutator's generation-update walk assigns via
	// SetGeneration (spec.md §4.C).
	declared int

	authority  Position
	cacheValid bool
	cacheGen   int
	cacheAddr  uint64
}

// NewGenerationalPosition wraps inner with a generation-invalidated
// address cache.
func NewGenerationalPosition(inner Position) *GenerationalPosition {
	return &GenerationalPosition{inner: inner}
}

// Get returns the cached address if it was computed at or after the
// authority's current generation, else recomputes and re-caches it.
func (p *GenerationalPosition) Get() (uint64, error) {
	authGen := 0
	if p.authority != nil {
		authGen = p.authority.GetGeneration()
	}
	if p.cacheValid && p.cacheGen >= authGen {
		return p.cacheAddr, nil
	}
	addr, err := p.inner.Get()
	if err != nil {
		return 0, err
	}
	p.cacheAddr = addr
	p.cacheGen = authGen
	p.cacheValid = true
	return addr, nil
}

func (p *GenerationalPosition) Set(addr uint64) { p.inner.Set(addr) }

func (p *GenerationalPosition) GetGeneration() int  { return p.declared }
func (p *GenerationalPosition) SetGeneration(n int) { p.declared = n }

// UpdateAuthority records the nearest ancestor-or-self Absolute position
// internal/mutator resolved for this chunk, which Get uses to decide
// whether the cache is stale.
func (p *GenerationalPosition) UpdateAuthority(authority Position) {
	p.authority = authority
}

// Recalculate forces a fresh computation regardless of cache state.
func (p *GenerationalPosition) Recalculate() error {
	p.cacheValid = false
	_, err := p.Get()
	return err
}

// Inner returns the wrapped position — internal/mutator uses this to
// reach Offset/Subsequent-specific methods (SetParent, SetAfterThis,
// Offset, AfterThis) through a generational wrapper.
func (p *GenerationalPosition) Inner() Position { return p.inner }
