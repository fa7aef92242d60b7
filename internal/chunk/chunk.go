// Package chunk implements the editable code hierarchy described in
// spec.md §3: Module, Function, Block, and Instruction nodes (plus the
// auxiliary PLTTrampoline, DataRegion, JumpTable, and Symbol chunks),
// their sibling/parent links, and the tagged-sum Visitor double dispatch
// used by analysis passes (spec.md §4.B, §4.D).
//
// Chunk variants are modeled as a closed set of concrete structs rather
// than an inheritance hierarchy (spec.md §9): each embeds base (or
// container), and Kind() lets callers recover the concrete variant when
// needed — e.g. the generation-update walk in internal/mutator that stops
// at the nearest Absolute position, or a Visitor's Accept dispatch.
package chunk

import (
	"errors"

	"github.com/scigolib/elfrw/internal/position"
)

var errNoPosition = errors.New("chunk has no position assigned")

// Kind tags a Chunk's concrete variant.
type Kind int

const (
	KindModule Kind = iota
	KindFunction
	KindBlock
	KindInstruction
	KindPLTTrampoline
	KindDataRegion
	KindJumpTable
	KindSymbol
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "Module"
	case KindFunction:
		return "Function"
	case KindBlock:
		return "Block"
	case KindInstruction:
		return "Instruction"
	case KindPLTTrampoline:
		return "PLTTrampoline"
	case KindDataRegion:
		return "DataRegion"
	case KindJumpTable:
		return "JumpTable"
	case KindSymbol:
		return "Symbol"
	default:
		return "Unknown"
	}
}

// Chunk is the abstract node of the code hierarchy (spec.md §3). Every
// concrete variant satisfies it; structural mutation is the exclusive
// province of internal/mutator — Chunk itself only exposes the raw
// pointer surgery the mutator needs, plus read-only accessors.
type Chunk interface {
	Kind() Kind
	Name() string

	Parent() Chunk
	SetParent(Chunk)

	// Children returns this chunk's ordered child list, or nil for
	// leaves (Instruction and the auxiliary chunk kinds) that never
	// have children.
	Children() *ChildList

	PreviousSibling() Chunk
	SetPreviousSibling(Chunk)
	NextSibling() Chunk
	SetNextSibling(Chunk)

	// Size returns the chunk's cached size in bytes: the sum of
	// descendant sizes for container chunks, intrinsic for leaves
	// (spec.md §3, invariant 3). It is a stored value maintained
	// incrementally by internal/mutator via AddToSize, not recomputed
	// on each call — mirroring the original's Chunk::size field.
	Size() uint64
	AddToSize(delta int64)

	Position() position.Position
	SetPosition(position.Position)

	// Address delegates to the chunk's position, per spec.md §4.B.
	Address() (uint64, error)

	Accept(v Visitor)
}

// base implements the common bookkeeping every concrete chunk embeds:
// parent/sibling back-references (non-owning, per spec.md §5), a
// position, and a cached size.
type base struct {
	parent Chunk
	prev   Chunk
	next   Chunk
	pos    position.Position
	size   uint64
}

func (b *base) Parent() Chunk             { return b.parent }
func (b *base) SetParent(p Chunk)         { b.parent = p }
func (b *base) PreviousSibling() Chunk    { return b.prev }
func (b *base) SetPreviousSibling(c Chunk) { b.prev = c }
func (b *base) NextSibling() Chunk        { return b.next }
func (b *base) SetNextSibling(c Chunk)    { b.next = c }

func (b *base) Position() position.Position     { return b.pos }
func (b *base) SetPosition(p position.Position) { b.pos = p }

func (b *base) Size() uint64 { return b.size }

// AddToSize adjusts the cached size by delta. delta is signed so removal
// (negative) and insertion/growth (positive) share one code path in
// internal/mutator.
func (b *base) AddToSize(delta int64) {
	if delta >= 0 {
		b.size += uint64(delta)
		return
	}
	dec := uint64(-delta)
	if dec > b.size {
		b.size = 0
		return
	}
	b.size -= dec
}

func (b *base) Address() (uint64, error) {
	if b.pos == nil {
		return 0, errNoPosition
	}
	return b.pos.Get()
}

// Children returns nil for plain leaves; container embeds this and
// overrides it.
func (b *base) Children() *ChildList { return nil }

// container is embedded by chunks with an ordered child list: Module
// (functions), Function (blocks), Block (instructions).
type container struct {
	base
	children ChildList
}

func (c *container) Children() *ChildList { return &c.children }
