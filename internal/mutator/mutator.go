// Package mutator implements the single component permitted to change
// structural links in the chunk tree (spec.md §4.C). A Mutator is
// scoped to one parent chunk and threads an explicit position.Factory
// (itself built from a config.ArchProfile) rather than consulting any
// global configuration, per spec.md §9's redesign note.
package mutator

import (
	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/position"
	"github.com/scigolib/elfrw/internal/rwerrors"
)

// Mutator performs structural edits under parent: append, prepend,
// insert, remove, and the position/generation bookkeeping every edit
// implies.
type Mutator struct {
	parent  chunk.Chunk
	factory position.Factory
}

// New scopes a Mutator to parent, using factory to build positions for
// any child that doesn't already have one.
func New(parent chunk.Chunk, factory position.Factory) *Mutator {
	return &Mutator{parent: parent, factory: factory}
}

// Parent returns the chunk this Mutator is scoped to.
func (m *Mutator) Parent() chunk.Chunk { return m.parent }

// Append places child at the end of the parent's children (spec.md
// §4.C).
func (m *Mutator) Append(child chunk.Chunk) error {
	if child.Parent() != nil {
		rwerrors.Structural("append: child is already parented", nil)
	}
	children := m.parent.Children()
	prior := children.Last()
	m.link(children.Count(), prior, nil, child)
	m.finishInsert(child, prior)
	return nil
}

// Prepend places child before the current first child; on an empty
// parent this is equivalent to Append (spec.md §4.C).
func (m *Mutator) Prepend(child chunk.Chunk) error {
	first := m.parent.Children().First()
	if first == nil {
		return m.Append(child)
	}
	return m.InsertBefore(first, child)
}

// InsertAfter places newChunk immediately after insertPoint. insertPoint
// may be nil only when the parent has no children yet, in which case
// this behaves like inserting at index 0 (spec.md §4.C).
func (m *Mutator) InsertAfter(insertPoint, newChunk chunk.Chunk) error {
	if newChunk.Parent() != nil {
		rwerrors.Structural("insertAfter: newChunk is already parented", nil)
	}
	children := m.parent.Children()

	if insertPoint == nil {
		if children.Count() != 0 {
			rwerrors.Structural("insertAfter: insertPoint is nil but parent already has children", nil)
		}
		m.link(0, nil, nil, newChunk)
		m.finishInsert(newChunk, nil)
		return nil
	}

	idx := children.IndexOf(insertPoint)
	if idx < 0 {
		rwerrors.Structural("insertAfter: insertPoint is not a child of this mutator's parent", nil)
	}
	next := insertPoint.NextSibling()
	m.link(idx+1, insertPoint, next, newChunk)
	m.finishInsert(newChunk, insertPoint)
	return nil
}

// InsertBefore places newChunk immediately before insertPoint. A nil
// insertPoint is equivalent to Append (spec.md §4.C). When insertPoint
// was the first child, its position is rebuilt to follow newChunk — the
// "first-entry special case" (spec.md §4.C), which applies uniformly
// whether or not the profile sets needsSpecialCaseFirst: the factory
// already encodes that distinction for the no-prior-sibling case, and
// insertPoint now has a prior sibling regardless of profile.
func (m *Mutator) InsertBefore(insertPoint, newChunk chunk.Chunk) error {
	if insertPoint == nil {
		return m.Append(newChunk)
	}
	if newChunk.Parent() != nil {
		rwerrors.Structural("insertBefore: newChunk is already parented", nil)
	}
	children := m.parent.Children()
	idx := children.IndexOf(insertPoint)
	if idx < 0 {
		rwerrors.Structural("insertBefore: insertPoint is not a child of this mutator's parent", nil)
	}
	prior := insertPoint.PreviousSibling()
	wasFirst := idx == 0

	m.link(idx, prior, insertPoint, newChunk)
	m.finishInsert(newChunk, prior)

	if wasFirst {
		insertPoint.SetPosition(m.factory.Make(m.parent, newChunk, 0))
		m.updateGenerations(insertPoint)
	}
	return nil
}

// InsertBeforeJumpTo inserts newChunk structurally after insertPoint,
// then swaps their semantic payloads, so that the fixed address
// insertPoint already occupies keeps running newChunk's semantic while
// insertPoint's original semantic moves to the newly-inserted slot
// (spec.md §4.C) — preserving existing branch targets, which reference
// addresses rather than chunk identity. Per spec.md §9's open question,
// a size mismatch between the two semantics is rejected rather than
// silently padded or truncated, since either would move every
// subsequent instruction's address.
func (m *Mutator) InsertBeforeJumpTo(insertPoint, newChunk *chunk.Instruction) error {
	if insertPoint.Semantic().Size() != newChunk.Semantic().Size() {
		return rwerrors.ErrSemanticSizeMismatch
	}
	if err := m.InsertAfter(insertPoint, newChunk); err != nil {
		return err
	}
	oldSemantic := insertPoint.Semantic()
	insertPoint.SetSemantic(newChunk.Semantic())
	newChunk.SetSemantic(oldSemantic)
	return nil
}

// Remove detaches child from the parent, rewiring sibling links,
// decrementing ancestor sizes, and repointing the new neighbour's
// position so its "after-this" reference never dangles (spec.md §4.C,
// §5 ownership discipline).
func (m *Mutator) Remove(child chunk.Chunk) error {
	if child.Parent() != m.parent {
		rwerrors.Structural("remove: child is not a child of this mutator's parent", nil)
	}
	children := m.parent.Children()
	prev := child.PreviousSibling()
	next := child.NextSibling()
	if !children.Remove(child) {
		rwerrors.Structural("remove: child is not present in the parent's child list", nil)
	}

	if prev != nil {
		prev.SetNextSibling(next)
	}
	if next != nil {
		next.SetPreviousSibling(prev)
	}

	removedSize := int64(child.Size())
	child.SetParent(nil)
	child.SetPreviousSibling(nil)
	child.SetNextSibling(nil)

	propagateSize(m.parent, -removedSize)

	switch {
	case next != nil && prev != nil:
		if pos := next.Position(); pos == nil || !repointAfter(pos, prev) {
			next.SetPosition(m.factory.Make(m.parent, prev, 0))
		}
		m.updateGenerations(next)
	case next != nil:
		// next becomes the new first child.
		next.SetPosition(m.factory.Make(m.parent, nil, 0))
		m.updateGenerations(next)
	case prev != nil:
		m.updateGenerations(prev)
	default:
		m.updateGenerations(m.parent)
	}

	m.maybeEagerUpdate()
	return nil
}

// SplitBlockBefore partitions the block containing point into two
// adjacent blocks: instructions preceding point stay; point and its
// successors move to a new sibling block inserted immediately after the
// original one. m must be scoped to that block's parent Function
// (spec.md §4.C "splitBlockBefore in detail").
//
// point being the block's first instruction is a degenerate case with
// nothing to leave behind; this implementation treats it as a no-op,
// returning the unchanged original block and false, per spec.md §9's
// open question on this boundary. point being the block's last
// instruction is not degenerate — it is the ordinary case of splitting
// a single instruction into its own trailing block.
func (m *Mutator) SplitBlockBefore(point *chunk.Instruction) (*chunk.Block, bool, error) {
	originalBlock, ok := point.Parent().(*chunk.Block)
	if !ok {
		rwerrors.Structural("splitBlockBefore: point's parent is not a Block", nil)
	}
	if originalBlock.Parent() != m.parent {
		rwerrors.Structural("splitBlockBefore: mutator is not scoped to point's block's parent", nil)
	}

	instrs := originalBlock.Instructions()
	leaveBehind := -1
	for i, ins := range instrs {
		if ins == point {
			leaveBehind = i
			break
		}
	}
	if leaveBehind < 0 {
		rwerrors.Structural("splitBlockBefore: point is not an instruction of its claimed block", nil)
	}
	if leaveBehind == 0 {
		return originalBlock, false, nil
	}

	pointAddr, err := point.Address()
	if err != nil {
		return nil, false, err
	}
	fnAddr, err := m.parent.Address()
	if err != nil {
		return nil, false, err
	}
	delta := pointAddr - fnAddr

	newBlock := chunk.NewBlock()
	newBlock.SetPosition(m.factory.MakeAbsoluteOffset(m.parent, delta))

	moved := instrs[leaveBehind:]
	lastLeft := instrs[leaveBehind-1]
	lastLeft.SetNextSibling(nil)
	point.SetPreviousSibling(nil)

	oldChildren := originalBlock.Children()
	for range moved {
		oldChildren.RemoveLast()
	}
	var movedSize int64
	for _, ins := range moved {
		movedSize += int64(ins.Size())
	}
	propagateSize(originalBlock, -movedSize)
	m.updateGenerations(originalBlock)

	scratch := New(newBlock, m.factory)
	for _, ins := range moved {
		ins.SetParent(nil)
		ins.SetPreviousSibling(nil)
		ins.SetNextSibling(nil)
		ins.SetPosition(nil)
		if err := scratch.Append(ins); err != nil {
			return nil, false, err
		}
	}

	if err := m.InsertAfter(originalBlock, newBlock); err != nil {
		return nil, false, err
	}

	return newBlock, true, nil
}

// SetPosition updates m.parent's own Absolute position to addr. It is
// invalid to call on a chunk whose position is not Absolute (spec.md
// §4.C) — internal/sandbox's Generator is the primary caller, via
// Mutator(function).setPosition(slot.address) (spec.md §4.F).
func (m *Mutator) SetPosition(addr uint64) error {
	pos := m.parent.Position()
	inner := pos
	if gp, ok := pos.(*position.GenerationalPosition); ok {
		inner = gp.Inner()
	}
	abs, ok := inner.(*position.AbsolutePosition)
	if !ok {
		rwerrors.Structural("setPosition: chunk's position is not Absolute", nil)
	}
	abs.Set(addr)
	m.updateGenerations(m.parent)
	m.maybeEagerUpdate()
	return nil
}

// ModifiedChildSize informs the mutator that child's own intrinsic size
// already changed by delta (the caller is expected to have applied that
// change to child itself, e.g. via Instruction.SetSemantic); ancestor
// sizes are updated and generations invalidated (spec.md §4.C).
func (m *Mutator) ModifiedChildSize(child chunk.Chunk, delta int64) error {
	if child.Parent() != m.parent {
		rwerrors.Structural("modifiedChildSize: not a child of this mutator's parent", nil)
	}
	propagateSize(m.parent, delta)
	m.updateGenerations(child)
	m.maybeEagerUpdate()
	return nil
}

// link wires child's sibling pointers into the slot between prev and
// next, threads it into the parent's child list at idx, and sets its
// parent — steps 1-3 of the insertion contract (spec.md §4.C). If next
// follows prev through a SubsequentPosition, that position is repointed
// to follow child; child's own position and all sizes are left to
// finishInsert.
func (m *Mutator) link(idx int, prev, next, child chunk.Chunk) {
	if prev != nil {
		prev.SetNextSibling(child)
	}
	child.SetPreviousSibling(prev)
	child.SetNextSibling(next)
	if next != nil {
		next.SetPreviousSibling(child)
		if pos := next.Position(); pos != nil {
			if gp, ok := pos.(*position.GenerationalPosition); ok {
				pos = gp.Inner()
			}
			if sp, ok := pos.(*position.SubsequentPosition); ok {
				sp.SetAfterThis(child)
			}
		}
	}
	m.parent.Children().InsertAt(idx, child)
	child.SetParent(m.parent)
}

// finishInsert completes steps 4-6 of the insertion contract: assign a
// position if child doesn't have one yet, propagate the size increase
// to every ancestor, update generations, and run the eager update pass
// if the profile calls for one.
func (m *Mutator) finishInsert(child, prior chunk.Chunk) {
	if child.Position() == nil {
		child.SetPosition(m.factory.Make(m.parent, prior, 0))
	}
	propagateSize(m.parent, int64(child.Size()))
	m.updateGenerations(child)
	m.maybeEagerUpdate()
}

// propagateSize walks from start upward through every ancestor
// (inclusive), adjusting each cached size by delta. Unlike the
// original's asymmetric guard on removal (only decrementing an
// ancestor whose tracked size was already non-zero), this applies
// unconditionally in both directions: chunk.Chunk.AddToSize already
// clamps at zero, so the guard added no safety, only an inconsistency
// between insert and remove.
func propagateSize(start chunk.Chunk, delta int64) {
	for cur := start; cur != nil; cur = cur.Parent() {
		cur.AddToSize(delta)
	}
}

// updateGenerations implements spec.md §4.C's generation update
// algorithm: walk from start upward to (inclusive) the nearest Absolute
// ancestor, assign strictly increasing generation numbers along that
// path, then refresh the cached authority of every descendant of start.
func (m *Mutator) updateGenerations(start chunk.Chunk) {
	var chain []chunk.Chunk
	for cur := start; cur != nil; cur = cur.Parent() {
		chain = append(chain, cur)
		if pos := cur.Position(); pos != nil && position.IsAbsolute(pos) {
			break
		}
	}

	max := 0
	for _, c := range chain {
		if pos := c.Position(); pos != nil {
			if g := pos.GetGeneration(); g > max {
				max = g
			}
		}
	}

	gen := max + 1
	for _, c := range chain {
		if pos := c.Position(); pos != nil {
			pos.SetGeneration(gen)
		}
		gen++
	}

	var authority position.Position
	if n := len(chain); n > 0 {
		if pos := chain[n-1].Position(); pos != nil && position.IsAbsolute(pos) {
			authority = pos
		}
	}
	updateAuthority(start, authority)
}

func updateAuthority(c chunk.Chunk, authority position.Position) {
	if pos := c.Position(); pos != nil {
		pos.UpdateAuthority(authority)
	}
	if children := c.Children(); children != nil {
		for _, child := range children.Items() {
			updateAuthority(child, authority)
		}
	}
}

// maybeEagerUpdate implements spec.md §4.C's optional eager update
// pass: when the profile sets needsUpdatePasses, walk upward from
// m.parent and, at every Absolute ancestor found along the way, force a
// top-down Recalculate sweep over that ancestor's entire subtree.
func (m *Mutator) maybeEagerUpdate() {
	if !m.factory.Profile().NeedsUpdatePasses {
		return
	}
	for cur := m.parent; cur != nil; cur = cur.Parent() {
		if pos := cur.Position(); pos != nil && position.IsAbsolute(pos) {
			recalculateSubtree(cur)
		}
	}
}

func recalculateSubtree(c chunk.Chunk) {
	if pos := c.Position(); pos != nil {
		_ = pos.Recalculate()
	}
	if children := c.Children(); children != nil {
		for _, child := range children.Items() {
			recalculateSubtree(child)
		}
	}
}

// repointAfter repoints pos (unwrapping a GenerationalPosition if
// present) to follow ref instead of whatever it previously followed,
// keeping a SubsequentPosition's or OffsetPosition's back-reference
// coherent without rebuilding it from scratch. Reports whether pos was
// a variant that supports repointing.
func repointAfter(pos position.Position, ref position.Ref) bool {
	target := pos
	if gp, ok := pos.(*position.GenerationalPosition); ok {
		target = gp.Inner()
	}
	switch t := target.(type) {
	case *position.SubsequentPosition:
		t.SetAfterThis(ref)
		return true
	case *position.OffsetPosition:
		t.SetParent(ref)
		return true
	default:
		return false
	}
}
