package chunk

// ChildList is the ordered container every parent chunk uses to hold its
// children (spec.md §4.B: "indexed access, linear search by identity,
// append, insert-at, remove-last, and iteration"). internal/mutator is
// the only caller permitted to add, insert, or remove entries; everything
// else only reads.
type ChildList struct {
	items []Chunk
}

// Count returns the number of children.
func (l *ChildList) Count() int { return len(l.items) }

// At returns the child at index i. It panics on an out-of-range index,
// matching the original's unchecked indexed access — callers are
// expected to range 0..Count()-1.
func (l *ChildList) At(i int) Chunk { return l.items[i] }

// First returns the first child, or nil if the list is empty.
func (l *ChildList) First() Chunk {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

// Last returns the last child, or nil if the list is empty.
func (l *ChildList) Last() Chunk {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[len(l.items)-1]
}

// IndexOf returns the index of c by identity, or -1 if absent.
func (l *ChildList) IndexOf(c Chunk) int {
	for i, item := range l.items {
		if item == c {
			return i
		}
	}
	return -1
}

// Append adds c to the end of the list.
func (l *ChildList) Append(c Chunk) {
	l.items = append(l.items, c)
}

// InsertAt inserts c at index i, shifting subsequent elements right.
func (l *ChildList) InsertAt(i int, c Chunk) {
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = c
}

// RemoveLast drops and returns the last child, or nil if the list is
// empty. Used by Mutator.SplitBlockBefore while it truncates the
// original block's tail.
func (l *ChildList) RemoveLast() Chunk {
	n := len(l.items)
	if n == 0 {
		return nil
	}
	c := l.items[n-1]
	l.items[n-1] = nil
	l.items = l.items[:n-1]
	return c
}

// Remove drops c from the list by identity, preserving order of the
// remaining elements. Reports whether c was found.
func (l *ChildList) Remove(c Chunk) bool {
	i := l.IndexOf(c)
	if i < 0 {
		return false
	}
	copy(l.items[i:], l.items[i+1:])
	l.items[len(l.items)-1] = nil
	l.items = l.items[:len(l.items)-1]
	return true
}

// Items returns a copy of the underlying slice, safe for the caller to
// range over even if the list is mutated afterward.
func (l *ChildList) Items() []Chunk {
	out := make([]Chunk, len(l.items))
	copy(out, l.items)
	return out
}

// WalkSiblings returns the children by following head.NextSibling()
// links instead of indexing — used by property tests asserting
// sibling/child coherence (spec.md §8, property 1).
func (l *ChildList) WalkSiblings() []Chunk {
	var out []Chunk
	for c := l.First(); c != nil; c = c.NextSibling() {
		out = append(out, c)
	}
	return out
}
