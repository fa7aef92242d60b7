package pass

import (
	"sort"

	"github.com/scigolib/elfrw/internal/chunk"
)

// addressRange is one entry in an AddressIndex: the [start, end) span a
// chunk occupies and the chunk itself.
type addressRange struct {
	start, end uint64
	target     chunk.Chunk
}

// AddressIndex answers "what chunk, if any, occupies this address" —
// the lookup every reference-resolution pass needs to turn a raw
// literal into a chunk.Link target. It is rebuilt once per pass run
// from the module's current functions, PLT list, and data regions,
// since addresses only need to be stable during a single pass's
// traversal (spec.md §5: "pass order is fixed... mutations within a
// pass occur in a defined deterministic iteration").
type AddressIndex struct {
	ranges []addressRange
}

// BuildAddressIndex scans mod's functions, PLT trampolines, and data
// regions, recording each one's current address span.
func BuildAddressIndex(mod *chunk.Module) *AddressIndex {
	idx := &AddressIndex{}

	for _, fn := range mod.Functions() {
		idx.addRange(fn)
	}
	for _, plt := range mod.PLTList() {
		idx.addRange(plt)
	}
	for _, dr := range mod.DataRegions() {
		idx.addRange(dr)
	}

	sort.Slice(idx.ranges, func(i, j int) bool {
		return idx.ranges[i].start < idx.ranges[j].start
	})
	return idx
}

func (idx *AddressIndex) addRange(c chunk.Chunk) {
	addr, err := c.Address()
	if err != nil {
		return
	}
	idx.ranges = append(idx.ranges, addressRange{start: addr, end: addr + c.Size(), target: c})
}

// Lookup returns the chunk whose address span contains addr, or nil if
// none does. Functions and PLT trampolines never overlap by
// construction, so a binary search over sorted starts is sufficient.
func (idx *AddressIndex) Lookup(addr uint64) chunk.Chunk {
	i := sort.Search(len(idx.ranges), func(i int) bool {
		return idx.ranges[i].start > addr
	})
	if i == 0 {
		return nil
	}
	r := idx.ranges[i-1]
	if addr >= r.start && addr < r.end {
		return r.target
	}
	return nil
}

// instructionAddress returns instr's address, or 0 with ok=false if its
// position cannot yet answer (e.g. mid-construction).
func instructionAddress(instr *chunk.Instruction) (uint64, bool) {
	addr, err := instr.Address()
	if err != nil {
		return 0, false
	}
	return addr, true
}

// walkInstructions calls fn for every Instruction in mod's functions, in
// function then block then instruction order — the deterministic
// iteration spec.md §5 requires.
func walkInstructions(mod *chunk.Module, fn func(*chunk.Function, *chunk.Block, *chunk.Instruction)) {
	for _, f := range mod.Functions() {
		for _, b := range f.Blocks() {
			for _, i := range b.Instructions() {
				fn(f, b, i)
			}
		}
	}
}
