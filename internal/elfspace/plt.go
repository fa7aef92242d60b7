package elfspace

import (
	"debug/elf"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/pass"
	"github.com/scigolib/elfrw/internal/position"
)

// pltEntrySize is the fixed size of one x86-64 PLT stub (a push,
// indirect jump through the GOT, and a resolver call — the
// architecture-specific PLT layout spec.md's glossary defines as
// "indirection stubs for dynamically-linked external calls").
const pltEntrySize = 16

// buildPLTList turns the .plt section into one chunk.PLTTrampoline per
// entry, named after the external symbol its corresponding .rela.plt
// relocation targets (spec.md §4.E step 7, "Build... the PLT list").
// Entry 0 is the lazy-binding resolver stub (PLT0), which has no
// associated relocation and is kept as a trampoline named "plt0" so its
// address still participates in the module's layout.
func buildPLTList(f *elf.File, relocs *pass.RelocList) []*chunk.PLTTrampoline {
	sec := f.Section(".plt")
	if sec == nil {
		return nil
	}
	count := int(sec.Size / pltEntrySize)
	if count == 0 {
		return nil
	}

	pltRelocs := filterPLTRelocs(relocs)

	trampolines := make([]*chunk.PLTTrampoline, 0, count)
	for i := 0; i < count; i++ {
		name := "plt0"
		if i > 0 && i-1 < len(pltRelocs) {
			name = pltRelocs[i-1].Symbol
		} else if i > 0 {
			name = "plt.unknown"
		}

		t := chunk.NewPLTTrampoline(name, pltEntrySize)
		t.SetPosition(position.NewAbsolutePosition(sec.Addr + uint64(i)*pltEntrySize))
		trampolines = append(trampolines, t)
	}
	return trampolines
}

// filterPLTRelocs returns only the .rela.plt-sourced relocations, in
// file order, which line up one-to-one with PLT entries 1..N.
func filterPLTRelocs(relocs *pass.RelocList) []*pass.Reloc {
	var out []*pass.Reloc
	for _, r := range relocs.Relocs() {
		if r.FromPLT {
			out = append(out, r)
		}
	}
	return out
}
