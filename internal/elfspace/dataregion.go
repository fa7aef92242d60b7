package elfspace

import (
	"debug/elf"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/position"
)

// buildDataRegions turns every loaded, non-code section (spec.md §4.E
// step 7, "Build the data-region list") into a chunk.DataRegion with an
// AbsolutePosition at the section's virtual address. Sections without
// SHF_ALLOC (debug info, symbol tables, relocations) never occupy a
// runtime address and are skipped; .bss-style SHT_NOBITS sections are
// kept with a zero-filled backing slice since Raw() only needs to
// answer "what's here," never "what does the loader start it as"
// (spec.md §1: ELF byte-level parsing stops at section boundaries).
func buildDataRegions(f *elf.File) []*chunk.DataRegion {
	var regions []*chunk.DataRegion
	for _, sec := range f.Sections {
		if sec.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		if sec.Flags&elf.SHF_EXECINSTR != 0 {
			continue // code lives in functions, not data regions
		}
		if sec.Size == 0 {
			continue
		}

		var raw []byte
		if sec.Type == elf.SHT_NOBITS {
			raw = make([]byte, sec.Size)
		} else {
			data, err := sec.Data()
			if err != nil {
				continue
			}
			raw = data
		}

		dr := chunk.NewDataRegion(sec.Name, raw)
		dr.SetPosition(position.NewAbsolutePosition(sec.Addr))
		regions = append(regions, dr)
	}
	return regions
}
