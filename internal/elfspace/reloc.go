package elfspace

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/scigolib/elfrw/internal/pass"
)

// relocSectionNames lists the RELA sections whose entries feed
// HandleRelocs: data relocations (.rela.dyn) and PLT lazy-binding
// relocations (.rela.plt), the two categories spec.md §4.E step 6
// groups into one relocation list.
var relocSectionNames = []string{".rela.dyn", ".rela.plt"}

// buildRelocList parses every RELA section named in relocSectionNames
// into pass.Reloc entries, resolving each entry's symbol index against
// the image's dynamic symbol table; only when that symbol's value is
// zero is its name looked up in staticSyms and then dynSyms. A static
// image with no dynamic symbol table gets no symbol-based targets. This
// computes an absolute target address
// (spec.md §4.E step 6, "Build the relocation list from the ELF and
// symbol lists"). Only the x86-64 ELF64 RELA layout is parsed — REL
// (addend-less) relocations, used by some 32-bit architectures, are out
// of scope: spec.md §1 names "the concrete relocation catalogue" as a
// non-goal beyond what's needed to demonstrate the pass pipeline.
func buildRelocList(f *elf.File, dynSyms, staticSyms *SymbolList) *pass.RelocList {
	var entries []*pass.Reloc

	var dynSymTable []elf.Symbol
	if ds, err := f.DynamicSymbols(); err == nil {
		dynSymTable = ds
	}

	for _, name := range relocSectionNames {
		sec := f.Section(name)
		if sec == nil {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}

		const relaSize = 24 // Off(8) + Info(8) + Addend(8)
		r := bytes.NewReader(data)
		for r.Len() >= relaSize {
			var rela elf.Rela64
			if err := binary.Read(r, f.ByteOrder, &rela); err != nil {
				break
			}

			// symIdx is the raw ELF symbol table index, which counts the
			// STN_UNDEF entry at 0; debug/elf's DynamicSymbols() drops
			// that entry from the slice it returns, so the lookup here
			// needs symIdx-1, not symIdx.
			symIdx := elf.R_SYM64(rela.Info)
			var target uint64
			var symName string
			if tableIdx := int(symIdx) - 1; symIdx != 0 && tableIdx >= 0 && tableIdx < len(dynSymTable) {
				sym := dynSymTable[tableIdx]
				symName = sym.Name
				if v, ok := resolveSymbolValue(sym, dynSyms, staticSyms); ok {
					target = v + uint64(rela.Addend)
				}
			} else if symIdx == 0 {
				// R_*_RELATIVE-style: no symbol, addend is the target
				// directly relative to the image's load base (assumed
				// zero for a non-PIE image, which this core treats as
				// the common case — spec.md's Non-goals exclude
				// dynamic-loader base relocation beyond the core
				// algebra).
				target = uint64(rela.Addend)
			}

			entries = append(entries, &pass.Reloc{
				Offset:  rela.Off,
				Symbol:  symName,
				Target:  target,
				Addend:  rela.Addend,
				FromPLT: name == ".rela.plt",
			})
		}
	}

	return pass.NewRelocList(entries)
}

// resolveSymbolValue prefers the dynamic symbol's own recorded value
// (nonzero for a defined symbol) and falls back to a name lookup in
// dynSyms/staticSyms for one that's undefined in the dynamic table but
// resolved statically (e.g. an internal call routed through the PLT by
// the toolchain regardless).
func resolveSymbolValue(sym elf.Symbol, dynSyms, staticSyms *SymbolList) (uint64, bool) {
	if sym.Value != 0 {
		return sym.Value, true
	}
	if dynSyms != nil {
		if v, ok := dynSyms.resolveValue(sym.Name); ok {
			return v, true
		}
	}
	if staticSyms != nil {
		if v, ok := staticSyms.resolveValue(sym.Name); ok {
			return v, true
		}
	}
	return 0, false
}
