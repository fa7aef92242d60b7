package elfspace

import (
	"debug/elf"
	"sort"
	"strings"

	"github.com/scigolib/elfrw/internal/disasm"
)

// buildMappingSymbolList scans f's static symbol table for ARM/AArch64
// mapping symbols ("$a", "$t", "$d", with an optional ".suffix") and
// turns them into a disasm.MappingSymbolList (SPEC_FULL.md supplemented
// feature 2, egalito's `MappingSymbolList::buildMappingSymbolList`).
// Only called when the active config.ArchProfile sets
// UsesMappingSymbols; on x86-64 it is never invoked and the
// Disassembler simply treats every byte in a function symbol's range as
// code (spec.md §1: "Architecture-specific quirks... are acknowledged
// as configuration of the upstream disassembler, not part of the
// core").
func buildMappingSymbolList(f *elf.File) (*disasm.MappingSymbolList, error) {
	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}

	type entry struct {
		addr   uint64
		isCode bool
	}
	var entries []entry
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_NOTYPE {
			continue
		}
		name := s.Name
		if idx := strings.IndexByte(name, '.'); idx >= 0 {
			name = name[:idx]
		}
		switch name {
		case "$a", "$t":
			entries = append(entries, entry{addr: s.Value, isCode: true})
		case "$d":
			entries = append(entries, entry{addr: s.Value, isCode: false})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].addr < entries[j].addr })

	starts := make([]uint64, len(entries))
	isCode := make([]bool, len(entries))
	for i, e := range entries {
		starts[i] = e.addr
		isCode[i] = e.isCode
	}
	return disasm.NewMappingSymbolList(starts, isCode), nil
}
