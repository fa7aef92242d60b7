package elfspace

import (
	"debug/elf"
	"sort"

	"github.com/scigolib/elfrw/internal/disasm"
)

// SymbolList is the static or dynamic symbol table, filtered and sorted
// by address — the input internal/disasm.Disassembler.Module consumes
// to know where each function starts (spec.md §4.E step 1, "Build a
// static symbol list; if the image is dynamic, additionally build a
// dynamic symbol list").
type SymbolList struct {
	functions []disasm.FunctionSymbol
	data      []elf.Symbol
}

// buildSymbolList filters f's symbol table (static via f.Symbols, or
// dynamic via f.DynamicSymbols when dynamic is true) down to function
// symbols with code to disassemble, plus the remaining data/object
// symbols kept around as chunk.Symbol material.
func buildSymbolList(f *elf.File, code sectionReader, dynamic bool) (*SymbolList, error) {
	var syms []elf.Symbol
	var err error
	if dynamic {
		syms, err = f.DynamicSymbols()
	} else {
		syms, err = f.Symbols()
	}
	if err != nil {
		return nil, err
	}

	sl := &SymbolList{}
	for _, s := range syms {
		if s.Name == "" || s.Size == 0 {
			continue
		}
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FUNC:
			data, ok := code.readRange(s.Value, s.Size)
			if !ok {
				continue
			}
			sl.functions = append(sl.functions, disasm.FunctionSymbol{
				Name:    s.Name,
				Address: s.Value,
				Code:    data,
			})
		case elf.STT_OBJECT, elf.STT_TLS:
			sl.data = append(sl.data, s)
		}
	}

	sort.Slice(sl.functions, func(i, j int) bool {
		return sl.functions[i].Address < sl.functions[j].Address
	})
	return sl, nil
}

// Functions returns the function symbols this list extracted, sorted by
// address.
func (sl *SymbolList) Functions() []disasm.FunctionSymbol { return sl.functions }

// DataSymbols returns the non-function symbols this list kept.
func (sl *SymbolList) DataSymbols() []elf.Symbol { return sl.data }

// resolveValue returns the address of the named symbol among this
// list's function or data symbols, used when a relocation or PLT entry
// names a symbol by index rather than address.
func (sl *SymbolList) resolveValue(name string) (uint64, bool) {
	for _, fn := range sl.functions {
		if fn.Name == name {
			return fn.Address, true
		}
	}
	for _, s := range sl.data {
		if s.Name == name {
			return s.Value, true
		}
	}
	return 0, false
}
