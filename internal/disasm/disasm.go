package disasm

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/arch/x86/x86asm"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/mutator"
	"github.com/scigolib/elfrw/internal/position"
)

// FunctionSymbol is the minimal description internal/elfspace extracts
// from the ELF symbol table for one function: its name, its entry
// address, and the raw code bytes covering it (sliced from the owning
// section's mapped bytes).
type FunctionSymbol struct {
	Name    string
	Address uint64
	Code    []byte
}

// MappingSymbolList models ARM/AArch64 "$a"/"$d"/"$t" mapping symbols,
// which distinguish code spans from data spans within a section the ELF
// symbol table alone cannot tell apart (SPEC_FULL.md supplemented
// feature 2). x86-64 profiles never populate one; Disassembler treats a
// nil list as "every byte in a function symbol's range is code."
type MappingSymbolList struct {
	// starts holds each span's start address in ascending order;
	// isCode[i] is true when the span at starts[i] is code, false for
	// data.
	starts []uint64
	isCode []bool
}

// NewMappingSymbolList builds a list from (address, isCode) pairs
// already sorted by address — internal/elfspace does the sorting when
// it builds this from the raw symbol table.
func NewMappingSymbolList(starts []uint64, isCode []bool) *MappingSymbolList {
	return &MappingSymbolList{starts: starts, isCode: isCode}
}

// IsCode reports whether addr falls within a span the mapping symbols
// mark as code. An address before the first mapping symbol is assumed
// to be code, matching egalito's conservative default.
func (m *MappingSymbolList) IsCode(addr uint64) bool {
	if m == nil || len(m.starts) == 0 {
		return true
	}
	idx := -1
	for i, s := range m.starts {
		if s > addr {
			break
		}
		idx = i
	}
	if idx < 0 {
		return true
	}
	return m.isCode[idx]
}

// Disassembler decodes function symbols into chunk.Function subtrees.
// It is configured once with a position.Factory (itself built from a
// config.ArchProfile) and an optional MappingSymbolList, then reused
// across every function in a Module (spec.md §4.E step 2-3).
type Disassembler struct {
	factory position.Factory
	mapping *MappingSymbolList
	log     *logrus.Entry
}

// New creates a Disassembler. log may be nil, in which case a
// disabled-output entry is used so call sites never need a nil check.
func New(factory position.Factory, mapping *MappingSymbolList, log *logrus.Entry) *Disassembler {
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}
	return &Disassembler{factory: factory, mapping: mapping, log: log}
}

// Module decodes every function symbol in syms into a populated
// chunk.Module named name (spec.md §4.E step 3). Decode failures on an
// individual function are non-fatal: the function is skipped with a
// warning, matching spec.md §7's "analysis failure" kind rather than
// "malformed input" — a function egalito's own disassembler can't handle
// doesn't invalidate the whole image.
func (d *Disassembler) Module(name string, syms []FunctionSymbol) *chunk.Module {
	mod := chunk.NewModule(name)
	mm := mutator.New(mod, d.factory)

	for _, sym := range syms {
		fn, err := d.Function(sym)
		if err != nil {
			d.log.WithFields(logrus.Fields{
				"function": sym.Name,
				"address":  fmt.Sprintf("0x%x", sym.Address),
			}).Warnf("disasm: skipping function: %v", err)
			continue
		}
		if err := mm.Append(fn); err != nil {
			d.log.WithField("function", sym.Name).Warnf("disasm: could not attach function: %v", err)
		}
	}

	return mod
}

// Function decodes one function symbol into a chunk.Function with a
// single entry Block holding every decoded instruction in address
// order. The block is not split at control-flow boundaries here, and
// none of the passes in internal/pass split it either; a caller that
// wants basic blocks splits it with mutator.SplitBlockBefore.
func (d *Disassembler) Function(sym FunctionSymbol) (*chunk.Function, error) {
	fn := chunk.NewFunction(sym.Name)
	fn.SetPosition(position.NewAbsolutePosition(sym.Address))

	block := chunk.NewBlock()
	block.SetName(sym.Name)

	blockMutator := mutator.New(fn, d.factory)
	if err := blockMutator.Append(block); err != nil {
		return nil, err
	}

	instrMutator := mutator.New(block, d.factory)
	code := sym.Code
	offset := 0
	for offset < len(code) {
		pc := sym.Address + uint64(offset)
		if d.mapping != nil && !d.mapping.IsCode(pc) {
			break
		}

		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil || inst.Len == 0 {
			d.log.WithFields(logrus.Fields{
				"function": sym.Name,
				"offset":   offset,
			}).Warnf("disasm: decode failed at +0x%x, treating remainder as data", offset)
			break
		}

		sem := NewX86Semantic(inst, code[offset:offset+inst.Len])
		instr := chunk.NewInstruction(sem)
		if err := instrMutator.Append(instr); err != nil {
			return nil, err
		}

		offset += inst.Len
	}

	if block.Children().Count() == 0 {
		return nil, fmt.Errorf("no instructions decoded for %q", sym.Name)
	}

	return fn, nil
}
