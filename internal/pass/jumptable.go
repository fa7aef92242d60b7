package pass

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
	"golang.org/x/arch/x86/x86asm"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/disasm"
)

// maxJumpTableProbe bounds how many pointer-sized entries
// JumpTableBounds will read while estimating a table's extent, so a
// malformed or misidentified table can't send the pass reading
// arbitrarily far past the end of a data region.
const maxJumpTableProbe = 4096

// JumpTableDetect is the jump-table detection pass (spec.md §4.D item 8,
// first half): it looks for an indirect jump through a scaled-index
// memory operand (the x86-64 pattern a compiler emits for a dense
// switch, `jmp [table + index*8]`) and records a chunk.JumpTable
// anchored at the operand's base address, owned by the enclosing
// function. The table starts with zero entries; JumpTableBounds fills
// those in from the backing data region.
type JumpTableDetect struct {
	chunk.NoOpVisitor
	mod    *chunk.Module
	tables []*chunk.JumpTable
}

// NewJumpTableDetect returns a pass that records any jump tables it
// finds into mod's jump-table list once Run completes — call Finish
// after the walk to commit them.
func NewJumpTableDetect(mod *chunk.Module) *JumpTableDetect {
	return &JumpTableDetect{mod: mod}
}

func (p *JumpTableDetect) VisitFunction(fn *chunk.Function) {
	for _, b := range fn.Blocks() {
		for _, instr := range b.Instructions() {
			_, x86, ok := linkable(instr)
			if !ok || x86.Inst().Op != x86asm.JMP {
				continue
			}
			mem, ok := scaledIndexOperand(x86.Inst())
			if !ok {
				continue
			}
			addr, ok := instructionAddress(instr)
			if !ok {
				continue
			}
			base := uint64(int64(addr+uint64(x86.Size())) + mem.Disp)
			if mem.Base != x86asm.RIP {
				base = uint64(mem.Disp)
			}

			jt := chunk.NewJumpTable(fn.Name()+".jumptable", fn)
			jt.SetBounds(base, base)
			p.tables = append(p.tables, jt)
		}
	}
}

// Finish appends every table this pass detected to mod's jump-table
// list (spec.md §3: jump tables are "stored in Module-level lists").
func (p *JumpTableDetect) Finish() {
	p.mod.SetJumpTables(append(p.mod.JumpTables(), p.tables...))
}

// scaledIndexOperand reports inst's memory operand if it has a nonzero
// scale and index register — the encoding shape of an indirect jump
// through a table — along with whether one was found.
func scaledIndexOperand(inst x86asm.Inst) (x86asm.Mem, bool) {
	for _, arg := range inst.Args {
		if m, ok := arg.(x86asm.Mem); ok && m.Index != 0 && m.Scale > 1 {
			return m, true
		}
	}
	return x86asm.Mem{}, false
}

// JumpTableBounds tightens each detected table's bound by reading
// successive pointer-sized entries from its backing data region and
// stopping at the first entry that doesn't land inside the owning
// function — the estimate is deliberately generous (it stops at the
// first clearly-wrong entry, not the first merely-suspicious one),
// leaving JumpTablePrune to shrink it further (spec.md §4.D item 8,
// second half).
type JumpTableBounds struct {
	chunk.NoOpVisitor
	idx    *AddressIndex
	reader func(addr uint64) (uint64, bool)
	log    *logrus.Entry
}

// NewJumpTableBounds returns a pass that reads table entries via
// readAt8 (an 8-byte little-endian read at an absolute address, backed
// by internal/elfspace's mapped data regions) and resolves each entry
// against mod's current layout.
func NewJumpTableBounds(mod *chunk.Module, readAt8 func(addr uint64) (uint64, bool), log *logrus.Entry) *JumpTableBounds {
	return &JumpTableBounds{idx: BuildAddressIndex(mod), reader: readAt8, log: nopLogger(log)}
}

func (p *JumpTableBounds) VisitJumpTable(jt *chunk.JumpTable) {
	fn := jt.Owner()
	if fn == nil {
		return
	}
	fnAddr, err := fn.Address()
	if err != nil {
		return
	}
	fnEnd := fnAddr + fn.Size()

	base, _ := jt.Bounds()
	var entries []*chunk.Link
	addr := base
	for i := 0; i < maxJumpTableProbe; i++ {
		target, ok := p.reader(addr)
		if !ok {
			break
		}
		if target < fnAddr || target >= fnEnd {
			break
		}
		entries = append(entries, &chunk.Link{
			Kind:       chunk.LinkJumpTableEntry,
			Target:     p.idx.Lookup(target),
			RawAddress: target,
		})
		addr += 8
	}

	if len(entries) == 0 {
		warn(p.log, "JumpTableBounds", jt.Name(), "could not read any in-function entry, leaving table empty")
		return
	}
	jt.SetEntries(entries)
	jt.SetBounds(base, addr)
}

// JumpTablePrune is the overestimate-pruning pass (SPEC_FULL.md
// supplemented feature 6): it walks a table JumpTableBounds already
// populated and truncates it further the moment an entry's target chunk
// didn't resolve at all, or resolved to something other than the owning
// function — catching the case where consecutive in-range-looking
// values happened to coincide with function addresses by chance, not
// because they're real table entries.
type JumpTablePrune struct {
	chunk.NoOpVisitor
}

// NewJumpTablePrune returns a ready-to-run pruning pass.
func NewJumpTablePrune() *JumpTablePrune { return &JumpTablePrune{} }

func (p *JumpTablePrune) VisitJumpTable(jt *chunk.JumpTable) {
	entries := jt.Entries()
	for i, e := range entries {
		if e.Target != jt.Owner() {
			// Accept entries landing anywhere before this point in
			// the owning function; once a target falls outside it,
			// everything from here on is suspect.
			if fn, ok := e.Target.(*chunk.Function); !ok || fn != jt.Owner() {
				min, _ := jt.Bounds()
				jt.Truncate(i)
				jt.SetBounds(min, min+uint64(i)*8)
				return
			}
		}
	}
}

// read8At adapts a utils.ReaderAt-style byte source into the (addr)
// (uint64, bool) shape JumpTableBounds expects, translating an absolute
// address to a section-relative offset via base/size bounds checking.
func read8At(readAt func(p []byte, off int64) (int, error), regionBase, regionSize uint64) func(addr uint64) (uint64, bool) {
	return func(addr uint64) (uint64, bool) {
		if addr < regionBase || addr+8 > regionBase+regionSize {
			return 0, false
		}
		var buf [8]byte
		if _, err := readAt(buf[:], int64(addr-regionBase)); err != nil {
			return 0, false
		}
		return binary.LittleEndian.Uint64(buf[:]), true
	}
}
