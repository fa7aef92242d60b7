package pass

import (
	"github.com/sirupsen/logrus"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/disasm"
)

// PCRelative resolves RIP-relative memory operands — x86-64's
// position-independent way of referencing a data region or another
// function's address — into LinkPCRelative references (spec.md §4.D
// item 5). It is distinct from HandleRelocs: a RIP-relative load whose
// target was never recorded as an ELF relocation (common for references
// within the same translation unit) still needs resolving here.
type PCRelative struct {
	chunk.NoOpVisitor
	idx *AddressIndex
	log *logrus.Entry
}

// NewPCRelative returns a pass resolving RIP-relative operands against
// mod's current layout.
func NewPCRelative(mod *chunk.Module, log *logrus.Entry) *PCRelative {
	return &PCRelative{idx: BuildAddressIndex(mod), log: nopLogger(log)}
}

func (p *PCRelative) VisitBlock(b *chunk.Block) {
	for _, instr := range b.Instructions() {
		lk, x86, ok := linkable(instr)
		if !ok || lk.Link() != nil {
			continue
		}
		if !disasm.IsRIPRelative(x86.Inst()) {
			continue
		}
		disp, ok := disasm.RawLiteralOperand(x86.Inst())
		if !ok {
			continue
		}
		addr, ok := instructionAddress(instr)
		if !ok {
			continue
		}
		target := uint64(int64(addr+uint64(x86.Size())) + disp)

		hit := p.idx.Lookup(target)
		if hit == nil {
			warn(p.log, "PCRelative", instr.Name(), "RIP-relative target has no matching chunk")
			continue
		}
		lk.SetLink(&chunk.Link{
			Kind:       chunk.LinkPCRelative,
			Target:     hit,
			RawAddress: target,
		})
	}
}
