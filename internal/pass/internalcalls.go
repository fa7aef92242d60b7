package pass

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/arch/x86/x86asm"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/disasm"
)

// InternalCalls resolves intra-module branches — direct calls, jumps,
// and conditional jumps whose target lands inside some function already
// in the tree — into typed chunk.Link references (spec.md §4.D item 2,
// §4.E step 5). It needs an AddressIndex built fresh over the module's
// current function layout, since this runs before relocations and PLT
// resolution have had a chance to touch anything.
type InternalCalls struct {
	chunk.NoOpVisitor
	idx *AddressIndex
	log *logrus.Entry
}

// NewInternalCalls returns a pass that resolves branches against mod's
// current function layout.
func NewInternalCalls(mod *chunk.Module, log *logrus.Entry) *InternalCalls {
	return &InternalCalls{idx: BuildAddressIndex(mod), log: nopLogger(log)}
}

func (p *InternalCalls) VisitBlock(b *chunk.Block) {
	for _, instr := range b.Instructions() {
		lk, x86, ok := linkable(instr)
		if !ok || lk.Link() != nil {
			continue
		}
		if !isBranchOp(x86.Inst().Op) {
			continue
		}
		rel, ok := disasm.RawLiteralOperand(x86.Inst())
		if !ok {
			continue
		}

		addr, ok := instructionAddress(instr)
		if !ok {
			continue
		}
		target := addr + uint64(x86.Size()) + uint64(rel)

		fn, ok := p.idx.Lookup(target).(*chunk.Function)
		if !ok {
			continue // leave for ExternalCalls / InferLinks
		}
		lk.SetLink(&chunk.Link{
			Kind:       chunk.LinkInternalCall,
			Target:     fn,
			RawAddress: target,
		})
	}
}

// isBranchOp reports whether op is a control-transfer instruction whose
// sole Rel operand is a branch target (call, unconditional jump, or a
// conditional jump), as opposed to e.g. a RIP-relative data reference
// which PCRelative handles instead.
func isBranchOp(op x86asm.Op) bool {
	switch op {
	case x86asm.CALL, x86asm.JMP,
		x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JNE,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE,
		x86asm.JO, x86asm.JNO, x86asm.JS, x86asm.JNS,
		x86asm.JP, x86asm.JNP, x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ:
		return true
	default:
		return false
	}
}
