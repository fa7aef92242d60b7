package pass

import (
	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/disasm"
)

// ExternalCalls resolves calls through the PLT — indirection stubs for
// dynamically-linked external functions (spec.md glossary "PLT") — into
// LinkExternalCall references pointing at the PLTTrampoline chunk
// (spec.md §4.D item 4, §4.E step 8). It runs after InternalCalls, which
// already claimed every branch landing inside a Function; this pass
// only has to consider what's left.
type ExternalCalls struct {
	chunk.NoOpVisitor
	idx *AddressIndex
}

// NewExternalCalls returns a pass resolving branches against mod's PLT
// list.
func NewExternalCalls(mod *chunk.Module) *ExternalCalls {
	return &ExternalCalls{idx: BuildAddressIndex(mod)}
}

func (p *ExternalCalls) VisitBlock(b *chunk.Block) {
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

		plt, ok := p.idx.Lookup(target).(*chunk.PLTTrampoline)
		if !ok {
			continue
		}
		lk.SetLink(&chunk.Link{
			Kind:       chunk.LinkExternalCall,
			Target:     plt,
			RawAddress: target,
		})
	}
}
