package pass

import "github.com/scigolib/elfrw/internal/chunk"

// FallThrough links the last instruction of a block to the block
// immediately following it within the same function, unless that
// instruction already carries an unconditional control transfer (an
// unconditional jump or return never falls through). It is the first
// pass the orchestrator runs (spec.md §4.D item 1, §4.E step 5) — later
// passes (internal calls, PC-relative) only need to worry about
// literals that aren't already explained by fall-through.
type FallThrough struct {
	chunk.NoOpVisitor
}

// NewFallThrough returns a ready-to-run FallThrough pass.
func NewFallThrough() *FallThrough { return &FallThrough{} }

func (p *FallThrough) VisitFunction(fn *chunk.Function) {
	blocks := fn.Blocks()
	for i := 0; i+1 < len(blocks); i++ {
		cur, next := blocks[i], blocks[i+1]
		instrs := cur.Instructions()
		if len(instrs) == 0 {
			continue
		}
		last := instrs[len(instrs)-1]
		lk, x86, ok := linkable(last)
		if !ok {
			continue
		}
		if lk.Link() != nil {
			continue // already explained by an earlier-assigned link
		}
		if isUnconditionalTransfer(x86.Mnemonic()) {
			continue
		}
		lk.SetLink(&chunk.Link{Kind: chunk.LinkFallThrough, Target: next})
	}
}

// isUnconditionalTransfer reports whether mnemonic never falls through:
// an unconditional jump, a return, or a halt. Conditional jumps (Jcc)
// and calls do fall through on the not-taken/return path.
func isUnconditionalTransfer(mnemonic string) bool {
	switch mnemonic {
	case "JMP", "RET", "RETF", "IRET", "HLT", "UD2":
		return true
	default:
		return false
	}
}
