package pass

import (
	"github.com/sirupsen/logrus"

	"github.com/scigolib/elfrw/internal/chunk"
)

// HandleRelocs walks the relocation list built by internal/elfspace
// (spec.md §4.E step 6) and, for every instruction whose encoding a
// relocation patches, resolves the relocation's target address against
// the module's current function/PLT/data-region layout and installs a
// typed Link (spec.md §4.D item 3). A relocation whose symbol never
// resolved (Target == 0) or whose target address lands nowhere known is
// an analysis failure, not a hard error: it is logged and the literal
// is left as-is (spec.md §7).
type HandleRelocs struct {
	chunk.NoOpVisitor
	idx     *AddressIndex
	relocs  *RelocList
	log     *logrus.Entry
}

// NewHandleRelocs returns a pass resolving relocs against mod's current
// layout.
func NewHandleRelocs(mod *chunk.Module, relocs *RelocList, log *logrus.Entry) *HandleRelocs {
	return &HandleRelocs{idx: BuildAddressIndex(mod), relocs: relocs, log: nopLogger(log)}
}

func (p *HandleRelocs) VisitBlock(b *chunk.Block) {
	for _, instr := range b.Instructions() {
		addr, ok := instructionAddress(instr)
		if !ok {
			continue
		}
		size := uint64(instr.Size())

		var hit *Reloc
		for _, r := range p.relocs.Relocs() {
			if r.Offset >= addr && r.Offset < addr+size {
				hit = r
				break
			}
		}
		if hit == nil {
			continue
		}

		lk, _, ok := linkable(instr)
		if !ok {
			continue
		}

		if hit.Target == 0 {
			warn(p.log, "HandleRelocs", instr.Name(), "relocation symbol "+hit.Symbol+" did not resolve")
			continue
		}

		target := p.idx.Lookup(hit.Target)
		if target == nil {
			warn(p.log, "HandleRelocs", instr.Name(), "relocation target has no matching chunk")
			continue
		}

		hit.consumed++
		lk.SetLink(&chunk.Link{
			Kind:       chunk.LinkInternalCall,
			Target:     target,
			RawAddress: hit.Target,
			Addend:     hit.Addend,
		})
	}
}
