package pass

import (
	"fmt"
	"io"
	"strings"

	"github.com/scigolib/elfrw/internal/chunk"
)

// Dumper is a read-only visitor that renders the tree with computed
// addresses (SPEC_FULL.md supplemented feature 4, grounded in egalito's
// commented-out `pass/positiondump.h` call in `mutator.cpp`). It never
// mutates anything — useful for asserting the concrete scenarios of
// spec.md §8 (S1-S6) in tests, and behind `cmd/elfrw -dump-positions`.
type Dumper struct {
	chunk.NoOpVisitor
	out io.Writer
}

// NewDumper returns a Dumper writing to out.
func NewDumper(out io.Writer) *Dumper {
	return &Dumper{out: out}
}

func (d *Dumper) VisitModule(m *chunk.Module) {
	fmt.Fprintf(d.out, "module %s\n", m.Name())
}

func (d *Dumper) VisitFunction(f *chunk.Function) {
	addr, err := f.Address()
	d.line(f.Kind().String(), f.Name(), addr, err, f.Size())
}

func (d *Dumper) VisitBlock(b *chunk.Block) {
	addr, err := b.Address()
	name := b.Name()
	if name == "" {
		name = "(block)"
	}
	d.line(b.Kind().String(), name, addr, err, b.Size())
}

func (d *Dumper) VisitInstruction(i *chunk.Instruction) {
	addr, err := i.Address()
	d.line(i.Kind().String(), i.Name(), addr, err, i.Size())
}

func (d *Dumper) VisitPLTTrampoline(p *chunk.PLTTrampoline) {
	addr, err := p.Address()
	d.line(p.Kind().String(), p.Name(), addr, err, p.Size())
}

func (d *Dumper) VisitDataRegion(r *chunk.DataRegion) {
	addr, err := r.Address()
	d.line(r.Kind().String(), r.Name(), addr, err, r.Size())
}

func (d *Dumper) VisitJumpTable(j *chunk.JumpTable) {
	addr, err := j.Address()
	d.line(j.Kind().String(), j.Name(), addr, err, j.Size())
}

func (d *Dumper) line(kind, name string, addr uint64, err error, size uint64) {
	indent := strings.Repeat("  ", depthFor(kind))
	if err != nil {
		fmt.Fprintf(d.out, "%s%s %s <unresolved: %v>\n", indent, kind, name, err)
		return
	}
	fmt.Fprintf(d.out, "%s%s %s @0x%x size=%d\n", indent, kind, name, addr, size)
}

// depthFor gives each kind a fixed indent level, since Dumper visits via
// chunk.Walk (depth-first) rather than tracking its own recursion depth.
func depthFor(kind string) int {
	switch kind {
	case "Function", "PLTTrampoline", "DataRegion", "JumpTable":
		return 1
	case "Block":
		return 2
	case "Instruction":
		return 3
	default:
		return 0
	}
}
