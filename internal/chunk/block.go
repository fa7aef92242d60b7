package chunk

// Block is a basic block: child of Function, containing Instructions.
// Blocks carry no semantic of their own; they exist purely as an
// addressing and control-flow grouping (spec.md §3).
type Block struct {
	container
	name string
}

// NewBlock creates an empty, unnamed Block. Blocks created by
// internal/mutator.SplitBlockBefore are unnamed; ingestion names
// function-entry blocks after their function for readability in logs
// and the position-dump pass.
func NewBlock() *Block {
	return &Block{}
}

func (b *Block) Kind() Kind   { return KindBlock }
func (b *Block) Name() string { return b.name }

// SetName labels the block, used by internal/elfspace when naming the
// entry block of a function.
func (b *Block) SetName(name string) { b.name = name }

func (b *Block) Accept(v Visitor) { v.VisitBlock(b) }

// Instructions returns the block's instructions in child order.
func (b *Block) Instructions() []*Instruction {
	items := b.children.Items()
	out := make([]*Instruction, len(items))
	for i, c := range items {
		out[i] = c.(*Instruction)
	}
	return out
}
