package chunk

// Function is a named unit of code, child of Module, containing Blocks.
// Its position is normally AbsolutePosition — either the address
// recovered from the ELF symbol table at ingestion time, or the sandbox
// slot address assigned by internal/sandbox's Generator when the
// function is relocated (spec.md §4.A, §4.F).
type Function struct {
	container
	name    string
	aliases []string
}

// NewFunction creates an empty Function named name.
func NewFunction(name string) *Function {
	return &Function{name: name}
}

func (f *Function) Kind() Kind   { return KindFunction }
func (f *Function) Name() string { return f.name }

func (f *Function) Accept(v Visitor) { v.VisitFunction(f) }

// Blocks returns the function's blocks in child order.
func (f *Function) Blocks() []*Block {
	items := f.children.Items()
	out := make([]*Block, len(items))
	for i, c := range items {
		out[i] = c.(*Block)
	}
	return out
}

// Aliases returns the additional names this function is known by (e.g.
// weak/global symbol aliases sharing its address).
func (f *Function) Aliases() []string { return f.aliases }

// AddAlias records an additional name for this function.
func (f *Function) AddAlias(name string) {
	f.aliases = append(f.aliases, name)
}
