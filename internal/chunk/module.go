package chunk

// Module is the root chunk: it owns the function list (its generic,
// position-tracked children) plus the Module-level lists spec.md §3
// names as alternatives to tree children for PLT trampolines, data
// regions, jump tables, and symbols — "auxiliary siblings of Function or
// stored in Module-level lists." Those lists are built directly by
// internal/elfspace during ingestion and are not mutated through
// internal/mutator's generic append/insert/remove contract.
type Module struct {
	container
	name string

	pltList     []*PLTTrampoline
	dataRegions []*DataRegion
	jumpTables  []*JumpTable
	symbols     []*Symbol

	// aliases maps a function name to its canonical *Function, built
	// once ingestion finishes (spec.md §4.E item 9; SPEC_FULL.md
	// supplemented feature 3).
	aliases map[string]*Function
}

// NewModule creates an empty Module named name.
func NewModule(name string) *Module {
	return &Module{name: name}
}

func (m *Module) Kind() Kind   { return KindModule }
func (m *Module) Name() string { return m.name }

func (m *Module) Accept(v Visitor) { v.VisitModule(m) }

// Functions returns the module's functions in child order.
func (m *Module) Functions() []*Function {
	items := m.children.Items()
	out := make([]*Function, len(items))
	for i, c := range items {
		out[i] = c.(*Function)
	}
	return out
}

// PLTList returns the module's PLT trampoline list.
func (m *Module) PLTList() []*PLTTrampoline { return m.pltList }

// SetPLTList replaces the module's PLT trampoline list (built by
// internal/elfspace's PLTList.parsePLTList equivalent).
func (m *Module) SetPLTList(list []*PLTTrampoline) { m.pltList = list }

// DataRegions returns the module's data region list.
func (m *Module) DataRegions() []*DataRegion { return m.dataRegions }

// SetDataRegions replaces the module's data region list.
func (m *Module) SetDataRegions(regions []*DataRegion) { m.dataRegions = regions }

// JumpTables returns the module's jump table list.
func (m *Module) JumpTables() []*JumpTable { return m.jumpTables }

// SetJumpTables replaces the module's jump table list.
func (m *Module) SetJumpTables(tables []*JumpTable) { m.jumpTables = tables }

// Symbols returns the module's symbol list.
func (m *Module) Symbols() []*Symbol { return m.symbols }

// SetSymbols replaces the module's symbol list.
func (m *Module) SetSymbols(symbols []*Symbol) { m.symbols = symbols }

// BuildAliasMap builds the name -> canonical Function lookup table
// (spec.md §4.E item 9). It should run once, after all passes finish.
func (m *Module) BuildAliasMap() {
	aliases := make(map[string]*Function, m.children.Count())
	for _, f := range m.Functions() {
		aliases[f.Name()] = f
		for _, alias := range f.Aliases() {
			aliases[alias] = f
		}
	}
	m.aliases = aliases
}

// LookupFunction returns the canonical function for name, or nil if
// none is known. BuildAliasMap must have run first.
func (m *Module) LookupFunction(name string) *Function {
	if m.aliases == nil {
		return nil
	}
	return m.aliases[name]
}
