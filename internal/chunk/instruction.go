package chunk

// Semantic is the machine-code meaning of an Instruction leaf and its
// byte serializer (spec.md §3). Analysis passes (internal/pass) convert
// raw address literals found in a Semantic into typed Links pointing at
// other chunks; internal/sandbox's Generator later calls WriteTo to
// serialize the instruction at its assigned address.
type Semantic interface {
	// Size reports the encoded length in bytes.
	Size() uint32

	// WriteTo serializes the instruction into out (which must be at
	// least Size() bytes), given the address this instance will occupy
	// once written. selfAddress lets a Semantic with an unresolved or
	// resolved Link recompute a PC-relative displacement at emission
	// time, after the tree may have moved.
	WriteTo(selfAddress uint64, out []byte) int

	// Mnemonic returns a short human-readable name, used in logging and
	// the position-dump pass.
	Mnemonic() string
}

// LinkKind classifies why a Semantic holds a Link, matching the pass
// that produced it (spec.md §4.D).
type LinkKind int

const (
	LinkNone LinkKind = iota
	LinkFallThrough
	LinkInternalCall
	LinkExternalCall
	LinkPCRelative
	LinkInferred
	LinkJumpTableEntry
)

func (k LinkKind) String() string {
	switch k {
	case LinkFallThrough:
		return "fallthrough"
	case LinkInternalCall:
		return "internal-call"
	case LinkExternalCall:
		return "external-call"
	case LinkPCRelative:
		return "pc-relative"
	case LinkInferred:
		return "inferred"
	case LinkJumpTableEntry:
		return "jump-table-entry"
	default:
		return "none"
	}
}

// Link is a typed cross-reference an analysis pass has resolved (or
// failed to resolve) from a raw address literal in an instruction's
// encoding. Target is nil until a pass resolves RawAddress against the
// tree; per spec.md §7 an unresolved Link is not an error — the pass
// logs a warning and the literal is emitted as-is.
type Link struct {
	Kind       LinkKind
	Target     Chunk
	RawAddress uint64
	Addend     int64
}

// Resolved reports whether this Link has a concrete target chunk.
func (l *Link) Resolved() bool { return l != nil && l.Target != nil }

// Linkable is implemented by a Semantic that carries a single address
// literal an analysis pass (internal/pass) can convert into a typed
// Link. Not every Semantic needs this — a register-only instruction has
// nothing for a pass to resolve — so it is a narrower, optional
// interface rather than part of chunk.Semantic itself.
type Linkable interface {
	Semantic

	// Link returns the semantic's current cross-reference, or nil if
	// none has been assigned yet.
	Link() *Link

	// SetLink installs or replaces the semantic's cross-reference. A
	// pass calls this once it has resolved (or given up resolving, per
	// spec.md §7) the raw address literal the semantic was decoded
	// with.
	SetLink(*Link)
}

// Instruction is the leaf of the chunk hierarchy: it carries a Semantic
// and nothing else structural.
type Instruction struct {
	base
	semantic Semantic
}

// NewInstruction creates an Instruction carrying semantic. Its intrinsic
// size is taken from the semantic at construction time; if the semantic
// is later swapped (Mutator.InsertBeforeJumpTo), SetSemantic keeps the
// cached size in sync.
func NewInstruction(semantic Semantic) *Instruction {
	i := &Instruction{semantic: semantic}
	i.size = uint64(semantic.Size())
	return i
}

func (i *Instruction) Kind() Kind   { return KindInstruction }
func (i *Instruction) Name() string { return i.semantic.Mnemonic() }

func (i *Instruction) Accept(v Visitor) { v.VisitInstruction(i) }

// Semantic returns the instruction's payload.
func (i *Instruction) Semantic() Semantic { return i.semantic }

// SetSemantic replaces the instruction's payload, used by
// Mutator.InsertBeforeJumpTo to swap two instructions' semantics while
// leaving their identities and tree positions untouched (spec.md §4.C).
func (i *Instruction) SetSemantic(s Semantic) {
	i.semantic = s
	i.size = uint64(s.Size())
}
