// Package pass implements the analysis passes described in spec.md
// §4.D: visitors that convert raw address literals found in instruction
// semantics into typed chunk.Link cross-references, so later address
// reassignment (a mutation, or internal/sandbox relocating a function)
// automatically keeps them correct. The orchestrator in
// internal/elfspace drives them serially, in the fixed order spec.md
// names — passes never mutate structure concurrently with one another.
package pass

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/disasm"
)

// Pass is the visitor interface every analysis pass implements (spec.md
// §4.D). Most passes only care about a subset of chunk kinds and embed
// chunk.NoOpVisitor for the rest.
type Pass = chunk.Visitor

// Run drives pass over every chunk in the subtree rooted at root,
// depth-first in child order — the "fixed sequence" and "deterministic
// iteration over the tree" spec.md §4.D and §5 require.
func Run(root chunk.Chunk, p Pass) {
	chunk.Walk(root, p)
}

// linkable type-asserts a chunk.Instruction's Semantic to chunk.Linkable
// and its concrete x86 form, returning ok=false for a semantic with
// nothing for a pass to resolve.
func linkable(instr *chunk.Instruction) (chunk.Linkable, *disasm.X86Semantic, bool) {
	lk, ok := instr.Semantic().(chunk.Linkable)
	if !ok {
		return nil, nil, false
	}
	x86, ok := instr.Semantic().(*disasm.X86Semantic)
	if !ok {
		return nil, nil, false
	}
	return lk, x86, true
}

// warn logs an analysis-failure warning at the point a pass cannot
// resolve a reference (spec.md §7: "logged, reference left as literal,
// pipeline continues" — never an error return).
func warn(log *logrus.Entry, passName, chunkName, message string) {
	if log == nil {
		return
	}
	log.WithFields(logrus.Fields{
		"pass":  passName,
		"chunk": chunkName,
	}).Warn(message)
}

// nopLogger returns a logrus.Entry that discards everything, used by
// constructors that accept a possibly-nil *logrus.Entry so call sites
// never need a nil check.
func nopLogger(log *logrus.Entry) *logrus.Entry {
	if log != nil {
		return log
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
