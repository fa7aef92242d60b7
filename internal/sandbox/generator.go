package sandbox

import (
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/mutator"
	"github.com/scigolib/elfrw/internal/position"
	"github.com/scigolib/elfrw/internal/rwerrors"
)

// Generator relocates a module's functions into a Sandbox and serialises
// their instructions to bytes, mirroring egalito's Generator
// (generator.cpp): pickAddressesInSandbox, copyCodeToSandbox,
// jumpToSandbox (spec.md §4.F).
type Generator struct {
	sandbox *Sandbox
	factory position.Factory
	log     *logrus.Entry
}

// NewGenerator returns a Generator emitting into sandbox. factory must
// be the same position.Factory the module's functions were built with,
// since SetPosition on a relocated function goes through
// internal/mutator just like any other structural change.
func NewGenerator(sandbox *Sandbox, factory position.Factory, log *logrus.Entry) *Generator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Generator{sandbox: sandbox, factory: factory, log: log}
}

// PickAddresses allocates one sandbox slot per function (sized to the
// function's current byte count) and rebases it there via
// Mutator.SetPosition (spec.md §4.F "Address assignment"). Because a
// function's position is Absolute, this single call propagates to every
// descendant instruction's address on the next query — no other chunk
// needs to be touched.
func (g *Generator) PickAddresses(mod *chunk.Module) error {
	for _, fn := range mod.Functions() {
		slot, err := g.sandbox.Allocate(fn.Size())
		if err != nil {
			g.log.WithField("function", fn.Name()).Errorf("sandbox allocation failed: %v", err)
			return err
		}

		g.log.WithFields(logrus.Fields{
			"function": fn.Name(),
			"address":  fmt.Sprintf("0x%x", slot.Address()),
			"size":     fn.Size(),
		}).Debug("allocated sandbox slot")

		m := mutator.New(fn, g.factory)
		if err := m.SetPosition(slot.Address()); err != nil {
			return err
		}
	}
	return nil
}

// CopyCode walks mod's functions -> blocks -> instructions in order and
// writes each instruction's serialised bytes into the sandbox at the
// address position assignment gave it (spec.md §4.F "Serialisation").
// The written region's address matches the function's assigned address
// by construction, since PickAddresses must run first.
func (g *Generator) CopyCode(mod *chunk.Module) error {
	for _, fn := range mod.Functions() {
		addr, err := fn.Address()
		if err != nil {
			return err
		}

		g.log.WithField("function", fn.Name()).Debugf("writing code at 0x%x", addr)

		cursor := addr
		for _, b := range fn.Blocks() {
			for _, instr := range b.Instructions() {
				size := instr.Semantic().Size()
				out, ok := g.sandbox.bytesAt(cursor, uint64(size))
				if !ok {
					rwerrors.Structural("copyCode: instruction address outside sandbox", nil)
				}
				n := instr.Semantic().WriteTo(cursor, out)
				cursor += uint64(n)
			}
		}
	}
	return nil
}

// Call looks up name via mod's alias map, reinterprets its sandbox
// address as a function pointer, and calls it (spec.md §4.F "Entry").
// argc/argv mirror egalito's jumpToSandbox, which calls a relocated
// `main`-shaped entry point; Call is intentionally narrow to that one
// ABI rather than a general FFI — spec.md §1 excludes "any JIT execution
// facility beyond 'call a function pointer into the sandbox.'"
//
// This relies on an unsafe, Go-runtime-internal trick to construct a
// callable func value around a raw address: a func value is a pointer
// to a closure record whose first word the runtime treats as the entry
// PC, so a closure record of exactly one word (the address itself) is
// indistinguishable, from the call instruction's perspective, from a
// real Go closure with no captured variables. It does not cross into
// genuinely foreign, non-Go-ABI code except by having faith the
// rewritten bytes still honour amd64's C calling convention, same as
// the original's C function-pointer cast.
func (g *Generator) Call(mod *chunk.Module, name string, argc int, argv []string) (int, error) {
	fn := mod.LookupFunction(name)
	if fn == nil {
		return 0, fmt.Errorf("sandbox: no function named %q in alias map", name)
	}
	addr, err := fn.Address()
	if err != nil {
		return 0, err
	}

	g.log.WithField("function", name).Debugf("jumping to sandbox at 0x%x", addr)

	target := makeEntryPoint(addr)
	ret := target(argc, argv)

	g.log.WithField("function", name).Debug("returned from sandbox")
	return ret, nil
}

// entryFunc matches the ABI egalito's jumpToSandbox assumes: an
// int(int, char**)-shaped `main`.
type entryFunc func(argc int, argv []string) int

// makeEntryPoint builds a Go func value whose single-word closure
// record is the raw sandbox address, so calling it jumps straight into
// the relocated code.
func makeEntryPoint(addr uint64) entryFunc {
	var stub entryFunc = func(int, []string) int { return 0 }
	type funcValue struct {
		code uintptr
	}
	closure := (**funcValue)(unsafe.Pointer(&stub))
	*closure = &funcValue{code: uintptr(addr)}
	return stub
}
