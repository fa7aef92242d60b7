// Package elfspace implements the ELF ingestion orchestrator (spec.md
// §4.E): given an ELF image and an optional external library
// descriptor, it drives the disassembler and the fixed sequence of
// analysis passes to produce a populated, fully-annotated chunk.Module.
// Everything here is "ordered plumbing over well-known formats" per
// spec.md §1 — the interesting algebra lives in internal/position and
// internal/mutator, which this package only calls.
package elfspace

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/config"
	"github.com/scigolib/elfrw/internal/disasm"
	"github.com/scigolib/elfrw/internal/pass"
	"github.com/scigolib/elfrw/internal/position"
	"github.com/scigolib/elfrw/internal/rwerrors"
)

// ElfSpace owns one ingested image's tree and the supporting lists built
// alongside it: symbols, relocations, and (once BuildDataStructures
// finishes) the function alias map (spec.md §4.E, §5 "The Chunk tree is
// owned by exactly one ElfSpace; no cross-space sharing of chunks").
type ElfSpace struct {
	img     *Image
	library *SharedLib
	profile config.ArchProfile
	factory position.Factory
	log     *logrus.Entry

	module      *chunk.Module
	symbolList  *SymbolList
	dynSymList  *SymbolList
	relocList   *pass.RelocList
}

// New creates an ElfSpace over img. library is non-nil when this
// ElfSpace is ingesting a dependency discovered via FindDependencies
// rather than the top-level executable (spec.md §4.E's getName: "library
// ? library->getShortName() : (executable)").
func New(img *Image, library *SharedLib, profile config.ArchProfile, log *logrus.Entry) *ElfSpace {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ElfSpace{
		img:     img,
		library: library,
		profile: profile,
		factory: position.NewFactory(profile),
		log:     log,
	}
}

// Name mirrors egalito's ElfSpace::getName.
func (e *ElfSpace) Name() string {
	if e.library != nil {
		return e.library.ShortName
	}
	return "(executable)"
}

// Module returns the ingested tree. Valid only after BuildDataStructures
// returns successfully.
func (e *ElfSpace) Module() *chunk.Module { return e.module }

// isDynamic reports whether the image carries a dynamic symbol table —
// spec.md §4.E step 1's test for "if the image is dynamic."
func isDynamic(f *elf.File) bool {
	return f.Section(".dynsym") != nil
}

// BuildDataStructures runs spec.md §4.E's nine-step pipeline: build
// symbol lists, disassemble into a Module, run the fall-through and
// internal-calls passes, build relocations/data-regions/PLT, run the
// remaining passes in order, then build the function alias map.
//
// Only malformed ELF input is fatal (spec.md §7); an individual pass
// that cannot resolve a reference logs a warning through e.log and
// leaves the literal untouched rather than failing the whole ingestion.
func (e *ElfSpace) BuildDataStructures() error {
	f := e.img.File()
	name := e.Name()

	e.log.WithField("module", name).Info("building ELF data structures")

	// Step 1: static symbol list, plus dynamic if the image is dynamic.
	staticSyms, err := buildSymbolList(f, e.img, false)
	if err != nil {
		return rwerrors.WrapMalformed(name, fmt.Errorf("building static symbol list: %w", err))
	}
	e.symbolList = staticSyms

	if isDynamic(f) {
		dynSyms, err := buildSymbolList(f, e.img, true)
		if err != nil {
			return rwerrors.WrapMalformed(name, fmt.Errorf("building dynamic symbol list: %w", err))
		}
		e.dynSymList = dynSyms
	}

	// Step 2: initialise the disassembler (mapping symbols only matter
	// on profiles that set UsesMappingSymbols).
	var mapping *disasm.MappingSymbolList
	if e.profile.UsesMappingSymbols {
		mapping, err = buildMappingSymbolList(f)
		if err != nil {
			return rwerrors.WrapMalformed(name, fmt.Errorf("building mapping symbol list: %w", err))
		}
	}
	d := disasm.New(e.factory, mapping, e.log)

	// Step 3: construct the Module by disassembling using the symbol
	// list(s).
	funcs := append(append([]disasm.FunctionSymbol{}, staticSyms.Functions()...), e.dynFunctions()...)
	mod := d.Module(name, funcs)

	// Step 4: attach the Module to this ingestion context.
	e.module = mod

	// Step 5: fall-through, then internal-calls.
	pass.Run(mod, pass.NewFallThrough())
	pass.Run(mod, pass.NewInternalCalls(mod, e.log))

	// Step 6: relocation list.
	e.relocList = buildRelocList(f, e.dynSymList, e.symbolList)

	// Step 7: data-region list, then PLT list.
	mod.SetDataRegions(buildDataRegions(f))
	mod.SetPLTList(buildPLTList(f, e.relocList))

	// Step 8: remaining passes, in order.
	pass.Run(mod, pass.NewHandleRelocs(mod, e.relocList, e.log))
	pass.Run(mod, pass.NewExternalCalls(mod))
	pass.Run(mod, pass.NewPCRelative(mod, e.log))
	pass.Run(mod, pass.NewInferLinks(mod, e.log))
	pass.Run(mod, pass.NewRelocCheck(e.relocList, e.log))

	detect := pass.NewJumpTableDetect(mod)
	pass.Run(mod, detect)
	detect.Finish()
	// Jump tables live in a Module-level list, not among the module's
	// children, so the bounds and prune passes are run on each one.
	bounds := pass.NewJumpTableBounds(mod, e.readAt8, e.log)
	for _, jt := range mod.JumpTables() {
		pass.Run(jt, bounds)
	}
	prune := pass.NewJumpTablePrune()
	for _, jt := range mod.JumpTables() {
		pass.Run(jt, prune)
	}

	// Step 9: function alias map.
	mod.BuildAliasMap()

	return nil
}

// dynFunctions returns the dynamic symbol list's function symbols, or
// nil if this image has none.
func (e *ElfSpace) dynFunctions() []disasm.FunctionSymbol {
	if e.dynSymList == nil {
		return nil
	}
	return e.dynSymList.Functions()
}

// readAt8 reads one little-endian 64-bit value at an absolute virtual
// address, the backing internal/pass.JumpTableBounds needs to walk a
// detected table's entries.
func (e *ElfSpace) readAt8(addr uint64) (uint64, bool) {
	data, ok := e.img.readRange(addr, 8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(data), true
}
