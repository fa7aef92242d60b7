// Package rewriter is the public surface of the static ELF rewriter:
// Ingest loads a binary (and its shared-library dependencies) into a
// chunk tree, Relocate moves it into a Sandbox, and Call transfers
// control into the relocated code (spec.md §6, §4.F).
package rewriter

import (
	"github.com/sirupsen/logrus"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/config"
	"github.com/scigolib/elfrw/internal/elfspace"
	"github.com/scigolib/elfrw/internal/position"
	"github.com/scigolib/elfrw/internal/sandbox"
)

// Program is a fully-ingested executable: its own chunk.Module plus
// whichever DT_NEEDED dependencies Ingest could resolve (SPEC_FULL.md
// supplemented feature 1). Closing it releases every underlying memory
// mapping.
type Program struct {
	main    *elfspace.ElfSpace
	deps    []*elfspace.ElfSpace
	libs    []*elfspace.SharedLib
	img     *elfspace.Image
	profile config.ArchProfile
	log     *logrus.Entry
}

// Options configures Ingest. A zero Options uses the x86_64 built-in
// profile, a nil logger (logrus's standard logger is then used), and no
// shared-library search path.
type Options struct {
	Profile     *config.ArchProfile
	Log         *logrus.Entry
	SearchPaths []string
}

// Ingest memory-maps path, disassembles it into a chunk.Module, runs the
// full analysis pass pipeline, and resolves its dynamic dependencies if
// any are found on opts.SearchPaths (spec.md §6 "Input: an ELF file
// path").
func Ingest(path string, opts Options) (*Program, error) {
	profile := opts.Profile
	if profile == nil {
		def, err := config.DefaultProfile("x86_64")
		if err != nil {
			return nil, err
		}
		profile = &def
	}

	img, err := elfspace.OpenImage(path)
	if err != nil {
		return nil, err
	}

	main := elfspace.New(img, nil, *profile, opts.Log)
	if err := main.BuildDataStructures(); err != nil {
		img.Close()
		return nil, err
	}

	p := &Program{main: main, img: img, profile: *profile, log: opts.Log}

	libs, err := elfspace.FindDependencies(img, opts.SearchPaths)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.libs = libs

	for _, lib := range libs {
		if lib.Image == nil {
			continue
		}
		depSpace := elfspace.New(lib.Image, lib, *profile, opts.Log)
		if err := depSpace.BuildDataStructures(); err != nil {
			p.Close()
			return nil, err
		}
		p.deps = append(p.deps, depSpace)
	}

	return p, nil
}

// Module returns the ingested executable's chunk tree.
func (p *Program) Module() *chunk.Module { return p.main.Module() }

// Dependencies returns the chunk.Module built for each resolved shared
// library dependency, in the order FindDependencies returned them.
func (p *Program) Dependencies() []*chunk.Module {
	mods := make([]*chunk.Module, len(p.deps))
	for i, d := range p.deps {
		mods[i] = d.Module()
	}
	return mods
}

// Close releases the main image and every resolved dependency's image.
func (p *Program) Close() error {
	var first error
	for _, lib := range p.libs {
		if err := lib.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := p.img.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Sandbox wraps internal/sandbox.Sandbox, keeping the package boundary
// between the public surface and the allocator's implementation.
type Sandbox struct {
	inner *sandbox.Sandbox
	gen   *sandbox.Generator
}

// NewSandbox allocates a Sandbox sized for relocating p's main module
// (spec.md §4.F). Its position.Factory is built from p's profile, so
// SetPosition calls made during Relocate go through the same algebra the
// analysis passes already used.
func NewSandbox(p *Program) (*Sandbox, error) {
	sb, err := sandbox.New()
	if err != nil {
		return nil, err
	}
	factory := position.NewFactory(p.profile)
	gen := sandbox.NewGenerator(sb, factory, p.log)
	return &Sandbox{inner: sb, gen: gen}, nil
}

// Relocate assigns every function in mod a sandbox address and emits
// its instructions there (spec.md §4.F "Address assignment" +
// "Serialisation").
func (s *Sandbox) Relocate(mod *chunk.Module) error {
	if err := s.gen.PickAddresses(mod); err != nil {
		return err
	}
	return s.gen.CopyCode(mod)
}

// Call transfers control into the relocated function named name within
// mod, passing argc/argv in the one ABI spec.md §1 keeps in scope ("call
// a function pointer into the sandbox").
func (s *Sandbox) Call(mod *chunk.Module, name string, argc int, argv []string) (int, error) {
	return s.gen.Call(mod, name, argc, argv)
}

// Close releases the sandbox's backing memory.
func (s *Sandbox) Close() error {
	return s.inner.Close()
}
