package chunk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/config"
	"github.com/scigolib/elfrw/internal/mutator"
	"github.com/scigolib/elfrw/internal/position"
)

type fakeSemantic struct {
	size     uint32
	mnemonic string
}

func (s *fakeSemantic) Size() uint32               { return s.size }
func (s *fakeSemantic) Mnemonic() string           { return s.mnemonic }
func (s *fakeSemantic) WriteTo(uint64, []byte) int { return int(s.size) }

func buildModule(t *testing.T) *chunk.Module {
	t.Helper()
	profile, err := config.DefaultProfile("x86_64")
	require.NoError(t, err)
	factory := position.NewFactory(profile)

	mod := chunk.NewModule("m")
	modMutator := mutator.New(mod, factory)

	fn := chunk.NewFunction("f")
	fn.SetPosition(position.NewAbsolutePosition(0x2000))
	require.NoError(t, modMutator.Append(fn))

	block := chunk.NewBlock()
	block.SetName("f")
	fnMutator := mutator.New(fn, factory)
	require.NoError(t, fnMutator.Append(block))

	instr := chunk.NewInstruction(&fakeSemantic{size: 4, mnemonic: "nop"})
	blockMutator := mutator.New(block, factory)
	require.NoError(t, blockMutator.Append(instr))

	return mod
}

// countingVisitor records which Visit* methods Walk dispatched to,
// exercising the tagged-sum double-dispatch spec.md §4.B describes.
type countingVisitor struct {
	chunk.NoOpVisitor
	modules      int
	functions    int
	blocks       int
	instructions int
}

func (c *countingVisitor) VisitModule(*chunk.Module)           { c.modules++ }
func (c *countingVisitor) VisitFunction(*chunk.Function)       { c.functions++ }
func (c *countingVisitor) VisitBlock(*chunk.Block)             { c.blocks++ }
func (c *countingVisitor) VisitInstruction(*chunk.Instruction) { c.instructions++ }

func TestWalkVisitsEveryDescendant(t *testing.T) {
	mod := buildModule(t)

	var v countingVisitor
	chunk.Walk(mod, &v)

	assert.Equal(t, 1, v.modules)
	assert.Equal(t, 1, v.functions)
	assert.Equal(t, 1, v.blocks)
	assert.Equal(t, 1, v.instructions)
}

func TestModuleAliasMap(t *testing.T) {
	mod := buildModule(t)
	fn := mod.Functions()[0]
	fn.AddAlias("f_alias")

	mod.BuildAliasMap()

	assert.Same(t, fn, mod.LookupFunction("f"))
	assert.Same(t, fn, mod.LookupFunction("f_alias"))
	assert.Nil(t, mod.LookupFunction("nonexistent"))
}

func TestModuleAliasMapNilBeforeBuild(t *testing.T) {
	mod := chunk.NewModule("m")
	assert.Nil(t, mod.LookupFunction("anything"))
}

func TestChildListSiblingCoherence(t *testing.T) {
	mod := buildModule(t)
	fn := mod.Functions()[0]
	block := fn.Blocks()[0]

	viaChildren := block.Children().Items()
	viaSiblings := block.Children().WalkSiblings()
	assert.Equal(t, viaChildren, viaSiblings)
}

func TestSizeAdditivityAcrossTree(t *testing.T) {
	mod := buildModule(t)
	fn := mod.Functions()[0]
	block := fn.Blocks()[0]
	instr := block.Instructions()[0]

	assert.Equal(t, instr.Size(), block.Size())
	assert.Equal(t, block.Size(), fn.Size())
}

func TestAddressConsistency(t *testing.T) {
	mod := buildModule(t)
	fn := mod.Functions()[0]
	block := fn.Blocks()[0]
	instr := block.Instructions()[0]

	fnAddr, err := fn.Address()
	require.NoError(t, err)
	blockAddr, err := block.Address()
	require.NoError(t, err)
	instrAddr, err := instr.Address()
	require.NoError(t, err)

	assert.Equal(t, fnAddr, blockAddr)
	assert.Equal(t, blockAddr, instrAddr)
}

func TestAddressWithoutPositionErrors(t *testing.T) {
	instr := chunk.NewInstruction(&fakeSemantic{size: 1, mnemonic: "nop"})
	_, err := instr.Address()
	assert.Error(t, err)
}

func TestLinkResolved(t *testing.T) {
	var l *chunk.Link
	assert.False(t, l.Resolved())

	l = &chunk.Link{Kind: chunk.LinkInternalCall}
	assert.False(t, l.Resolved())

	fn := chunk.NewFunction("target")
	l.Target = fn
	assert.True(t, l.Resolved())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Function", chunk.KindFunction.String())
	assert.Equal(t, "Unknown", chunk.Kind(999).String())
}
