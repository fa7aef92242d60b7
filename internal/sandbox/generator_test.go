package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/elfrw/internal/chunk"
	"github.com/scigolib/elfrw/internal/config"
	"github.com/scigolib/elfrw/internal/disasm"
	"github.com/scigolib/elfrw/internal/position"
)

func buildTestModule(t *testing.T) (*chunk.Module, position.Factory) {
	t.Helper()
	profile, err := config.DefaultProfile("x86_64")
	require.NoError(t, err)
	factory := position.NewFactory(profile)

	d := disasm.New(factory, nil, nil)
	mod := d.Module("m", []disasm.FunctionSymbol{
		{Name: "f", Address: 0x1000, Code: []byte{0x90, 0x90, 0x90}},
	})
	return mod, factory
}

func TestGeneratorPickAddressesRebasesFunctions(t *testing.T) {
	mod, factory := buildTestModule(t)
	sb, err := NewSized(4096)
	require.NoError(t, err)
	defer sb.Close()

	gen := NewGenerator(sb, factory, nil)
	require.NoError(t, gen.PickAddresses(mod))

	fn := mod.Functions()[0]
	addr, err := fn.Address()
	require.NoError(t, err)
	assert.Equal(t, sb.base, addr)

	instrs := fn.Blocks()[0].Instructions()
	firstAddr, err := instrs[0].Address()
	require.NoError(t, err)
	assert.Equal(t, sb.base, firstAddr)
}

func TestGeneratorCopyCodeWritesBytes(t *testing.T) {
	mod, factory := buildTestModule(t)
	sb, err := NewSized(4096)
	require.NoError(t, err)
	defer sb.Close()

	gen := NewGenerator(sb, factory, nil)
	require.NoError(t, gen.PickAddresses(mod))
	require.NoError(t, gen.CopyCode(mod))

	fn := mod.Functions()[0]
	addr, err := fn.Address()
	require.NoError(t, err)

	written, ok := sb.bytesAt(addr, fn.Size())
	require.True(t, ok)
	assert.Equal(t, []byte{0x90, 0x90, 0x90}, written)
}

func TestGeneratorCallUnknownFunction(t *testing.T) {
	mod, factory := buildTestModule(t)
	mod.BuildAliasMap()
	sb, err := NewSized(4096)
	require.NoError(t, err)
	defer sb.Close()

	gen := NewGenerator(sb, factory, nil)
	_, err = gen.Call(mod, "nonexistent", 0, nil)
	assert.Error(t, err)
}
