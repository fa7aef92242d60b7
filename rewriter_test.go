package rewriter

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMinimalELF assembles a static (no .dynsym) little-endian ELF64
// x86-64 executable with a single function symbol, enough for Ingest to
// run its full pipeline without needing dynamic-symbol or relocation
// handling.
func buildMinimalELF(t *testing.T) (path string, funcAddr uint64) {
	t.Helper()

	code := []byte{0x55, 0x48, 0x89, 0xe5, 0x5d, 0xc3} // push rbp; mov rbp,rsp; pop rbp; ret

	const (
		secNull = iota
		secText
		secSymtab
		secStrtab
		secShstrtab
		secCount
	)

	shstrtab := []byte{0}
	shName := map[string]uint32{}
	for _, n := range []string{".text", ".symtab", ".strtab", ".shstrtab"} {
		shName[n] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, append([]byte(n), 0)...)
	}

	strtab := []byte{0}
	strtab = append(strtab, append([]byte("entry"), 0)...)

	var symtab bytes.Buffer
	require.NoError(t, binary.Write(&symtab, binary.LittleEndian, &elf.Sym64{})) // STN_UNDEF

	var buf bytes.Buffer
	buf.Write(make([]byte, 64)) // ELF header placeholder

	phOff := uint64(buf.Len())
	buf.Write(make([]byte, 56)) // Prog64 placeholder

	textOff := uint64(buf.Len())
	buf.Write(code)
	funcAddr = textOff

	require.NoError(t, binary.Write(&symtab, binary.LittleEndian, &elf.Sym64{
		Name:  1,
		Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
		Shndx: secText,
		Value: funcAddr,
		Size:  uint64(len(code)),
	}))

	symtabOff := uint64(buf.Len())
	buf.Write(symtab.Bytes())

	strtabOff := uint64(buf.Len())
	buf.Write(strtab)

	shstrtabOff := uint64(buf.Len())
	buf.Write(shstrtab)

	loadFilesz := uint64(buf.Len())

	shoff := uint64(buf.Len())
	sections := make([]elf.Section64, secCount)
	sections[secText] = elf.Section64{
		Name: shName[".text"], Type: uint32(elf.SHT_PROGBITS),
		Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
		Addr:  textOff, Off: textOff, Size: uint64(len(code)), Addralign: 1,
	}
	sections[secSymtab] = elf.Section64{
		Name: shName[".symtab"], Type: uint32(elf.SHT_SYMTAB),
		Off: symtabOff, Size: uint64(symtab.Len()),
		Link: secStrtab, Info: 1, Addralign: 8, Entsize: 24,
	}
	sections[secStrtab] = elf.Section64{
		Name: shName[".strtab"], Type: uint32(elf.SHT_STRTAB),
		Off: strtabOff, Size: uint64(len(strtab)), Addralign: 1,
	}
	sections[secShstrtab] = elf.Section64{
		Name: shName[".shstrtab"], Type: uint32(elf.SHT_STRTAB),
		Off: shstrtabOff, Size: uint64(len(shstrtab)), Addralign: 1,
	}
	for _, s := range sections {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, &s))
	}

	raw := buf.Bytes()

	var hdr elf.Header64
	hdr.Ident[0], hdr.Ident[1], hdr.Ident[2], hdr.Ident[3] = 0x7f, 'E', 'L', 'F'
	hdr.Ident[4] = 2 // ELFCLASS64
	hdr.Ident[5] = 1 // ELFDATA2LSB
	hdr.Ident[6] = 1 // EV_CURRENT
	hdr.Type = uint16(elf.ET_EXEC)
	hdr.Machine = uint16(elf.EM_X86_64)
	hdr.Version = uint32(elf.EV_CURRENT)
	hdr.Entry = textOff
	hdr.Phoff = phOff
	hdr.Shoff = shoff
	hdr.Ehsize = 64
	hdr.Phentsize = 56
	hdr.Phnum = 1
	hdr.Shentsize = 64
	hdr.Shnum = secCount
	hdr.Shstrndx = secShstrtab
	var hdrBuf bytes.Buffer
	require.NoError(t, binary.Write(&hdrBuf, binary.LittleEndian, &hdr))
	copy(raw[0:64], hdrBuf.Bytes())

	prog := elf.Prog64{
		Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_X),
		Off: 0, Vaddr: 0, Paddr: 0,
		Filesz: loadFilesz, Memsz: loadFilesz, Align: 0x1000,
	}
	var progBuf bytes.Buffer
	require.NoError(t, binary.Write(&progBuf, binary.LittleEndian, &prog))
	copy(raw[phOff:phOff+56], progBuf.Bytes())

	path = filepath.Join(t.TempDir(), "fixture.elf")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path, funcAddr
}

func TestIngestBuildsModule(t *testing.T) {
	path, funcAddr := buildMinimalELF(t)

	prog, err := Ingest(path, Options{})
	require.NoError(t, err)
	defer prog.Close()

	mod := prog.Module()
	require.NotNil(t, mod)

	fn := mod.LookupFunction("entry")
	require.NotNil(t, fn)
	addr, err := fn.Address()
	require.NoError(t, err)
	assert.Equal(t, funcAddr, addr)

	assert.Empty(t, prog.Dependencies())
}

func TestIngestMissingFile(t *testing.T) {
	_, err := Ingest(filepath.Join(t.TempDir(), "does-not-exist.elf"), Options{})
	require.Error(t, err)
}
