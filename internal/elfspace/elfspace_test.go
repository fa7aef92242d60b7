package elfspace

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/elfrw/internal/config"
	"github.com/scigolib/elfrw/internal/pass"
)

// Section indices used by buildTestELF, fixed so the rest of the file
// can name them directly rather than searching for them.
const (
	secNull = iota
	secText
	secPLT
	secData
	secBSS
	secSymtab
	secStrtab
	secDynsym
	secDynstr
	secRelaPlt
	secRelaDyn
	secShstrtab
	secCount
)

// testCode is "push rbp; mov rbp,rsp; pop rbp; ret" — four real
// instructions golang.org/x/arch/x86/x86asm decodes without trouble.
var testCode = []byte{0x55, 0x48, 0x89, 0xe5, 0x5d, 0xc3}

var testData = []byte{1, 2, 3, 4, 5, 6, 7, 8}

const testBSSSize = 16

// testAddrs records the virtual addresses buildTestELF assigned to each
// loaded section, so assertions can check against them without
// duplicating the layout math.
type testAddrs struct {
	text, plt, data, bss uint64
}

// buildStrTab lays out a null-separated string table (the ELF
// convention: a leading empty string at offset 0, every later name
// null-terminated) and returns each name's offset for filling in
// sh_name/st_name fields.
func buildStrTab(names ...string) ([]byte, map[string]uint32) {
	buf := []byte{0}
	offsets := make(map[string]uint32, len(names))
	for _, n := range names {
		offsets[n] = uint32(len(buf))
		buf = append(buf, []byte(n)...)
		buf = append(buf, 0)
	}
	return buf, offsets
}

// buildTestELF hand-assembles a minimal but valid little-endian ELF64
// x86-64 executable: one PT_LOAD segment whose file offset equals its
// virtual address (so readRange's vaddr-to-file-offset translation is
// the identity function), a function symbol ("myfunc") and a data
// symbol ("myvar") in .symtab, one dynamic import ("foo") in .dynsym
// with a matching .rela.plt entry, and a .rela.dyn relative relocation
// pointing at myfunc — enough surface to exercise buildSymbolList,
// buildRelocList, buildPLTList, and buildDataRegions without pulling in
// a real compiled binary as a fixture.
func buildTestELF(t *testing.T) ([]byte, testAddrs) {
	t.Helper()

	pltBytes := make([]byte, 32) // two 16-byte PLT entries; content is never decoded

	shstrtab, shName := buildStrTab(".text", ".plt", ".data", ".bss", ".symtab",
		".strtab", ".dynsym", ".dynstr", ".rela.plt", ".rela.dyn", ".shstrtab")
	strtab, symName := buildStrTab("myfunc", "myvar")
	dynstr, dynName := buildStrTab("foo")

	var buf bytes.Buffer
	buf.Write(make([]byte, 64)) // placeholder for the ELF header, patched below

	phOff := uint64(buf.Len())
	buf.Write(make([]byte, 56)) // placeholder for the one Prog64 entry

	// The PT_LOAD segment below maps file offset 0 to vaddr 0, so a
	// section's virtual address must equal its own file offset for
	// readRange to find it — hence Addr and Off use the same value for
	// every loaded section.
	textOff := uint64(buf.Len())
	buf.Write(testCode)

	pltOff := uint64(buf.Len())
	buf.Write(pltBytes)

	dataOff := uint64(buf.Len())
	buf.Write(testData)

	bssOff := uint64(buf.Len()) // SHT_NOBITS: no file bytes follow, never read back via readRange

	addrs := testAddrs{text: textOff, plt: pltOff, data: dataOff, bss: bssOff}

	var symtab bytes.Buffer
	require.NoError(t, binary.Write(&symtab, binary.LittleEndian, &elf.Sym64{})) // STN_UNDEF
	require.NoError(t, binary.Write(&symtab, binary.LittleEndian, &elf.Sym64{
		Name:  symName["myfunc"],
		Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
		Shndx: secText,
		Value: addrs.text,
		Size:  uint64(len(testCode)),
	}))
	require.NoError(t, binary.Write(&symtab, binary.LittleEndian, &elf.Sym64{
		Name:  symName["myvar"],
		Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT),
		Shndx: secData,
		Value: addrs.data,
		Size:  uint64(len(testData)),
	}))

	var dynsym bytes.Buffer
	require.NoError(t, binary.Write(&dynsym, binary.LittleEndian, &elf.Sym64{})) // STN_UNDEF
	require.NoError(t, binary.Write(&dynsym, binary.LittleEndian, &elf.Sym64{
		Name:  dynName["foo"],
		Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
		Shndx: 0, // SHN_UNDEF: imported, not defined here
	}))

	var relaPlt bytes.Buffer
	require.NoError(t, binary.Write(&relaPlt, binary.LittleEndian, &elf.Rela64{
		Off:    0x1000,
		Info:   elf.R_INFO(1, uint32(elf.R_X86_64_JMP_SLOT)),
		Addend: 0,
	}))

	var relaDyn bytes.Buffer
	require.NoError(t, binary.Write(&relaDyn, binary.LittleEndian, &elf.Rela64{
		Off:    0x1008,
		Info:   elf.R_INFO(0, uint32(elf.R_X86_64_RELATIVE)),
		Addend: int64(addrs.text),
	}))

	symtabOff := uint64(buf.Len())
	buf.Write(symtab.Bytes())

	strtabOff := uint64(buf.Len())
	buf.Write(strtab)

	dynsymOff := uint64(buf.Len())
	buf.Write(dynsym.Bytes())

	dynstrOff := uint64(buf.Len())
	buf.Write(dynstr)

	relaPltOff := uint64(buf.Len())
	buf.Write(relaPlt.Bytes())

	relaDynOff := uint64(buf.Len())
	buf.Write(relaDyn.Bytes())

	shstrtabOff := uint64(buf.Len())
	buf.Write(shstrtab)

	loadFilesz := uint64(buf.Len())

	shoff := uint64(buf.Len())
	sections := make([]elf.Section64, secCount)
	sections[secText] = elf.Section64{
		Name: shName[".text"], Type: uint32(elf.SHT_PROGBITS),
		Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
		Addr:  addrs.text, Off: textOff, Size: uint64(len(testCode)), Addralign: 1,
	}
	sections[secPLT] = elf.Section64{
		Name: shName[".plt"], Type: uint32(elf.SHT_PROGBITS),
		Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
		Addr:  addrs.plt, Off: pltOff, Size: uint64(len(pltBytes)), Addralign: 16,
	}
	sections[secData] = elf.Section64{
		Name: shName[".data"], Type: uint32(elf.SHT_PROGBITS),
		Flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE),
		Addr:  addrs.data, Off: dataOff, Size: uint64(len(testData)), Addralign: 1,
	}
	sections[secBSS] = elf.Section64{
		Name: shName[".bss"], Type: uint32(elf.SHT_NOBITS),
		Flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE),
		Addr:  addrs.bss, Off: bssOff, Size: testBSSSize, Addralign: 1,
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
	sections[secDynsym] = elf.Section64{
		Name: shName[".dynsym"], Type: uint32(elf.SHT_DYNSYM),
		Off: dynsymOff, Size: uint64(dynsym.Len()),
		Link: secDynstr, Info: 1, Addralign: 8, Entsize: 24,
	}
	sections[secDynstr] = elf.Section64{
		Name: shName[".dynstr"], Type: uint32(elf.SHT_STRTAB),
		Off: dynstrOff, Size: uint64(len(dynstr)), Addralign: 1,
	}
	sections[secRelaPlt] = elf.Section64{
		Name: shName[".rela.plt"], Type: uint32(elf.SHT_RELA),
		Off: relaPltOff, Size: uint64(relaPlt.Len()),
		Link: secDynsym, Info: secPLT, Addralign: 8, Entsize: 24,
	}
	sections[secRelaDyn] = elf.Section64{
		Name: shName[".rela.dyn"], Type: uint32(elf.SHT_RELA),
		Off: relaDynOff, Size: uint64(relaDyn.Len()),
		Link: secDynsym, Addralign: 8, Entsize: 24,
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
	hdr.Entry = addrs.text
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

	return raw, addrs
}

// openTestImage writes buildTestELF's bytes to a temp file and opens it
// through OpenImage, exercising the real mmap-backed path rather than
// constructing an *elf.File in isolation.
func openTestImage(t *testing.T) (*Image, testAddrs) {
	t.Helper()
	raw, addrs := buildTestELF(t)
	path := filepath.Join(t.TempDir(), "fixture.elf")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	img, err := OpenImage(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })
	return img, addrs
}

func TestOpenImageParsesHeader(t *testing.T) {
	img, _ := openTestImage(t)
	assert.Equal(t, elf.ET_EXEC, img.File().Type)
	assert.Equal(t, elf.EM_X86_64, img.File().Machine)
}

func TestBuildSymbolListStatic(t *testing.T) {
	img, addrs := openTestImage(t)
	sl, err := buildSymbolList(img.File(), img, false)
	require.NoError(t, err)

	funcs := sl.Functions()
	require.Len(t, funcs, 1)
	assert.Equal(t, "myfunc", funcs[0].Name)
	assert.Equal(t, addrs.text, funcs[0].Address)
	assert.Equal(t, testCode, funcs[0].Code)

	data := sl.DataSymbols()
	require.Len(t, data, 1)
	assert.Equal(t, "myvar", data[0].Name)
	assert.Equal(t, addrs.data, data[0].Value)
}

func TestBuildSymbolListDynamicSkipsUndefinedImport(t *testing.T) {
	img, _ := openTestImage(t)
	sl, err := buildSymbolList(img.File(), img, true)
	require.NoError(t, err)

	// "foo" is undefined (size 0): neither a disassemblable function nor
	// a data symbol, so it contributes nothing to either list.
	assert.Empty(t, sl.Functions())
	assert.Empty(t, sl.DataSymbols())
}

func TestBuildRelocList(t *testing.T) {
	img, addrs := openTestImage(t)
	f := img.File()

	dynSyms, err := buildSymbolList(f, img, true)
	require.NoError(t, err)
	staticSyms, err := buildSymbolList(f, img, false)
	require.NoError(t, err)

	relocs := buildRelocList(f, dynSyms, staticSyms)
	entries := relocs.Relocs()
	require.Len(t, entries, 2)

	var pltReloc, dynReloc *pass.Reloc
	for _, r := range entries {
		if r.FromPLT {
			pltReloc = r
		} else {
			dynReloc = r
		}
	}
	require.NotNil(t, pltReloc)
	require.NotNil(t, dynReloc)

	assert.Equal(t, "foo", pltReloc.Symbol)
	assert.Equal(t, uint64(0x1000), pltReloc.Offset)

	assert.Equal(t, addrs.text, dynReloc.Target)
	assert.Equal(t, uint64(0x1008), dynReloc.Offset)
}

func TestBuildPLTList(t *testing.T) {
	img, addrs := openTestImage(t)
	f := img.File()

	dynSyms, err := buildSymbolList(f, img, true)
	require.NoError(t, err)
	staticSyms, err := buildSymbolList(f, img, false)
	require.NoError(t, err)

	relocs := buildRelocList(f, dynSyms, staticSyms)
	trampolines := buildPLTList(f, relocs)
	require.Len(t, trampolines, 2)

	assert.Equal(t, "plt0", trampolines[0].Name())
	addr0, err := trampolines[0].Address()
	require.NoError(t, err)
	assert.Equal(t, addrs.plt, addr0)

	assert.Equal(t, "foo", trampolines[1].Name())
	addr1, err := trampolines[1].Address()
	require.NoError(t, err)
	assert.Equal(t, addrs.plt+16, addr1)
}

func TestBuildDataRegions(t *testing.T) {
	img, _ := openTestImage(t)
	regions := buildDataRegions(img.File())
	require.Len(t, regions, 2)

	byName := map[string]int{}
	for i, r := range regions {
		byName[r.Name()] = i
	}

	data := regions[byName[".data"]]
	assert.Equal(t, uint64(8), data.Size())
	assert.Equal(t, testData, data.Raw())

	bss := regions[byName[".bss"]]
	assert.Equal(t, uint64(testBSSSize), bss.Size())
	assert.Equal(t, make([]byte, testBSSSize), bss.Raw())
}

func TestIsDynamic(t *testing.T) {
	img, _ := openTestImage(t)
	assert.True(t, isDynamic(img.File()))
}

func TestBuildDataStructuresEndToEnd(t *testing.T) {
	img, addrs := openTestImage(t)
	profile, err := config.DefaultProfile("x86_64")
	require.NoError(t, err)

	es := New(img, nil, profile, nil)
	require.NoError(t, es.BuildDataStructures())

	mod := es.Module()
	require.NotNil(t, mod)

	fn := mod.LookupFunction("myfunc")
	require.NotNil(t, fn)
	addr, err := fn.Address()
	require.NoError(t, err)
	assert.Equal(t, addrs.text, addr)

	require.Len(t, mod.DataRegions(), 2)
}
