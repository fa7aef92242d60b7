package elfspace

import (
	"debug/elf"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/scigolib/elfrw/internal/rwerrors"
)

// sectionReader translates a virtual address range into the underlying
// file bytes backing it, via whichever loadable segment covers it.
type sectionReader interface {
	readRange(vaddr, size uint64) ([]byte, bool)
}

// Image is a memory-mapped ELF file (spec.md §6 "Input: an ELF file path
// or preloaded ELF image"). It maps the file with
// github.com/edsrzf/mmap-go instead of slurping it into a []byte,
// matching "ingests a compiled program" when that program may be large
// (SPEC_FULL.md DOMAIN STACK).
type Image struct {
	file *os.File
	data mmap.MMap
	elf  *elf.File
}

// OpenImage memory-maps path read-only and parses its ELF headers.
// Malformed input is fatal per spec.md §7: the returned error is always
// a *rwerrors.MalformedInputError.
func OpenImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rwerrors.WrapMalformed(path, err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, rwerrors.WrapMalformed(path, err)
	}

	ef, err := elf.NewFile(readerAtFrom(data))
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, rwerrors.WrapMalformed(path, err)
	}

	return &Image{file: f, data: data, elf: ef}, nil
}

// File returns the parsed ELF file.
func (img *Image) File() *elf.File { return img.elf }

// Close unmaps the image and closes the backing file descriptor.
func (img *Image) Close() error {
	unmapErr := img.data.Unmap()
	closeErr := img.file.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

// readRange returns the size bytes of file content backing virtual
// address vaddr, found by scanning PT_LOAD segments — the same lookup
// the kernel's loader performs, minus the actual mapping.
func (img *Image) readRange(vaddr, size uint64) ([]byte, bool) {
	for _, prog := range img.elf.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if vaddr < prog.Vaddr || vaddr+size > prog.Vaddr+prog.Filesz {
			continue
		}
		fileOff := prog.Off + (vaddr - prog.Vaddr)
		if fileOff+size > uint64(len(img.data)) {
			return nil, false
		}
		return img.data[fileOff : fileOff+size], true
	}
	return nil, false
}

// ReadAt implements utils.ReaderAt directly against the mapped bytes, at
// a raw file offset (not a virtual address). JumpTableBounds does not
// use it: its entries are read by virtual address through
// ElfSpace.readAt8.
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || uint64(off)+uint64(len(p)) > uint64(len(img.data)) {
		return 0, os.ErrInvalid
	}
	n := copy(p, img.data[off:])
	return n, nil
}

// readerAtFrom is the minimal io.ReaderAt debug/elf.NewFile needs; mmap.MMap
// is already a []byte, so wrapping it only requires a ReadAt method.
type readerAtFrom []byte

func (r readerAtFrom) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int64(len(r)) <= off {
		return 0, os.ErrInvalid
	}
	n := copy(p, r[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}
