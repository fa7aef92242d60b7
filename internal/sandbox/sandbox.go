// Package sandbox implements the linear byte region rewritten code is
// emitted into (spec.md §4.F, glossary "Sandbox") and the watermark
// allocator that hands out slots inside it. The region is backed by
// real executable memory (via golang.org/x/sys/unix.Mmap, already an
// indirect dependency of the teacher's module graph promoted here to
// direct use) so that internal/sandbox.Generator's Call can transfer
// control into it, the one JIT-like facility spec.md §1 keeps in scope
// ("call a function pointer into the sandbox").
package sandbox

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/scigolib/elfrw/internal/rwerrors"
)

// Slot is a contiguous sub-region handed out by Allocate: a base address
// and the length reserved there (spec.md §4.F).
type Slot struct {
	address uint64
	size    uint64
}

// Address returns the slot's base address.
func (s Slot) Address() uint64 { return s.address }

// Size returns the slot's reserved length.
func (s Slot) Size() uint64 { return s.size }

// Sandbox is a contiguous, read-write-execute memory region allocated
// with a watermark strategy: allocation only ever moves a cursor
// forward, matching egalito's SandboxImpl<MemoryBacking,
// WatermarkAllocator<MemoryBacking>> (spec.md §4.F, generator.cpp
// makeSandbox). Freeing a slot is not supported — the sandbox's
// lifetime is the rewriter run's lifetime (spec.md §5, "The sandbox owns
// its backing memory for its lifetime").
type Sandbox struct {
	mem       []byte
	base      uint64
	watermark uint64
}

// defaultSandboxSize mirrors egalito's generator.cpp literal
// (10 * 0x1000 * 0x1000, 160MiB) — comfortably large for relocating a
// module's worth of functions without needing to grow.
const defaultSandboxSize = 10 * 0x1000 * 0x1000

// New allocates a sandbox of defaultSandboxSize bytes.
func New() (*Sandbox, error) {
	return NewSized(defaultSandboxSize)
}

// NewSized allocates a sandbox of exactly size bytes, backed by an
// anonymous, private, read-write-execute mapping.
func NewSized(size int) (*Sandbox, error) {
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "mmap sandbox region")
	}

	return &Sandbox{
		mem:  mem,
		base: addressOf(mem),
	}, nil
}

// Close releases the sandbox's backing memory. Any function pointer
// previously obtained from Generator.Call becomes invalid once this
// returns.
func (s *Sandbox) Close() error {
	return unix.Munmap(s.mem)
}

// Allocate returns a contiguous sub-region of size bytes (spec.md §4.F).
// Allocation failure is fatal for the affected function only (spec.md
// §7), so callers get a *rwerrors.AllocationError rather than a panic.
func (s *Sandbox) Allocate(size uint64) (Slot, error) {
	if s.watermark+size > uint64(len(s.mem)) {
		return Slot{}, &rwerrors.AllocationError{
			Requested: size,
			Available: uint64(len(s.mem)) - s.watermark,
		}
	}
	slot := Slot{address: s.base + s.watermark, size: size}
	s.watermark += size
	return slot, nil
}

// GetAddress reveals slot's base address (spec.md §4.F).
func (s *Sandbox) GetAddress(slot Slot) uint64 { return slot.address }

// bytesAt returns the backing bytes for the range [addr, addr+size),
// used by Generator's serialisation pass to write encoded instructions
// directly into the mapped region.
func (s *Sandbox) bytesAt(addr, size uint64) ([]byte, bool) {
	if addr < s.base || addr+size > s.base+uint64(len(s.mem)) {
		return nil, false
	}
	off := addr - s.base
	return s.mem[off : off+size], true
}
