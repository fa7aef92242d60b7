package sandbox

import "unsafe"

// addressOf returns the real process address backing mem's first byte.
// The sandbox's whole purpose is to hand out addresses a CPU can
// actually execute at, so this is the one place the package reaches for
// unsafe rather than treating addresses as opaque uint64s.
func addressOf(mem []byte) uint64 {
	if len(mem) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&mem[0])))
}
