package utils

import "encoding/binary"

// ReaderAt is a simplified interface for io.ReaderAt, kept separate so
// callers that only need random-access reads (ELF sections, sandbox
// backing memory) don't have to import io for the full interface set.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// ReadUint64At reads a 64-bit value at the given offset using a pooled
// scratch buffer and the requested byte order.
func ReadUint64At(r ReaderAt, offset int64, order binary.ByteOrder) (uint64, error) {
	buf := GetBuffer(8)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return order.Uint64(buf), nil
}

// ReadUint32At reads a 32-bit value at the given offset using a pooled
// scratch buffer and the requested byte order.
func ReadUint32At(r ReaderAt, offset int64, order binary.ByteOrder) (uint32, error) {
	buf := GetBuffer(4)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return order.Uint32(buf), nil
}
