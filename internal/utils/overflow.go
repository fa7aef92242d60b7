// Package utils provides small, dependency-free helpers shared across the
// rewriter's packages: pooled scratch buffers, byte-order reads, and
// checked arithmetic for address and size computations.
package utils

import (
	"fmt"
	"math"
)

// CheckAddOverflow reports whether a+b would overflow uint64. Address and
// size arithmetic throughout the position algebra (parent address + offset,
// sibling address + sibling size) goes through this, since an overflowed
// address would silently misplace every descendant chunk.
func CheckAddOverflow(a, b uint64) error {
	if a > math.MaxUint64-b {
		return fmt.Errorf("address overflow: %d + %d exceeds uint64 max", a, b)
	}
	return nil
}

// SafeAdd adds two uint64 values, returning an error instead of wrapping on
// overflow.
func SafeAdd(a, b uint64) (uint64, error) {
	if err := CheckAddOverflow(a, b); err != nil {
		return 0, err
	}
	return a + b, nil
}

// CheckMultiplyOverflow reports whether a*b would overflow uint64.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}
	if a > math.MaxUint64/b {
		return fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}
	return nil
}

// SafeMultiply multiplies two uint64 values, returning an error on overflow.
func SafeMultiply(a, b uint64) (uint64, error) {
	if err := CheckMultiplyOverflow(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}
