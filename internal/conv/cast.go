package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("integer overflow")

// IntToUint32 converts int to uint32 safely.
func IntToUint32(v int) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d cannot be converted to uint32 (negative)", ErrOverflow, v)
	}
	// On 64-bit systems, int can exceed uint32 max; on 32-bit, this is always false
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d cannot be converted to uint32 (too large)", ErrOverflow, v)
	}
	return uint32(v), nil
}

// Int64ToUintptr converts a byte count or address to uintptr safely.
func Int64ToUintptr(v int64) (uintptr, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d cannot be converted to uintptr (negative)", ErrOverflow, v)
	}
	if uint64(v) > uint64(^uintptr(0)) {
		return 0, fmt.Errorf("%w: %d cannot be converted to uintptr (too large)", ErrOverflow, v)
	}
	return uintptr(v), nil
}

// PhysRange converts a RAM layout given as byte counts to a physical range
// starting at base, checking that base+size does not wrap.
func PhysRange(base uintptr, kernel, size int64) (end, top uintptr, err error) {
	k, err := Int64ToUintptr(kernel)
	if err != nil {
		return 0, 0, err
	}
	s, err := Int64ToUintptr(size)
	if err != nil {
		return 0, 0, err
	}
	if base+s < base {
		return 0, 0, fmt.Errorf("%w: %#x + %#x wraps the address space", ErrOverflow, base, s)
	}
	return base + k, base + s, nil
}
