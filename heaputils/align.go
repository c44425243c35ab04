package heaputils

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// ErrNotPowerOfTwo is the error returned from CheckPow2 when the value under
// test cannot serve as an alignment.
var ErrNotPowerOfTwo = errors.New("alignment must be a nonzero power of two")

type Number interface {
	~int | ~uint | ~uintptr
}

// CheckPow2 returns an error unless number is a nonzero power of two. name
// identifies the offending value in the error.
func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(ErrNotPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

// AlignDown rounds value down to a multiple of alignment, which must be a
// power of two.
func AlignDown[T Number](value, alignment T) T {
	return value &^ (alignment - 1)
}

// AlignUp rounds value up to a multiple of alignment, which must be a power
// of two.
func AlignUp[T Number](value, alignment T) T {
	return AlignDown(value+alignment-1, alignment)
}

// IsAligned reports whether value is a multiple of alignment, which must be a
// power of two.
func IsAligned[T Number](value, alignment T) bool {
	return value&(alignment-1) == 0
}
