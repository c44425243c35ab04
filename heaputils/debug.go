//go:build heap_debug

package heaputils

import "unsafe"

const (
	// TailGuardSize is the number of guard bytes appended to every allocation
	// when the module is built with the heap_debug tag. It is zero otherwise.
	TailGuardSize = 16

	guardPattern uint64 = 0xA5BD5A42A5BD5A42
)

// WriteTailGuard stamps the guard pattern across TailGuardSize bytes at the
// given offset from base. Builds without the heap_debug tag compile this away.
func WriteTailGuard(base unsafe.Pointer, offset int) {
	guard := unsafe.Slice((*byte)(unsafe.Add(base, offset)), TailGuardSize)
	for i := range guard {
		guard[i] = byte(guardPattern >> (8 * (i % 8)))
	}
}

// CheckTailGuard reports whether the pattern written by WriteTailGuard is
// still intact. Builds without the heap_debug tag always report true.
func CheckTailGuard(base unsafe.Pointer, offset int) bool {
	guard := unsafe.Slice((*byte)(unsafe.Add(base, offset)), TailGuardSize)
	for i := range guard {
		if guard[i] != byte(guardPattern>>(8*(i%8))) {
			return false
		}
	}
	return true
}

// DebugValidate runs the full Validate pass and panics on any violation.
// Builds without the heap_debug tag compile this away.
func DebugValidate(v Validatable) {
	if err := v.Validate(); err != nil {
		panic(err)
	}
}

// DebugCheckPow2 panics if the value cannot serve as an alignment. Builds
// without the heap_debug tag compile this away.
func DebugCheckPow2[T Number](value T, name string) {
	if err := CheckPow2(value, name); err != nil {
		panic(err)
	}
}
