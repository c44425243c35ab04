//go:build !heap_debug

package heaputils

import "unsafe"

// TailGuardSize is the number of guard bytes appended to every allocation
// when the module is built with the heap_debug tag. It is zero otherwise.
const TailGuardSize = 0

// WriteTailGuard stamps the guard pattern across TailGuardSize bytes at the
// given offset from base. Builds without the heap_debug tag compile this away.
func WriteTailGuard(base unsafe.Pointer, offset int) {
}

// CheckTailGuard reports whether the pattern written by WriteTailGuard is
// still intact. Builds without the heap_debug tag always report true.
func CheckTailGuard(base unsafe.Pointer, offset int) bool {
	return true
}

// DebugValidate runs the full Validate pass and panics on any violation.
// Builds without the heap_debug tag compile this away.
func DebugValidate(v Validatable) {
}

// DebugCheckPow2 panics if the value cannot serve as an alignment. Builds
// without the heap_debug tag compile this away.
func DebugCheckPow2[T Number](value T, name string) {
}
