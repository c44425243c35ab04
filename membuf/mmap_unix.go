//go:build unix

package membuf

import (
	"golang.org/x/sys/unix"
)

// Map reserves size bytes of anonymous page-backed memory suitable for use as
// an arena region. The returned slice is not managed by the Go allocator and
// must be released with Unmap.
func Map(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// Unmap releases a region obtained from Map. The slice must not be used
// afterwards.
func Unmap(data []byte) error {
	return unix.Munmap(data)
}
