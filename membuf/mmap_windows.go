//go:build windows

package membuf

import "errors"

var ErrNotSupported = errors.New("membuf: mmap not supported on windows")

func Map(size int) ([]byte, error) {
	return nil, ErrNotSupported
}

func Unmap(data []byte) error {
	return nil
}
