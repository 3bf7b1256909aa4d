//go:build unix

package rtcheck

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapRegion maps a shared anonymous page so the region stays addressable
// by natively loaded code as well.
func mapRegion(size int) ([]byte, func([]byte) error, error) {
	length := os.Getpagesize()
	if size > length {
		length = (size + length - 1) / length * length
	}
	mem, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap failed: %v", err)
	}
	return mem, unix.Munmap, nil
}
