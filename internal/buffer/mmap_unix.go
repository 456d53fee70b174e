//go:build unix

package buffer

import "golang.org/x/sys/unix"

func osAlloc(size int) ([]byte, func([]byte) error, error) {
	if size == 0 {
		return nil, nil, nil
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}

func osProtect(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	return unix.Mprotect(region, unix.PROT_READ)
}
