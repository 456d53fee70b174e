//go:build !unix

package buffer

func osAlloc(size int) ([]byte, func([]byte) error, error) {
	if size == 0 {
		return nil, nil, nil
	}
	return make([]byte, size), nil, nil
}

func osProtect([]byte) error { return nil }
