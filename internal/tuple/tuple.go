// Package tuple defines the fixed-width record stored in generated relations.
//
// The key and payload width is a build configuration: the default layout is
// two 32-bit integers, building with the wide_tuples tag switches to two
// 64-bit integers.
package tuple

import "unsafe"

// Tuple is one key/payload record.
type Tuple struct {
	Key     Key
	Payload Payload
}

// Size is the in-memory size of a Tuple in bytes.
const Size = int(unsafe.Sizeof(Tuple{}))

// FromBytes reinterprets a byte region as n tuples. The region must be at
// least n*Size bytes and aligned for Key.
func FromBytes(region []byte, n int) []Tuple {
	if n == 0 || len(region) == 0 {
		return nil
	}
	return unsafe.Slice((*Tuple)(unsafe.Pointer(&region[0])), n) //nolint:gosec // region is sized and page aligned by the allocator
}
