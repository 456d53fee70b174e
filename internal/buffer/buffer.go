package buffer

import (
	"fmt"
	"sync/atomic"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/tuple"
)

type State int32

const (
	Unallocated State = iota
	Filling
	Ready
	Released
)

func (s State) String() string {
	switch s {
	case Unallocated:
		return "unallocated"
	case Filling:
		return "filling"
	case Ready:
		return "ready"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Buffer is a contiguous tuple region obtained from an Allocator.
type Buffer struct {
	state  atomic.Int32
	region []byte
	tuples []tuple.Tuple
	size   int64
	unmap  func([]byte) error
	alloc  *Allocator
}

func (b *Buffer) State() State { return State(b.state.Load()) }

func (b *Buffer) Len() int { return len(b.tuples) }

// SizeBytes is the tuple payload size, excluding page rounding.
func (b *Buffer) SizeBytes() int64 { return b.size }

// Range returns tuples [lo, hi) for filling. The returned slice has no spare
// capacity, so a worker cannot reach past hi through it.
func (b *Buffer) Range(lo, hi int) []tuple.Tuple {
	if s := b.State(); s != Filling {
		panic(fmt.Sprintf("buffer: Range on %s buffer", s))
	}
	return b.tuples[lo:hi:hi]
}

// Seal finishes the fill and makes the region read-only.
func (b *Buffer) Seal() error {
	if !b.state.CompareAndSwap(int32(Filling), int32(Ready)) {
		return fmt.Errorf("%w: seal on %s buffer", domain.ErrGenerationFailure, b.State())
	}
	if err := osProtect(b.region); err != nil {
		return fmt.Errorf("%w: protect region: %v", domain.ErrAllocationFailure, err)
	}
	return nil
}

// Tuples returns the read-only view of a Ready buffer, nil otherwise.
func (b *Buffer) Tuples() []tuple.Tuple {
	if b.State() != Ready {
		return nil
	}
	return b.tuples
}

// Release returns the region to the operating system. Only the first call
// on a Filling or Ready buffer has an effect.
func (b *Buffer) Release() error {
	for {
		s := b.State()
		if s != Filling && s != Ready {
			return nil
		}
		if b.state.CompareAndSwap(int32(s), int32(Released)) {
			break
		}
	}

	region := b.region
	b.region, b.tuples = nil, nil

	var err error
	if b.unmap != nil && region != nil {
		err = b.unmap(region)
	}
	b.alloc.release(b.size)
	return err
}
