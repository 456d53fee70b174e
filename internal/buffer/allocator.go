package buffer

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/tuple"
	"golang.org/x/sync/semaphore"
)

// Config holds allocator limits.
type Config struct {
	// MemoryLimitBytes caps the bytes held by live buffers.
	// If 0, usage is only tracked.
	MemoryLimitBytes int64
}

// Stats is a snapshot of allocator counters.
type Stats struct {
	Allocations int64
	Releases    int64
	Failures    int64
	LiveBytes   int64
}

type Allocator struct {
	cfg    Config
	memSem *semaphore.Weighted // nil if unlimited

	allocs   atomic.Int64
	releases atomic.Int64
	failures atomic.Int64
	live     atomic.Int64
}

var std = NewAllocator(Config{})

// Default returns the process-wide allocator.
func Default() *Allocator { return std }

func NewAllocator(cfg Config) *Allocator {
	a := &Allocator{cfg: cfg}
	if cfg.MemoryLimitBytes > 0 {
		a.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	return a
}

// Allocate reserves and maps room for n tuples. The returned buffer is in the
// Filling state.
func (a *Allocator) Allocate(n int) (*Buffer, error) {
	if n < 0 {
		return nil, domain.InvalidParam("len", n, "must not be negative")
	}
	if int64(n) > math.MaxInt64/int64(tuple.Size) {
		a.failures.Add(1)
		return nil, fmt.Errorf("%w: %d tuples overflow the address space", domain.ErrAllocationFailure, n)
	}
	size := int64(n) * int64(tuple.Size)

	if a.memSem != nil && size > 0 && !a.memSem.TryAcquire(size) {
		a.failures.Add(1)
		return nil, fmt.Errorf("%w: %d bytes exceed memory limit of %d bytes (%d in use)",
			domain.ErrAllocationFailure, size, a.cfg.MemoryLimitBytes, a.live.Load())
	}

	region, unmap, err := osAlloc(int(size))
	if err != nil {
		if a.memSem != nil && size > 0 {
			a.memSem.Release(size)
		}
		a.failures.Add(1)
		return nil, fmt.Errorf("%w: map %d bytes: %v", domain.ErrAllocationFailure, size, err)
	}

	b := &Buffer{
		region: region,
		tuples: tuple.FromBytes(region, n),
		size:   size,
		unmap:  unmap,
		alloc:  a,
	}
	b.state.Store(int32(Filling))

	a.allocs.Add(1)
	a.live.Add(size)
	return b, nil
}

// Reserve charges size bytes of generator working memory to the budget
// without mapping anything. The returned func gives the bytes back and is
// safe to call more than once.
func (a *Allocator) Reserve(size int64) (func(), error) {
	if size < 0 {
		return nil, domain.InvalidParam("scratch", size, "must not be negative")
	}
	if a.memSem != nil && size > 0 && !a.memSem.TryAcquire(size) {
		a.failures.Add(1)
		return nil, fmt.Errorf("%w: %d scratch bytes exceed memory limit of %d bytes (%d in use)",
			domain.ErrAllocationFailure, size, a.cfg.MemoryLimitBytes, a.live.Load())
	}
	a.live.Add(size)

	var once sync.Once
	return func() {
		once.Do(func() {
			if a.memSem != nil && size > 0 {
				a.memSem.Release(size)
			}
			a.live.Add(-size)
		})
	}, nil
}

func (a *Allocator) release(size int64) {
	if a.memSem != nil && size > 0 {
		a.memSem.Release(size)
	}
	a.releases.Add(1)
	a.live.Add(-size)
}

func (a *Allocator) Stats() Stats {
	return Stats{
		Allocations: a.allocs.Load(),
		Releases:    a.releases.Load(),
		Failures:    a.failures.Load(),
		LiveBytes:   a.live.Load(),
	}
}
