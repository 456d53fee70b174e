// Package partition splits a fill into contiguous ranges and runs one worker
// per range.
package partition

import (
	"fmt"
	"runtime"

	"github.com/mmrzaf/relgen/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Range is the half-open tuple range [Lo, Hi) owned by worker Index.
type Range struct {
	Index int
	Lo    int
	Hi    int
}

func (r Range) Len() int { return r.Hi - r.Lo }

// Split tessellates [0, length) into n contiguous ranges whose sizes differ
// by at most one. The first length%n ranges are one element longer.
func Split(length, n int) ([]Range, error) {
	if n <= 0 {
		return nil, domain.InvalidParam("workers", n, "must be positive")
	}
	if length < 0 {
		return nil, domain.InvalidParam("len", length, "must not be negative")
	}

	base, extra := length/n, length%n
	ranges := make([]Range, n)
	lo := 0
	for i := range ranges {
		size := base
		if i < extra {
			size++
		}
		ranges[i] = Range{Index: i, Lo: lo, Hi: lo + size}
		lo += size
	}
	return ranges, nil
}

// SplitBlocks is Split over whole blocks of the given size: every range
// boundary except length itself is a multiple of block, so only the last
// non-empty range can hold a partial block.
func SplitBlocks(length, n, block int) ([]Range, error) {
	if block <= 0 {
		return nil, domain.InvalidParam("block", block, "must be positive")
	}
	if length < 0 {
		return nil, domain.InvalidParam("len", length, "must not be negative")
	}
	blocks := length / block
	if length%block != 0 {
		blocks++
	}
	ranges, err := Split(blocks, n)
	if err != nil {
		return nil, err
	}
	for i := range ranges {
		ranges[i].Lo = min(ranges[i].Lo*block, length)
		ranges[i].Hi = min(ranges[i].Hi*block, length)
	}
	return ranges, nil
}

// Run calls fn once per non-empty range, each on its own goroutine locked to
// an OS thread, and waits for all of them. It returns the first error; a
// panicking worker is reported as ErrGenerationFailure.
func Run(ranges []Range, fn func(Range) error) error {
	var g errgroup.Group
	for _, r := range ranges {
		if r.Len() == 0 {
			continue
		}
		g.Go(func() (err error) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("%w: worker %d [%d,%d): %v", domain.ErrGenerationFailure, r.Index, r.Lo, r.Hi, p)
				}
			}()
			return fn(r)
		})
	}
	return g.Wait()
}
