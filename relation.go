package relgen

import (
	"fmt"
	"iter"
	"runtime"
	"sync/atomic"

	"github.com/mmrzaf/relgen/internal/buffer"
)

// Relation owns a generated tuple buffer. The buffer is released by the
// first call to Close, or when the Relation becomes unreachable without
// being closed. Reads are safe from any number of goroutines but must not
// race with Close.
type Relation struct {
	buf     atomic.Pointer[buffer.Buffer]
	n       int
	cleanup runtime.Cleanup
}

func newRelation(b *buffer.Buffer) *Relation {
	r := &Relation{n: b.Len()}
	r.buf.Store(b)
	r.cleanup = runtime.AddCleanup(r, releaseBuffer, b)
	return r
}

func releaseBuffer(b *buffer.Buffer) { _ = b.Release() }

// Close releases the buffer. Calls after the first return nil.
func (r *Relation) Close() error {
	b := r.buf.Swap(nil)
	if b == nil {
		return nil
	}
	r.cleanup.Stop()
	return b.Release()
}

// Closed reports whether Close has been called.
func (r *Relation) Closed() bool { return r.buf.Load() == nil }

// Len is the number of tuples. It does not change after Close.
func (r *Relation) Len() int { return r.n }

// SizeBytes is the size of the tuple buffer, 0 once closed.
func (r *Relation) SizeBytes() int64 {
	b := r.buf.Load()
	if b == nil {
		return 0
	}
	return b.SizeBytes()
}

// At returns tuple i. It panics if i is out of range or r is closed.
func (r *Relation) At(i int) Tuple {
	b := r.buf.Load()
	if b == nil {
		panic(ErrClosed)
	}
	t := b.Tuples()[i]
	runtime.KeepAlive(r)
	return t
}

// All iterates over (index, tuple) pairs. Iteration of a closed relation
// yields nothing.
func (r *Relation) All() iter.Seq2[int, Tuple] {
	return func(yield func(int, Tuple) bool) {
		defer runtime.KeepAlive(r)
		b := r.buf.Load()
		if b == nil {
			return
		}
		for i, t := range b.Tuples() {
			if !yield(i, t) {
				return
			}
		}
	}
}

// Keys returns a copy of the key column, nil once closed.
func (r *Relation) Keys() []Key {
	b := r.buf.Load()
	if b == nil {
		return nil
	}
	ts := b.Tuples()
	keys := make([]Key, len(ts))
	for i, t := range ts {
		keys[i] = t.Key
	}
	runtime.KeepAlive(r)
	return keys
}

// Scan calls fn with the tuple buffer itself. The slice is mapped read-only:
// writing through it faults. It must not be retained after fn returns.
func (r *Relation) Scan(fn func([]Tuple) error) error {
	defer runtime.KeepAlive(r)
	b := r.buf.Load()
	if b == nil {
		return ErrClosed
	}
	return fn(b.Tuples())
}

func (r *Relation) String() string {
	state := "open"
	if r.Closed() {
		state = "closed"
	}
	return fmt.Sprintf("Relation(len=%d, %s)", r.n, state)
}
