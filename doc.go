// Package relgen synthesizes in-memory relations for benchmarking join
// algorithms.
//
// A relation is a fixed-length sequence of key/payload tuples stored in one
// contiguous buffer. The Create functions allocate the buffer, fill it with
// the requested key distribution and return a *Relation that owns it:
//
//	relgen.Seed(42)
//
//	dim, err := relgen.CreatePrimaryKey(1_000_000, relgen.Parallel(8))
//	if err != nil {
//		return err
//	}
//	defer dim.Close()
//
//	fact, err := relgen.CreateForeignKeyFromPrimaryKey(dim, 16_000_000)
//	if err != nil {
//		return err
//	}
//	defer fact.Close()
//
// # Randomness
//
// All Create functions draw from one process-wide source. Call Seed before
// generating to get reproducible output; an unseeded source seeds itself
// from the wall clock. Sequential output depends only on the seed and the
// call sequence. Parallel output additionally depends on the worker count
// and differs from the sequential output for the same seed. WithSource
// replaces the process-wide source for a single call.
//
// # Parallel fill
//
// With Parallel(n) the buffer is split into n contiguous ranges and each
// range is filled by its own goroutine locked to an OS thread. A parallel
// primary key relation is a concatenation of independent permutations:
// worker i permutes the keys lo_i+1..hi_i of its range [lo_i, hi_i).
//
// # Tuple width
//
// Keys and payloads are 32-bit by default. Build with -tags wide_tuples for
// 64-bit keys and payloads.
package relgen
