// Package random holds the process-wide generator state consumed by every
// relation generation call.
//
// The state must be seeded before any generation request is issued if
// reproducible output is wanted; otherwise it seeds itself from the wall
// clock on first use. Generation never draws from the shared generator while
// filling tuples: each call takes one draw under the lock and derives
// exclusively owned streams from it.
package random

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is a seedable generator that hands out derived streams.
type Source struct {
	mu     sync.Mutex
	seeded bool
	seed   uint64
	rng    *rand.Rand
}

var std = &Source{}

// Default returns the process-wide source.
func Default() *Source { return std }

// Seed reseeds the process-wide source.
func Seed(v uint32) { std.Seed(v) }

// NewSource returns a source seeded with v.
func NewSource(v uint32) *Source {
	s := &Source{}
	s.Seed(v)
	return s
}

// Seed resets the source. The last call wins.
func (s *Source) Seed(v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(uint64(v))
}

func (s *Source) reset(seed uint64) {
	s.seed = seed
	s.seeded = true
	s.rng = rand.New(rand.NewPCG(seed, Mix(seed, 0)))
}

// next consumes one draw from the shared generator.
func (s *Source) next() (base, seed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		s.reset(uint64(time.Now().UnixNano()))
	}
	return s.rng.Uint64(), s.seed
}

// Derive returns one stream for a sequential fill.
func (s *Source) Derive() *rand.Rand {
	base, seed := s.next()
	return stream(base, seed, 0)
}

// Fork returns n independent streams for a parallel fill, one per worker.
// All streams come from a single draw of the shared generator, so the
// result depends only on the source state, n and the worker index.
func (s *Source) Fork(n int) []*rand.Rand {
	base, seed := s.next()
	out := make([]*rand.Rand, n)
	for i := range out {
		out[i] = stream(base, seed, uint64(i)+1)
	}
	return out
}

func stream(base, seed, worker uint64) *rand.Rand {
	return rand.New(rand.NewPCG(Mix(base, worker), Mix(seed, worker)))
}

// Mix is a SplitMix64 finalizer over (parent, stream).
func Mix(parent, stream uint64) uint64 {
	x := parent ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
