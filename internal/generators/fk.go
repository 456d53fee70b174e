package generators

import (
	"math/rand/v2"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/tuple"
)

// RemainderPolicy selects how ForeignKey fills a relation whose length is not
// a multiple of MaxID.
type RemainderPolicy int

const (
	// RemainderUniform samples every key of the relation uniformly from
	// [1, MaxID], whatever the lengths of the ranges it is filled in.
	RemainderUniform RemainderPolicy = iota
	// RemainderBlocks emits whole shuffled blocks of [1, MaxID] followed by
	// one shuffled block of [1, len % MaxID].
	RemainderBlocks
)

// ForeignKey fills a relation of length k*MaxID with k consecutive blocks,
// each an independent shuffle of [1, MaxID], so every key occurs exactly k
// times. The layout is fixed from the relation length at construction, so
// every range of a parallel fill uses the same one.
type ForeignKey struct {
	maxID  int
	blocks bool
}

// NewForeignKey returns a generator for a relation of n tuples.
func NewForeignKey(n, maxID int, policy RemainderPolicy) (*ForeignKey, error) {
	if err := ValidateMaxID(maxID); err != nil {
		return nil, err
	}
	switch policy {
	case RemainderUniform, RemainderBlocks:
	default:
		return nil, domain.InvalidParam("remainder", policy, "unknown remainder policy")
	}
	return &ForeignKey{
		maxID:  maxID,
		blocks: n%maxID == 0 || policy == RemainderBlocks,
	}, nil
}

// Blocks reports whether the relation is laid out as shuffled blocks. Ranges
// handed to Fill must then start on a block boundary.
func (g *ForeignKey) Blocks() bool { return g.blocks }

func (g *ForeignKey) Fill(rng *rand.Rand, dst []tuple.Tuple, ctx FillContext) error {
	n := len(dst)
	if g.blocks {
		for lo := 0; lo < n; lo += g.maxID {
			permuteKeys(rng, dst[lo:min(lo+g.maxID, n)], 0)
		}
	} else {
		bound := uint64(g.maxID)
		for i := range dst {
			dst[i].Key = tuple.Key(rng.Uint64N(bound) + 1)
		}
	}
	ctx.fillPayload(dst)
	return nil
}
