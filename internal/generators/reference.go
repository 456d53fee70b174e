package generators

import (
	"math/rand/v2"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/tuple"
)

// Reference draws each key from a uniformly chosen tuple of a referenced
// relation, so every produced key exists in that relation.
type Reference struct {
	ref []tuple.Tuple
}

// NewReference keeps ref for the lifetime of the generator; the caller must
// keep the referenced relation alive until the fill returns.
func NewReference(ref []tuple.Tuple) (*Reference, error) {
	if len(ref) == 0 {
		return nil, domain.InvalidParam("pk", 0, "referenced relation is empty or released")
	}
	return &Reference{ref: ref}, nil
}

func (g *Reference) Fill(rng *rand.Rand, dst []tuple.Tuple, ctx FillContext) error {
	n := uint64(len(g.ref))
	for i := range dst {
		dst[i].Key = g.ref[rng.Uint64N(n)].Key
	}
	ctx.fillPayload(dst)
	return nil
}
