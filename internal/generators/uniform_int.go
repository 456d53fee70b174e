package generators

import (
	"math/rand/v2"

	"github.com/mmrzaf/relgen/internal/tuple"
)

// Uniform draws keys independently and uniformly from [0, MaxID].
type Uniform struct {
	maxID int
}

func NewUniform(maxID int) (*Uniform, error) {
	if err := ValidateMaxID(maxID); err != nil {
		return nil, err
	}
	return &Uniform{maxID: maxID}, nil
}

func (g *Uniform) Fill(rng *rand.Rand, dst []tuple.Tuple, ctx FillContext) error {
	bound := uint64(g.maxID) + 1
	for i := range dst {
		dst[i].Key = tuple.Key(rng.Uint64N(bound))
	}
	ctx.fillPayload(dst)
	return nil
}
