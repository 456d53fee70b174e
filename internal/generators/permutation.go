package generators

import (
	"fmt"
	"math/rand/v2"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/tuple"
)

// Permutation writes a uniformly shuffled run of unique keys. A range starting
// at relation index Offset receives the keys [Offset+1, Offset+len], so a
// sequential fill yields a permutation of [1, len] and a partitioned fill
// yields one independent permutation per partition.
type Permutation struct{}

func (Permutation) Fill(rng *rand.Rand, dst []tuple.Tuple, ctx FillContext) error {
	if uint64(ctx.Offset)+uint64(len(dst)) > uint64(tuple.MaxKey) {
		return fmt.Errorf("%w: key range [%d, %d] overflows the tuple layout",
			domain.ErrGenerationFailure, ctx.Offset+1, ctx.Offset+len(dst))
	}
	permuteKeys(rng, dst, ctx.Offset)
	ctx.fillPayload(dst)
	return nil
}
