package generators

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"unsafe"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/tuple"
)

// Zipf draws keys from the alphabet [1, MaxID] such that the k-th most
// frequent key has expected frequency proportional to 1/k^s.
//
// Ranks are mapped to keys through an alphabet shuffled at the start of each
// fill, so the most frequent key is not always key 1. Both the cumulative
// table and the alphabet grow with MaxID, not with the relation length, so
// they are reported through ScratchBytes and built by Prepare.
type Zipf struct {
	maxID int
	s     float64
	cdf   []float64
}

func NewZipf(maxID int, s float64) (*Zipf, error) {
	if err := ValidateMaxID(maxID); err != nil {
		return nil, err
	}
	if err := ValidateSkew(s); err != nil {
		return nil, err
	}
	return &Zipf{maxID: maxID, s: s}, nil
}

// ScratchBytes is the size of the cumulative table plus one alphabet.
func (g *Zipf) ScratchBytes() int64 {
	return int64(g.maxID) * int64(unsafe.Sizeof(float64(0))+unsafe.Sizeof(tuple.Key(0)))
}

// Prepare builds the cumulative table.
func (g *Zipf) Prepare() error {
	if g.cdf != nil {
		return nil
	}
	cdf := make([]float64, g.maxID)
	var sum float64
	for k := range cdf {
		sum += math.Pow(float64(k+1), -g.s)
		cdf[k] = sum
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) || sum <= 0 {
		return fmt.Errorf("%w: zipf normalization for max_id=%d s=%g is %g",
			domain.ErrGenerationFailure, g.maxID, g.s, sum)
	}
	for k := range cdf {
		cdf[k] /= sum
	}
	cdf[g.maxID-1] = 1
	g.cdf = cdf
	return nil
}

// alphabet returns the rank-to-key mapping used by one fill.
func (g *Zipf) alphabet(rng *rand.Rand) []tuple.Key {
	keys := make([]tuple.Key, g.maxID)
	for i := range keys {
		keys[i] = tuple.Key(i + 1)
	}
	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	return keys
}

// rank returns the 0-based rank whose cumulative interval contains u.
func (g *Zipf) rank(u float64) int {
	return sort.Search(len(g.cdf), func(i int) bool { return g.cdf[i] > u })
}

func (g *Zipf) Fill(rng *rand.Rand, dst []tuple.Tuple, ctx FillContext) error {
	if g.cdf == nil {
		return fmt.Errorf("%w: zipf table not prepared", domain.ErrGenerationFailure)
	}
	keys := g.alphabet(rng)
	for i := range dst {
		dst[i].Key = keys[g.rank(rng.Float64())]
	}
	ctx.fillPayload(dst)
	return nil
}
