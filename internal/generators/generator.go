// Package generators implements the key distributions used to fill relations.
//
// A Generator only writes into the tuple range it is handed and only draws
// from the stream it is handed, so one Generator value can serve several
// workers at once.
package generators

import (
	"math/rand/v2"

	"github.com/mmrzaf/relgen/internal/tuple"
)

type Generator interface {
	Fill(rng *rand.Rand, dst []tuple.Tuple, ctx FillContext) error
}

// Scratch is implemented by generators that need working memory besides the
// relation buffer. The caller charges ScratchBytes to its memory budget, then
// calls Prepare once before any Fill.
type Scratch interface {
	ScratchBytes() int64
	Prepare() error
}

// FillContext locates dst inside the relation being generated.
type FillContext struct {
	// Offset is the relation index of dst[0].
	Offset  int
	Payload PayloadMode
}

type PayloadMode int

const (
	// PayloadRowID stores the tuple's index in the relation.
	PayloadRowID PayloadMode = iota
	// PayloadKey stores a copy of the key.
	PayloadKey
)

func (c FillContext) fillPayload(dst []tuple.Tuple) {
	if c.Payload == PayloadKey {
		for i := range dst {
			dst[i].Payload = tuple.Payload(dst[i].Key)
		}
		return
	}
	for i := range dst {
		dst[i].Payload = tuple.Payload(c.Offset + i)
	}
}

// permuteKeys writes keys base+1..base+len(dst) and shuffles them in place.
func permuteKeys(rng *rand.Rand, dst []tuple.Tuple, base int) {
	for i := range dst {
		dst[i].Key = tuple.Key(base + i + 1)
	}
	rng.Shuffle(len(dst), func(i, j int) {
		dst[i].Key, dst[j].Key = dst[j].Key, dst[i].Key
	})
}
