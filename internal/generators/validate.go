package generators

import (
	"math"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/tuple"
)

// ValidateLen checks a requested relation length. Zero is accepted only when
// allowEmpty is set.
func ValidateLen(n int, allowEmpty bool) error {
	switch {
	case n < 0:
		return domain.InvalidParam("len", n, "must not be negative")
	case n == 0 && !allowEmpty:
		return domain.InvalidParam("len", n, "must be > 0")
	case uint64(n) > uint64(tuple.MaxKey):
		return domain.InvalidParam("len", n, "exceeds the key range of the tuple layout")
	}
	return nil
}

func ValidateMaxID(maxID int) error {
	if maxID <= 0 {
		return domain.InvalidParam("max_id", maxID, "must be > 0")
	}
	if uint64(maxID) > uint64(tuple.MaxKey) {
		return domain.InvalidParam("max_id", maxID, "exceeds the key range of the tuple layout")
	}
	return nil
}

func ValidateSkew(s float64) error {
	if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
		return domain.InvalidParam("skew", s, "must be a finite value > 0")
	}
	return nil
}
