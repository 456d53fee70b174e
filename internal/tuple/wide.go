//go:build wide_tuples

package tuple

import "math"

// Key is the join key type.
type Key = int64

// Payload is the payload type.
type Payload = int64

// MaxKey is the largest key value, and therefore the largest relation
// length and max_id the generators accept.
const MaxKey = math.MaxInt64

// Wide reports whether the build uses 64-bit keys and payloads.
const Wide = true
