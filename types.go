package relgen

import (
	"fmt"

	"github.com/mmrzaf/relgen/internal/buffer"
	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/generators"
	"github.com/mmrzaf/relgen/internal/random"
	"github.com/mmrzaf/relgen/internal/tuple"
)

type (
	Tuple   = tuple.Tuple
	Key     = tuple.Key
	Payload = tuple.Payload
)

// MaxKey bounds every length and max ID accepted by the Create functions.
const MaxKey = tuple.MaxKey

// TupleSize is the size of one Tuple in bytes.
const TupleSize = tuple.Size

// MaxWorkers bounds the worker count of Parallel.
const MaxWorkers = 1 << 12

// BuildMode selects sequential or parallel fill.
type BuildMode struct {
	parallel bool
	workers  int
}

// Sequential fills the relation on the calling goroutine.
var Sequential = BuildMode{}

// Parallel fills the relation with n workers. n must be in [1, MaxWorkers].
func Parallel(n int) BuildMode {
	return BuildMode{parallel: true, workers: n}
}

func (m BuildMode) IsParallel() bool { return m.parallel }

// Workers is the number of fill goroutines, 1 for Sequential.
func (m BuildMode) Workers() int {
	if !m.parallel {
		return 1
	}
	return m.workers
}

func (m BuildMode) String() string {
	if !m.parallel {
		return "sequential"
	}
	return fmt.Sprintf("parallel(%d)", m.workers)
}

func (m BuildMode) validate() error {
	if m.parallel && (m.workers < 1 || m.workers > MaxWorkers) {
		return domain.InvalidParam("workers", m.workers, fmt.Sprintf("must be in [1, %d]", MaxWorkers))
	}
	return nil
}

// PayloadMode selects what the payload column holds.
type PayloadMode = generators.PayloadMode

const (
	// PayloadRowID stores each tuple's index in the relation.
	PayloadRowID = generators.PayloadRowID
	// PayloadKey stores a copy of the key.
	PayloadKey = generators.PayloadKey
)

// RemainderPolicy selects how CreateForeignKey fills a length that is not a
// multiple of max ID.
type RemainderPolicy = generators.RemainderPolicy

const (
	// RemainderUniform samples every key uniformly from [1, maxID]. In
	// parallel mode this holds for every worker range, including ranges whose
	// length happens to be a multiple of maxID.
	RemainderUniform = generators.RemainderUniform
	// RemainderBlocks emits whole shuffled blocks of [1, maxID] followed by
	// a shuffled block of [1, len % maxID].
	RemainderBlocks = generators.RemainderBlocks
)

// Allocator provides relation buffers and counts them.
type Allocator = buffer.Allocator

// AllocatorStats is a snapshot of Allocator counters.
type AllocatorStats = buffer.Stats

// NewAllocator returns an allocator that holds at most limitBytes of live
// relation buffers. A limit of 0 means unlimited.
func NewAllocator(limitBytes int64) *Allocator {
	return buffer.NewAllocator(buffer.Config{MemoryLimitBytes: limitBytes})
}

// DefaultAllocator returns the allocator used when WithAllocator is not given.
func DefaultAllocator() *Allocator { return buffer.Default() }

// Source is a seedable random source.
type Source = random.Source

// NewSource returns a source independent of the process-wide one.
func NewSource(seed uint32) *Source { return random.NewSource(seed) }

// Seed resets the process-wide random source. The last call wins.
func Seed(v uint32) { random.Seed(v) }
