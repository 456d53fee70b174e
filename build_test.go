package relgen

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/mmrzaf/relgen/internal/generators"
	"github.com/mmrzaf/relgen/internal/partition"
	"github.com/mmrzaf/relgen/internal/tuple"
	"github.com/mmrzaf/relgen/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snapshot copies the tuples of r and closes it.
func snapshot(t *testing.T, r *Relation) []Tuple {
	t.Helper()
	var out []Tuple
	require.NoError(t, r.Scan(func(ts []Tuple) error {
		out = append([]Tuple(nil), ts...)
		return nil
	}))
	require.NoError(t, r.Close())
	return out
}

func TestPrimaryKeyIsPermutation(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 10, 10000} {
		t.Run(fmt.Sprintf("len=%d", n), func(t *testing.T) {
			t.Parallel()

			r, err := CreatePrimaryKey(n, Sequential, WithSource(NewSource(uint32(n))))
			require.NoError(t, err)
			assert.Equal(t, n, r.Len())

			ts := snapshot(t, r)
			require.Len(t, ts, n)
			assert.True(t, verify.IsPermutation(ts, 1, int64(n)))
			for i, tp := range ts {
				require.Equal(t, Payload(i), tp.Payload)
			}
		})
	}
}

func TestParallelPrimaryKeyPartitions(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 3, 8} {
		for _, n := range []int{0, 1, workers - 1, workers, workers + 1, 10000} {
			t.Run(fmt.Sprintf("workers=%d/len=%d", workers, n), func(t *testing.T) {
				t.Parallel()

				r, err := CreatePrimaryKey(n, Parallel(workers), WithSource(NewSource(3)))
				require.NoError(t, err)
				ts := snapshot(t, r)
				require.Len(t, ts, n)

				ranges, err := partition.Split(n, workers)
				require.NoError(t, err)
				for _, rg := range ranges {
					part := ts[rg.Lo:rg.Hi]
					assert.True(t, verify.IsPermutation(part, int64(rg.Lo)+1, int64(rg.Hi)),
						"worker %d wrote outside [%d,%d)", rg.Index, rg.Lo, rg.Hi)
				}
				assert.True(t, verify.IsPermutation(ts, 1, int64(n)))
				for i, tp := range ts {
					require.Equal(t, Payload(i), tp.Payload)
				}
			})
		}
	}
}

func TestForeignKeyFromPrimaryKeyIntegrity(t *testing.T) {
	t.Parallel()

	src := NewSource(11)
	for _, mode := range []BuildMode{Sequential, Parallel(4)} {
		pk, err := CreatePrimaryKey(5000, mode, WithSource(src))
		require.NoError(t, err)

		var ref []Tuple
		require.NoError(t, pk.Scan(func(ts []Tuple) error {
			ref = append(ref, ts...)
			return nil
		}))
		keys := verify.KeySet(ref)

		for _, n := range []int{1, 10, 5000, 50000} {
			fk, err := CreateForeignKeyFromPrimaryKey(pk, n, WithSource(src))
			require.NoError(t, err)
			ts := snapshot(t, fk)
			require.Len(t, ts, n)
			assert.Zero(t, verify.Violations(ts, keys), "mode=%s len=%d", mode, n)
		}
		require.NoError(t, pk.Close())
	}
}

func TestForeignKeyFromSubsetOfKeys(t *testing.T) {
	t.Parallel()

	pk, err := CreateForeignKey(300, 3, Sequential, WithSource(NewSource(1)))
	require.NoError(t, err)
	defer pk.Close()

	fk, err := CreateForeignKeyFromPrimaryKey(pk, 1000, WithSource(NewSource(2)))
	require.NoError(t, err)
	ts := snapshot(t, fk)
	for _, tp := range ts {
		require.True(t, tp.Key >= 1 && tp.Key <= 3)
	}
}

func TestForeignKeyBlockMultiplicity(t *testing.T) {
	t.Parallel()

	const (
		maxID = 100
		k     = 10
	)
	for _, mode := range []BuildMode{Sequential, Parallel(1), Parallel(3), Parallel(16)} {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()

			r, err := CreateForeignKey(k*maxID, maxID, mode, WithSource(NewSource(5)))
			require.NoError(t, err)
			ts := snapshot(t, r)

			counts := verify.Multiplicity(ts)
			require.Len(t, counts, maxID)
			for key := Key(1); key <= maxID; key++ {
				assert.Equal(t, k, counts[key], "key %d", key)
			}
			for lo := 0; lo < len(ts); lo += maxID {
				assert.True(t, verify.IsPermutation(ts[lo:lo+maxID], 1, maxID), "block at %d", lo)
			}
		})
	}
}

func TestForeignKeyRemainderBlocks(t *testing.T) {
	t.Parallel()

	for _, mode := range []BuildMode{Sequential, Parallel(4)} {
		r, err := CreateForeignKey(1050, 100, mode,
			WithSource(NewSource(8)), WithRemainderPolicy(RemainderBlocks))
		require.NoError(t, err)
		ts := snapshot(t, r)
		require.Len(t, ts, 1050)

		for lo := 0; lo < 1000; lo += 100 {
			assert.True(t, verify.IsPermutation(ts[lo:lo+100], 1, 100), "%s block at %d", mode, lo)
		}
		assert.True(t, verify.IsPermutation(ts[1000:], 1, 50), "%s remainder", mode)
	}
}

func TestForeignKeyRemainderUniform(t *testing.T) {
	t.Parallel()

	for _, mode := range []BuildMode{Sequential, Parallel(4)} {
		r, err := CreateForeignKey(100_001, 100, mode, WithSource(NewSource(8)))
		require.NoError(t, err)
		ts := snapshot(t, r)

		counts := verify.Multiplicity(ts)
		assert.Len(t, counts, 100)
		for key, c := range counts {
			require.True(t, key >= 1 && key <= 100, "key %d", key)
			// Expected 1000 per key; a block layout would give exactly 1000 or 1001.
			assert.InDelta(t, 1000, c, 200)
		}
		s := verify.Summarize(ts)
		assert.Equal(t, int64(1), s.MinKey)
		assert.Equal(t, int64(100), s.MaxKey)
	}
}

func TestForeignKeyRemainderUniformAcrossWorkerRanges(t *testing.T) {
	t.Parallel()

	// Parallel(4) over 1001 tuples gives ranges of 251, 250, 250 and 250.
	r, err := CreateForeignKey(1001, 250, Parallel(4), WithSource(NewSource(1)))
	require.NoError(t, err)
	ts := snapshot(t, r)
	require.Len(t, ts, 1001)

	for _, tp := range ts {
		require.True(t, tp.Key >= 1 && tp.Key <= 250, "key %d", tp.Key)
	}
	for lo := 251; lo < 1001; lo += 250 {
		assert.False(t, verify.IsPermutation(ts[lo:lo+250], 1, 250), "range at %d", lo)
	}
}

func TestForeignKeyEmpty(t *testing.T) {
	t.Parallel()

	for _, mode := range []BuildMode{Sequential, Parallel(2)} {
		r, err := CreateForeignKey(0, 10, mode, WithSource(NewSource(1)))
		require.NoError(t, err)
		assert.Zero(t, r.Len())
		assert.Empty(t, r.Keys())
		require.NoError(t, r.Close())
	}
}

func TestNonUniqueRange(t *testing.T) {
	t.Parallel()

	r, err := CreateNonUnique(20000, 10, WithSource(NewSource(4)))
	require.NoError(t, err)
	ts := snapshot(t, r)

	counts := verify.Multiplicity(ts)
	assert.Len(t, counts, 11, "both ends of [0, max_id] occur")
	for key := range counts {
		assert.True(t, key >= 0 && key <= 10)
	}
}

func TestZipfianSkew(t *testing.T) {
	const (
		n     = 100_000
		maxID = 1000
		s     = 1.0
	)
	p := verify.ZipfProbabilities(maxID, s)

	for seed := uint32(1); seed <= 5; seed++ {
		Seed(seed)
		r, err := CreateZipfian(n, maxID, s)
		require.NoError(t, err)
		ts := snapshot(t, r)

		top := verify.RankFrequencies(ts, 5)
		require.Len(t, top, 5)
		for i := 1; i < len(top); i++ {
			assert.Greater(t, top[i-1], top[i], "seed %d rank %d", seed, i+1)
		}
		for i, c := range top {
			want := float64(n) * p[i]
			assert.InEpsilon(t, want, float64(c), 0.1, "seed %d rank %d", seed, i+1)
		}

		x2 := verify.ZipfChiSquare(ts, maxID, s, 20)
		assert.Less(t, x2, 150.0, "seed %d", seed)
	}
}

func TestZipfianShufflesAlphabet(t *testing.T) {
	t.Parallel()

	src := NewSource(21)
	heads := map[Key]bool{}
	for range 10 {
		r, err := CreateZipfian(2000, 1000, 2.0, WithSource(src))
		require.NoError(t, err)
		counts := verify.Multiplicity(snapshot(t, r))
		var head Key
		for k, c := range counts {
			if c > counts[head] {
				head = k
			}
		}
		heads[head] = true
	}
	assert.Greater(t, len(heads), 1, "most frequent key varies between calls")
}

func TestSequentialDeterminism(t *testing.T) {
	cases := map[string]func() (*Relation, error){
		"nonunique":  func() (*Relation, error) { return CreateNonUnique(5000, 100) },
		"pk":         func() (*Relation, error) { return CreatePrimaryKey(5000, Sequential) },
		"fk":         func() (*Relation, error) { return CreateForeignKey(5000, 100, Sequential) },
		"fk_uniform": func() (*Relation, error) { return CreateForeignKey(5001, 100, Sequential) },
		"zipf":       func() (*Relation, error) { return CreateZipfian(5000, 100, 1.2) },
		"fk_from_pk": func() (*Relation, error) {
			pk, err := CreatePrimaryKey(100, Sequential)
			if err != nil {
				return nil, err
			}
			defer pk.Close()
			return CreateForeignKeyFromPrimaryKey(pk, 5000)
		},
	}
	for name, create := range cases {
		Seed(99)
		a, err := create()
		require.NoError(t, err, name)
		Seed(99)
		b, err := create()
		require.NoError(t, err, name)
		Seed(100)
		c, err := create()
		require.NoError(t, err, name)

		first, second, other := snapshot(t, a), snapshot(t, b), snapshot(t, c)
		assert.Equal(t, first, second, name)
		assert.NotEqual(t, first, other, name)
	}
}

func TestParallelDeterminism(t *testing.T) {
	run := func(seed uint32, workers int) ([]Tuple, []Tuple) {
		Seed(seed)
		pk, err := CreatePrimaryKey(10000, Parallel(workers))
		require.NoError(t, err)
		fk, err := CreateForeignKey(10000, 100, Parallel(workers))
		require.NoError(t, err)
		return snapshot(t, pk), snapshot(t, fk)
	}

	pk1, fk1 := run(7, 4)
	pk2, fk2 := run(7, 4)
	assert.Equal(t, pk1, pk2)
	assert.Equal(t, fk1, fk2)

	pk3, _ := run(8, 4)
	assert.NotEqual(t, pk1, pk3)
}

func TestPayloadModes(t *testing.T) {
	t.Parallel()

	r, err := CreateZipfian(1000, 50, 1, WithPayload(PayloadKey), WithSource(NewSource(1)))
	require.NoError(t, err)
	for _, tp := range snapshot(t, r) {
		require.Equal(t, Payload(tp.Key), tp.Payload)
	}

	r, err = CreateForeignKey(1000, 10, Parallel(3), WithSource(NewSource(1)))
	require.NoError(t, err)
	for i, tp := range snapshot(t, r) {
		require.Equal(t, Payload(i), tp.Payload)
	}
}

func TestInvalidParametersAllocateNothing(t *testing.T) {
	t.Parallel()

	src := NewSource(1)
	closed, err := CreatePrimaryKey(10, Sequential, WithSource(src))
	require.NoError(t, err)
	require.NoError(t, closed.Close())

	empty, err := CreatePrimaryKey(0, Sequential, WithSource(src))
	require.NoError(t, err)
	defer empty.Close()

	cases := map[string]func(a *Allocator) (*Relation, error){
		"nonunique zero len":   func(a *Allocator) (*Relation, error) { return CreateNonUnique(0, 10, WithAllocator(a)) },
		"zipf zero skew":       func(a *Allocator) (*Relation, error) { return CreateZipfian(100, 10, 0.0, WithAllocator(a)) },
		"pk zero workers":      func(a *Allocator) (*Relation, error) { return CreatePrimaryKey(10, Parallel(0), WithAllocator(a)) },
		"pk too many workers":  func(a *Allocator) (*Relation, error) { return CreatePrimaryKey(10, Parallel(MaxWorkers+1), WithAllocator(a)) },
		"pk negative len":      func(a *Allocator) (*Relation, error) { return CreatePrimaryKey(-1, Sequential, WithAllocator(a)) },
		"nonunique zero max":   func(a *Allocator) (*Relation, error) { return CreateNonUnique(10, 0, WithAllocator(a)) },
		"fk negative max":      func(a *Allocator) (*Relation, error) { return CreateForeignKey(10, -3, Sequential, WithAllocator(a)) },
		"fk unknown remainder": func(a *Allocator) (*Relation, error) {
			return CreateForeignKey(10, 3, Sequential, WithAllocator(a), WithRemainderPolicy(RemainderPolicy(9)))
		},
		"zipf nan skew":       func(a *Allocator) (*Relation, error) { return CreateZipfian(100, 10, math.NaN(), WithAllocator(a)) },
		"zipf negative skew":  func(a *Allocator) (*Relation, error) { return CreateZipfian(100, 10, -1, WithAllocator(a)) },
		"zipf zero len":       func(a *Allocator) (*Relation, error) { return CreateZipfian(0, 10, 1, WithAllocator(a)) },
		"fk_from_pk nil":      func(a *Allocator) (*Relation, error) { return CreateForeignKeyFromPrimaryKey(nil, 10, WithAllocator(a)) },
		"fk_from_pk closed":   func(a *Allocator) (*Relation, error) { return CreateForeignKeyFromPrimaryKey(closed, 10, WithAllocator(a)) },
		"fk_from_pk empty":    func(a *Allocator) (*Relation, error) { return CreateForeignKeyFromPrimaryKey(empty, 10, WithAllocator(a)) },
		"fk_from_pk zero len": func(a *Allocator) (*Relation, error) { return CreateForeignKeyFromPrimaryKey(empty, 0, WithAllocator(a)) },
		"unknown payload": func(a *Allocator) (*Relation, error) {
			return CreateNonUnique(10, 10, WithAllocator(a), WithPayload(PayloadMode(7)))
		},
	}
	for name, create := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := NewAllocator(0)
			r, err := create(a)
			assert.Nil(t, r)
			require.ErrorIs(t, err, ErrInvalidParameter)

			var pe *ParamError
			assert.ErrorAs(t, err, &pe)
			assert.Equal(t, AllocatorStats{}, a.Stats())
		})
	}
}

func TestLengthAboveKeyRangeRejected(t *testing.T) {
	t.Parallel()

	if tuple.Wide {
		t.Skip("int cannot exceed 64-bit keys")
	}
	n := int(MaxKey)
	n++
	a := NewAllocator(0)
	_, err := CreatePrimaryKey(n, Sequential, WithAllocator(a))
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Zero(t, a.Stats().Allocations)
}

func TestMemoryLimit(t *testing.T) {
	t.Parallel()

	a := NewAllocator(int64(1000 * TupleSize))
	_, err := CreatePrimaryKey(1001, Parallel(2), WithAllocator(a))
	require.ErrorIs(t, err, ErrAllocationFailure)
	assert.Equal(t, AllocatorStats{Failures: 1}, a.Stats())

	r, err := CreatePrimaryKey(1000, Parallel(2), WithAllocator(a))
	require.NoError(t, err)
	assert.Equal(t, int64(1000*TupleSize), r.SizeBytes())
	require.NoError(t, r.Close())
	assert.Equal(t, AllocatorStats{Allocations: 1, Releases: 1, Failures: 1}, a.Stats())
}

func TestZipfianTableCountsAgainstMemoryLimit(t *testing.T) {
	t.Parallel()

	a := NewAllocator(64)
	r, err := CreateZipfian(4, math.MaxInt32, 1.0, WithAllocator(a))
	assert.Nil(t, r)
	require.ErrorIs(t, err, ErrAllocationFailure)
	assert.Equal(t, AllocatorStats{Failures: 1}, a.Stats())

	// The table is returned to the budget once the relation is built.
	b := NewAllocator(int64(1000*(8+TupleSize)) + 4*int64(TupleSize))
	r, err = CreateZipfian(4, 1000, 1.0, WithAllocator(b))
	require.NoError(t, err)
	assert.Equal(t, AllocatorStats{Allocations: 1, LiveBytes: int64(4 * TupleSize)}, b.Stats())
	require.NoError(t, r.Close())
}

type failingGenerator struct {
	err   error
	panic bool
}

func (g failingGenerator) Fill(_ *rand.Rand, dst []tuple.Tuple, _ generators.FillContext) error {
	if g.panic {
		_ = dst[len(dst)]
	}
	return g.err
}

func TestFailedFillReleasesBuffer(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	cases := map[string]struct {
		gen  failingGenerator
		mode BuildMode
		want error
	}{
		"sequential error": {failingGenerator{err: boom}, Sequential, boom},
		"parallel error":   {failingGenerator{err: boom}, Parallel(4), boom},
		"parallel panic":   {failingGenerator{panic: true}, Parallel(4), ErrGenerationFailure},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := NewAllocator(0)
			o := buildOptions([]Option{WithAllocator(a), WithSource(NewSource(1))})
			r, err := build(100, tc.mode, o, tc.gen, partition.Split)
			assert.Nil(t, r)
			require.ErrorIs(t, err, tc.want)

			st := a.Stats()
			assert.Equal(t, int64(1), st.Allocations)
			assert.Equal(t, int64(1), st.Releases)
			assert.Zero(t, st.LiveBytes)
		})
	}
}

func TestConcurrentCallsOnSharedSource(t *testing.T) {
	t.Parallel()

	src := NewSource(1)
	errs := make(chan error, 8)
	for i := range 8 {
		go func() {
			r, err := CreatePrimaryKey(1000+i, Parallel(2), WithSource(src))
			if err == nil {
				if !verify.IsPermutation(snapshotNoT(r), 1, int64(1000+i)) {
					err = fmt.Errorf("relation %d is not a permutation", i)
				}
			}
			errs <- err
		}()
	}
	for range 8 {
		assert.NoError(t, <-errs)
	}
}

func snapshotNoT(r *Relation) []Tuple {
	defer r.Close()
	var out []Tuple
	_ = r.Scan(func(ts []Tuple) error {
		out = append(out, ts...)
		return nil
	})
	return out
}

func TestBuildMode(t *testing.T) {
	t.Parallel()

	assert.False(t, Sequential.IsParallel())
	assert.Equal(t, 1, Sequential.Workers())
	assert.Equal(t, "sequential", Sequential.String())

	m := Parallel(6)
	assert.True(t, m.IsParallel())
	assert.Equal(t, 6, m.Workers())
	assert.Equal(t, "parallel(6)", m.String())
	assert.NoError(t, m.validate())
	assert.ErrorIs(t, Parallel(0).validate(), ErrInvalidParameter)
}
