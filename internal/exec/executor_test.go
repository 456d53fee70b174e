package exec

import (
	"context"
	"testing"

	"github.com/mmrzaf/relgen"
	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/registry"
	"github.com/mmrzaf/relgen/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starWorkload() *domain.Workload {
	return &domain.Workload{
		ID:   "star",
		Name: "star-join",
		Relations: []domain.RelationSpec{
			{Name: "fact", Kind: domain.KindFKFromPK, Len: 20000, References: "dim"},
			{Name: "dim", Kind: domain.KindPrimaryKey, Len: 1000, Workers: 4},
			{Name: "bridge", Kind: domain.KindFKFromPK, Len: 500, References: "fact"},
			{Name: "blocks", Kind: domain.KindForeignKey, Len: 3000, MaxID: 100},
			{Name: "noise", Kind: domain.KindNonUnique, Len: 500, MaxID: 9},
			{Name: "skewed", Kind: domain.KindZipf, Len: 20000, MaxID: 200, Skew: 1},
		},
	}
}

func newExecutor(alloc *relgen.Allocator) *Executor {
	return NewExecutor(registry.DefaultDistributionRegistry(), alloc, nil)
}

func TestExecuteGeneratesInDependencyOrder(t *testing.T) {
	alloc := relgen.NewAllocator(0)
	var progress []Progress
	stats, err := newExecutor(alloc).Execute(context.Background(), starWorkload(), Options{
		Seed:       7,
		Verify:     true,
		OnProgress: func(p Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	names := make([]string, 0, len(stats.RelationStats))
	for _, rs := range stats.RelationStats {
		names = append(names, rs.Name)
	}
	assert.Equal(t, []string{"blocks", "dim", "fact", "bridge", "noise", "skewed"}, names)
	assert.Equal(t, 6, stats.RelationsGenerated)
	assert.Equal(t, int64(20000+1000+500+3000+500+20000), stats.TotalTuples)
	assert.Equal(t, stats.TotalTuples*int64(relgen.TupleSize), stats.TotalBytes)

	for _, rs := range stats.RelationStats {
		require.NotNil(t, rs.Violations, rs.Name)
		assert.Zero(t, *rs.Violations, rs.Name)
		assert.Len(t, rs.Checksum, 64)
	}

	dim := stats.RelationStats[1]
	assert.Equal(t, uint64(1000), dim.DistinctKeys)
	assert.Equal(t, int64(1), dim.MinKey)
	assert.Equal(t, int64(1000), dim.MaxKey)
	assert.Equal(t, 4, dim.Workers)

	skewed := stats.RelationStats[5]
	require.Len(t, skewed.TopRankFreq, 10)
	assert.Greater(t, skewed.TopRankFreq[0], skewed.TopRankFreq[1])
	require.NotNil(t, skewed.ChiSquare)

	require.Len(t, progress, 7)
	assert.Equal(t, Progress{RelationsDone: 0, RelationsTotal: 6, CurrentRelation: "blocks"}, progress[0])
	assert.Equal(t, Progress{RelationsDone: 6, RelationsTotal: 6, TuplesGenerated: stats.TotalTuples}, progress[6])

	st := alloc.Stats()
	assert.Equal(t, int64(6), st.Allocations)
	assert.Equal(t, st.Allocations, st.Releases)
	assert.Zero(t, st.LiveBytes)
}

func TestExecuteIsReproducible(t *testing.T) {
	run := func(seed uint32) []string {
		stats, err := newExecutor(nil).Execute(context.Background(), starWorkload(), Options{Seed: seed, DefaultWorkers: 2})
		require.NoError(t, err)
		sums := make([]string, 0, len(stats.RelationStats))
		for _, rs := range stats.RelationStats {
			assert.Nil(t, rs.Violations, "unverified runs carry no violation count")
			sums = append(sums, rs.Checksum)
		}
		return sums
	}

	a, b, c := run(11), run(11), run(12)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestExecuteReleasesOnFailure(t *testing.T) {
	alloc := relgen.NewAllocator(int64(5000 * relgen.TupleSize))
	w := starWorkload()

	_, err := newExecutor(alloc).Execute(context.Background(), w, Options{Seed: 1})
	require.ErrorIs(t, err, domain.ErrAllocationFailure)

	st := alloc.Stats()
	assert.Equal(t, int64(2), st.Allocations, "blocks and dim fit, fact does not")
	assert.Equal(t, st.Allocations, st.Releases)
	assert.Zero(t, st.LiveBytes)
	assert.Equal(t, int64(1), st.Failures)
}

func TestExecuteRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newExecutor(nil).Execute(ctx, starWorkload(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestViolations(t *testing.T) {
	keys := func(ks ...int) []relgen.Tuple {
		ts := make([]relgen.Tuple, len(ks))
		for i, k := range ks {
			ts[i].Key = relgen.Key(k)
		}
		return ts
	}

	fk := domain.RelationSpec{Kind: domain.KindForeignKey, MaxID: 2}
	assert.Equal(t, uint64(0), multiplicityViolations(keys(1, 2, 2, 1), 2, 2))
	assert.Equal(t, uint64(2), multiplicityViolations(keys(1, 1, 1, 2), 2, 2))
	assert.Equal(t, uint64(1), outOfRange(keys(0, 1, 2), 1, 2))

	ts := keys(1, 3, 3)
	assert.Equal(t, uint64(2), violations(fk, ts, verify.Summarize(ts), nil), "out of range keys")
}
