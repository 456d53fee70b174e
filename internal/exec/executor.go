package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/dustin/go-humanize"
	"github.com/mmrzaf/relgen"
	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/hashing"
	"github.com/mmrzaf/relgen/internal/logging"
	"github.com/mmrzaf/relgen/internal/registry"
	"github.com/mmrzaf/relgen/internal/validation"
	"github.com/mmrzaf/relgen/internal/verify"
)

// Progress reports the position of a running workload.
type Progress struct {
	RelationsDone   int
	RelationsTotal  int
	TuplesGenerated int64
	CurrentRelation string
}

type Options struct {
	Seed   uint32
	Verify bool
	// DefaultWorkers applies to parallel-capable relations without a worker
	// count. 0 means sequential.
	DefaultWorkers int
	OnProgress     func(Progress)
}

type Executor struct {
	distRegistry *registry.DistributionRegistry
	alloc        *relgen.Allocator
	logger       *logging.Logger
}

func NewExecutor(distRegistry *registry.DistributionRegistry, alloc *relgen.Allocator, logger *logging.Logger) *Executor {
	if alloc == nil {
		alloc = relgen.DefaultAllocator()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Executor{distRegistry: distRegistry, alloc: alloc, logger: logger.WithComponent("executor")}
}

// Execute generates every relation of w in dependency order from a source
// seeded with opts.Seed, so equal seeds give equal relations. A relation is
// released as soon as no remaining relation references it; all relations are
// released when Execute returns. ctx is checked between relations.
func (e *Executor) Execute(ctx context.Context, w *domain.Workload, opts Options) (*domain.RunStats, error) {
	order, err := validation.TopologicalSort(w)
	if err != nil {
		return nil, fmt.Errorf("failed to sort relations: %w", err)
	}

	specs := make(map[string]domain.RelationSpec, len(w.Relations))
	dependents := make(map[string]int)
	for _, rel := range w.Relations {
		specs[rel.Name] = rel
		if rel.References != "" {
			dependents[rel.References]++
		}
	}

	live := make(map[string]*relgen.Relation)
	defer func() {
		for _, r := range live {
			_ = r.Close()
		}
	}()
	release := func(name string) {
		if r, ok := live[name]; ok {
			_ = r.Close()
			delete(live, name)
		}
	}

	src := relgen.NewSource(opts.Seed)
	baseOpts := []relgen.Option{relgen.WithSource(src), relgen.WithAllocator(e.alloc)}

	started := time.Now()
	stats := &domain.RunStats{
		RelationStats: make([]domain.RelationRunStats, 0, len(order)),
	}

	for i, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := specs[name]
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				RelationsDone:   i,
				RelationsTotal:  len(order),
				TuplesGenerated: stats.TotalTuples,
				CurrentRelation: name,
			})
		}

		b, err := e.distRegistry.Get(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("relation '%s': %w", name, err)
		}

		relStart := time.Now()
		env := registry.Env{
			Ref:            live[spec.References],
			DefaultWorkers: opts.DefaultWorkers,
			Options:        baseOpts,
		}
		rel, err := b.Build(spec, env)
		if err != nil {
			e.logger.Errorw("relation.failed", map[string]any{"relation": name, "kind": spec.Kind, "error": err})
			return nil, fmt.Errorf("relation '%s': %w", name, err)
		}
		live[name] = rel
		genDuration := time.Since(relStart)

		workers := 1
		if b.Parallel() {
			workers = registry.BuildMode(spec, opts.DefaultWorkers).Workers()
		}
		rs, err := e.describe(spec, rel, live[spec.References], opts.Verify)
		if err != nil {
			return nil, fmt.Errorf("relation '%s': %w", name, err)
		}
		rs.Workers = workers
		rs.DurationSeconds = genDuration.Seconds()

		e.logger.Infow("relation.generated", map[string]any{
			"relation": name,
			"kind":     spec.Kind,
			"tuples":   rs.Tuples,
			"size":     humanize.IBytes(uint64(rs.Bytes)),
			"workers":  workers,
			"duration": genDuration.String(),
		})

		if rs.Violations != nil && *rs.Violations > 0 {
			return nil, fmt.Errorf("%w: relation '%s' failed verification with %d violations",
				domain.ErrGenerationFailure, name, *rs.Violations)
		}

		stats.RelationStats = append(stats.RelationStats, rs)
		stats.RelationsGenerated++
		stats.TotalTuples += int64(rs.Tuples)
		stats.TotalBytes += rs.Bytes

		if spec.References != "" {
			dependents[spec.References]--
			if dependents[spec.References] == 0 {
				release(spec.References)
			}
		}
		if dependents[name] == 0 {
			release(name)
		}
	}

	stats.DurationSeconds = time.Since(started).Seconds()
	if opts.OnProgress != nil {
		opts.OnProgress(Progress{
			RelationsDone:   len(order),
			RelationsTotal:  len(order),
			TuplesGenerated: stats.TotalTuples,
		})
	}
	return stats, nil
}

// describe computes the key summary of rel and, if requested, checks it
// against the guarantees of its distribution.
func (e *Executor) describe(spec domain.RelationSpec, rel, ref *relgen.Relation, check bool) (domain.RelationRunStats, error) {
	rs := domain.RelationRunStats{
		Name:  spec.Name,
		Kind:  spec.Kind,
		Bytes: rel.SizeBytes(),
	}

	var refKeys *roaring64.Bitmap
	if check && ref != nil {
		if err := ref.Scan(func(ts []relgen.Tuple) error {
			refKeys = verify.KeySet(ts)
			return nil
		}); err != nil {
			return rs, err
		}
	}

	err := rel.Scan(func(ts []relgen.Tuple) error {
		s := verify.Summarize(ts)
		rs.Tuples = s.Tuples
		rs.DistinctKeys = s.Distinct
		rs.MinKey = s.MinKey
		rs.MaxKey = s.MaxKey
		rs.Checksum = hashing.Checksum(ts)

		if check {
			v := violations(spec, ts, s, refKeys)
			rs.Violations = &v
			if spec.Kind == domain.KindZipf {
				rs.TopRankFreq = verify.RankFrequencies(ts, 10)
				x2 := verify.ZipfChiSquare(ts, spec.MaxID, spec.Skew, min(20, spec.MaxID))
				rs.ChiSquare = &x2
			}
		}
		return nil
	})
	return rs, err
}

func violations(spec domain.RelationSpec, ts []relgen.Tuple, s verify.Summary, refKeys *roaring64.Bitmap) uint64 {
	switch spec.Kind {
	case domain.KindPrimaryKey:
		n := uint64(len(ts))
		return (n - s.Distinct) + verify.Missing(ts, 1, int64(len(ts)))
	case domain.KindForeignKey:
		if len(ts)%spec.MaxID == 0 {
			return multiplicityViolations(ts, spec.MaxID, len(ts)/spec.MaxID)
		}
		return outOfRange(ts, 1, int64(spec.MaxID))
	case domain.KindFKFromPK:
		if refKeys == nil {
			return uint64(len(ts))
		}
		return verify.Violations(ts, refKeys)
	case domain.KindNonUnique:
		return outOfRange(ts, 0, int64(spec.MaxID))
	case domain.KindZipf:
		return outOfRange(ts, 1, int64(spec.MaxID))
	default:
		return 0
	}
}

// multiplicityViolations counts the keys of [1, maxID] that do not occur
// exactly k times, plus tuples with keys outside that range.
func multiplicityViolations(ts []relgen.Tuple, maxID, k int) uint64 {
	var bad uint64
	counts := verify.Multiplicity(ts)
	for key := 1; key <= maxID; key++ {
		if counts[relgen.Key(key)] != k {
			bad++
		}
	}
	return bad + outOfRange(ts, 1, int64(maxID))
}

func outOfRange(ts []relgen.Tuple, lo, hi int64) uint64 {
	var bad uint64
	for _, t := range ts {
		if k := int64(t.Key); k < lo || k > hi {
			bad++
		}
	}
	return bad
}
