package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mmrzaf/relgen"
	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/generators"
)

// Env carries what a Builder needs beyond the relation spec.
type Env struct {
	// Ref is the generated relation named by spec.References, if any.
	Ref *relgen.Relation
	// DefaultWorkers applies to parallel-capable kinds whose spec sets no
	// worker count. 0 means sequential.
	DefaultWorkers int
	Options        []relgen.Option
}

// Builder turns a relation spec into a generated relation.
type Builder interface {
	Validate(spec domain.RelationSpec) error
	Build(spec domain.RelationSpec, env Env) (*relgen.Relation, error)
	// Parallel reports whether the kind honours a worker count.
	Parallel() bool
	// NeedsReference reports whether spec.References must name a relation.
	NeedsReference() bool
}

type DistributionRegistry struct {
	mu       sync.RWMutex
	builders map[domain.Kind]Builder
}

func NewDistributionRegistry() *DistributionRegistry {
	return &DistributionRegistry{
		builders: make(map[domain.Kind]Builder),
	}
}

func (r *DistributionRegistry) Register(kind domain.Kind, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[kind] = b
}

func (r *DistributionRegistry) Get(kind domain.Kind) (Builder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("distribution not found: %s", kind)
	}
	return b, nil
}

func (r *DistributionRegistry) List() []domain.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]domain.Kind, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func DefaultDistributionRegistry() *DistributionRegistry {
	r := NewDistributionRegistry()
	r.Register(domain.KindNonUnique, nonUniqueBuilder{})
	r.Register(domain.KindPrimaryKey, primaryKeyBuilder{})
	r.Register(domain.KindForeignKey, foreignKeyBuilder{})
	r.Register(domain.KindFKFromPK, fkFromPKBuilder{})
	r.Register(domain.KindZipf, zipfBuilder{})
	return r
}

// PayloadMode maps a workload payload name to its library mode. Empty means
// row ids.
func PayloadMode(s string) (relgen.PayloadMode, error) {
	switch s {
	case "", domain.PayloadRowID:
		return relgen.PayloadRowID, nil
	case domain.PayloadKey:
		return relgen.PayloadKey, nil
	default:
		return 0, domain.InvalidParam("payload", s, "must be row_id or key")
	}
}

// RemainderPolicy maps a workload remainder name to its library policy.
// Empty means uniform.
func RemainderPolicy(s string) (relgen.RemainderPolicy, error) {
	switch s {
	case "", domain.RemainderUniform:
		return relgen.RemainderUniform, nil
	case domain.RemainderBlocks:
		return relgen.RemainderBlocks, nil
	default:
		return 0, domain.InvalidParam("remainder", s, "must be uniform or blocks")
	}
}

// BuildMode resolves the fill mode of a parallel-capable spec.
func BuildMode(spec domain.RelationSpec, defaultWorkers int) relgen.BuildMode {
	w := spec.Workers
	if w == 0 {
		w = defaultWorkers
	}
	if w <= 0 {
		return relgen.Sequential
	}
	return relgen.Parallel(w)
}

func options(spec domain.RelationSpec, env Env) ([]relgen.Option, error) {
	payload, err := PayloadMode(spec.Payload)
	if err != nil {
		return nil, err
	}
	opts := append([]relgen.Option{relgen.WithPayload(payload)}, env.Options...)
	return opts, nil
}

// validateCommon checks the fields every kind shares.
func validateCommon(spec domain.RelationSpec, b Builder) error {
	if _, err := PayloadMode(spec.Payload); err != nil {
		return err
	}
	if spec.Workers < 0 || spec.Workers > relgen.MaxWorkers {
		return domain.InvalidParam("workers", spec.Workers, fmt.Sprintf("must be in [0, %d]", relgen.MaxWorkers))
	}
	if spec.Workers > 0 && !b.Parallel() {
		return domain.InvalidParam("workers", spec.Workers, fmt.Sprintf("%s relations are generated sequentially", spec.Kind))
	}
	if spec.References != "" && !b.NeedsReference() {
		return domain.InvalidParam("references", spec.References, fmt.Sprintf("%s relations do not reference another relation", spec.Kind))
	}
	if spec.Remainder != "" && spec.Kind != domain.KindForeignKey {
		return domain.InvalidParam("remainder", spec.Remainder, "only foreign_key relations have a remainder policy")
	}
	return nil
}

type nonUniqueBuilder struct{}

func (b nonUniqueBuilder) Parallel() bool       { return false }
func (b nonUniqueBuilder) NeedsReference() bool { return false }

func (b nonUniqueBuilder) Validate(spec domain.RelationSpec) error {
	if err := validateCommon(spec, b); err != nil {
		return err
	}
	if err := generators.ValidateLen(spec.Len, false); err != nil {
		return err
	}
	return generators.ValidateMaxID(spec.MaxID)
}

func (b nonUniqueBuilder) Build(spec domain.RelationSpec, env Env) (*relgen.Relation, error) {
	opts, err := options(spec, env)
	if err != nil {
		return nil, err
	}
	return relgen.CreateNonUnique(spec.Len, spec.MaxID, opts...)
}

type primaryKeyBuilder struct{}

func (b primaryKeyBuilder) Parallel() bool       { return true }
func (b primaryKeyBuilder) NeedsReference() bool { return false }

func (b primaryKeyBuilder) Validate(spec domain.RelationSpec) error {
	if err := validateCommon(spec, b); err != nil {
		return err
	}
	if spec.MaxID != 0 {
		return domain.InvalidParam("max_id", spec.MaxID, "primary_key keys are always 1..len")
	}
	return generators.ValidateLen(spec.Len, true)
}

func (b primaryKeyBuilder) Build(spec domain.RelationSpec, env Env) (*relgen.Relation, error) {
	opts, err := options(spec, env)
	if err != nil {
		return nil, err
	}
	return relgen.CreatePrimaryKey(spec.Len, BuildMode(spec, env.DefaultWorkers), opts...)
}

type foreignKeyBuilder struct{}

func (b foreignKeyBuilder) Parallel() bool       { return true }
func (b foreignKeyBuilder) NeedsReference() bool { return false }

func (b foreignKeyBuilder) Validate(spec domain.RelationSpec) error {
	if err := validateCommon(spec, b); err != nil {
		return err
	}
	if _, err := RemainderPolicy(spec.Remainder); err != nil {
		return err
	}
	if err := generators.ValidateLen(spec.Len, true); err != nil {
		return err
	}
	return generators.ValidateMaxID(spec.MaxID)
}

func (b foreignKeyBuilder) Build(spec domain.RelationSpec, env Env) (*relgen.Relation, error) {
	opts, err := options(spec, env)
	if err != nil {
		return nil, err
	}
	policy, err := RemainderPolicy(spec.Remainder)
	if err != nil {
		return nil, err
	}
	opts = append(opts, relgen.WithRemainderPolicy(policy))
	return relgen.CreateForeignKey(spec.Len, spec.MaxID, BuildMode(spec, env.DefaultWorkers), opts...)
}

type fkFromPKBuilder struct{}

func (b fkFromPKBuilder) Parallel() bool       { return false }
func (b fkFromPKBuilder) NeedsReference() bool { return true }

func (b fkFromPKBuilder) Validate(spec domain.RelationSpec) error {
	if err := validateCommon(spec, b); err != nil {
		return err
	}
	if spec.References == "" {
		return domain.InvalidParam("references", spec.References, "fk_from_pk relations must name the relation they reference")
	}
	return generators.ValidateLen(spec.Len, false)
}

func (b fkFromPKBuilder) Build(spec domain.RelationSpec, env Env) (*relgen.Relation, error) {
	if env.Ref == nil {
		return nil, fmt.Errorf("relation '%s': referenced relation '%s' not yet generated", spec.Name, spec.References)
	}
	opts, err := options(spec, env)
	if err != nil {
		return nil, err
	}
	return relgen.CreateForeignKeyFromPrimaryKey(env.Ref, spec.Len, opts...)
}

type zipfBuilder struct{}

func (b zipfBuilder) Parallel() bool       { return false }
func (b zipfBuilder) NeedsReference() bool { return false }

func (b zipfBuilder) Validate(spec domain.RelationSpec) error {
	if err := validateCommon(spec, b); err != nil {
		return err
	}
	if err := generators.ValidateLen(spec.Len, false); err != nil {
		return err
	}
	if err := generators.ValidateMaxID(spec.MaxID); err != nil {
		return err
	}
	return generators.ValidateSkew(spec.Skew)
}

func (b zipfBuilder) Build(spec domain.RelationSpec, env Env) (*relgen.Relation, error) {
	opts, err := options(spec, env)
	if err != nil {
		return nil, err
	}
	return relgen.CreateZipfian(spec.Len, spec.MaxID, spec.Skew, opts...)
}
