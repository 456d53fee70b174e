package relgen

import (
	"runtime"

	"github.com/mmrzaf/relgen/internal/buffer"
	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/generators"
	"github.com/mmrzaf/relgen/internal/partition"
)

// CreateNonUnique returns n tuples whose keys are drawn independently and
// uniformly from [0, maxID].
func CreateNonUnique(n, maxID int, opts ...Option) (*Relation, error) {
	o := buildOptions(opts)
	if err := generators.ValidateLen(n, false); err != nil {
		return nil, err
	}
	g, err := generators.NewUniform(maxID)
	if err != nil {
		return nil, err
	}
	return build(n, Sequential, o, g, nil)
}

// CreatePrimaryKey returns n tuples whose keys are a random permutation of
// [1, n]. In parallel mode each worker permutes the keys of its own range.
func CreatePrimaryKey(n int, mode BuildMode, opts ...Option) (*Relation, error) {
	o := buildOptions(opts)
	if err := mode.validate(); err != nil {
		return nil, err
	}
	if err := generators.ValidateLen(n, true); err != nil {
		return nil, err
	}
	return build(n, mode, o, generators.Permutation{}, partition.Split)
}

// CreateForeignKey returns n tuples with keys in [1, maxID]. If n is a
// multiple of maxID the relation is n/maxID consecutive blocks, each a
// random permutation of [1, maxID]. Otherwise the remainder policy applies
// to the whole relation, in every build mode.
func CreateForeignKey(n, maxID int, mode BuildMode, opts ...Option) (*Relation, error) {
	o := buildOptions(opts)
	if err := mode.validate(); err != nil {
		return nil, err
	}
	if err := generators.ValidateLen(n, true); err != nil {
		return nil, err
	}
	g, err := generators.NewForeignKey(n, maxID, o.remainder)
	if err != nil {
		return nil, err
	}

	split := partition.Split
	if g.Blocks() {
		split = func(length, workers int) ([]partition.Range, error) {
			return partition.SplitBlocks(length, workers, maxID)
		}
	}
	return build(n, mode, o, g, split)
}

// CreateForeignKeyFromPrimaryKey returns n tuples whose keys are drawn
// uniformly from the tuples of pk. Every key exists in pk.
func CreateForeignKeyFromPrimaryKey(pk *Relation, n int, opts ...Option) (*Relation, error) {
	o := buildOptions(opts)
	if pk == nil {
		return nil, domain.InvalidParam("pk", nil, "relation is nil")
	}
	if err := generators.ValidateLen(n, false); err != nil {
		return nil, err
	}
	defer runtime.KeepAlive(pk)
	b := pk.buf.Load()
	if b == nil {
		return nil, domain.InvalidParam("pk", pk, "relation is closed")
	}
	g, err := generators.NewReference(b.Tuples())
	if err != nil {
		return nil, err
	}
	return build(n, Sequential, o, g, nil)
}

// CreateZipfian returns n tuples with keys in [1, maxID] such that the k-th
// most frequent key has expected frequency proportional to 1/k^s. The rank
// to key mapping is shuffled on every call.
func CreateZipfian(n, maxID int, s float64, opts ...Option) (*Relation, error) {
	o := buildOptions(opts)
	if err := generators.ValidateLen(n, false); err != nil {
		return nil, err
	}
	g, err := generators.NewZipf(maxID, s)
	if err != nil {
		return nil, err
	}
	return build(n, Sequential, o, g, nil)
}

type splitFunc func(length, workers int) ([]partition.Range, error)

// build allocates, fills and seals one buffer. Generator scratch memory is
// charged to the same allocator for the duration of the fill. The buffer is
// released on every failure path, so a failed call leaves no allocation
// behind.
func build(n int, mode BuildMode, o options, g generators.Generator, split splitFunc) (*Relation, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	var ranges []partition.Range
	if mode.parallel {
		var err error
		if ranges, err = split(n, mode.workers); err != nil {
			return nil, err
		}
	}

	if sc, ok := g.(generators.Scratch); ok {
		done, err := o.alloc.Reserve(sc.ScratchBytes())
		if err != nil {
			return nil, err
		}
		defer done()
		if err := sc.Prepare(); err != nil {
			return nil, err
		}
	}

	buf, err := o.alloc.Allocate(n)
	if err != nil {
		return nil, err
	}
	if err := fill(buf, ranges, o, g); err != nil {
		_ = buf.Release()
		return nil, err
	}
	if err := buf.Seal(); err != nil {
		_ = buf.Release()
		return nil, err
	}
	return newRelation(buf), nil
}

func fill(buf *buffer.Buffer, ranges []partition.Range, o options, g generators.Generator) error {
	if ranges == nil {
		rng := o.source.Derive()
		return g.Fill(rng, buf.Range(0, buf.Len()), generators.FillContext{Payload: o.payload})
	}

	rngs := o.source.Fork(len(ranges))
	return partition.Run(ranges, func(r partition.Range) error {
		ctx := generators.FillContext{Offset: r.Lo, Payload: o.payload}
		return g.Fill(rngs[r.Index], buf.Range(r.Lo, r.Hi), ctx)
	})
}

func (o options) validate() error {
	switch o.payload {
	case PayloadRowID, PayloadKey:
		return nil
	default:
		return domain.InvalidParam("payload", o.payload, "unknown payload mode")
	}
}
