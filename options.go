package relgen

import (
	"github.com/mmrzaf/relgen/internal/buffer"
	"github.com/mmrzaf/relgen/internal/generators"
	"github.com/mmrzaf/relgen/internal/random"
)

// Option configures a single Create call.
type Option func(*options)

type options struct {
	alloc     *buffer.Allocator
	source    *random.Source
	payload   generators.PayloadMode
	remainder generators.RemainderPolicy
}

func buildOptions(opts []Option) options {
	o := options{
		alloc:  buffer.Default(),
		source: random.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithAllocator allocates the relation buffer from a.
func WithAllocator(a *Allocator) Option {
	return func(o *options) {
		if a != nil {
			o.alloc = a
		}
	}
}

// WithSource draws randomness from s instead of the process-wide source.
func WithSource(s *Source) Option {
	return func(o *options) {
		if s != nil {
			o.source = s
		}
	}
}

// WithPayload sets the payload column mode. The default is PayloadRowID.
func WithPayload(m PayloadMode) Option {
	return func(o *options) { o.payload = m }
}

// WithRemainderPolicy sets the CreateForeignKey remainder policy. The
// default is RemainderUniform.
func WithRemainderPolicy(p RemainderPolicy) Option {
	return func(o *options) { o.remainder = p }
}
