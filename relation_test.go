package relgen

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseReleasesOnce(t *testing.T) {
	t.Parallel()

	a := NewAllocator(0)
	r, err := CreatePrimaryKey(64, Sequential, WithAllocator(a), WithSource(NewSource(1)))
	require.NoError(t, err)
	assert.False(t, r.Closed())
	assert.Equal(t, AllocatorStats{Allocations: 1, LiveBytes: int64(64 * TupleSize)}, a.Stats())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, r.Closed())
	assert.Equal(t, AllocatorStats{Allocations: 1, Releases: 1}, a.Stats())
}

func TestConcurrentCloseReleasesOnce(t *testing.T) {
	t.Parallel()

	a := NewAllocator(0)
	r, err := CreateNonUnique(1000, 10, WithAllocator(a), WithSource(NewSource(1)))
	require.NoError(t, err)

	done := make(chan struct{})
	for range 16 {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = r.Close()
		}()
	}
	for range 16 {
		<-done
	}
	assert.Equal(t, int64(1), a.Stats().Releases)
}

func TestClosedRelationAccessors(t *testing.T) {
	t.Parallel()

	r, err := CreatePrimaryKey(10, Sequential, WithSource(NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, 10, r.Len())
	assert.Zero(t, r.SizeBytes())
	assert.Nil(t, r.Keys())
	assert.ErrorIs(t, r.Scan(func([]Tuple) error { return nil }), ErrClosed)
	assert.PanicsWithValue(t, ErrClosed, func() { r.At(0) })
	for range r.All() {
		t.Fatal("closed relation yielded a tuple")
	}
	assert.Equal(t, "Relation(len=10, closed)", r.String())
}

func TestUnreachableRelationIsReleased(t *testing.T) {
	t.Parallel()

	a := NewAllocator(0)
	func() {
		_, err := CreatePrimaryKey(1000, Sequential, WithAllocator(a), WithSource(NewSource(1)))
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return a.Stats().Releases == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, a.Stats().LiveBytes)
}

func TestAccessors(t *testing.T) {
	t.Parallel()

	r, err := CreatePrimaryKey(100, Sequential, WithSource(NewSource(9)))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 100, r.Len())
	assert.Equal(t, int64(100*TupleSize), r.SizeBytes())
	assert.Equal(t, "Relation(len=100, open)", r.String())

	keys := r.Keys()
	require.Len(t, keys, 100)
	keys[0] = -1
	assert.NotEqual(t, Key(-1), r.At(0).Key, "Keys returns a copy")

	n := 0
	for i, tp := range r.All() {
		assert.Equal(t, r.At(i), tp)
		n++
		if n == 40 {
			break
		}
	}
	assert.Equal(t, 40, n)

	stop := errors.New("stop")
	err = r.Scan(func(ts []Tuple) error {
		assert.Len(t, ts, 100)
		assert.Equal(t, r.At(99), ts[99])
		return stop
	})
	assert.ErrorIs(t, err, stop)

	assert.Panics(t, func() { r.At(100) })
}
