package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAllocator hands out dirty chunks so zero-filling is observable
type fakeAllocator struct {
	chunks    [][]byte
	calls     int
	failAfter int // fail the call after this many successes; 0 never fails
	releases  int
	released  bool
}

var errNoMemory = errors.New("cannot allocate memory")

func (f *fakeAllocator) Acquire(n int) ([]byte, error) {
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, errNoMemory
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xAA
	}
	f.chunks = append(f.chunks, b)
	return b, nil
}

func (f *fakeAllocator) Release() error {
	f.releases++
	f.released = true
	f.chunks = nil
	return nil
}

func (f *fakeAllocator) Name() string { return "fake" }

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(-1, 1024, &fakeAllocator{})
	assert.Error(t, err)

	_, err = NewSession(1024, 0, &fakeAllocator{})
	assert.Error(t, err)

	_, err = NewSession(1024, 1024, nil)
	assert.Error(t, err)

	s, err := NewSession(0, DefaultChunkSize, &fakeAllocator{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Target())
	assert.Equal(t, 1024, s.ChunkSize())
	assert.Equal(t, "fake", s.Allocator())
}

func TestChunkCount(t *testing.T) {
	tests := []struct {
		target int64
		chunk  int
		want   int64
	}{
		{0, 1024, 0},
		{1, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{52428800, 1024, 51200},
		{10, 3, 4},
		{-5, 1024, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkCount(tt.target, tt.chunk), "target=%d chunk=%d", tt.target, tt.chunk)
	}
}

func TestEat_AcquisitionCountAndZeroFill(t *testing.T) {
	tests := []struct {
		name   string
		target int64
		chunk  int
	}{
		{"exact multiple", 4096, 1024},
		{"partial last chunk", 5000, 1024},
		{"single byte", 1, 1024},
		{"odd chunk", 1000, 7},
		{"nothing", 0, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAllocator{}
			s, err := NewSession(tt.target, tt.chunk, fa)
			require.NoError(t, err)

			elapsed, err := s.Eat(context.Background())
			require.NoError(t, err)
			assert.GreaterOrEqual(t, elapsed.Nanoseconds(), int64(0))

			want := ChunkCount(tt.target, tt.chunk)
			assert.Equal(t, int(want), fa.calls)
			assert.Equal(t, want, s.Acquisitions())
			assert.Equal(t, want*int64(tt.chunk), s.Acquired())
			assert.GreaterOrEqual(t, s.Acquired(), tt.target)

			for i, c := range fa.chunks {
				require.Len(t, c, tt.chunk)
				for _, b := range c {
					if b != 0 {
						t.Fatalf("chunk %d was not zero-filled", i)
					}
				}
			}
		})
	}
}

func TestEat_FiftyMegabytes(t *testing.T) {
	fa := &fakeAllocator{}
	s, err := NewSession(52428800, DefaultChunkSize, fa)
	require.NoError(t, err)

	_, err = s.Eat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 51200, fa.calls)
	assert.Equal(t, int64(51200), s.Acquisitions())
}

func TestEat_AllocationFailure(t *testing.T) {
	fa := &fakeAllocator{failAfter: 3}
	s, err := NewSession(10*1024, 1024, fa)
	require.NoError(t, err)

	elapsed, err := s.Eat(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllocationFailed)
	assert.ErrorIs(t, err, errNoMemory)
	assert.Zero(t, elapsed)

	// stopped immediately, earlier chunks still held
	assert.Equal(t, 4, fa.calls)
	assert.Equal(t, int64(3), s.Acquisitions())
	assert.False(t, fa.released)

	released, err := s.Release()
	require.NoError(t, err)
	assert.True(t, released)
	assert.True(t, fa.released)
}

func TestEat_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fa := &fakeAllocator{}
	s, err := NewSession(1<<20, 1024, fa)
	require.NoError(t, err)

	_, err = s.Eat(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fa.calls)
}

func TestEat_CancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fa := &fakeAllocator{}
	s, err := NewSession(1<<20, 1024, fa)
	require.NoError(t, err)
	s.SetProgress(10, func(acquired, target int64) {
		cancel()
	})

	_, err = s.Eat(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, fa.calls)
}

func TestEat_AfterRelease(t *testing.T) {
	fa := &fakeAllocator{}
	s, err := NewSession(4096, 1024, fa)
	require.NoError(t, err)

	_, err = s.Release()
	require.NoError(t, err)

	_, err = s.Eat(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, 0, fa.calls)
}

func TestEat_Progress(t *testing.T) {
	fa := &fakeAllocator{}
	s, err := NewSession(10*1024, 1024, fa)
	require.NoError(t, err)

	var reports []int64
	s.SetProgress(4, func(acquired, target int64) {
		assert.Equal(t, int64(10*1024), target)
		reports = append(reports, acquired)
	})

	_, err = s.Eat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{4 * 1024, 8 * 1024, 10 * 1024}, reports)
}

func TestRelease_ExactlyOnce(t *testing.T) {
	fa := &fakeAllocator{}
	s, err := NewSession(4096, 1024, fa)
	require.NoError(t, err)
	_, err = s.Eat(context.Background())
	require.NoError(t, err)

	var winners atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			released, err := s.Release()
			assert.NoError(t, err)
			if released {
				winners.Add(1)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 1, fa.releases)
	assert.True(t, s.Released())
}
