// Package memory implements the allocation session: the chunked, timed
// acquisition loop and the single release path for everything it acquired.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultChunkSize is the number of bytes acquired per allocation call
const DefaultChunkSize = 1024

var (
	// ErrAllocationFailed is returned when a chunk could not be acquired.
	ErrAllocationFailed = errors.New("could not allocate memory")

	// ErrReleased is returned when a released session is used again.
	ErrReleased = errors.New("session already released")
)

// ProgressFunc is called periodically while a session acquires memory
type ProgressFunc func(acquired, target int64)

// Session is the single in-flight memory hold. It owns every chunk its
// allocator hands out until Release.
type Session struct {
	target    int64
	chunkSize int
	alloc     Allocator
	logger    *slog.Logger

	progress      ProgressFunc
	progressEvery int64

	// mu serializes chunk acquisition against Release
	mu           sync.Mutex
	acquired     int64
	acquisitions int64
	released     atomic.Bool
}

// NewSession creates a session that will acquire target bytes in chunks of
// chunkSize bytes from alloc.
func NewSession(target int64, chunkSize int, alloc Allocator) (*Session, error) {
	if target < 0 {
		return nil, fmt.Errorf("target cannot be negative: %d", target)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive: %d", chunkSize)
	}
	if alloc == nil {
		return nil, fmt.Errorf("allocator cannot be nil")
	}

	return &Session{
		target:    target,
		chunkSize: chunkSize,
		alloc:     alloc,
		logger:    slog.Default(),
	}, nil
}

// SetLogger sets the logger
func (s *Session) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetProgress registers fn to be called after every `every` acquisitions
// and once more when the loop completes.
func (s *Session) SetProgress(every int64, fn ProgressFunc) {
	s.progressEvery = every
	s.progress = fn
}

// Target returns the number of bytes the session acquires
func (s *Session) Target() int64 { return s.target }

// ChunkSize returns the number of bytes requested per acquisition
func (s *Session) ChunkSize() int { return s.chunkSize }

// Allocator returns the name of the allocator backing the session
func (s *Session) Allocator() string { return s.alloc.Name() }

// Released reports whether Release has run
func (s *Session) Released() bool { return s.released.Load() }

// Acquired returns the number of bytes acquired so far
func (s *Session) Acquired() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

// Acquisitions returns the number of successful chunk acquisitions
func (s *Session) Acquisitions() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquisitions
}

// ChunkCount returns the number of acquisitions needed to reach target,
// ceil(target / chunkSize).
func ChunkCount(target int64, chunkSize int) int64 {
	if target <= 0 || chunkSize <= 0 {
		return 0
	}
	c := int64(chunkSize)
	return (target + c - 1) / c
}

// Eat acquires chunks until at least the target has been acquired, zeroing
// each chunk as soon as it is acquired so its pages are committed. It
// returns the wall-clock time the loop took.
//
// A failed acquisition stops the loop with ErrAllocationFailed; chunks
// acquired before it stay held until Release. The context is checked between
// chunks and its error is returned when it is done.
func (s *Session) Eat(ctx context.Context) (time.Duration, error) {
	s.logger.Debug("acquiring memory",
		slog.Int64("target_bytes", s.target),
		slog.Int("chunk_bytes", s.chunkSize),
		slog.Int64("chunks", ChunkCount(s.target, s.chunkSize)),
		slog.String("allocator", s.alloc.Name()),
	)

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		done, report, err := s.eatChunk()
		if report {
			s.progress(s.Acquired(), s.target)
		}
		if err != nil {
			s.logger.Debug("chunk acquisition failed",
				slog.Int64("acquired_bytes", s.Acquired()),
				slog.String("error", err.Error()),
			)
			return 0, err
		}
		if done {
			break
		}
	}
	elapsed := time.Since(start)

	if s.progress != nil {
		s.progress(s.Acquired(), s.target)
	}

	s.logger.Debug("memory acquired",
		slog.Int64("acquired_bytes", s.Acquired()),
		slog.Int64("acquisitions", s.Acquisitions()),
		slog.Duration("elapsed", elapsed),
	)
	return elapsed, nil
}

// eatChunk acquires and zeroes one chunk. It reports done once the target
// has been reached, without acquiring, and report when progress is due.
func (s *Session) eatChunk() (done, report bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released.Load() {
		return false, false, ErrReleased
	}
	if s.acquired >= s.target {
		return true, false, nil
	}

	chunk, err := s.alloc.Acquire(s.chunkSize)
	if err != nil {
		return false, false, fmt.Errorf("%w: chunk %d of %d bytes: %w", ErrAllocationFailed, s.acquisitions+1, s.chunkSize, err)
	}
	clear(chunk)

	s.acquired += int64(len(chunk))
	s.acquisitions++

	report = s.progress != nil && s.progressEvery > 0 && s.acquisitions%s.progressEvery == 0
	return false, report, nil
}

// Release frees everything the session acquired. Only the first call does
// the work and reports true; later calls are no-ops.
func (s *Session) Release() (bool, error) {
	if !s.released.CompareAndSwap(false, true) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.alloc.Release(); err != nil {
		return true, fmt.Errorf("failed to release memory: %w", err)
	}

	s.logger.Debug("memory released", slog.Int64("bytes", s.acquired))
	return true, nil
}
