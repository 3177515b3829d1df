// Package runner drives one memory-pressure run: resolve the size, acquire
// the memory, hold it, and release it exactly once whether the run
// completes or is interrupted.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cloudbedlam/eatmem/internal/hold"
	"github.com/cloudbedlam/eatmem/internal/memory"
	"github.com/cloudbedlam/eatmem/internal/sizespec"
)

// ErrInterrupted is returned when a run is cut short by an interrupt
var ErrInterrupted = hold.ErrInterrupted

// State is the lifecycle state of a run
type State int

const (
	StateIdle State = iota
	StateHolding
	StateReleased
)

// String returns the lower-case state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHolding:
		return "holding"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state as its name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcomes recorded in Result.Outcome
const (
	OutcomeSuccess          = "success"
	OutcomeInterrupted      = "interrupted"
	OutcomeAllocationFailed = "allocation_failed"
	OutcomeInvalidFormat    = "invalid_format"
	OutcomeError            = "error"
)

// Request describes one run
type Request struct {
	Size          string
	HoldSeconds   int64
	ChunkSize     int
	Allocator     string
	ProgressEvery int64
}

// Result reports what a run did
type Result struct {
	Spec         sizespec.Spec `json:"size"`
	ChunkSize    int           `json:"chunk_size"`
	Allocator    string        `json:"allocator,omitempty"`
	Acquisitions int64         `json:"acquisitions"`
	Acquired     int64         `json:"acquired_bytes"`
	Hold         hold.Plan     `json:"hold"`
	State        State         `json:"state"`
	Outcome      string        `json:"outcome"`
	Error        string        `json:"error,omitempty"`
}

// StartRecorder records that a run began acquiring memory
type StartRecorder interface {
	LogStart(size string, bytes int64, chunkSize int, allocator string, holdSeconds int64) error
}

// Runner executes runs. The zero value is not usable; use New.
type Runner struct {
	parser       *sizespec.Parser
	newAllocator func(name string) (memory.Allocator, error)
	wait         func(ctx context.Context, d time.Duration) error
	progress     memory.ProgressFunc
	recorder     StartRecorder
	out          io.Writer
	logger       *slog.Logger
}

// New creates a runner backed by the operating system's memory figures
func New() *Runner {
	return &Runner{
		parser:       sizespec.NewParser(),
		newAllocator: memory.NewAllocator,
		wait:         hold.Wait,
		out:          os.Stdout,
		logger:       slog.Default(),
	}
}

// SetLogger sets the logger
func (r *Runner) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// SetOutput sets where the user-facing status lines are written
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// SetProgress sets the function called while memory is being acquired
func (r *Runner) SetProgress(fn memory.ProgressFunc) {
	r.progress = fn
}

// SetRecorder sets where the start of each run is recorded
func (r *Runner) SetRecorder(rec StartRecorder) {
	r.recorder = rec
}

// Run resolves req.Size, acquires that much memory, holds it for the
// adjusted duration and releases it.
//
// Cancelling ctx at any point after allocation began releases the memory
// and returns ErrInterrupted. An allocation failure skips the hold.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = memory.DefaultChunkSize
	}
	res := &Result{
		ChunkSize: chunkSize,
		Hold:      hold.Plan{RequestedSeconds: req.HoldSeconds},
		State:     StateIdle,
	}

	spec, err := r.parser.Parse(req.Size)
	if err != nil {
		res.Outcome = OutcomeInvalidFormat
		if !errors.Is(err, sizespec.ErrInvalidFormat) {
			res.Outcome = OutcomeError
		}
		res.Error = err.Error()
		return res, err
	}
	res.Spec = spec

	alloc, err := r.newAllocator(req.Allocator)
	if err != nil {
		res.Outcome = OutcomeError
		res.Error = err.Error()
		return res, err
	}
	res.Allocator = alloc.Name()

	session, err := memory.NewSession(spec.Bytes, chunkSize, alloc)
	if err != nil {
		res.Outcome = OutcomeError
		res.Error = err.Error()
		return res, err
	}
	session.SetLogger(r.logger)
	if r.progress != nil {
		session.SetProgress(req.ProgressEvery, r.progress)
	}

	fmt.Fprintf(r.out, "Eating %d bytes in chunks of %d...\n", spec.Bytes, chunkSize)
	r.logger.Info("allocation started",
		slog.String("size", spec.Token),
		slog.Int64("bytes", spec.Bytes),
		slog.Int("chunk_bytes", chunkSize),
		slog.String("allocator", alloc.Name()),
	)
	if r.recorder != nil {
		if err := r.recorder.LogStart(spec.Token, spec.Bytes, chunkSize, alloc.Name(), req.HoldSeconds); err != nil {
			r.logger.Warn("failed to record run start", slog.String("error", err.Error()))
		}
	}

	res.State = StateHolding
	elapsed, eatErr := session.Eat(ctx)
	if eatErr == nil {
		res.Hold = hold.NewPlan(req.HoldSeconds, elapsed)
		r.logger.Info("allocation finished",
			slog.Duration("elapsed", elapsed),
			slog.Int64("acquisitions", session.Acquisitions()),
			slog.Int64("hold_seconds", res.Hold.AdjustedSeconds),
		)
		eatErr = r.wait(ctx, res.Hold.Duration())
	}

	runErr := r.finish(ctx, session, res, eatErr)
	return res, runErr
}

// finish is the single release path of a run
func (r *Runner) finish(ctx context.Context, session *memory.Session, res *Result, err error) error {
	res.Acquisitions = session.Acquisitions()
	res.Acquired = session.Acquired()

	if _, relErr := session.Release(); relErr != nil {
		r.logger.Warn("release failed", slog.String("error", relErr.Error()))
	}
	res.State = StateReleased

	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
		r.logger.Info("memory released", slog.Int64("bytes", res.Acquired))
		return nil
	case errors.Is(err, memory.ErrAllocationFailed):
		res.Outcome = OutcomeAllocationFailed
	case errors.Is(err, hold.ErrInterrupted):
		res.Outcome = OutcomeInterrupted
	case ctx.Err() != nil:
		// cancelled between chunks
		res.Outcome = OutcomeInterrupted
		err = fmt.Errorf("%w: %w", hold.ErrInterrupted, context.Cause(ctx))
	default:
		res.Outcome = OutcomeError
	}

	res.Error = err.Error()
	r.logger.Debug("run ended early", slog.String("outcome", res.Outcome), slog.String("error", res.Error))
	return err
}
