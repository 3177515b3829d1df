package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudbedlam/eatmem/internal/audit"
	"github.com/cloudbedlam/eatmem/internal/memory"
	"github.com/cloudbedlam/eatmem/internal/runner"
	"github.com/cloudbedlam/eatmem/internal/sizespec"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Exit codes. Usage and configuration errors share 1 with interrupts
// unless strict exit is configured, which moves them to ExitStrictError.
const (
	ExitOK               = 0
	ExitInterrupted      = 1
	ExitError            = 1
	ExitInvalidFormat    = 2
	ExitAllocationFailed = 3
	ExitStrictError      = 4
)

// reportedError marks an error whose message was already shown to the user
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// runSummary is the --json output of a run
type runSummary struct {
	*runner.Result
	ExitCode int `json:"exit_code"`
}

// runEat resolves the size, holds the memory and releases it
func runEat(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	holdSeconds := cfg.HoldSeconds
	if len(args) == 2 {
		n, err := parseDuration(args[1])
		if err != nil {
			return err
		}
		holdSeconds = n
	}

	logger := createLogger(cfg.LogLevel)

	auditLogger := openAuditLog(logger)
	if auditLogger != nil {
		defer auditLogger.Close()
	}

	r := runner.New()
	r.SetLogger(logger)
	if auditLogger != nil {
		r.SetRecorder(auditLogger)
	}

	// stdout carries the JSON summary alone in --json mode
	out := cmd.OutOrStdout()
	if jsonOutput {
		out = cmd.ErrOrStderr()
	}
	r.SetOutput(out)

	if showProgress {
		errOut := cmd.ErrOrStderr()
		tty := false
		if f, ok := errOut.(*os.File); ok {
			tty = term.IsTerminal(int(f.Fd()))
		}
		r.SetProgress(newProgressPrinter(errOut, tty))
	} else if logger.Enabled(cmd.Context(), slog.LevelDebug) {
		r.SetProgress(func(acquired, target int64) {
			logger.Debug("acquisition progress", slog.Int64("acquired_bytes", acquired), slog.Int64("target_bytes", target))
		})
	}

	ctx, stop := runner.WithInterrupt(cmd.Context())
	defer stop()

	start := time.Now()
	res, err := r.Run(ctx, runner.Request{
		Size:          args[0],
		HoldSeconds:   holdSeconds,
		ChunkSize:     cfg.ChunkSize,
		Allocator:     cfg.Allocator,
		ProgressEvery: cfg.ProgressEvery,
	})
	exitCode := ExitCode(err)

	if auditLogger != nil {
		if err != nil {
			if logErr := auditLogger.LogError(args[0], err.Error()); logErr != nil {
				logger.Warn("failed to write audit log", slog.String("error", logErr.Error()))
			}
		}
		if logErr := auditLogger.LogEnd(args[0], res.Acquisitions, exitCode, time.Since(start), res.Outcome); logErr != nil {
			logger.Warn("failed to write audit log", slog.String("error", logErr.Error()))
		}
	}

	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if encErr := encoder.Encode(runSummary{Result: res, ExitCode: exitCode}); encErr != nil {
			return fmt.Errorf("failed to encode result: %w", encErr)
		}
	}

	return reportRunError(out, err)
}

// reportRunError prints the user-facing message for err, if it has one
func reportRunError(w io.Writer, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sizespec.ErrInvalidFormat):
		fmt.Fprintln(w, "Invalid size format")
	case errors.Is(err, memory.ErrAllocationFailed):
		fmt.Fprintln(w, "ERROR: Could not allocate memory")
	case errors.Is(err, runner.ErrInterrupted):
		// released and exiting; nothing to say
	default:
		return err
	}
	return &reportedError{err: err}
}

// ExitCode maps the error returned by Execute to the process exit status.
// Invalid sizes and allocation failures exit 0 unless strict exit is
// configured; strict exit also separates other errors from interrupts.
func ExitCode(err error) int {
	strictExit := cfg != nil && cfg.StrictExit

	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, runner.ErrInterrupted):
		return ExitInterrupted
	case errors.Is(err, sizespec.ErrInvalidFormat):
		if strictExit {
			return ExitInvalidFormat
		}
		return ExitOK
	case errors.Is(err, memory.ErrAllocationFailed):
		if strictExit {
			return ExitAllocationFailed
		}
		return ExitOK
	default:
		if strictExit {
			return ExitStrictError
		}
		return ExitError
	}
}

func parseDuration(arg string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: expected whole seconds", arg)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid duration %q: cannot be negative", arg)
	}
	return n, nil
}

// openAuditLog opens the audit log when auditing is enabled. A log that
// cannot be opened is reported and the run goes ahead without it.
func openAuditLog(logger *slog.Logger) *audit.Logger {
	if !cfg.AuditEnabled {
		return nil
	}
	auditLogger, err := audit.NewLogger(cfg.AuditLogFile)
	if err != nil {
		logger.Warn("audit log disabled", slog.String("path", cfg.AuditLogFile), slog.String("error", err.Error()))
		return nil
	}
	return auditLogger
}

func createLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler)
}
