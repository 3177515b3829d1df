package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// SignalError is the cancellation cause recorded when a signal arrives
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("received %s", e.Signal)
}

// InterruptSignals are the signals that end a run early
var InterruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// WithInterrupt returns a context cancelled with a *SignalError cause when
// one of sigs is delivered. Only the first signal is observed; after it the
// process falls back to the default disposition. The returned stop function
// releases the signal registration.
func WithInterrupt(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = InterruptSignals
	}

	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		select {
		case sig := <-ch:
			signal.Stop(ch)
			cancel(&SignalError{Signal: sig})
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(ch)
		cancel(context.Canceled)
	}
}
