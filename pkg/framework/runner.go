package framework

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

// Runner supervises a daemon's goroutines: it spawns Runnables under a
// shared context, cancels them as a group on the first interrupt and
// folds their exit errors into one.
type Runner struct {
	Context context.Context

	count int
	errCh chan error
}

// NewRunner creates a runner with a background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner with the specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{Context: ctx, errCh: make(chan error)}
}

// HandleSignals cancels the context on CtrlC or SIGTERM. A second
// signal ends the process without waiting for teardown.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	r.Context = ctx
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		cancel()
		<-sigCh
		glog.Exit("stop requested again, exiting")
	}()
	return r
}

// Go spawns runnables under the runner's context. name labels their
// errors; when several runnables share a name an index is appended.
func (r *Runner) Go(name string, runnables ...Runnable) *Runner {
	for i, runnable := range runnables {
		label := name
		if len(runnables) > 1 {
			label = fmt.Sprintf("%s[%d]", name, i)
		}
		r.count++
		go func(runnable Runnable, label string) {
			err := runnable.Run(r.Context)
			glog.V(4).Infof("%s stopped", label)
			if err != nil && err != context.Canceled {
				err = fmt.Errorf("%s: %w", label, err)
			} else {
				err = nil
			}
			r.errCh <- err
		}(runnable, label)
	}
	return r
}

// Wait blocks until every spawned runnable stops and aggregates their
// labeled errors. Context cancellation is a clean stop, not an error.
func (r *Runner) Wait() error {
	errs := make([]error, 0, r.count)
	for ; r.count > 0; r.count-- {
		errs = append(errs, <-r.errCh)
	}
	return Aggregate(errs...)
}

// RunWithContext adapts a blocking fn that knows nothing about
// contexts: on cancellation, onCancel (if non-nil) is called to
// unblock fn, and the context's error wins over fn's.
func RunWithContext(ctx context.Context, onCancel func(), fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-done
		return ctx.Err()
	}
}

// RunWithCloser runs fn and guarantees closer is closed exactly once,
// whether fn returns on its own or the context ends it.
func RunWithCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var closed bool
	err := RunWithContext(ctx, func() {
		closer.Close()
		closed = true
	}, fn)
	if !closed {
		closer.Close()
	}
	return err
}
