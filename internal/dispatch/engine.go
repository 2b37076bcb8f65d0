// Package dispatch runs the long-lived listeners of the bridge as one service.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrAlreadyStarted = errors.New("dispatch engine already started")

// Runner blocks until ctx is done or it fails.
type Runner interface {
	Run(ctx context.Context) error
}

type namedRunner struct {
	name   string
	runner Runner
}

// Engine starts every registered runner and stops them together.
// An engine is started at most once.
type Engine struct {
	log     *zap.SugaredLogger
	runners []namedRunner

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func NewEngine(log *zap.SugaredLogger) *Engine {
	return &Engine{
		log:  log,
		done: make(chan struct{}),
	}
}

// Register adds a runner. It has no effect once the engine is started.
func (e *Engine) Register(name string, r Runner) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return
	}
	e.runners = append(e.runners, namedRunner{name: name, runner: r})
}

// Start launches every runner in the background. A runner failing stops the others.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)

	for _, nr := range e.runners {
		g.Go(func() error {
			e.log.Infow("Runner started", "runner", nr.name)
			err := nr.runner.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				e.log.Errorw("Runner stopped with error", "runner", nr.name, "error", err)
				return fmt.Errorf("%s: %w", nr.name, err)
			}
			e.log.Infow("Runner stopped", "runner", nr.name)
			return nil
		})
	}

	go func() {
		err := g.Wait()
		cancel()

		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		close(e.done)
	}()

	e.log.Infow("Dispatch engine started", "runners", len(e.runners))
	return nil
}

// Stop cancels every runner and waits for them. It returns the first runner error.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	<-e.done
	e.log.Info("Dispatch engine stopped")
	return e.Err()
}

// Done is closed once every runner has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Running reports whether the engine was started and has not finished.
func (e *Engine) Running() bool {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()

	if !started {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
