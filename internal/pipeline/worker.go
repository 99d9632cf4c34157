package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrWorkerRunning is returned by [Worker.Start] while a previous run has
// not been stopped and joined.
var ErrWorkerRunning = errors.New("pipeline: worker already running")

// Worker runs a single consumer goroutine. The run function polls
// [Worker.Stopping] between work items; [Worker.Stop] raises the flag,
// wakes the goroutine and joins it.
type Worker struct {
	mu      sync.Mutex
	running bool
	done    chan struct{}
	wake    func()

	shutdown atomic.Bool
}

// Start launches run on a new goroutine. wake, when non-nil, is called by
// Stop to interrupt a blocking wait inside run.
func (w *Worker) Start(run func(*Worker), wake func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrWorkerRunning
	}
	w.shutdown.Store(false)
	w.running = true
	w.wake = wake
	done := make(chan struct{})
	w.done = done

	go func() {
		defer close(done)
		run(w)
	}()
	return nil
}

// Stopping reports whether Stop has been requested.
func (w *Worker) Stopping() bool {
	return w.shutdown.Load()
}

// Running reports whether a goroutine has been started and not yet joined.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stop requests shutdown and blocks until the goroutine has returned. It is
// a no-op when the worker is not running. Concurrent calls all block until
// the same goroutine exits.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.shutdown.Store(true)
	done, wake := w.done, w.wake
	w.mu.Unlock()

	if wake != nil {
		wake()
	}
	<-done

	w.mu.Lock()
	if w.done == done {
		w.running = false
	}
	w.mu.Unlock()
}
