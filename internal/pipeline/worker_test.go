package pipeline

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// loop runs until the worker is asked to stop.
func loop(iterations *atomic.Int64) func(*Worker) {
	return func(w *Worker) {
		for !w.Stopping() {
			iterations.Add(1)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestWorker_StartTwiceFails(t *testing.T) {
	t.Parallel()
	var w Worker
	var n atomic.Int64
	if err := w.Start(loop(&n), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := w.Start(loop(&n), nil); !errors.Is(err, ErrWorkerRunning) {
		t.Errorf("second Start err = %v, want ErrWorkerRunning", err)
	}
}

func TestWorker_StopJoins(t *testing.T) {
	t.Parallel()
	var w Worker
	var exited atomic.Bool
	err := w.Start(func(w *Worker) {
		for !w.Stopping() {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		exited.Store(true)
	}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.Stop()
	if !exited.Load() {
		t.Error("Stop returned before the goroutine exited")
	}
	if w.Running() {
		t.Error("Running = true after Stop")
	}
}

func TestWorker_StopCallsWake(t *testing.T) {
	t.Parallel()
	var w Worker
	wake := make(chan struct{}, 1)
	err := w.Start(func(*Worker) { <-wake }, func() { wake <- struct{}{} })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not wake the blocked goroutine")
	}
}

func TestWorker_RestartAfterStop(t *testing.T) {
	t.Parallel()
	var w Worker
	var n atomic.Int64
	for i := range 3 {
		if err := w.Start(loop(&n), nil); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		if w.Stopping() {
			t.Fatalf("Stopping = true right after Start %d", i)
		}
		w.Stop()
	}
	w.Stop() // no-op when idle
}
