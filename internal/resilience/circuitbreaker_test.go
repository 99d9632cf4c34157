package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clk *fakeClock, maxFailures int) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  maxFailures,
		ResetTimeout: time.Minute,
		Now:          clk.Now,
		Logger:       slog.New(slog.DiscardHandler),
	})
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.maxFailures != 3 {
		t.Errorf("maxFailures = %d, want 3", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	cb := newTestBreaker(newFakeClock(), 3)

	for i := range 2 {
		if err := cb.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after 2 failures, want closed", cb.State())
	}

	_ = cb.Execute(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v after 3 failures, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err = %v called = %v", err, called)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()
	cb := newTestBreaker(newFakeClock(), 2)
	_ = cb.Execute(func() error { return errTest })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errTest })
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed (failures were not consecutive)", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{"probe succeeds", nil, StateClosed},
		{"probe fails", errTest, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clk := newFakeClock()
			cb := newTestBreaker(clk, 1)
			_ = cb.Execute(func() error { return errTest })

			clk.Advance(time.Minute)
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %v after timeout, want half-open", cb.State())
			}
			if err := cb.Execute(func() error { return tt.probe }); !errors.Is(err, tt.probe) {
				t.Fatalf("probe err = %v, want %v", err, tt.probe)
			}
			if cb.State() != tt.want {
				t.Errorf("state = %v, want %v", cb.State(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_SingleProbeAtATime(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	cb := newTestBreaker(clk, 1)
	_ = cb.Execute(func() error { return errTest })
	clk.Advance(time.Minute)

	err := cb.Execute(func() error {
		if inner := cb.Execute(func() error { return nil }); !errors.Is(inner, ErrCircuitOpen) {
			t.Errorf("concurrent probe err = %v, want ErrCircuitOpen", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb := newTestBreaker(newFakeClock(), 1)
	_ = cb.Execute(func() error { return errTest })
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after Reset, want closed", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{
		StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
