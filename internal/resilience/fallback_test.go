package resilience

import (
	"errors"
	"log/slog"
	"slices"
	"testing"
	"time"
)

func newTestGroup(clk *fakeClock) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "a", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Minute,
			Now:          clk.Now,
			Logger:       slog.New(slog.DiscardHandler),
		},
	})
	fg.AddFallback("secondary", "b")
	return fg
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	t.Parallel()
	fg := newTestGroup(newFakeClock())
	var called []string
	name, err := fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil || name != "primary" {
		t.Fatalf("Execute = %q, %v", name, err)
	}
	if !slices.Equal(called, []string{"a"}) {
		t.Errorf("called = %v, want [a]", called)
	}
}

func TestFallbackGroup_FallsBack(t *testing.T) {
	t.Parallel()
	fg := newTestGroup(newFakeClock())
	name, err := fg.Execute(func(v string) error {
		if v == "a" {
			return errTest
		}
		return nil
	})
	if err != nil || name != "secondary" {
		t.Fatalf("Execute = %q, %v", name, err)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()
	fg := newTestGroup(newFakeClock())
	_, err := fg.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want it to wrap the entry error", err)
	}
}

func TestFallbackGroup_SkipsOpenBreakerUntilTimeout(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	fg := newTestGroup(clk)

	primaryDown := func(v string) error {
		if v == "a" {
			return errTest
		}
		return nil
	}
	for range 2 {
		_, _ = fg.Execute(primaryDown)
	}
	if got := fg.Breaker("primary").State(); got != StateOpen {
		t.Fatalf("primary breaker = %v, want open", got)
	}

	var called []string
	_, _ = fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	})
	if !slices.Equal(called, []string{"b"}) {
		t.Errorf("called = %v, want only the fallback", called)
	}

	clk.Advance(time.Minute)
	name, err := fg.Execute(func(string) error { return nil })
	if err != nil || name != "primary" {
		t.Errorf("after timeout Execute = %q, %v; want the primary probed", name, err)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()
	fg := newTestGroup(newFakeClock())
	if got := fg.Names(); !slices.Equal(got, []string{"primary", "secondary"}) {
		t.Errorf("Names() = %v", got)
	}
	if fg.Breaker("missing") != nil {
		t.Error("Breaker(missing) != nil")
	}
}
