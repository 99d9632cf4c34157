package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has
// an open circuit breaker.
var ErrAllFailed = errors.New("all backends failed")

// FallbackConfig configures the breaker created for each entry of a
// [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary value and ordered fallbacks of the same
// type. Entries are tried in order, skipping those whose breaker is open.
// Entries must be added before the group is used concurrently.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primaryName string, primary T, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names returns the entry names in order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Breaker returns the breaker guarding the named entry, or nil.
func (fg *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for i := range fg.entries {
		if fg.entries[i].name == name {
			return fg.entries[i].breaker
		}
	}
	return nil
}

// Execute tries fn against each entry until one succeeds and returns the
// winning entry's name. If all fail, the error wraps [ErrAllFailed] and
// every entry's error.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) (string, error) {
	log := fg.logger()
	var errs []error
	for i := range fg.entries {
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error { return fn(entry.value) })
		if err == nil {
			return entry.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			log.Debug("skipping backend, circuit open", "backend", entry.name)
		} else {
			log.Warn("backend failed, trying next", "backend", entry.name, "err", err)
		}
	}
	return "", fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

func (fg *FallbackGroup[T]) logger() *slog.Logger {
	if l := fg.cfg.CircuitBreaker.Logger; l != nil {
		return l
	}
	return slog.Default()
}
