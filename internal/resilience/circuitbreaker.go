// Package resilience provides circuit breaking and failover for host audio
// backends.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops a backend that keeps failing to open from being retried on every
// pipeline reinitialisation. [FallbackGroup] tries an ordered list of values,
// each behind its own breaker, and [FailoverDevice] uses one to present
// several backends as a single [audio.Device].
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and the reset timeout has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a single probe through. Success closes the breaker,
	// failure opens it again.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log messages.
	Name string

	// MaxFailures is the number of consecutive failures that open the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// Now is the clock. Default: time.Now.
	Now func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	log          *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		now:          cfg.Now,
		log:          cfg.Logger,
	}
}

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.state = StateHalfOpen
		cb.log.Info("circuit breaker half-open", "name", cb.name)
	}
	switch {
	case cb.state == StateOpen, cb.state == StateHalfOpen && cb.probeActive:
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	probe := cb.state == StateHalfOpen
	cb.probeActive = probe
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeActive = false
	if err == nil {
		if probe {
			cb.log.Info("circuit breaker closed", "name", cb.name)
		}
		cb.state = StateClosed
		cb.failures = 0
		return nil
	}

	cb.failures++
	if probe || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		cb.log.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.failures,
			"retry_after", cb.resetTimeout,
		)
	}
	return err
}

// State returns the current state. An open breaker whose timeout has elapsed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probeActive = false
}
