// Package resilience provides the per-backend circuit breaker and jittered
// exponential backoff retry used by the storage coordinator (spec.md §4.2).
//
// Adapted near-verbatim from the teacher's infrastructure/resilience package,
// which is itself a thin adapter over github.com/sony/gobreaker/v2 (circuit
// breaking) and github.com/cenkalti/backoff/v4 (retry) that preserves a
// simple Execute(ctx, fn)/Retry(ctx, cfg, fn) surface. The domain-neutral
// circuit breaker and retry logic carry over unchanged; what changes is the
// error taxonomy threaded through (memerr instead of the teacher's
// ServiceError) and the default configuration, which now matches spec.md §4.2
// (N=5 failures, T=30s cool-off) instead of the teacher's per-service presets.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/r3e-network/agentmemory/internal/memerr"
)

// State represents circuit breaker state.
type State int

const (
	StateClosed   State = State(gobreaker.StateClosed)
	StateHalfOpen State = State(gobreaker.StateHalfOpen)
	StateOpen     State = State(gobreaker.StateOpen)
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

// Config configures a CircuitBreaker.
type Config struct {
	Name          string
	MaxFailures   int           // consecutive failures before opening (spec.md default: 5)
	Timeout       time.Duration // time in open state before half-open (spec.md default: 30s)
	HalfOpenMax   int           // max requests allowed in half-open
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the spec.md §4.2 defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 1,
	}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker with an Execute(ctx, fn)
// surface and memerr-typed sentinel errors.
type CircuitBreaker struct {
	name string
	gb   *gobreaker.CircuitBreaker[any]
}

// New creates a CircuitBreaker backed by sony/gobreaker.
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}

	maxFailures := uint32(cfg.MaxFailures)
	halfOpenMax := uint32(cfg.HalfOpenMax)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: halfOpenMax,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, State(from), State(to))
		}
	}

	return &CircuitBreaker{
		name: cfg.Name,
		gb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Name returns the circuit breaker's identifying name (typically the backend name).
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	return State(cb.gb.State())
}

// Execute runs fn with circuit breaker protection. The ctx is accepted for
// API symmetry with Retry; gobreaker itself is not context-aware, so callers
// needing a bound on fn's own duration must enforce it via ctx inside fn.
func (cb *CircuitBreaker) Execute(_ context.Context, fn func() error) error {
	_, err := cb.gb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		return mapGobreakerError(err)
	}
	return nil
}

func mapGobreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return memerr.ErrCircuitOpen("circuit breaker is open")
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return memerr.New(memerr.CircuitOpen, "too many requests in half-open state")
	}
	return err
}

// RetryConfig configures exponential backoff retry.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, mapped to backoff.RandomizationFactor
}

// DefaultRetryConfig returns the spec.md §4.2 defaults (3 attempts, jitter mandatory).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.25,
	}
}

// Retry executes fn with exponential backoff using cenkalti/backoff. Jitter is
// passed to backoff.RandomizationFactor, so each wait is drawn uniformly from
// [delay*(1-Jitter), delay*(1+Jitter)] around the current interval: with
// Jitter==0.25 that is a symmetric +/-25% spread, not a one-sided addition
// in [0, delay/4].
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	if cfg.Jitter > 0 {
		bo.RandomizationFactor = cfg.Jitter
	} else {
		bo.RandomizationFactor = 0
	}
	bo.MaxElapsedTime = 0 // bounded by MaxRetries instead of wall-clock

	maxRetries := uint64(cfg.MaxAttempts - 1)
	withMax := backoff.WithMaxRetries(bo, maxRetries)
	withCtx := backoff.WithContext(withMax, ctx)

	return backoff.Retry(func() error {
		return fn()
	}, withCtx)
}
