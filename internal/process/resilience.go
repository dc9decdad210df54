package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrToolUnavailable is returned when a tool's circuit breaker is open.
var ErrToolUnavailable = errors.New("tool unavailable")

// RetryConfig configures exponential backoff for tool start failures.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 2s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 10s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// CircuitBreakerRegistry manages one circuit breaker per tool.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry(logger *slog.Logger) *CircuitBreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for tool, creating it on first use.
func (r *CircuitBreakerRegistry) Get(tool string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[tool]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        tool,
		MaxRequests: 1,
		Interval:    0, // Counts are never cleared while closed
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "tool", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is not the tool's fault.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[tool] = cb
	return cb
}

// Runner executes tools with start retries and per-tool breakers. A tool that
// starts and exits non-zero is a result, not a failure: only start failures
// are retried and counted by the breaker.
type Runner struct {
	pm       *ProcessManager
	breakers *CircuitBreakerRegistry
	retry    RetryConfig
}

// NewRunner creates a Runner tracking subprocesses in pm (which may be nil).
func NewRunner(pm *ProcessManager, breakers *CircuitBreakerRegistry, retry RetryConfig) *Runner {
	if breakers == nil {
		breakers = NewCircuitBreakerRegistry(nil)
	}
	return &Runner{pm: pm, breakers: breakers, retry: retry}
}

// Run executes tool with args in dir. The returned error wraps
// *exec.ExitError for a non-zero exit, *StartError when the tool could not be
// started, or ErrToolUnavailable when its breaker is open.
func (r *Runner) Run(ctx context.Context, dir, tool string, args ...string) (stdout, stderr []byte, err error) {
	cb := r.breakers.Get(tool)
	var runErr error

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		_, err := cb.Execute(func() (interface{}, error) {
			cmd := NewCommand(ctx, tool, args...)
			cmd.Dir = dir
			stdout, stderr, runErr = r.pm.Execute(cmd)

			var startErr *StartError
			if errors.As(runErr, &startErr) {
				return nil, runErr
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: %s: %w", ErrToolUnavailable, tool, err))
			}
			// A missing binary will not appear by waiting.
			if ctx.Err() != nil || errors.Is(err, exec.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retry.InitialInterval
	policy.MaxInterval = r.retry.MaxInterval
	policy.MaxElapsedTime = r.retry.MaxElapsedTime
	policy.Multiplier = r.retry.Multiplier
	policy.RandomizationFactor = r.retry.RandomizationFactor

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return stdout, stderr, err
	}
	return stdout, stderr, runErr
}

// Breaker exposes the breaker for tool, mainly for status reporting.
func (r *Runner) Breaker(tool string) *gobreaker.CircuitBreaker {
	return r.breakers.Get(tool)
}
