// Package retry wraps vault and cluster boundary calls with bounded
// exponential backoff and a consecutive-failure circuit breaker, so a dead
// dependency does not stall every tick for the full retry budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	vmerrors "github.com/systmms/vaultmirror/internal/errors"
)

// Config holds retry configuration for boundary calls.
type Config struct {
	// MaxAttempts is the maximum number of attempts (default: 3).
	MaxAttempts int

	// InitialWait is the wait before the first retry; each retry doubles it
	// (default: 500ms).
	InitialWait time.Duration

	// MaxWait caps the backoff interval (default: 10s).
	MaxWait time.Duration

	// Timeout bounds each attempt when positive; zero means the attempt
	// runs under the caller's context alone.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialWait <= 0 {
		c.InitialWait = 500 * time.Millisecond
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 10 * time.Second
	}
	return c
}

// Do runs op, retrying transient failures with exponential backoff. It stops
// early on context cancellation and on errors that are not retryable.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	wait := cfg.InitialWait
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = runAttempt(ctx, cfg.Timeout, op)
		if lastErr == nil {
			return nil
		}
		if !retryable(ctx, lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// retryable treats an attempt that hit its own deadline as transient as long
// as the caller's context is still alive.
func retryable(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return true
	}
	return vmerrors.IsRetryable(err)
}

// ErrCircuitOpen is returned while a breaker is cooling down.
var ErrCircuitOpen = fmt.Errorf("circuit breaker open")

// Breaker trips after a run of consecutive failures and rejects calls until
// the cooldown elapses. One breaker guards each external dependency.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openUntil time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Do runs op through the breaker, recording the outcome.
func (b *Breaker) Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	b.mu.Lock()
	if b.failures >= b.threshold && time.Now().Before(b.openUntil) {
		remaining := time.Until(b.openUntil).Round(time.Second)
		b.mu.Unlock()
		return fmt.Errorf("%w (retrying in %s)", ErrCircuitOpen, remaining)
	}
	b.mu.Unlock()

	err := Do(ctx, cfg, op)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.failures >= b.threshold {
			b.openUntil = time.Now().Add(b.cooldown)
		}
		return err
	}
	b.failures = 0
	return nil
}
