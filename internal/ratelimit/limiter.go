// Package ratelimit bounds the traffic sent to one upstream API: a steady
// request rate refilled over a rolling minute and a cap on in-flight calls.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/domain"
)

// retry-after used when an upstream sends 429 without a usable header
const defaultRetryAfter = time.Second

type Limiter struct {
	name   string
	bucket *rate.Limiter
	sem    *semaphore.Weighted
	logger *zap.Logger

	mu          sync.Mutex
	pausedUntil time.Time
}

// New creates a limiter allowing requestsPerMinute calls per rolling minute,
// all of which may be spent in one burst, and at most maxConcurrent at once.
func New(name string, requestsPerMinute, maxConcurrent int, logger *zap.Logger) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Limiter{
		name:   name,
		bucket: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: logger.Named("ratelimit").With(zap.String("upstream", name)),
	}
}

func NewFromConfig(name string, limits config.UpstreamLimits, logger *zap.Logger) *Limiter {
	return New(name, limits.RequestsPerMinute, limits.MaxConcurrent, logger)
}

func (l *Limiter) Name() string {
	return l.name
}

// PauseUntil holds back new permits until t. Calls already running are not
// affected.
func (l *Limiter) PauseUntil(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.After(l.pausedUntil) {
		l.pausedUntil = t
	}
}

func (l *Limiter) pause() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Until(l.pausedUntil)
}

func (l *Limiter) waitPause(ctx context.Context) error {
	d := l.pause()
	if d <= 0 {
		return nil
	}

	pausedWaits.WithLabelValues(l.name).Inc()
	l.logger.Debug("waiting for rate limit pause to end", zap.Duration("remaining", d))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Schedule runs task once a permit and a concurrency slot are available. It
// blocks instead of failing when the reservoir is empty. A rate limit signal
// returned by the task pauses the limiter and is handed back to the caller.
func (l *Limiter) Schedule(ctx context.Context, task func(ctx context.Context) error) error {
	if err := l.waitPause(ctx); err != nil {
		return err
	}
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("%s: waiting for permit: %w", l.name, err)
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%s: waiting for slot: %w", l.name, err)
	}
	defer l.sem.Release(1)

	scheduled.WithLabelValues(l.name).Inc()

	err := task(ctx)
	if rl, ok := domain.IsRateLimited(err); ok {
		rateLimited.WithLabelValues(l.name).Inc()
		l.PauseUntil(time.Now().Add(retryAfter(rl)))
		l.logger.Warn("upstream rate limited", zap.Duration("retry_after", rl.RetryAfter))
	}
	return err
}

// Do is Schedule for tasks producing a value.
func Do[T any](ctx context.Context, l *Limiter, task func(ctx context.Context) (T, error)) (T, error) {
	var res T
	err := l.Schedule(ctx, func(ctx context.Context) error {
		var err error
		res, err = task(ctx)
		return err
	})
	return res, err
}

// Retry runs task through the limiter up to maxTries times. Only rate limit
// signals are retried, after waiting the retry-after duration the upstream
// asked for. Every other error is returned as is.
func Retry[T any](ctx context.Context, l *Limiter, maxTries int, task func(ctx context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}

	var lastErr error
	operation := func() (T, error) {
		res, err := Do(ctx, l, task)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if rl, ok := domain.IsRateLimited(err); ok {
			return res, &backoff.RetryAfterError{Duration: retryAfter(rl)}
		}
		return res, backoff.Permanent(err)
	}

	notify := func(err error, next time.Duration) {
		l.logger.Info("retrying rate limited call", zap.Duration("backoff", next))
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithNotify(notify))
	if err == nil {
		return res, nil
	}

	var (
		retryAfterErr *backoff.RetryAfterError
		permanent     *backoff.PermanentError
	)
	switch {
	case errors.As(err, &retryAfterErr), errors.As(err, &permanent):
		return res, lastErr
	}
	return res, err
}

func retryAfter(rl *domain.RateLimitError) time.Duration {
	if rl.RetryAfter <= 0 {
		return defaultRetryAfter
	}
	return rl.RetryAfter
}
