// Package cache holds the request coordination layered over the store:
// single-flight fetches shared between processes and stale-while-revalidate
// reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/store"
)

// Fetch performs the real upstream call for key. A nil result without error
// means the upstream had nothing for key.
type Fetch[T any] func(ctx context.Context, key string) (*T, error)

type Options struct {
	LockTTL      time.Duration
	RecentTTL    time.Duration
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		LockTTL:      10 * time.Second,
		RecentTTL:    30 * time.Second,
		PollInterval: 500 * time.Millisecond,
		WaitTimeout:  10 * time.Second,
	}
}

func OptionsFromConfig(cfg config.CacheConfig) Options {
	return Options{
		LockTTL:      cfg.LockTTL,
		RecentTTL:    cfg.RecentTTL,
		PollInterval: cfg.PollInterval,
		WaitTimeout:  cfg.WaitTimeout,
	}
}

// Coordinator makes sure a single fetch per key is in flight across every
// process sharing the same markers. Concurrent callers wait for the holder's
// result instead of calling the upstream again.
type Coordinator[T any] struct {
	name    string
	markers store.Markers
	fetch   Fetch[T]
	opts    Options
	clock   clock.Clock
	group   singleflight.Group
	logger  *zap.Logger
}

func NewCoordinator[T any](
	name string,
	markers store.Markers,
	fetch Fetch[T],
	opts Options,
	clk clock.Clock,
	logger *zap.Logger,
) *Coordinator[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &Coordinator[T]{
		name:    name,
		markers: markers,
		fetch:   fetch,
		opts:    opts,
		clock:   clk,
		logger:  logger.Named("coordinator").With(zap.String("name", name)),
	}
}

func (c *Coordinator[T]) lockKey(key string) string {
	return "lock:" + c.name + ":" + key
}

func (c *Coordinator[T]) recentKey(key string) string {
	return "recent:" + c.name + ":" + key
}

// GetWithLock returns the recent result for key, fetches it while holding the
// lock, or waits for the current holder. A waiter that sees no result within
// the wait window gets nil. Only the caller that performed the fetch sees its
// error.
func (c *Coordinator[T]) GetWithLock(ctx context.Context, key string) (*T, error) {
	var own bool
	v, err, shared := c.group.Do(key, func() (any, error) {
		own = true
		return c.getWithLock(ctx, key)
	})
	if shared && !own {
		coalesced.WithLabelValues(c.name).Inc()
	}
	if err != nil {
		if !own {
			return nil, nil
		}
		return nil, err
	}

	res, _ := v.(*T)
	return res, nil
}

func (c *Coordinator[T]) getWithLock(ctx context.Context, key string) (*T, error) {
	if res, ok := c.recent(ctx, key); ok {
		recentHits.WithLabelValues(c.name).Inc()
		return res, nil
	}

	acquired, err := c.markers.SetNX(ctx, c.lockKey(key), []byte("1"), c.opts.LockTTL)
	if err != nil {
		c.logger.Warn("failed to acquire lock, fetching without coordination",
			zap.String("key", key), zap.Error(err))
		return c.fetch(ctx, key)
	}

	if acquired {
		lockAcquired.WithLabelValues(c.name).Inc()
		return c.fetchLocked(ctx, key)
	}

	waits.WithLabelValues(c.name).Inc()
	return c.wait(ctx, key), nil
}

func (c *Coordinator[T]) fetchLocked(ctx context.Context, key string) (*T, error) {
	defer func() {
		if err := c.markers.Del(context.WithoutCancel(ctx), c.lockKey(key)); err != nil {
			c.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}()

	res, err := c.fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	// a nil result is stored too, so waiters stop polling
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	if err := c.markers.Set(ctx, c.recentKey(key), data, c.opts.RecentTTL); err != nil {
		c.logger.Warn("failed to store recent result", zap.String("key", key), zap.Error(err))
	}

	return res, nil
}

func (c *Coordinator[T]) recent(ctx context.Context, key string) (*T, bool) {
	data, err := c.markers.Get(ctx, c.recentKey(key))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("failed to read recent result", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var res *T
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("discarding undecodable recent result", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return res, true
}

func (c *Coordinator[T]) wait(ctx context.Context, key string) *T {
	ticker := c.clock.Ticker(c.opts.PollInterval)
	defer ticker.Stop()
	deadline := c.clock.Timer(c.opts.WaitTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			waitTimeouts.WithLabelValues(c.name).Inc()
			c.logger.Debug("gave up waiting for lock holder", zap.String("key", key))
			return nil
		case <-ticker.C:
			if res, ok := c.recent(ctx, key); ok {
				return res
			}
		}
	}
}
