package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/store"
)

// SWR serves cached values immediately and refreshes them in the background.
// The refresh flag is check-then-set: two callers racing on the same key may
// both start a refresh, which only costs a duplicate upstream call.
type SWR[T any] struct {
	name       string
	store      *store.Store
	markers    store.Markers
	table      store.Table
	fetch      Fetch[T]
	ttl        time.Duration
	refreshTTL time.Duration
	wg         sync.WaitGroup
	logger     *zap.Logger
}

func NewSWR[T any](
	name string,
	st *store.Store,
	markers store.Markers,
	table store.Table,
	fetch Fetch[T],
	ttl, refreshTTL time.Duration,
	logger *zap.Logger,
) *SWR[T] {
	return &SWR[T]{
		name:       name,
		store:      st,
		markers:    markers,
		table:      table,
		fetch:      fetch,
		ttl:        ttl,
		refreshTTL: refreshTTL,
		logger:     logger.Named("swr").With(zap.String("name", name)),
	}
}

func (s *SWR[T]) storeKey(key string) string {
	return s.name + ":" + key
}

func (s *SWR[T]) refreshKey(key string) string {
	return "refreshing:" + s.name + ":" + key
}

// GetCachedOrRefresh returns the cached value for key, scheduling a background
// refresh unless one is already running. Without a cached value it fetches
// synchronously; a failed fetch yields nil.
func (s *SWR[T]) GetCachedOrRefresh(ctx context.Context, key string) (*T, error) {
	var cached T
	found, err := s.store.GetJSON(ctx, s.table, s.storeKey(key), &cached)
	if err != nil {
		return nil, err
	}

	if !found {
		swrMisses.WithLabelValues(s.name).Inc()
		res, err := s.fetch(ctx, key)
		if err != nil {
			s.logger.Warn("fetch failed", zap.String("key", key), zap.Error(err))
			return nil, nil
		}
		if res != nil {
			s.write(ctx, key, res)
		}
		return res, nil
	}

	swrHits.WithLabelValues(s.name).Inc()

	refreshing, err := s.markers.Exists(ctx, s.refreshKey(key))
	if err != nil {
		s.logger.Warn("failed to check refresh flag", zap.String("key", key), zap.Error(err))
		return &cached, nil
	}
	if refreshing {
		refreshSkipped.WithLabelValues(s.name).Inc()
		return &cached, nil
	}

	if err := s.markers.Set(ctx, s.refreshKey(key), []byte("1"), s.refreshTTL); err != nil {
		s.logger.Warn("failed to set refresh flag", zap.String("key", key), zap.Error(err))
		return &cached, nil
	}

	s.wg.Add(1)
	go s.refresh(context.WithoutCancel(ctx), key)

	return &cached, nil
}

func (s *SWR[T]) refresh(ctx context.Context, key string) {
	defer s.wg.Done()
	defer func() {
		if err := s.markers.Del(ctx, s.refreshKey(key)); err != nil {
			s.logger.Warn("failed to clear refresh flag", zap.String("key", key), zap.Error(err))
		}
	}()

	refreshes.WithLabelValues(s.name).Inc()

	ctx, cancel := context.WithTimeout(ctx, s.refreshTTL)
	defer cancel()

	res, err := s.fetch(ctx, key)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("background refresh failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	if res == nil {
		return
	}
	s.write(ctx, key, res)
}

func (s *SWR[T]) write(ctx context.Context, key string, v *T) {
	if err := s.store.Set(ctx, s.table, s.storeKey(key), v, s.ttl); err != nil {
		s.logger.Error("failed to store refreshed value", zap.String("key", key), zap.Error(err))
	}
}

// Wait blocks until every background refresh started so far has finished.
func (s *SWR[T]) Wait() {
	s.wg.Wait()
}
