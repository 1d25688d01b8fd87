package store

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/config"
)

const connectTimeout = 10 * time.Second

var Module = fx.Module("store",
	fx.Provide(
		func() clock.Clock { return clock.New() },
		NewFromConfig,
	),
)

type Result struct {
	fx.Out

	Store   *Store
	Markers Markers
}

// NewFromConfig selects the tiers: Redis when redis.url is set, otherwise an
// in-process LRU; PostgreSQL when database.url is set, otherwise memory.
func NewFromConfig(lc fx.Lifecycle, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var (
		primary Primary
		markers Markers
		closers []func()
	)

	if cfg.Redis.URL != "" {
		r, err := NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return Result{}, err
		}
		primary, markers = r, r.Markers()
		closers = append(closers, func() { _ = r.Close() })
		logger.Info("using redis primary tier")
	} else {
		mem, err := NewMemoryTier(cfg.Cache.LRUSize, clk)
		if err != nil {
			return Result{}, err
		}
		mk, err := NewMemoryMarkers(cfg.Cache.LRUSize, clk)
		if err != nil {
			return Result{}, err
		}
		primary, markers = mem, mk
		logger.Info("redis not configured, using in-process primary tier")
	}

	if !cfg.Cache.PrimaryEnabled {
		primary = nil
		logger.Info("primary tier disabled")
	}

	var durable Durable
	if cfg.Database.URL != "" {
		pg, err := NewPostgres(ctx, cfg.Database.URL)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return Result{}, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			for _, c := range closers {
				c()
			}
			return Result{}, err
		}
		durable = pg
	} else {
		logger.Warn("database.url not set, durable tier is in memory and will not survive restarts")
		durable = NewMemoryDurable()
	}

	s := New(primary, durable, clk, logger)

	lc.Append(fx.StopHook(func() {
		s.Close()
		for _, c := range closers {
			c()
		}
	}))

	return Result{Store: s, Markers: markers}, nil
}
