package dexscreener

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/domain"
	"github.com/igefined/token-screener/internal/ratelimit"
)

var Module = fx.Module(moduleName,
	fx.Provide(
		func(cfg *config.Config, logger *zap.Logger) *Provider {
			limiter := ratelimit.NewFromConfig(moduleName, cfg.DexScreener.Limits, logger)
			return NewProvider(cfg.DexScreener, limiter, logger)
		},
		func(p *Provider) domain.ListingSource { return p },
		func(p *Provider) domain.PairSearcher { return p },
	),
)
