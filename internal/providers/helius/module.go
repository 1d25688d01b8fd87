package helius

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
			limiter := ratelimit.NewFromConfig(moduleName, cfg.Helius.Limits, logger)
			return NewProvider(cfg.Helius, limiter, logger)
		},
		func(p *Provider) domain.MetadataProvider { return p },
		func(p *Provider) domain.SupplyProvider { return p },
	),
)
