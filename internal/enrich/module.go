package enrich

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/cache"
	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/domain"
	"github.com/igefined/token-screener/internal/store"
)

var Module = fx.Module("enrich", fx.Provide(NewFromParams))

type Params struct {
	fx.In

	Metadata domain.MetadataProvider
	Supply   domain.SupplyProvider
	Searcher domain.PairSearcher
	Markers  store.Markers
	Config   *config.Config
	Clock    clock.Clock
	Logger   *zap.Logger
}

// NewPairLookup wraps the search endpoint in a coordinator so a token is
// searched at most once per lock window across processes.
func NewPairLookup(searcher domain.PairSearcher, markers store.Markers, opts cache.Options, clk clock.Clock, logger *zap.Logger) *cache.Coordinator[domain.Pair] {
	fetch := func(ctx context.Context, address string) (*domain.Pair, error) {
		pairs, err := searcher.SearchPairs(ctx, address)
		if err != nil {
			return nil, err
		}
		return domain.BestPair(pairs), nil
	}
	return cache.NewCoordinator("search_pairs", markers, fetch, opts, clk, logger)
}

func NewFromParams(p Params) *Pipeline {
	pairs := NewPairLookup(p.Searcher, p.Markers, cache.OptionsFromConfig(p.Config.Cache), p.Clock, p.Logger)
	return New(p.Metadata, p.Supply, pairs, Options{
		BatchSize:    p.Config.Enrichment.BatchSize,
		MaxTokens:    p.Config.Enrichment.MaxTokens,
		MinMarketCap: p.Config.Enrichment.MinMarketCap,
	}, p.Clock, p.Logger)
}
