// Package fetcher downloads the market-data listing with conditional
// requests, so an unchanged listing is served from the store.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/domain"
	"github.com/igefined/token-screener/internal/store"
)

const (
	ETagKey = "dexscreener_etag"
	RawKey  = "dexscreener_raw"
)

type Fetcher struct {
	source      domain.ListingSource
	store       *store.Store
	targetChain string
	ttl         time.Duration
	logger      *zap.Logger
}

func New(source domain.ListingSource, st *store.Store, targetChain string, ttl time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		source:      source,
		store:       st,
		targetChain: targetChain,
		ttl:         ttl,
		logger:      logger.Named("fetcher"),
	}
}

type Params struct {
	fx.In

	Source domain.ListingSource
	Store  *store.Store
	Config *config.Config
	Logger *zap.Logger
}

func NewFromParams(p Params) *Fetcher {
	return New(p.Source, p.Store, p.Config.Enrichment.TargetChain, p.Config.Cache.BasicTTL, p.Logger)
}

var Module = fx.Module("fetcher", fx.Provide(NewFromParams))

// FetchLatest returns the target chain tokens of the latest listing,
// deduplicated by address. Transport errors are returned unchanged.
func (f *Fetcher) FetchLatest(ctx context.Context) ([]domain.RawTokenRecord, error) {
	var etag string
	if _, err := f.store.GetJSON(ctx, store.BasicTokens, ETagKey, &etag); err != nil {
		// without an etag the request is simply unconditional
		f.logger.Warn("failed to read stored etag", zap.Error(err))
		etag = ""
	}

	resp, err := f.source.FetchLatestProfiles(ctx, etag)
	if err != nil {
		return nil, err
	}

	var body []byte
	if resp.NotModified {
		body, err = f.cachedBody(ctx)
		if err != nil {
			return nil, err
		}
		notModified.Inc()
		f.logger.Debug("listing not modified, serving cached body", zap.String("etag", etag))
	} else {
		body = resp.Body
		if err := f.persist(ctx, resp); err != nil {
			return nil, err
		}
		modified.Inc()
	}

	var profiles []domain.TokenProfile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	tokens := FilterAndDedupe(profiles, f.targetChain)

	f.logger.Info("listing fetched",
		zap.Bool("not_modified", resp.NotModified),
		zap.Int("profiles", len(profiles)),
		zap.Int("tokens", len(tokens)))

	return tokens, nil
}

func (f *Fetcher) cachedBody(ctx context.Context) ([]byte, error) {
	body, err := f.store.Get(ctx, store.BasicTokens, RawKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrInconsistentCache
		}
		return nil, fmt.Errorf("failed to read cached listing: %w", err)
	}
	return body, nil
}

func (f *Fetcher) persist(ctx context.Context, resp *domain.ListingResponse) error {
	if err := f.store.SetRaw(ctx, store.BasicTokens, RawKey, resp.Body, f.ttl); err != nil {
		return err
	}
	if resp.ETag == "" {
		return nil
	}
	return f.store.Set(ctx, store.BasicTokens, ETagKey, resp.ETag, f.ttl)
}

// FilterAndDedupe keeps the profiles of chain and drops repeated addresses.
// A repeated address keeps its first position and takes its last value.
func FilterAndDedupe(profiles []domain.TokenProfile, chain string) []domain.RawTokenRecord {
	index := make(map[string]int, len(profiles))
	out := make([]domain.RawTokenRecord, 0, len(profiles))

	for _, p := range profiles {
		if p.ChainID != chain || p.TokenAddress == "" {
			continue
		}
		if i, ok := index[p.TokenAddress]; ok {
			out[i] = p.Record()
			continue
		}
		index[p.TokenAddress] = len(out)
		out = append(out, p.Record())
	}

	return out
}
