// Package enrich turns raw listing records into enriched, qualified records
// in fixed-size batches, stopping once enough tokens qualify.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/igefined/token-screener/internal/domain"
)

var ErrNoData = errors.New("no upstream returned data")

// PairLookup resolves the best trading pair of one token.
type PairLookup interface {
	GetWithLock(ctx context.Context, address string) (*domain.Pair, error)
}

type Options struct {
	BatchSize    int
	MaxTokens    int
	MinMarketCap float64
}

type Pipeline struct {
	metadata domain.MetadataProvider
	supply   domain.SupplyProvider
	pairs    PairLookup
	opts     Options
	policy   domain.QualificationPolicy
	clock    clock.Clock
	logger   *zap.Logger
}

func New(
	metadata domain.MetadataProvider,
	supply domain.SupplyProvider,
	pairs PairLookup,
	opts Options,
	clk clock.Clock,
	logger *zap.Logger,
) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Pipeline{
		metadata: metadata,
		supply:   supply,
		pairs:    pairs,
		opts:     opts,
		policy:   domain.QualificationPolicy{MinMarketCap: opts.MinMarketCap},
		clock:    clk,
		logger:   logger.Named("enrich"),
	}
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// Enrich processes tokens batch by batch, in order. When maxTokens is set the
// input is cut to that length first. Processing stops after the batch that
// brings the number of qualifying records to the configured maximum; tokens
// after it are not enriched and do not appear in the result.
func (p *Pipeline) Enrich(ctx context.Context, tokens []domain.RawTokenRecord, maxTokens int) []domain.EnrichedTokenRecord {
	if maxTokens > 0 && len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}

	out := make([]domain.EnrichedTokenRecord, 0, len(tokens))
	qualified := 0

	for start := 0; start < len(tokens); start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("enrichment cancelled", zap.Int("processed", len(out)), zap.Error(err))
			break
		}

		end := min(start+p.opts.BatchSize, len(tokens))
		records := p.enrichBatch(ctx, tokens[start:end])
		out = append(out, records...)
		batches.Inc()

		for _, r := range records {
			if !r.Filtered {
				qualified++
			}
		}

		p.logger.Debug("batch enriched",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("qualified_total", qualified))

		if p.opts.MaxTokens > 0 && qualified >= p.opts.MaxTokens {
			if end < len(tokens) {
				earlyExits.Inc()
				p.logger.Info("enough qualifying tokens, skipping remaining input",
					zap.Int("qualified", qualified),
					zap.Int("skipped", len(tokens)-end))
			}
			break
		}
	}

	return out
}

// EnrichOne enriches a single address. It returns ErrNoData when every
// upstream came back empty.
func (p *Pipeline) EnrichOne(ctx context.Context, address string) (*domain.EnrichedTokenRecord, error) {
	records := p.enrichBatch(ctx, []domain.RawTokenRecord{{Address: address}})
	rec := records[0]
	if !rec.Success {
		return nil, fmt.Errorf("%w for %s", ErrNoData, address)
	}
	return &rec, nil
}

func (p *Pipeline) enrichBatch(ctx context.Context, batch []domain.RawTokenRecord) []domain.EnrichedTokenRecord {
	addresses := make([]string, len(batch))
	for i, t := range batch {
		addresses[i] = t.Address
	}

	metadata, supplies := p.fetchBatch(ctx, addresses)

	records := make([]domain.EnrichedTokenRecord, len(batch))
	var g errgroup.Group
	for i, tok := range batch {
		g.Go(func() error {
			records[i] = p.merge(ctx, tok, metadata[tok.Address], supplies[tok.Address])
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range records {
		if !r.Success {
			failedTokens.Inc()
		}
	}

	return records
}

// fetchBatch runs the metadata call and the supply calls concurrently. A
// failing call leaves its entries missing.
func (p *Pipeline) fetchBatch(ctx context.Context, addresses []string) (map[string]*domain.TokenMetadata, map[string]*domain.TokenSupply) {
	metadata := make(map[string]*domain.TokenMetadata, len(addresses))
	supplies := make(map[string]*domain.TokenSupply, len(addresses))

	var g errgroup.Group

	g.Go(func() error {
		list, err := p.metadata.FetchMetadata(ctx, addresses)
		if err != nil {
			p.logger.Warn("metadata batch failed", zap.Int("tokens", len(addresses)), zap.Error(err))
			return nil
		}
		for i, md := range list {
			if md != nil && i < len(addresses) {
				metadata[addresses[i]] = md
			}
		}
		return nil
	})

	g.Go(func() error {
		var (
			mu sync.Mutex
			sg errgroup.Group
		)
		for _, addr := range addresses {
			sg.Go(func() error {
				s, err := p.supply.FetchSupply(ctx, addr)
				if err != nil {
					p.logger.Debug("supply lookup failed", zap.String("address", addr), zap.Error(err))
					return nil
				}
				if s != nil {
					mu.Lock()
					supplies[addr] = s
					mu.Unlock()
				}
				return nil
			})
		}
		return sg.Wait()
	})

	_ = g.Wait()

	return metadata, supplies
}

func (p *Pipeline) merge(
	ctx context.Context,
	raw domain.RawTokenRecord,
	md *domain.TokenMetadata,
	supply *domain.TokenSupply,
) domain.EnrichedTokenRecord {
	now := p.clock.Now()

	pair, err := p.pairs.GetWithLock(ctx, raw.Address)
	if err != nil {
		p.logger.Debug("pair search failed", zap.String("address", raw.Address), zap.Error(err))
	}

	if md == nil && supply == nil && pair == nil {
		return domain.FailedRecord(raw, now)
	}

	rec := domain.EnrichedTokenRecord{
		RawTokenRecord: raw,
		Name:           domain.UnknownName,
		Ticker:         domain.UnknownTicker,
		EnrichedAt:     now,
		Success:        true,
	}

	if md != nil {
		if md.Name != "" {
			rec.Name = md.Name
		}
		if md.Symbol != "" {
			rec.Ticker = md.Symbol
		}
		rec.Decimals = max(md.Decimals, 0)
		rec.Mintable = md.MintAuthority != ""
		rec.Freezable = md.FreezeAuthority != ""
	}

	if supply != nil {
		rec.TotalSupply = max(supply.UIAmount, 0)
		if md == nil {
			rec.Decimals = max(supply.Decimals, 0)
		}
	}

	if pair != nil {
		if rec.Name == domain.UnknownName && pair.BaseToken.Name != "" {
			rec.Name = pair.BaseToken.Name
		}
		if rec.Ticker == domain.UnknownTicker && pair.BaseToken.Symbol != "" {
			rec.Ticker = pair.BaseToken.Symbol
		}
		rec.PriceUSD = max(pair.PriceUSD, 0)
		rec.MarketCapUSD = max(pair.MarketCap, 0)
		if rec.MarketCapUSD == 0 {
			rec.MarketCapUSD = max(pair.FDV, 0)
		}
	}

	if rec.MarketCapUSD == 0 && rec.PriceUSD > 0 && rec.TotalSupply > 0 {
		rec.MarketCapUSD = rec.PriceUSD * rec.TotalSupply
	}

	p.policy.Apply(&rec, md != nil)

	return rec
}
