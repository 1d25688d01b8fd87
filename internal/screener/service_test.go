package screener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/cache"
	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/domain"
	"github.com/igefined/token-screener/internal/enrich"
	"github.com/igefined/token-screener/internal/fetcher"
	"github.com/igefined/token-screener/internal/store"
)

const (
	wrappedSOL = "So11111111111111111111111111111111111111112"
	usdc       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type fakeUpstream struct {
	mu        sync.Mutex
	listing   []domain.TokenProfile
	caps      map[string]float64
	mintable  map[string]bool
	listings  int
	metaCalls int
}

func (f *fakeUpstream) Name() string { return "fake" }

func (f *fakeUpstream) FetchLatestProfiles(context.Context, string) (*domain.ListingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings++
	body, err := json.Marshal(f.listing)
	if err != nil {
		return nil, err
	}
	return &domain.ListingResponse{ETag: fmt.Sprintf(`W/"%d"`, f.listings), Body: body}, nil
}

func (f *fakeUpstream) FetchMetadata(_ context.Context, addresses []string) ([]*domain.TokenMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaCalls++
	out := make([]*domain.TokenMetadata, len(addresses))
	for i, a := range addresses {
		if _, ok := f.caps[a]; !ok {
			continue
		}
		md := &domain.TokenMetadata{Address: a, Name: "Token " + a, Symbol: a, Decimals: 6}
		if f.mintable[a] {
			md.MintAuthority = "Mint111"
		}
		out[i] = md
	}
	return out, nil
}

func (f *fakeUpstream) FetchSupply(_ context.Context, address string) (*domain.TokenSupply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.caps[address]; !ok {
		return nil, errors.New("rpc: could not find mint")
	}
	return &domain.TokenSupply{Amount: "1000000", Decimals: 6, UIAmount: 1}, nil
}

func (f *fakeUpstream) SearchPairs(_ context.Context, address string) ([]domain.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mc, ok := f.caps[address]
	if !ok {
		return nil, nil
	}
	return []domain.Pair{{PairAddress: "p-" + address, LiquidityUSD: 100, PriceUSD: 1, MarketCap: mc}}, nil
}

type harness struct {
	service  *Service
	store    *store.Store
	durable  *store.MemoryDurable
	clock    *clock.Mock
	upstream *fakeUpstream
}

func testConfig() *config.Config {
	return &config.Config{
		Cache: config.CacheConfig{
			BasicTTL:     5 * time.Minute,
			EnrichedTTL:  10 * time.Minute,
			MetadataTTL:  time.Hour,
			LockTTL:      time.Second,
			RecentTTL:    time.Second,
			RefreshTTL:   time.Second,
			PollInterval: 5 * time.Millisecond,
			WaitTimeout:  100 * time.Millisecond,
		},
		Enrichment: config.EnrichmentConfig{
			TargetChain:  "solana",
			BatchSize:    2,
			MaxTokens:    3,
			MinMarketCap: 25000,
		},
		Scheduler: config.SchedulerConfig{
			Enabled:         true,
			FetchInterval:   time.Minute,
			CleanupInterval: time.Hour,
		},
	}
}

func newHarness(t *testing.T, up *fakeUpstream) *harness {
	t.Helper()
	cfg := testConfig()
	logger := zap.NewNop()

	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	primary, err := store.NewMemoryTier(100, clk)
	require.NoError(t, err)
	markers, err := store.NewMemoryMarkers(100, clk)
	require.NoError(t, err)
	durable := store.NewMemoryDurable()
	st := store.New(primary, durable, clk, logger)

	pairs := enrich.NewPairLookup(up, markers, cache.OptionsFromConfig(cfg.Cache), clock.New(), logger)
	pipeline := enrich.New(up, up, pairs, enrich.Options{
		BatchSize:    cfg.Enrichment.BatchSize,
		MaxTokens:    cfg.Enrichment.MaxTokens,
		MinMarketCap: cfg.Enrichment.MinMarketCap,
	}, clk, logger)

	svc := NewService(Params{
		Fetcher:  fetcher.New(up, st, cfg.Enrichment.TargetChain, cfg.Cache.BasicTTL, logger),
		Pipeline: pipeline,
		Store:    st,
		Markers:  markers,
		Config:   cfg,
		Clock:    clk,
		Logger:   logger,
	})

	return &harness{service: svc, store: st, durable: durable, clock: clk, upstream: up}
}

func defaultUpstream() *fakeUpstream {
	return &fakeUpstream{
		listing: []domain.TokenProfile{
			{ChainID: "solana", TokenAddress: "a"},
			{ChainID: "solana", TokenAddress: "b"},
			{ChainID: "ethereum", TokenAddress: "0x1"},
			{ChainID: "solana", TokenAddress: "c"},
			{ChainID: "solana", TokenAddress: "d"},
			{ChainID: "solana", TokenAddress: "e"},
		},
		caps: map[string]float64{
			"a": 30000,
			"b": 90000,
			"c": 10000,
			"d": 500000,
			"e": 70000,
		},
		mintable: map[string]bool{"d": true},
	}
}

func TestReadersReturnNilBeforeFirstRun(t *testing.T) {
	h := newHarness(t, defaultUpstream())
	ctx := context.Background()

	basic, err := h.service.GetCachedBasicTokens(ctx)
	require.NoError(t, err)
	assert.Nil(t, basic)

	enriched, err := h.service.GetEnrichedTokens(ctx)
	require.NoError(t, err)
	assert.Nil(t, enriched)

	stats, err := h.service.Stats(ctx)
	require.NoError(t, err)
	assert.Nil(t, stats)

	statuses, err := h.service.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.False(t, st.Exists)
	}
}

func TestFetchBasic(t *testing.T) {
	h := newHarness(t, defaultUpstream())
	ctx := context.Background()

	snap, err := h.service.FetchBasic(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Count)

	cached, err := h.service.GetCachedBasicTokens(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, snap.Count, cached.Count)
	assert.True(t, snap.Timestamp.Equal(cached.Timestamp))
}

func TestFetchAndEnrich(t *testing.T) {
	h := newHarness(t, defaultUpstream())
	ctx := context.Background()

	snap, err := h.service.FetchAndEnrich(ctx, 0)
	require.NoError(t, err)

	// a,b qualify (2), c filtered, d mintable; e qualifies after the third batch
	assert.Equal(t, 5, snap.TotalCount)
	assert.Equal(t, 5, snap.SuccessCount)
	assert.Equal(t, 3, snap.QualifiedCount)
	assert.NotEmpty(t, snap.RunID)
	assert.Equal(t, domain.Thresholds{MinMarketCap: 25000, MaxTokens: 3}, snap.Thresholds)

	require.Len(t, snap.Tokens, 3)
	assert.LessOrEqual(t, snap.Count, 3)
	assert.Equal(t, []string{"b", "e", "a"}, addresses(snap.Tokens))
	for i := 1; i < len(snap.Tokens); i++ {
		assert.GreaterOrEqual(t, snap.Tokens[i-1].MarketCapUSD, snap.Tokens[i].MarketCapUSD)
	}
	for _, tok := range snap.Tokens {
		assert.False(t, tok.Filtered)
		assert.GreaterOrEqual(t, tok.MarketCapUSD, 25000.0)
		assert.False(t, tok.Mintable)
		assert.False(t, tok.Freezable)
	}

	cached, err := h.service.GetEnrichedTokens(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, snap.RunID, cached.RunID)

	stats, err := h.service.Stats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.InDelta(t, 0.6, stats.QualificationRate, 1e-9)
	assert.Equal(t, 90000.0, stats.MaxMarketCap)
	assert.InDelta(t, (90000.0+70000+30000)/3, stats.AverageMarketCap, 1e-6)
}

func TestFetchAndEnrichBounded(t *testing.T) {
	h := newHarness(t, defaultUpstream())

	snap, err := h.service.FetchAndEnrich(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalCount)
	assert.Equal(t, []string{"b", "a"}, addresses(snap.Tokens))
	assert.Equal(t, 2, snap.Thresholds.MaxTokens)
}

func TestStatusAndCleanup(t *testing.T) {
	h := newHarness(t, defaultUpstream())
	ctx := context.Background()

	_, err := h.service.FetchAndEnrich(ctx, 0)
	require.NoError(t, err)

	statuses, err := h.service.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, domain.CacheStatus{
		Table: "basic_tokens", Key: BasicSnapshotKey, Exists: true, TTL: 5 * time.Minute, Count: 5,
	}, statuses[0])
	assert.Equal(t, domain.CacheStatus{
		Table: "enriched_tokens", Key: EnrichedSnapshotKey, Exists: true, TTL: 10 * time.Minute, Count: 3,
	}, statuses[1])

	h.clock.Add(6 * time.Minute)

	n, err := h.service.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "snapshot, raw body and etag of the basic table")

	basic, err := h.service.GetCachedBasicTokens(ctx)
	require.NoError(t, err)
	assert.Nil(t, basic)

	enriched, err := h.service.GetEnrichedTokens(ctx)
	require.NoError(t, err)
	assert.NotNil(t, enriched)

	n, err = h.service.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLookupToken(t *testing.T) {
	up := defaultUpstream()
	up.caps[wrappedSOL] = 1e9
	h := newHarness(t, up)
	ctx := context.Background()

	_, err := h.service.LookupToken(ctx, "not a mint")
	assert.Error(t, err)

	rec, err := h.service.LookupToken(ctx, wrappedSOL)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Token "+wrappedSOL, rec.Name)
	assert.False(t, rec.Filtered)

	// cached: served immediately, refreshed in the background
	rec, err = h.service.LookupToken(ctx, wrappedSOL)
	require.NoError(t, err)
	require.NotNil(t, rec)
	h.service.WaitBackground()

	unknown, err := h.service.LookupToken(ctx, usdc)
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestSchedulerRunsImmediately(t *testing.T) {
	h := newHarness(t, defaultUpstream())
	ctx := context.Background()

	require.NoError(t, h.service.Start(ctx))

	require.Eventually(t, func() bool {
		snap, err := h.service.GetEnrichedTokens(ctx)
		return err == nil && snap != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.service.Stop())
}

func TestSchedulerDisabled(t *testing.T) {
	h := newHarness(t, defaultUpstream())
	h.service.scheduler.Enabled = false

	require.NoError(t, h.service.Start(context.Background()))
	require.NoError(t, h.service.Stop())

	h.upstream.mu.Lock()
	defer h.upstream.mu.Unlock()
	assert.Zero(t, h.upstream.listings)
}

func TestBuildSnapshot(t *testing.T) {
	records := []domain.EnrichedTokenRecord{
		{RawTokenRecord: domain.RawTokenRecord{Address: "x"}, MarketCapUSD: 1, Success: true, Filtered: false},
		{RawTokenRecord: domain.RawTokenRecord{Address: "y"}, MarketCapUSD: 9, Success: true, Filtered: false},
		{RawTokenRecord: domain.RawTokenRecord{Address: "z"}, MarketCapUSD: 100, Success: true, Filtered: true},
		{RawTokenRecord: domain.RawTokenRecord{Address: "w"}, Success: false, Filtered: true},
		{RawTokenRecord: domain.RawTokenRecord{Address: "v"}, MarketCapUSD: 5, Success: true, Filtered: false},
	}

	snap := BuildSnapshot(records, 2, domain.Thresholds{MinMarketCap: 1, MaxTokens: 2})
	assert.Equal(t, 5, snap.TotalCount)
	assert.Equal(t, 4, snap.SuccessCount)
	assert.Equal(t, 3, snap.QualifiedCount)
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, []string{"y", "v"}, addresses(snap.Tokens))

	empty := BuildSnapshot(nil, 5, domain.Thresholds{})
	assert.Empty(t, empty.Tokens)
	assert.Zero(t, empty.Count)
}

func addresses(records []domain.EnrichedTokenRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Address
	}
	return out
}
