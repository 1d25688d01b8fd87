package screener

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/cache"
	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/domain"
	"github.com/igefined/token-screener/internal/enrich"
	"github.com/igefined/token-screener/internal/fetcher"
	"github.com/igefined/token-screener/internal/store"
)

const (
	BasicSnapshotKey    = "latest_tokens"
	EnrichedSnapshotKey = "latest_enriched"

	lookupCacheName = "meta"
)

type Service struct {
	fetcher  *fetcher.Fetcher
	pipeline *enrich.Pipeline
	store    *store.Store
	lookups  *cache.SWR[domain.EnrichedTokenRecord]
	clock    clock.Clock
	logger   *zap.Logger

	cache      config.CacheConfig
	enrichment config.EnrichmentConfig
	scheduler  config.SchedulerConfig

	stopCh chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Params struct {
	fx.In

	Fetcher  *fetcher.Fetcher
	Pipeline *enrich.Pipeline
	Store    *store.Store
	Markers  store.Markers
	Config   *config.Config
	Clock    clock.Clock
	Logger   *zap.Logger
}

func NewService(params Params) *Service {
	s := &Service{
		fetcher:    params.Fetcher,
		pipeline:   params.Pipeline,
		store:      params.Store,
		clock:      params.Clock,
		logger:     params.Logger.Named("screener"),
		cache:      params.Config.Cache,
		enrichment: params.Config.Enrichment,
		scheduler:  params.Config.Scheduler,
		stopCh:     make(chan struct{}),
	}

	s.lookups = cache.NewSWR(
		lookupCacheName,
		params.Store,
		params.Markers,
		store.EnrichedTokens,
		s.pipeline.EnrichOne,
		params.Config.Cache.MetadataTTL,
		params.Config.Cache.RefreshTTL,
		params.Logger,
	)

	return s
}

// FetchBasic refreshes the raw listing snapshot.
func (s *Service) FetchBasic(ctx context.Context) (*domain.BasicSnapshot, error) {
	tokens, err := s.fetcher.FetchLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest tokens: %w", err)
	}

	snap := &domain.BasicSnapshot{
		Timestamp: s.clock.Now(),
		Count:     len(tokens),
		Tokens:    tokens,
	}
	if err := s.store.Set(ctx, store.BasicTokens, BasicSnapshotKey, snap, s.cache.BasicTTL); err != nil {
		return nil, fmt.Errorf("failed to store basic snapshot: %w", err)
	}

	s.logger.Info("Basic snapshot stored", zap.Int("tokens", snap.Count))
	return snap, nil
}

// FetchAndEnrich refreshes the listing, enriches it and stores the ranked
// qualifying tokens. maxTokens bounds the number of tokens enriched when set.
func (s *Service) FetchAndEnrich(ctx context.Context, maxTokens int) (*domain.EnrichedSnapshot, error) {
	basic, err := s.FetchBasic(ctx)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	logger := s.logger.With(zap.String("run_id", runID))
	start := s.clock.Now()

	records := s.pipeline.Enrich(ctx, basic.Tokens, maxTokens)

	limit := s.enrichment.MaxTokens
	if maxTokens > 0 && (limit <= 0 || maxTokens < limit) {
		limit = maxTokens
	}

	snap := BuildSnapshot(records, limit, domain.Thresholds{
		MinMarketCap: s.enrichment.MinMarketCap,
		MaxTokens:    limit,
	})
	snap.Timestamp = basic.Timestamp
	snap.EnrichedAt = s.clock.Now()
	snap.RunID = runID

	if err := s.store.Set(ctx, store.EnrichedTokens, EnrichedSnapshotKey, snap, s.cache.EnrichedTTL); err != nil {
		return nil, fmt.Errorf("failed to store enriched snapshot: %w", err)
	}

	logger.Info("Enriched snapshot stored",
		zap.Int("input", len(basic.Tokens)),
		zap.Int("enriched", snap.TotalCount),
		zap.Int("success", snap.SuccessCount),
		zap.Int("qualified", snap.QualifiedCount),
		zap.Int("kept", snap.Count),
		zap.Duration("took", s.clock.Since(start)))

	return snap, nil
}

// BuildSnapshot keeps the qualifying records, sorted by market cap from the
// highest, and cuts them to limit.
func BuildSnapshot(records []domain.EnrichedTokenRecord, limit int, thresholds domain.Thresholds) *domain.EnrichedSnapshot {
	snap := &domain.EnrichedSnapshot{
		TotalCount: len(records),
		Thresholds: thresholds,
	}

	qualified := make([]domain.EnrichedTokenRecord, 0, len(records))
	for _, r := range records {
		if r.Success {
			snap.SuccessCount++
		}
		if !r.Filtered {
			qualified = append(qualified, r)
		}
	}
	snap.QualifiedCount = len(qualified)

	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].MarketCapUSD > qualified[j].MarketCapUSD
	})
	if limit > 0 && len(qualified) > limit {
		qualified = qualified[:limit]
	}

	snap.Tokens = qualified
	snap.Count = len(qualified)
	return snap
}

// GetCachedBasicTokens returns nil when no listing was ever fetched or the
// snapshot expired.
func (s *Service) GetCachedBasicTokens(ctx context.Context) (*domain.BasicSnapshot, error) {
	var snap domain.BasicSnapshot
	found, err := s.store.GetJSON(ctx, store.BasicTokens, BasicSnapshotKey, &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

// GetEnrichedTokens returns nil when no enrichment run is cached.
func (s *Service) GetEnrichedTokens(ctx context.Context) (*domain.EnrichedSnapshot, error) {
	var snap domain.EnrichedSnapshot
	found, err := s.store.GetJSON(ctx, store.EnrichedTokens, EnrichedSnapshotKey, &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

func (s *Service) Status(ctx context.Context) ([]domain.CacheStatus, error) {
	basic, err := s.GetCachedBasicTokens(ctx)
	if err != nil {
		return nil, err
	}
	enriched, err := s.GetEnrichedTokens(ctx)
	if err != nil {
		return nil, err
	}

	statuses := []domain.CacheStatus{
		{Table: string(store.BasicTokens), Key: BasicSnapshotKey},
		{Table: string(store.EnrichedTokens), Key: EnrichedSnapshotKey},
	}
	if basic != nil {
		statuses[0].Exists = true
		statuses[0].Count = basic.Count
	}
	if enriched != nil {
		statuses[1].Exists = true
		statuses[1].Count = enriched.Count
	}

	for i := range statuses {
		if !statuses[i].Exists {
			continue
		}
		ttl, err := s.store.TTL(ctx, store.Table(statuses[i].Table), statuses[i].Key)
		if err != nil {
			// expired between the read and now
			statuses[i].Exists = false
			statuses[i].Count = 0
			continue
		}
		statuses[i].TTL = ttl
	}

	return statuses, nil
}

func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	return s.store.CleanupExpired(ctx)
}

// Stats returns nil when no enriched snapshot is cached.
func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	snap, err := s.GetEnrichedTokens(ctx)
	if err != nil || snap == nil {
		return nil, err
	}
	st := domain.NewStats(snap)
	return &st, nil
}

// LookupToken returns the cached enrichment of one mint, refreshing it in the
// background. It returns nil when nothing is known about the mint.
func (s *Service) LookupToken(ctx context.Context, address string) (*domain.EnrichedTokenRecord, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return nil, fmt.Errorf("invalid token address %q: %w", address, err)
	}
	return s.lookups.GetCachedOrRefresh(ctx, address)
}

// Start runs the periodic fetch and cleanup loops when the scheduler is enabled.
func (s *Service) Start(ctx context.Context) error {
	if !s.scheduler.Enabled {
		s.logger.Info("Scheduler disabled")
		return nil
	}

	s.logger.Info("Starting screener scheduler",
		zap.Duration("fetch_interval", s.scheduler.FetchInterval),
		zap.Duration("cleanup_interval", s.scheduler.CleanupInterval))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.wg.Add(2)
	go s.loop(runCtx, "fetch", s.scheduler.FetchInterval, true, s.runFetch)
	go s.loop(runCtx, "cleanup", s.scheduler.CleanupInterval, false, s.runCleanup)

	return nil
}

func (s *Service) Stop() error {
	s.logger.Info("Stopping screener service")

	close(s.stopCh)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	return nil
}

// WaitBackground blocks until background lookup refreshes are done.
func (s *Service) WaitBackground() {
	s.lookups.Wait()
}

func (s *Service) loop(ctx context.Context, name string, interval time.Duration, immediate bool, run func(context.Context)) {
	defer s.wg.Done()

	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	if immediate {
		run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping loop", zap.String("loop", name))
			return
		case <-s.stopCh:
			s.logger.Info("Stop signal received, stopping loop", zap.String("loop", name))
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// errors end here; the next tick retries
func (s *Service) runFetch(ctx context.Context) {
	if _, err := s.FetchAndEnrich(ctx, 0); err != nil {
		scheduledFailures.WithLabelValues("fetch").Inc()
		s.logger.Error("Scheduled fetch failed", zap.Error(err))
	}
}

func (s *Service) runCleanup(ctx context.Context) {
	if _, err := s.Cleanup(ctx); err != nil {
		scheduledFailures.WithLabelValues("cleanup").Inc()
		s.logger.Error("Scheduled cleanup failed", zap.Error(err))
	}
}
