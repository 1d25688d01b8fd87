package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/domain"
	"github.com/igefined/token-screener/internal/ratelimit"
)

const (
	moduleName = "dexscreener"

	latestProfilesPath = "/token-profiles/latest/v1"
	searchPath         = "/latest/dex/search"
)

type Provider struct {
	baseURL    string
	maxRetries int
	client     *http.Client
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

var (
	_ domain.ListingSource = (*Provider)(nil)
	_ domain.PairSearcher  = (*Provider)(nil)
)

func NewProvider(cfg config.DexScreenerConfig, limiter *ratelimit.Limiter, logger *zap.Logger) *Provider {
	return &Provider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: cfg.Limits.MaxRetries,
		client:     &http.Client{Timeout: cfg.Limits.Timeout},
		limiter:    limiter,
		logger:     logger.Named(moduleName),
	}
}

func (p *Provider) Name() string {
	return moduleName
}

// FetchLatestProfiles requests the latest token profiles, sending etag as
// If-None-Match when set. A 304 yields NotModified with no body.
func (p *Provider) FetchLatestProfiles(ctx context.Context, etag string) (*domain.ListingResponse, error) {
	return ratelimit.Retry(ctx, p.limiter, p.maxRetries, func(ctx context.Context) (*domain.ListingResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+latestProfilesPath, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: fetch latest profiles: %w", moduleName, err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusNotModified:
			p.logger.Debug("latest profiles not modified", zap.String("etag", etag))
			return &domain.ListingResponse{NotModified: true, ETag: etag}, nil
		case http.StatusOK:
		default:
			return nil, statusError(resp)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: read latest profiles: %w", moduleName, err)
		}

		p.logger.Debug("latest profiles fetched",
			zap.Int("bytes", len(body)),
			zap.String("etag", resp.Header.Get("ETag")))

		return &domain.ListingResponse{
			ETag: resp.Header.Get("ETag"),
			Body: body,
		}, nil
	})
}

// SearchPairs returns every trading pair the search endpoint knows for address.
func (p *Provider) SearchPairs(ctx context.Context, address string) ([]domain.Pair, error) {
	return ratelimit.Retry(ctx, p.limiter, p.maxRetries, func(ctx context.Context) ([]domain.Pair, error) {
		u := p.baseURL + searchPath + "?" + url.Values{"q": {address}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: search pairs: %w", moduleName, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, statusError(resp)
		}

		var sr searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return nil, fmt.Errorf("%s: decode search response: %w", moduleName, err)
		}

		pairs := make([]domain.Pair, 0, len(sr.Pairs))
		for _, pr := range sr.Pairs {
			pairs = append(pairs, pr.toDomain())
		}
		return pairs, nil
	})
}

func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &domain.RateLimitError{
			Upstream:   moduleName,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return &domain.StatusError{Upstream: moduleName, Code: resp.StatusCode}
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
