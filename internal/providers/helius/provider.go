package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"

	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/domain"
	"github.com/igefined/token-screener/internal/ratelimit"
)

const (
	moduleName = "helius"

	metadataPath = "/v0/token-metadata"
)

type Provider struct {
	apiKey     string
	apiURL     string
	timeout    time.Duration
	maxRetries int
	client     *http.Client
	rpc        *rpc.Client
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

var (
	_ domain.MetadataProvider = (*Provider)(nil)
	_ domain.SupplyProvider   = (*Provider)(nil)
)

func NewProvider(cfg config.HeliusConfig, limiter *ratelimit.Limiter, logger *zap.Logger) *Provider {
	return &Provider{
		apiKey:     cfg.APIKey,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		timeout:    cfg.Limits.Timeout,
		maxRetries: cfg.Limits.MaxRetries,
		client:     &http.Client{Timeout: cfg.Limits.Timeout},
		rpc:        rpc.New(rpcEndpoint(cfg.RPCURL, cfg.APIKey)),
		limiter:    limiter,
		logger:     logger.Named(moduleName),
	}
}

func rpcEndpoint(rpcURL, apiKey string) string {
	if apiKey == "" {
		return rpcURL
	}
	u, err := url.Parse(rpcURL)
	if err != nil {
		return rpcURL
	}
	q := u.Query()
	q.Set("api-key", apiKey)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Provider) Name() string {
	return moduleName
}

// FetchMetadata asks for every address in one call. The result has one entry
// per address in the same order; unknown mints are nil.
func (p *Provider) FetchMetadata(ctx context.Context, addresses []string) ([]*domain.TokenMetadata, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(metadataRequest{MintAccounts: addresses, IncludeOffChain: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	responses, err := ratelimit.Retry(ctx, p.limiter, p.maxRetries, func(ctx context.Context) ([]*metadataResponse, error) {
		u := p.apiURL + metadataPath + "?" + url.Values{"api-key": {p.apiKey}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: fetch metadata: %w", moduleName, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, statusError(resp)
		}

		var out []*metadataResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("%s: decode metadata: %w", moduleName, err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	byAddress := make(map[string]*domain.TokenMetadata, len(responses))
	for _, r := range responses {
		if r == nil || r.Account == "" {
			continue
		}
		if md := r.toDomain(); md != nil {
			byAddress[r.Account] = md
		}
	}

	result := make([]*domain.TokenMetadata, len(addresses))
	for i, addr := range addresses {
		result[i] = byAddress[addr]
	}

	p.logger.Debug("metadata fetched",
		zap.Int("requested", len(addresses)),
		zap.Int("found", len(byAddress)))

	return result, nil
}

// FetchSupply reads the mint supply with getTokenSupply.
func (p *Provider) FetchSupply(ctx context.Context, address string) (*domain.TokenSupply, error) {
	mint, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address %q: %w", address, err)
	}

	out, err := ratelimit.Retry(ctx, p.limiter, p.maxRetries, func(ctx context.Context) (*rpc.GetTokenSupplyResult, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		res, err := p.rpc.GetTokenSupply(ctx, mint, rpc.CommitmentConfirmed)
		if err != nil {
			var httpErr *jsonrpc.HTTPError
			if errors.As(err, &httpErr) && httpErr.Code == http.StatusTooManyRequests {
				return nil, &domain.RateLimitError{Upstream: moduleName}
			}
			return nil, fmt.Errorf("%s: get token supply: %w", moduleName, err)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}

	supply := &domain.TokenSupply{
		Amount:   out.Value.Amount,
		Decimals: int(out.Value.Decimals),
	}
	if out.Value.UiAmount != nil {
		supply.UIAmount = *out.Value.UiAmount
	} else {
		supply.UIAmount = uiAmount(out.Value.Amount, supply.Decimals)
	}
	return supply, nil
}

func uiAmount(amount string, decimals int) float64 {
	raw, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0
	}
	return raw / math.Pow10(decimals)
}

func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &domain.RateLimitError{Upstream: moduleName, RetryAfter: retryAfter}
	}
	return &domain.StatusError{Upstream: moduleName, Code: resp.StatusCode}
}
