package domain

import (
	"context"
)

// ListingResponse is the outcome of a conditional listing request. When
// NotModified is set, Body is empty and the caller owns the cached copy.
type ListingResponse struct {
	NotModified bool
	ETag        string
	Body        []byte
}

// ListingSource is the market-data listing endpoint.
type ListingSource interface {
	Name() string
	FetchLatestProfiles(ctx context.Context, etag string) (*ListingResponse, error)
}

type PairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type Pair struct {
	ChainID      string    `json:"chainId"`
	PairAddress  string    `json:"pairAddress"`
	BaseToken    PairToken `json:"baseToken"`
	PriceUSD     float64   `json:"priceUsd"`
	LiquidityUSD float64   `json:"liquidityUsd"`
	MarketCap    float64   `json:"marketCap"`
	FDV          float64   `json:"fdv"`
}

// PairSearcher is the market-data search endpoint. It is not batchable.
type PairSearcher interface {
	SearchPairs(ctx context.Context, address string) ([]Pair, error)
}

// TokenMetadata is the metadata-provider view of a mint. Empty authority
// strings mean the authority is revoked.
type TokenMetadata struct {
	Address         string `json:"address"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        int    `json:"decimals"`
	MintAuthority   string `json:"mintAuthority"`
	FreezeAuthority string `json:"freezeAuthority"`
}

// MetadataProvider returns one entry per requested address, in request order.
// Entries may be nil when the provider knows nothing about a mint.
type MetadataProvider interface {
	Name() string
	FetchMetadata(ctx context.Context, addresses []string) ([]*TokenMetadata, error)
}

type TokenSupply struct {
	Amount   string  `json:"amount"`
	Decimals int     `json:"decimals"`
	UIAmount float64 `json:"uiAmount"`
}

type SupplyProvider interface {
	FetchSupply(ctx context.Context, address string) (*TokenSupply, error)
}

// BestPair picks the pair with the highest reported liquidity.
func BestPair(pairs []Pair) *Pair {
	var best *Pair
	for i := range pairs {
		if best == nil || pairs[i].LiquidityUSD > best.LiquidityUSD {
			best = &pairs[i]
		}
	}
	return best
}
