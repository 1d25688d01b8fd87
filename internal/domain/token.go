package domain

import (
	"time"
)

const (
	UnknownName   = "Unknown"
	UnknownTicker = "UNKNOWN"
)

type Link struct {
	Type  string `json:"type,omitempty"`
	Label string `json:"label,omitempty"`
	URL   string `json:"url"`
}

// RawTokenRecord is one entry of the market-data listing, keyed by Address.
type RawTokenRecord struct {
	Address     string `json:"address"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
	Header      string `json:"header"`
	Description string `json:"description"`
	Links       []Link `json:"links"`
}

// TokenProfile is the listing payload as the market-data API returns it.
type TokenProfile struct {
	URL          string `json:"url"`
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
	Icon         string `json:"icon"`
	Header       string `json:"header"`
	Description  string `json:"description"`
	Links        []Link `json:"links"`
}

func (p TokenProfile) Record() RawTokenRecord {
	return RawTokenRecord{
		Address:     p.TokenAddress,
		URL:         p.URL,
		Icon:        p.Icon,
		Header:      p.Header,
		Description: p.Description,
		Links:       p.Links,
	}
}

type EnrichedTokenRecord struct {
	RawTokenRecord

	Name         string    `json:"name"`
	Ticker       string    `json:"ticker"`
	PriceUSD     float64   `json:"priceUsd"`
	MarketCapUSD float64   `json:"marketCapUsd"`
	TotalSupply  float64   `json:"totalSupply"`
	Decimals     int       `json:"decimals"`
	Mintable     bool      `json:"mintable"`
	Freezable    bool      `json:"freezable"`
	EnrichedAt   time.Time `json:"enrichedAt"`
	Success      bool      `json:"success"`
	Filtered     bool      `json:"filtered"`
}

// FailedRecord is the placeholder emitted when no upstream returned usable data.
func FailedRecord(raw RawTokenRecord, at time.Time) EnrichedTokenRecord {
	return EnrichedTokenRecord{
		RawTokenRecord: raw,
		Name:           UnknownName,
		Ticker:         UnknownTicker,
		EnrichedAt:     at,
		Success:        false,
		Filtered:       true,
	}
}

type BasicSnapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Count     int              `json:"count"`
	Tokens    []RawTokenRecord `json:"tokens"`
}

type Thresholds struct {
	MinMarketCap float64 `json:"minMarketCap"`
	MaxTokens    int     `json:"maxTokens"`
}

type EnrichedSnapshot struct {
	// Timestamp of the basic listing the run was built from.
	Timestamp      time.Time             `json:"timestamp"`
	EnrichedAt     time.Time             `json:"enrichedAt"`
	RunID          string                `json:"runId"`
	Count          int                   `json:"count"`
	SuccessCount   int                   `json:"successCount"`
	TotalCount     int                   `json:"totalCount"`
	QualifiedCount int                   `json:"qualifiedCount"`
	Thresholds     Thresholds            `json:"thresholds"`
	Tokens         []EnrichedTokenRecord `json:"tokens"`
}

type Stats struct {
	TotalCount        int     `json:"totalCount"`
	SuccessCount      int     `json:"successCount"`
	QualifiedCount    int     `json:"qualifiedCount"`
	SuccessRate       float64 `json:"successRate"`
	QualificationRate float64 `json:"qualificationRate"`
	AverageMarketCap  float64 `json:"averageMarketCap"`
	MaxMarketCap      float64 `json:"maxMarketCap"`
}

// NewStats derives aggregate statistics from an enriched snapshot. Market cap
// figures only consider the qualifying tokens held in the snapshot.
func NewStats(s *EnrichedSnapshot) Stats {
	st := Stats{
		TotalCount:     s.TotalCount,
		SuccessCount:   s.SuccessCount,
		QualifiedCount: s.QualifiedCount,
	}
	if s.TotalCount > 0 {
		st.SuccessRate = float64(s.SuccessCount) / float64(s.TotalCount)
		st.QualificationRate = float64(s.QualifiedCount) / float64(s.TotalCount)
	}

	var sum float64
	var n int
	for _, t := range s.Tokens {
		if t.Filtered {
			continue
		}
		sum += t.MarketCapUSD
		n++
		if t.MarketCapUSD > st.MaxMarketCap {
			st.MaxMarketCap = t.MarketCapUSD
		}
	}
	if n > 0 {
		st.AverageMarketCap = sum / float64(n)
	}

	return st
}

// CacheStatus describes one snapshot key of a logical table.
type CacheStatus struct {
	Table  string        `json:"table"`
	Key    string        `json:"key"`
	Exists bool          `json:"exists"`
	TTL    time.Duration `json:"ttl"`
	Count  int           `json:"count"`
}
