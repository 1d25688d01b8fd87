package domain

import (
	"testing"
	"time"
)

func TestQualificationPolicy(t *testing.T) {
	policy := QualificationPolicy{MinMarketCap: 25000}

	tests := []struct {
		name           string
		record         EnrichedTokenRecord
		authorityKnown bool
		filtered       bool
	}{
		{
			name:           "qualifying token",
			record:         EnrichedTokenRecord{MarketCapUSD: 30000, Success: true},
			authorityKnown: true,
			filtered:       false,
		},
		{
			name:           "exactly at threshold",
			record:         EnrichedTokenRecord{MarketCapUSD: 25000, Success: true},
			authorityKnown: true,
			filtered:       false,
		},
		{
			name:           "below threshold",
			record:         EnrichedTokenRecord{MarketCapUSD: 10000, Success: true},
			authorityKnown: true,
			filtered:       true,
		},
		{
			name:           "below threshold regardless of authorities",
			record:         EnrichedTokenRecord{MarketCapUSD: 10000, Mintable: true, Freezable: true, Success: true},
			authorityKnown: true,
			filtered:       true,
		},
		{
			name:           "mintable",
			record:         EnrichedTokenRecord{MarketCapUSD: 1e6, Mintable: true, Success: true},
			authorityKnown: true,
			filtered:       true,
		},
		{
			name:           "freezable",
			record:         EnrichedTokenRecord{MarketCapUSD: 1e6, Freezable: true, Success: true},
			authorityKnown: true,
			filtered:       true,
		},
		{
			name:           "unknown authorities",
			record:         EnrichedTokenRecord{MarketCapUSD: 1e6, Success: true},
			authorityKnown: false,
			filtered:       true,
		},
		{
			name:           "failed enrichment",
			record:         EnrichedTokenRecord{MarketCapUSD: 1e6},
			authorityKnown: true,
			filtered:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.record
			policy.Apply(&rec, tt.authorityKnown)
			if rec.Filtered != tt.filtered {
				t.Errorf("Apply() filtered = %v, expected %v", rec.Filtered, tt.filtered)
			}
			if !rec.Filtered && !policy.Qualifies(rec) {
				t.Errorf("unfiltered record does not qualify: %+v", rec)
			}
		})
	}
}

func TestFailedRecord(t *testing.T) {
	at := time.Unix(1700000000, 0)
	rec := FailedRecord(RawTokenRecord{Address: "mint1"}, at)

	if rec.Success || !rec.Filtered {
		t.Errorf("FailedRecord() success=%v filtered=%v", rec.Success, rec.Filtered)
	}
	if rec.Name != UnknownName || rec.Ticker != UnknownTicker {
		t.Errorf("FailedRecord() name=%q ticker=%q", rec.Name, rec.Ticker)
	}
	if rec.PriceUSD != 0 || rec.MarketCapUSD != 0 || rec.TotalSupply != 0 {
		t.Errorf("FailedRecord() has non-zero numerics: %+v", rec)
	}
}

func TestBestPair(t *testing.T) {
	if BestPair(nil) != nil {
		t.Errorf("BestPair(nil) should be nil")
	}

	pairs := []Pair{
		{PairAddress: "a", LiquidityUSD: 10},
		{PairAddress: "b", LiquidityUSD: 500},
		{PairAddress: "c", LiquidityUSD: 20},
	}
	if got := BestPair(pairs); got.PairAddress != "b" {
		t.Errorf("BestPair() = %q, expected %q", got.PairAddress, "b")
	}
}

func TestNewStats(t *testing.T) {
	snap := &EnrichedSnapshot{
		TotalCount:     10,
		SuccessCount:   8,
		QualifiedCount: 2,
		Tokens: []EnrichedTokenRecord{
			{MarketCapUSD: 40000},
			{MarketCapUSD: 60000},
		},
	}

	st := NewStats(snap)
	if st.SuccessRate != 0.8 {
		t.Errorf("SuccessRate = %v, expected 0.8", st.SuccessRate)
	}
	if st.QualificationRate != 0.2 {
		t.Errorf("QualificationRate = %v, expected 0.2", st.QualificationRate)
	}
	if st.AverageMarketCap != 50000 || st.MaxMarketCap != 60000 {
		t.Errorf("market cap stats = %v/%v", st.AverageMarketCap, st.MaxMarketCap)
	}

	empty := NewStats(&EnrichedSnapshot{})
	if empty.SuccessRate != 0 || empty.AverageMarketCap != 0 {
		t.Errorf("empty stats should be zero: %+v", empty)
	}
}
