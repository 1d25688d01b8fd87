package dexscreener

import (
	"strconv"

	"github.com/igefined/token-screener/internal/domain"
)

type searchResponse struct {
	Pairs []pairResponse `json:"pairs"`
}

type pairResponse struct {
	ChainID     string `json:"chainId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	// priceUsd is sent as a decimal string
	PriceUSD  string `json:"priceUsd"`
	Liquidity *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
}

func (p pairResponse) toDomain() domain.Pair {
	pair := domain.Pair{
		ChainID:     p.ChainID,
		PairAddress: p.PairAddress,
		BaseToken: domain.PairToken{
			Address: p.BaseToken.Address,
			Name:    p.BaseToken.Name,
			Symbol:  p.BaseToken.Symbol,
		},
		MarketCap: nonNegative(p.MarketCap),
		FDV:       nonNegative(p.FDV),
	}
	if price, err := strconv.ParseFloat(p.PriceUSD, 64); err == nil {
		pair.PriceUSD = nonNegative(price)
	}
	if p.Liquidity != nil {
		pair.LiquidityUSD = nonNegative(p.Liquidity.USD)
	}
	return pair
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
