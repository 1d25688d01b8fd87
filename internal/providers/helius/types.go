package helius

import (
	"strings"

	"github.com/igefined/token-screener/internal/domain"
)

type metadataRequest struct {
	MintAccounts    []string `json:"mintAccounts"`
	IncludeOffChain bool     `json:"includeOffChain"`
}

type metadataResponse struct {
	Account            string `json:"account"`
	OnChainAccountInfo *struct {
		AccountInfo *struct {
			Data *struct {
				Parsed *struct {
					Info *mintInfo `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"accountInfo"`
	} `json:"onChainAccountInfo"`
	OnChainMetadata *struct {
		Metadata *struct {
			Data *namedData `json:"data"`
		} `json:"metadata"`
	} `json:"onChainMetadata"`
	OffChainMetadata *struct {
		Metadata *namedData `json:"metadata"`
	} `json:"offChainMetadata"`
	LegacyMetadata *struct {
		namedData
		Decimals int `json:"decimals"`
	} `json:"legacyMetadata"`
}

type mintInfo struct {
	Decimals        int     `json:"decimals"`
	MintAuthority   *string `json:"mintAuthority"`
	FreezeAuthority *string `json:"freezeAuthority"`
}

type namedData struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// names read from on-chain accounts are NUL padded
func clean(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func (r *metadataResponse) mint() *mintInfo {
	if r.OnChainAccountInfo == nil || r.OnChainAccountInfo.AccountInfo == nil ||
		r.OnChainAccountInfo.AccountInfo.Data == nil || r.OnChainAccountInfo.AccountInfo.Data.Parsed == nil {
		return nil
	}
	return r.OnChainAccountInfo.AccountInfo.Data.Parsed.Info
}

// names returns the candidate name/symbol pairs in order of preference.
func (r *metadataResponse) names() []namedData {
	var out []namedData
	if r.OnChainMetadata != nil && r.OnChainMetadata.Metadata != nil && r.OnChainMetadata.Metadata.Data != nil {
		out = append(out, *r.OnChainMetadata.Metadata.Data)
	}
	if r.LegacyMetadata != nil {
		out = append(out, r.LegacyMetadata.namedData)
	}
	if r.OffChainMetadata != nil && r.OffChainMetadata.Metadata != nil {
		out = append(out, *r.OffChainMetadata.Metadata)
	}
	return out
}

// toDomain returns nil when the response carries no mint account, since
// authorities are then unknown.
func (r *metadataResponse) toDomain() *domain.TokenMetadata {
	info := r.mint()
	if info == nil {
		return nil
	}

	md := &domain.TokenMetadata{
		Address:  r.Account,
		Decimals: info.Decimals,
	}
	if info.MintAuthority != nil {
		md.MintAuthority = *info.MintAuthority
	}
	if info.FreezeAuthority != nil {
		md.FreezeAuthority = *info.FreezeAuthority
	}

	for _, n := range r.names() {
		if md.Name == "" {
			md.Name = clean(n.Name)
		}
		if md.Symbol == "" {
			md.Symbol = clean(n.Symbol)
		}
	}

	return md
}
