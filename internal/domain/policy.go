package domain

// QualificationPolicy decides the Filtered flag of an enriched record.
type QualificationPolicy struct {
	MinMarketCap float64
}

// Qualifies reports whether rec meets every condition: market cap at or above
// the threshold, no mint authority, no freeze authority.
func (p QualificationPolicy) Qualifies(rec EnrichedTokenRecord) bool {
	if rec.MarketCapUSD < p.MinMarketCap {
		return false
	}
	return !rec.Mintable && !rec.Freezable
}

// Apply sets rec.Filtered. authorityKnown is false when mint/freeze authority
// could not be resolved, in which case the record can never qualify.
func (p QualificationPolicy) Apply(rec *EnrichedTokenRecord, authorityKnown bool) {
	rec.Filtered = !authorityKnown || !rec.Success || !p.Qualifies(*rec)
}
