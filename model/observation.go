package model

// MarketObservation is one per-symbol sample of the perpetual-futures market,
// produced by the fetcher once per detection cycle.
//
// All timestamps are integer milliseconds since epoch. Money-adjacent fields
// (volume, OI value) stay float64 end to end — that is what the upstream
// reports and percentile/stddev tie-breaks depend on it.
type MarketObservation struct {
	Symbol            string  `json:"symbol"`
	Timestamp         int64   `json:"timestamp"`
	Price             float64 `json:"price"`
	PriceChange24h    float64 `json:"priceChange24h"`
	PriceChangePct24h float64 `json:"priceChangePct24h"`
	Volume            float64 `json:"volume"`      // base units
	QuoteVolume       float64 `json:"quoteVolume"` // quote units
	FundingRate       float64 `json:"fundingRate"` // fraction, e.g. 0.0001
	OpenInterest      float64 `json:"openInterest"`
	OpenInterestValue float64 `json:"openInterestValue"` // openInterest × price
	CVD               float64 `json:"cvd"`               // takerBuy − takerSell, per 24h window
	High24h           float64 `json:"high24h"`
	Low24h            float64 `json:"low24h"`
	Trades24h         int64   `json:"trades24h"`
	NextFundingTime   int64   `json:"nextFundingTime"`
}

// FundingAPR annualizes a funding-rate fraction as a percent, assuming three
// funding intervals per day.
func FundingAPR(rate float64) float64 {
	return rate * 3 * 365 * 100
}
