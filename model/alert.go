package model

import "fmt"

// Setup types
const (
	SetupShortSqueeze         = "SHORT_SQUEEZE"
	SetupLongFlush            = "LONG_FLUSH"
	SetupCapitulationReversal = "CAPITULATION_REVERSAL"
)

// Severity bands
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// AlertData is the snapshot of the numerics that contributed to an alert.
type AlertData struct {
	Funding           float64 `json:"funding"`
	FundingAPR        float64 `json:"fundingAPR"`
	FundingPercentile float64 `json:"fundingPercentile"`
	OIChange8h        float64 `json:"oiChange8hr"`
	VDelta1h          float64 `json:"vdelta1hr"`
	PriceChange       float64 `json:"priceChange"`
	Volume24h         float64 `json:"volume24h"`
}

// Alert is a confluence alert: a scored record describing a short-squeeze,
// long-flush, or capitulation-reversal setup on one symbol.
type Alert struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	SetupType       string    `json:"setupType"`
	Severity        string    `json:"severity"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Signals         []string  `json:"signals"`
	ConfluenceScore int       `json:"confluenceScore"`
	Timestamp       int64     `json:"timestamp"`
	Data            AlertData `json:"data"`
}

// AlertID builds the deterministic alert identifier.
func AlertID(symbol, setupType string, timestamp int64) string {
	return fmt.Sprintf("%s-%s-%d", symbol, setupType, timestamp)
}

// SeverityForScore maps a confluence score to its severity band. Scores below
// the emit threshold never reach persistence, so the lower bands only matter
// for display of near-miss candidates.
func SeverityForScore(score int) string {
	switch {
	case score >= 90:
		return SeverityCritical
	case score >= 75:
		return SeverityHigh
	case score >= 50:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
