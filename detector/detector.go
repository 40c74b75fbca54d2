// Package detector evaluates the per-symbol market state against three
// confluence setup templates and yields scored alert candidates.
package detector

import (
	"sort"
	"time"

	"perp-radar/config"
	"perp-radar/model"
	"perp-radar/series"
)

// CooldownChecker reports whether a symbol is still inside its alert
// cooldown. Implemented by the alert emitter.
type CooldownChecker interface {
	InCooldown(symbol string, now int64) bool
}

// Detector is stateless beyond the series store it reads. Each Detect call
// produces zero or more alert candidates, at most one per symbol.
type Detector struct {
	store     *series.Store
	cooldowns CooldownChecker
	cfg       config.DetectionConfig
}

// New creates a detector over the store.
func New(store *series.Store, cooldowns CooldownChecker, cfg config.DetectionConfig) *Detector {
	return &Detector{store: store, cooldowns: cooldowns, cfg: cfg}
}

// metrics bundles the derived inputs a setup ladder reads for one symbol.
type metrics struct {
	obs             model.MarketObservation
	fundingPct      float64
	oiChange8h      float64
	oiChange24h     float64
	vdelta1h        float64
	priceChange1h   float64
	priceChange4h   float64
	fundingMomentum float64
	oiStats         series.OIStats
}

// Detect runs one detection pass at the given time (ms since epoch).
// Returned alerts are ordered by confluence score descending, ties broken by
// symbol ascending.
func (d *Detector) Detect(now int64) []model.Alert {
	candidates := d.liquidSymbols()

	var alerts []model.Alert
	for _, obs := range candidates {
		if d.cooldowns != nil && d.cooldowns.InCooldown(obs.Symbol, now) {
			continue
		}
		if !d.store.HasMinimumHistory(obs.Symbol, now) {
			continue
		}

		m := d.deriveMetrics(obs, now)

		// Fixed setup order; the first emitter wins for this symbol.
		if alert, ok := d.shortSqueeze(m, now); ok {
			alerts = append(alerts, alert)
			continue
		}
		if alert, ok := d.longFlush(m, now); ok {
			alerts = append(alerts, alert)
			continue
		}
		if alert, ok := d.capitulationReversal(m, now); ok {
			alerts = append(alerts, alert)
		}
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].ConfluenceScore != alerts[j].ConfluenceScore {
			return alerts[i].ConfluenceScore > alerts[j].ConfluenceScore
		}
		return alerts[i].Symbol < alerts[j].Symbol
	})
	return alerts
}

// liquidSymbols applies the liquidity filter: quote volume and OI value
// floors, then the top N by OI value.
func (d *Detector) liquidSymbols() []model.MarketObservation {
	latest := d.store.LatestAll()

	liquid := latest[:0]
	for _, obs := range latest {
		if obs.QuoteVolume > d.cfg.MinQuoteVolume && obs.OpenInterestValue > d.cfg.MinOIValue {
			liquid = append(liquid, obs)
		}
	}

	sort.Slice(liquid, func(i, j int) bool {
		if liquid[i].OpenInterestValue != liquid[j].OpenInterestValue {
			return liquid[i].OpenInterestValue > liquid[j].OpenInterestValue
		}
		return liquid[i].Symbol < liquid[j].Symbol
	})
	if len(liquid) > d.cfg.DetectTopN {
		liquid = liquid[:d.cfg.DetectTopN]
	}
	return liquid
}

func (d *Detector) deriveMetrics(obs model.MarketObservation, now int64) metrics {
	symbol := obs.Symbol
	return metrics{
		obs:             obs,
		fundingPct:      d.store.PercentileOfFunding(symbol, obs.FundingRate, now),
		oiChange8h:      d.store.OIChange(symbol, 8*time.Hour, now),
		oiChange24h:     d.store.OIChange(symbol, 24*time.Hour, now),
		vdelta1h:        d.store.VDelta(symbol, time.Hour, now),
		priceChange1h:   d.store.PriceChange(symbol, time.Hour, now),
		priceChange4h:   d.store.PriceChange(symbol, 4*time.Hour, now),
		fundingMomentum: d.store.FundingMomentum(symbol),
		oiStats:         d.store.OIStatsWindow(symbol, d.cfg.Lookback, now),
	}
}

// vdeltaPct expresses a CVD delta as a percent of 24h base volume.
func vdeltaPct(vdelta, volume float64) float64 {
	if volume == 0 {
		return 0
	}
	return vdelta / volume * 100
}

// buildAlert assembles the final record for an emitted setup.
func buildAlert(m metrics, setupType, severity, title, description string, signals []string, score int, priceChange float64, now int64) model.Alert {
	return model.Alert{
		ID:              model.AlertID(m.obs.Symbol, setupType, now),
		Symbol:          m.obs.Symbol,
		SetupType:       setupType,
		Severity:        severity,
		Title:           title,
		Description:     description,
		Signals:         signals,
		ConfluenceScore: score,
		Timestamp:       now,
		Data: model.AlertData{
			Funding:           m.obs.FundingRate,
			FundingAPR:        model.FundingAPR(m.obs.FundingRate),
			FundingPercentile: m.fundingPct,
			OIChange8h:        m.oiChange8h,
			VDelta1h:          m.vdelta1h,
			PriceChange:       priceChange,
			Volume24h:         m.obs.Volume,
		},
	}
}
