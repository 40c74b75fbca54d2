package detector

import (
	"fmt"
	"math"

	"perp-radar/model"
)

// Scoring constants shared by the setup ladders. A setup emits only when at
// least minSignals predicates fired and the accumulated score clears the
// configured threshold.
const (
	minSignals = 3

	// Funding momentum bands (funding-rate fraction per six samples).
	momentumFalling = -0.00005
	momentumRising  = 0.00005
	momentumFlat    = 0.00003

	// Neutral funding band for capitulation.
	fundingNeutral = 0.0003

	// Divergence fires when |vdelta| exceeds this percent of 24h volume.
	divergenceFloor = 3.0
	divergenceHard  = 10.0
)

// shortSqueeze: shorts crowded (funding in the bottom decile), open interest
// building, and price weakness absorbed by net taker buying.
func (d *Detector) shortSqueeze(m metrics, now int64) (model.Alert, bool) {
	// Gate: funding must sit in the bottom decile of the lookback.
	if m.fundingPct > 10 {
		return model.Alert{}, false
	}

	score := 0
	var signals []string

	apr := model.FundingAPR(m.obs.FundingRate)
	score += 30
	signals = append(signals, fmt.Sprintf("Funding at %.1f percentile of 30d range (APR %+.1f%%)", m.fundingPct, apr))
	if m.fundingPct <= 5 {
		score += 10
		signals = append(signals, "Extreme crowding: funding in bottom 5% of 30d range")
	}

	if m.oiChange8h > 5 {
		score += 25
		signals = append(signals, fmt.Sprintf("OI surged %+.1f%% in 8h", m.oiChange8h))
		if m.oiChange8h > 10 {
			score += 10
		}
	}

	if ratio := vdeltaPct(m.vdelta1h, m.obs.Volume); m.priceChange1h < 0 && m.vdelta1h > 0 && ratio > divergenceFloor {
		score += 25
		signals = append(signals, fmt.Sprintf("Bullish divergence: price %.1f%% in 1h with net taker buying %.1f%% of volume", m.priceChange1h, ratio))
		if ratio > divergenceHard {
			score += 10
		}
	}

	if m.fundingMomentum < momentumFalling {
		score += 10
		signals = append(signals, "Funding momentum deteriorating, shorts paying more each interval")
	}

	if len(signals) < minSignals || score < d.cfg.ScoreThreshold {
		return model.Alert{}, false
	}

	if score > 100 {
		score = 100
	}
	title := fmt.Sprintf("%s short squeeze setup", m.obs.Symbol)
	description := fmt.Sprintf(
		"Shorts on %s are paying %.1f%% APR with funding at the %.1f percentile of the 30-day range. "+
			"Open interest is up %.1f%% over 8h while sell pressure is being absorbed by net taker buying. "+
			"A squeeze of the crowded short side is increasingly likely.",
		m.obs.Symbol, apr, m.fundingPct, m.oiChange8h)

	return buildAlert(m, model.SetupShortSqueeze, model.SeverityForScore(score),
		title, description, signals, score, m.priceChange1h, now), true
}

// longFlush: mirror of the squeeze on the positive side. Longs crowded,
// open interest stretched above its rolling mean, buying not confirmed by
// taker flow.
func (d *Detector) longFlush(m metrics, now int64) (model.Alert, bool) {
	// Gate: funding must sit in the top decile of the lookback.
	if m.fundingPct < 90 {
		return model.Alert{}, false
	}

	score := 0
	var signals []string

	apr := model.FundingAPR(m.obs.FundingRate)
	score += 30
	signals = append(signals, fmt.Sprintf("Funding at %.1f percentile of 30d range (APR %+.1f%%)", m.fundingPct, apr))
	if m.fundingPct >= 95 {
		score += 10
		signals = append(signals, "Extreme crowding: funding in top 5% of 30d range")
	}

	if st := m.oiStats; st.StdDev > 0 && m.obs.OpenInterestValue > st.Mean+st.StdDev {
		sigmas := (m.obs.OpenInterestValue - st.Mean) / st.StdDev
		score += 25
		signals = append(signals, fmt.Sprintf("OI value %.1fσ above 30d mean", sigmas))
		if m.obs.OpenInterestValue > st.Mean+2*st.StdDev {
			score += 10
		}
	}

	if ratio := vdeltaPct(math.Abs(m.vdelta1h), m.obs.Volume); m.priceChange1h > 0 && m.vdelta1h <= 0 && ratio > divergenceFloor {
		score += 25
		signals = append(signals, fmt.Sprintf("Bearish divergence: price %+.1f%% in 1h with net taker selling %.1f%% of volume", m.priceChange1h, ratio))
		if ratio > divergenceHard {
			score += 10
		}
	}

	if m.fundingMomentum > momentumRising {
		score += 10
		signals = append(signals, "Funding momentum accelerating, longs paying more each interval")
	}

	if len(signals) < minSignals || score < d.cfg.ScoreThreshold {
		return model.Alert{}, false
	}

	if score > 100 {
		score = 100
	}
	title := fmt.Sprintf("%s long flush setup", m.obs.Symbol)
	description := fmt.Sprintf(
		"Longs on %s are paying %.1f%% APR with funding at the %.1f percentile of the 30-day range. "+
			"Open interest is stretched above its 30-day mean and the latest advance lacks taker-flow confirmation. "+
			"Crowded longs are vulnerable to a flush.",
		m.obs.Symbol, apr, m.fundingPct)

	return buildAlert(m, model.SetupLongFlush, model.SeverityForScore(score),
		title, description, signals, score, m.priceChange1h, now), true
}

// capitulationReversal: open interest flushed out over 24h, funding reset to
// neutral, and a hard 4h markdown being absorbed by net taker buying.
// Emits at CRITICAL severity always.
func (d *Detector) capitulationReversal(m metrics, now int64) (model.Alert, bool) {
	// Gate: a genuine flush of open interest over the last day.
	if m.oiChange24h >= -10 {
		return model.Alert{}, false
	}

	score := 0
	var signals []string

	score += 30
	signals = append(signals, fmt.Sprintf("OI flushed %.1f%% in 24h", m.oiChange24h))
	if m.oiChange24h < -20 {
		score += 10
	}

	if math.Abs(m.fundingMomentum) < momentumFlat && math.Abs(m.obs.FundingRate) < fundingNeutral {
		score += 25
		signals = append(signals, "Funding reset to neutral after the flush")
	}

	if ratio := vdeltaPct(m.vdelta1h, m.obs.Volume); m.priceChange4h < -5 && m.vdelta1h > 0 && ratio > divergenceFloor {
		score += 30
		signals = append(signals, fmt.Sprintf("Absorption: price %.1f%% in 4h with net taker buying %.1f%% of volume", m.priceChange4h, ratio))
		if ratio > divergenceHard {
			score += 15
		}
	}

	if len(signals) < minSignals || score < d.cfg.ScoreThreshold {
		return model.Alert{}, false
	}

	if score > 100 {
		score = 100
	}
	title := fmt.Sprintf("%s capitulation reversal setup", m.obs.Symbol)
	description := fmt.Sprintf(
		"%s has shed %.1f%% of open interest in 24h, funding has reset to neutral, "+
			"and the %.1f%% markdown over 4h is being absorbed by net taker buying. "+
			"Classic post-capitulation reversal conditions.",
		m.obs.Symbol, m.oiChange24h, m.priceChange4h)

	return buildAlert(m, model.SetupCapitulationReversal, model.SeverityCritical,
		title, description, signals, score, m.priceChange4h, now), true
}
