package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"perp-radar/model"
)

const hourMs = int64(3_600_000)

func obsAt(ts int64, funding, price, oiValue, cvd float64) model.MarketObservation {
	return model.MarketObservation{
		Symbol:            "BTCUSDT",
		Timestamp:         ts,
		Price:             price,
		FundingRate:       funding,
		OpenInterestValue: oiValue,
		CVD:               cvd,
	}
}

// fillHourly appends count hourly observations ending at now.
func fillHourly(s *Store, now int64, count int, funding float64) {
	for i := count - 1; i >= 0; i-- {
		s.Append("BTCUSDT", obsAt(now-int64(i)*hourMs, funding, 100, 20e6, 0))
	}
}

func TestAppendDropsOutOfOrder(t *testing.T) {
	s := NewStore(30 * 24 * time.Hour)
	s.Append("BTCUSDT", obsAt(2000, 0, 100, 0, 0))
	s.Append("BTCUSDT", obsAt(1000, 0, 100, 0, 0)) // older, dropped
	s.Append("BTCUSDT", obsAt(2000, 0, 101, 0, 0)) // equal timestamp kept

	assert.Equal(t, 2, s.Size("BTCUSDT"))
	last, ok := s.Latest("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 101.0, last.Price)
}

func TestHasMinimumHistoryBoundary(t *testing.T) {
	now := int64(10_000_000_000_000)
	sevenDays := 7 * 24 * hourMs

	s := NewStore(30 * 24 * time.Hour)
	s.Append("BTCUSDT", obsAt(now-sevenDays+1, 0, 100, 0, 0)) // one ms short
	assert.False(t, s.HasMinimumHistory("BTCUSDT", now))

	s2 := NewStore(30 * 24 * time.Hour)
	s2.Append("BTCUSDT", obsAt(now-sevenDays-1, 0, 100, 0, 0)) // just past 7d
	assert.True(t, s2.HasMinimumHistory("BTCUSDT", now))
}

func TestPercentileNeutralWithoutHistory(t *testing.T) {
	now := int64(10_000_000_000_000)
	s := NewStore(30 * 24 * time.Hour)
	fillHourly(s, now, 6*24, 0.0001) // six days only

	assert.Equal(t, 50.0, s.PercentileOfFunding("BTCUSDT", -0.01, now))
}

func TestPercentileRank(t *testing.T) {
	now := int64(10_000_000_000_000)
	s := NewStore(30 * 24 * time.Hour)
	// 10 days hourly at 0.0001, newest entry at -0.0005.
	fillHourly(s, now-hourMs, 240, 0.0001)
	s.Append("BTCUSDT", obsAt(now, -0.0005, 100, 20e6, 0))

	// Only the newest entry ranks at or below -0.0005.
	pct := s.PercentileOfFunding("BTCUSDT", -0.0005, now)
	assert.InDelta(t, 100.0/241, pct, 0.01)

	// A value above everything ranks at 100.
	assert.Equal(t, 100.0, s.PercentileOfFunding("BTCUSDT", 0.01, now))
}

func TestVDeltaNeedsTwoEntries(t *testing.T) {
	now := int64(10_000_000_000_000)
	s := NewStore(30 * 24 * time.Hour)
	assert.Equal(t, 0.0, s.VDelta("BTCUSDT", time.Hour, now))

	s.Append("BTCUSDT", obsAt(now, 0, 100, 0, 500))
	assert.Equal(t, 0.0, s.VDelta("BTCUSDT", time.Hour, now))

	s2 := NewStore(30 * 24 * time.Hour)
	s2.Append("BTCUSDT", obsAt(now-hourMs, 0, 100, 0, 100))
	s2.Append("BTCUSDT", obsAt(now-hourMs/2, 0, 100, 0, 250))
	s2.Append("BTCUSDT", obsAt(now, 0, 100, 0, 400))
	assert.Equal(t, 300.0, s2.VDelta("BTCUSDT", time.Hour, now))
}

func TestChangeAnchorTolerance(t *testing.T) {
	now := int64(10_000_000_000_000)

	// Anchor exactly at now-8h resolves.
	s := NewStore(30 * 24 * time.Hour)
	s.Append("BTCUSDT", obsAt(now-8*hourMs, 0, 100, 20e6, 0))
	s.Append("BTCUSDT", obsAt(now, 0, 100, 22.5e6, 0))
	assert.InDelta(t, 12.5, s.OIChange("BTCUSDT", 8*time.Hour, now), 1e-9)

	// Nearest entry 30 minutes off the anchor: unresolvable, returns 0.
	s2 := NewStore(30 * 24 * time.Hour)
	s2.Append("BTCUSDT", obsAt(now-8*hourMs+30*60_000, 0, 100, 20e6, 0))
	s2.Append("BTCUSDT", obsAt(now, 0, 100, 22.5e6, 0))
	assert.Equal(t, 0.0, s2.OIChange("BTCUSDT", 8*time.Hour, now))

	// Fewer than two entries returns 0.
	s3 := NewStore(30 * 24 * time.Hour)
	s3.Append("BTCUSDT", obsAt(now, 0, 100, 22.5e6, 0))
	assert.Equal(t, 0.0, s3.OIChange("BTCUSDT", 8*time.Hour, now))
}

func TestPriceChange(t *testing.T) {
	now := int64(10_000_000_000_000)
	s := NewStore(30 * 24 * time.Hour)
	s.Append("BTCUSDT", obsAt(now-hourMs, 0, 100, 0, 0))
	s.Append("BTCUSDT", obsAt(now, 0, 98.8, 0, 0))
	assert.InDelta(t, -1.2, s.PriceChange("BTCUSDT", time.Hour, now), 1e-9)
}

func TestFundingMomentum(t *testing.T) {
	now := int64(10_000_000_000_000)
	s := NewStore(30 * 24 * time.Hour)
	rates := []float64{0.0001, 0.0001, -0.0007, -0.00075, -0.00075, -0.00075, -0.00075, -0.0008}
	for i, r := range rates {
		s.Append("BTCUSDT", obsAt(now-int64(len(rates)-1-i)*hourMs, r, 100, 0, 0))
	}
	// Last six entries: -0.0007 ... -0.0008.
	assert.InDelta(t, -0.0001, s.FundingMomentum("BTCUSDT"), 1e-12)
}

func TestOIStatsPopulation(t *testing.T) {
	now := int64(10_000_000_000_000)
	s := NewStore(30 * 24 * time.Hour)
	// Alternating 19e6 / 21e6: mean 20e6, population stddev 1e6.
	for i := 9; i >= 0; i-- {
		v := 19e6
		if i%2 == 0 {
			v = 21e6
		}
		s.Append("BTCUSDT", obsAt(now-int64(i)*hourMs, 0, 100, v, 0))
	}

	st := s.OIStatsWindow("BTCUSDT", 24*time.Hour, now)
	assert.InDelta(t, 20e6, st.Mean, 1)
	assert.InDelta(t, 1e6, st.StdDev, 1)
	assert.Equal(t, 19e6, st.P10)
	assert.Equal(t, 21e6, st.P90)

	empty := s.OIStatsWindow("NOPE", 24*time.Hour, now)
	assert.Equal(t, OIStats{}, empty)
}

func TestEvict(t *testing.T) {
	now := int64(10_000_000_000_000)
	s := NewStore(24 * time.Hour)
	s.Append("BTCUSDT", obsAt(now-25*hourMs, 0, 100, 0, 0))
	s.Append("BTCUSDT", obsAt(now-hourMs, 0, 100, 0, 0))
	s.Append("OLDUSDT", obsAt(now-48*hourMs, 0, 100, 0, 0))

	s.Evict(now)

	assert.Equal(t, 1, s.Size("BTCUSDT"))
	assert.Equal(t, 0, s.Size("OLDUSDT"))
	_, ok := s.Latest("OLDUSDT")
	assert.False(t, ok)
}
