// Package series keeps the bounded per-symbol observation history that the
// confluence detector reads: funding percentile, rolling OI statistics, and
// windowed price/CVD deltas.
package series

import (
	"math"
	"sort"
	"sync"
	"time"

	"perp-radar/model"
)

const (
	// Anchor tolerance for point-in-past lookups.
	lookupTolerance = 10 * time.Minute

	// A symbol needs at least this much history before funding percentiles
	// mean anything.
	minimumHistory = 7 * 24 * time.Hour

	// Funding momentum compares the newest of the last N entries against the
	// oldest of them.
	momentumEntries = 6
)

// OIStats holds population statistics over openInterestValue within a window.
type OIStats struct {
	Mean   float64
	StdDev float64
	P10    float64
	P90    float64
}

// Store is the per-symbol rolling time series. One writer (the fetch→append
// path) and one reader (the detector) per cycle; a single RWMutex serializes
// appends and eviction against queries.
type Store struct {
	mu       sync.RWMutex
	lookback time.Duration
	rings    map[string][]model.MarketObservation // ascending by timestamp
}

// NewStore creates a store with the given lookback window.
func NewStore(lookback time.Duration) *Store {
	return &Store{
		lookback: lookback,
		rings:    make(map[string][]model.MarketObservation),
	}
}

// Append adds an observation to the symbol's ring. Out-of-order samples
// (older than the current last entry) are dropped so the ring stays
// monotonic in timestamp.
func (s *Store) Append(symbol string, obs model.MarketObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.rings[symbol]
	if n := len(ring); n > 0 && obs.Timestamp < ring[n-1].Timestamp {
		return
	}
	s.rings[symbol] = append(ring, obs)
}

// Evict drops entries older than now − lookback and deletes empty symbols.
func (s *Store) Evict(now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now - s.lookback.Milliseconds()
	for symbol, ring := range s.rings {
		i := sort.Search(len(ring), func(i int) bool { return ring[i].Timestamp >= cutoff })
		if i == len(ring) {
			delete(s.rings, symbol)
			continue
		}
		if i > 0 {
			s.rings[symbol] = append(ring[:0:0], ring[i:]...)
		}
	}
}

// Latest returns the most recent observation for a symbol.
func (s *Store) Latest(symbol string) (model.MarketObservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.rings[symbol]
	if len(ring) == 0 {
		return model.MarketObservation{}, false
	}
	return ring[len(ring)-1], true
}

// LatestAll returns the most recent observation of every tracked symbol.
func (s *Store) LatestAll() []model.MarketObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MarketObservation, 0, len(s.rings))
	for _, ring := range s.rings {
		if len(ring) > 0 {
			out = append(out, ring[len(ring)-1])
		}
	}
	return out
}

// Size returns the number of stored entries for a symbol.
func (s *Store) Size(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rings[symbol])
}

// HasMinimumHistory reports whether the ring holds at least one entry older
// than now − 7 days.
func (s *Store) HasMinimumHistory(symbol string, now int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.rings[symbol]
	if len(ring) == 0 {
		return false
	}
	return ring[0].Timestamp < now-minimumHistory.Milliseconds()
}

// PercentileOfFunding ranks value against the stored fundingRate sequence
// with a simple rank/count (≤) definition, 0–100. With less than 7 days of
// history it returns the neutral sentinel 50.
func (s *Store) PercentileOfFunding(symbol string, value float64, now int64) float64 {
	if !s.HasMinimumHistory(symbol, now) {
		return 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.rings[symbol]
	rank := 0
	for _, obs := range ring {
		if obs.FundingRate <= value {
			rank++
		}
	}
	return float64(rank) / float64(len(ring)) * 100
}

// OIStatsWindow computes population mean/stddev and the p10/p90 of
// openInterestValue over the entries within the last window. An empty window
// returns all zeros.
func (s *Store) OIStatsWindow(symbol string, window time.Duration, now int64) OIStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]float64, 0)
	for _, obs := range s.windowLocked(symbol, window, now) {
		values = append(values, obs.OpenInterestValue)
	}
	if len(values) == 0 {
		return OIStats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values)) // population, not sample

	sorted := append(values[:0:0], values...)
	sort.Float64s(sorted)

	p90 := len(sorted) * 9 / 10
	if p90 >= len(sorted) {
		p90 = len(sorted) - 1
	}

	return OIStats{
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		P10:    sorted[len(sorted)/10],
		P90:    sorted[p90],
	}
}

// OIChange returns the percent change of openInterestValue over windowMs,
// anchored at the first entry within ±10 minutes of now − window. Returns 0
// when no anchor resolves or the past value is zero.
func (s *Store) OIChange(symbol string, window time.Duration, now int64) float64 {
	return s.change(symbol, window, now, func(o model.MarketObservation) float64 {
		return o.OpenInterestValue
	})
}

// PriceChange returns the percent change of price over windowMs with the same
// anchor semantics as OIChange.
func (s *Store) PriceChange(symbol string, window time.Duration, now int64) float64 {
	return s.change(symbol, window, now, func(o model.MarketObservation) float64 {
		return o.Price
	})
}

func (s *Store) change(symbol string, window time.Duration, now int64, value func(model.MarketObservation) float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.rings[symbol]
	if len(ring) < 2 {
		return 0
	}

	target := now - window.Milliseconds()
	tolerance := lookupTolerance.Milliseconds()

	// First entry at or after target, then accept it only inside tolerance.
	i := sort.Search(len(ring), func(i int) bool { return ring[i].Timestamp >= target-tolerance })
	if i == len(ring) {
		return 0
	}
	past := ring[i]
	if past.Timestamp > target+tolerance {
		return 0
	}

	current := ring[len(ring)-1]
	pastVal := value(past)
	if pastVal == 0 {
		return 0
	}
	return (value(current) - pastVal) / pastVal * 100
}

// VDelta returns last.cvd − first.cvd over the entries whose timestamps fall
// within the last window; 0 with fewer than two entries.
func (s *Store) VDelta(symbol string, window time.Duration, now int64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subset := s.windowLocked(symbol, window, now)
	if len(subset) < 2 {
		return 0
	}
	return subset[len(subset)-1].CVD - subset[0].CVD
}

// FundingMomentum is the difference between the most recent and the earliest
// of the last six entries.
func (s *Store) FundingMomentum(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.rings[symbol]
	if len(ring) < 2 {
		return 0
	}
	start := len(ring) - momentumEntries
	if start < 0 {
		start = 0
	}
	return ring[len(ring)-1].FundingRate - ring[start].FundingRate
}

// windowLocked returns the subslice within the last window. Caller holds a lock.
func (s *Store) windowLocked(symbol string, window time.Duration, now int64) []model.MarketObservation {
	ring := s.rings[symbol]
	cutoff := now - window.Milliseconds()
	i := sort.Search(len(ring), func(i int) bool { return ring[i].Timestamp >= cutoff })
	return ring[i:]
}
