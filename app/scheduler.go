package app

import (
	"context"
	"log"
	"time"

	"perp-radar/alerts"
	"perp-radar/binance"
	"perp-radar/cache"
	"perp-radar/config"
	"perp-radar/detector"
	"perp-radar/series"
)

const (
	// How long Stop waits for an in-flight cycle before giving up.
	drainGrace = 5 * time.Second

	snapshotCacheKey = "market:snapshot"
	snapshotCacheTTL = 5 * time.Minute
)

// Scheduler drives the surveillance lifecycle: a detection cycle on a fixed
// cadence and an hourly retention sweep. Cycle work runs inline in the loop,
// so a slow cycle simply drops the ticks it overlaps; missed ticks never
// pile up.
type Scheduler struct {
	fetcher  *binance.Fetcher
	store    *series.Store
	detector *detector.Detector
	emitter  *alerts.Emitter
	redis    *cache.Client
	cfg      config.DetectionConfig

	done    chan struct{}
	stopped chan struct{}
}

// NewScheduler wires the detection pipeline.
func NewScheduler(fetcher *binance.Fetcher, store *series.Store, det *detector.Detector, emitter *alerts.Emitter, redis *cache.Client, cfg config.DetectionConfig) *Scheduler {
	return &Scheduler{
		fetcher:  fetcher,
		store:    store,
		detector: det,
		emitter:  emitter,
		redis:    redis,
		cfg:      cfg,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the scheduling loop. Blocks until Stop or context cancel;
// callers run it in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.stopped)

	log.Printf("📡 Scheduler started: detect every %s, prune every %s", s.cfg.DetectInterval, s.cfg.PruneInterval)

	// Run immediately on start
	s.runCycle(ctx)

	detectTicker := time.NewTicker(s.cfg.DetectInterval)
	defer detectTicker.Stop()
	pruneTicker := time.NewTicker(s.cfg.PruneInterval)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-detectTicker.C:
			s.runCycle(ctx)
		case <-pruneTicker.C:
			s.emitter.Prune(time.Now().UnixMilli())
		}
	}
}

// Stop signals the loop and waits for any in-flight cycle up to the grace
// period.
func (s *Scheduler) Stop() {
	close(s.done)
	select {
	case <-s.stopped:
		log.Println("📡 Scheduler stopped")
	case <-time.After(drainGrace):
		log.Println("⚠️  Scheduler drain grace exceeded, abandoning in-flight cycle")
	}
}

// runCycle performs one fetch→append→detect→emit pass.
func (s *Scheduler) runCycle(ctx context.Context) {
	observations := s.fetcher.Snapshot(ctx)
	now := time.Now().UnixMilli()

	if len(observations) == 0 {
		log.Println("⚠️  Empty snapshot, skipping detection this cycle")
		return
	}

	for _, obs := range observations {
		s.store.Append(obs.Symbol, obs)
	}
	s.store.Evict(now)

	if s.redis != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.redis.Set(cacheCtx, snapshotCacheKey, observations, snapshotCacheTTL); err != nil {
			log.Printf("⚠️  Snapshot cache write failed: %v", err)
		}
		cancel()
	}

	candidates := s.detector.Detect(now)
	for _, alert := range candidates {
		s.emitter.Submit(alert)
	}

	if len(candidates) > 0 {
		log.Printf("🔍 Cycle complete: %d symbols tracked, %d alert candidates", len(observations), len(candidates))
	}
}
