package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perp-radar/alerts"
	"perp-radar/api"
	"perp-radar/binance"
	"perp-radar/cache"
	"perp-radar/config"
	"perp-radar/database"
	"perp-radar/detector"
	"perp-radar/series"
	"perp-radar/stream"
)

const (
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// App owns the whole surveillance engine: upstream fetcher, series store,
// detector, emitter, persistence, and the HTTP surface. No process-wide
// singletons; everything hangs off this value.
type App struct {
	config    *config.Config
	pool      *binance.EndpointPool
	fetcher   *binance.Fetcher
	store     *series.Store
	repo      *database.AlertRepository
	redis     *cache.Client
	emitter   *alerts.Emitter
	detector  *detector.Detector
	feed      *stream.MarkPriceFeed
	scheduler *Scheduler
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	pool := binance.NewEndpointPool(cfg.BaseURLs)

	return &App{
		config:  cfg,
		pool:    pool,
		fetcher: binance.NewFetcher(pool, cfg.Detection.OITopN),
		store:   series.NewStore(cfg.Detection.Lookback),
		repo:    database.NewAlertRepository(cfg.DatabaseURL, cfg.Production),
		feed:    stream.NewMarkPriceFeed(stream.DefaultStreamURL),
	}
}

// Start starts the application
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database connection. Unreachable persistence does not gate startup:
	// alerts are dropped until the background retry connects.
	fmt.Println("🗄️  Connecting to database...")
	if err := a.repo.Connect(); err != nil {
		log.Printf("⚠️  Database unavailable, retrying in background: %v", err)
		go a.retryConnect(ctx)
	}

	// 2. Redis connection (optional)
	a.redis = cache.NewClient(a.config.RedisAddr, a.config.RedisPassword)
	if a.redis == nil {
		fmt.Println("⚠️  Redis disabled. Cooldowns will not survive restarts.")
	}

	// 3. Detection pipeline
	det := a.config.Detection
	a.emitter = alerts.NewEmitter(a.repo, a.redis, det.AlertCooldown, det.Retention)
	a.detector = detector.New(a.store, a.emitter, det)
	a.scheduler = NewScheduler(a.fetcher, a.store, a.detector, a.emitter, a.redis, det)

	// 4. Live mark-price feed (read-only surface enrichment)
	a.feed.Start(ctx)

	// 5. API server
	apiServer := api.NewServer(a.repo, a.store, a.feed, a.redis, det.Retention, a.config.FrontendURL)
	go func() {
		if err := apiServer.Start(a.config.Port); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	// 6. Scheduler (includes the initial snapshot attempt)
	go a.scheduler.Start(ctx)

	// 7. Wait for interrupt and perform graceful shutdown
	return a.gracefulShutdown(cancel)
}

// retryConnect dials the database with exponential backoff capped at 30s.
func (a *App) retryConnect(ctx context.Context) {
	delay := reconnectInitialDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := a.repo.Connect(); err != nil {
			log.Printf("⚠️  Database retry failed: %v", err)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		log.Println("✅ Database reconnected")
		return
	}
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop all goroutines
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.scheduler != nil {
			fmt.Println("📡 Stopping scheduler...")
			a.scheduler.Stop()
		}

		if err := a.repo.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		} else {
			fmt.Println("✅ Database connection closed")
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
