// Package alerts owns the path between detector candidates and durable
// storage: per-symbol cooldown, duplicate suppression, and retention.
package alerts

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"perp-radar/cache"
	"perp-radar/model"
)

// Store is the persistence contract the emitter writes through.
// InsertAlert must be idempotent on the alert id (conflict is a noop) and
// report whether a row was actually written.
type Store interface {
	InsertAlert(alert *model.Alert) (inserted bool, err error)
	DeleteAlertsBefore(cutoff int64) (deleted int64, err error)
}

// Emitter deduplicates, rate-limits, and persists alert candidates. It is
// the sole owner of the lastEmit map; the cooldown state is mirrored into
// Redis (TTL = cooldown) so a restart does not re-alert inside the window.
type Emitter struct {
	store     Store
	redis     *cache.Client
	cooldown  time.Duration
	retention time.Duration

	mu       sync.Mutex
	lastEmit map[string]int64 // symbol -> ms of last persisted alert
}

// NewEmitter creates an emitter. The redis client may be nil.
func NewEmitter(store Store, redis *cache.Client, cooldown, retention time.Duration) *Emitter {
	return &Emitter{
		store:     store,
		redis:     redis,
		cooldown:  cooldown,
		retention: retention,
		lastEmit:  make(map[string]int64),
	}
}

func cooldownKey(symbol string) string {
	return fmt.Sprintf("cooldown:%s", symbol)
}

// InCooldown reports whether the symbol emitted an alert less than the
// cooldown ago. The in-memory map is authoritative; Redis only backstops
// restarts.
func (e *Emitter) InCooldown(symbol string, now int64) bool {
	e.mu.Lock()
	last, ok := e.lastEmit[symbol]
	e.mu.Unlock()

	if ok && now-last < e.cooldown.Milliseconds() {
		return true
	}
	if !ok && e.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return e.redis.Exists(ctx, cooldownKey(symbol))
	}
	return false
}

// Submit persists a candidate unless the symbol is cooling down or the alert
// id already exists. Persistence failures are logged and do not update the
// cooldown, so the next cycle may retry.
func (e *Emitter) Submit(alert model.Alert) {
	now := alert.Timestamp

	if e.InCooldown(alert.Symbol, now) {
		return
	}

	inserted, err := e.store.InsertAlert(&alert)
	if err != nil {
		log.Printf("❌ Failed to persist alert %s: %v", alert.ID, err)
		return
	}
	if !inserted {
		// Duplicate id: silent noop.
		return
	}

	e.mu.Lock()
	e.lastEmit[alert.Symbol] = now
	e.mu.Unlock()

	if e.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.redis.Set(ctx, cooldownKey(alert.Symbol), now, e.cooldown); err != nil {
			log.Printf("⚠️  Cooldown mirror failed for %s: %v", alert.Symbol, err)
		}
	}

	log.Printf("🚨 [%s] %s score=%d severity=%s signals=%d",
		alert.SetupType, alert.Symbol, alert.ConfluenceScore, alert.Severity, len(alert.Signals))
}

// Prune deletes alerts older than the retention window and returns the count.
func (e *Emitter) Prune(now int64) int64 {
	cutoff := now - e.retention.Milliseconds()
	deleted, err := e.store.DeleteAlertsBefore(cutoff)
	if err != nil {
		log.Printf("❌ Retention sweep failed: %v", err)
		return 0
	}
	if deleted > 0 {
		log.Printf("🧹 Retention sweep removed %d alerts older than %s", deleted, e.retention)
	}
	return deleted
}
