package database

import (
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm/clause"

	"perp-radar/model"
)

// AlertStats summarizes the persisted alerts inside a window.
type AlertStats struct {
	TotalAlerts int64            `json:"totalAlerts"`
	BySeverity  map[string]int64 `json:"bySeverity"`
	BySetupType map[string]int64 `json:"bySetupType"`
}

// AlertRepository handles database operations for confluence alerts. It may
// exist before the database is reachable: methods return ErrUnavailable until
// Connect succeeds, and the app retries Connect in the background.
type AlertRepository struct {
	databaseURL string
	production  bool

	mu sync.RWMutex
	db *Database // nil until connected
}

// NewAlertRepository creates a repository that is not yet connected.
func NewAlertRepository(databaseURL string, production bool) *AlertRepository {
	return &AlertRepository{databaseURL: databaseURL, production: production}
}

// Connect dials the database and initializes the schema. Safe to call again
// after a failure; a no-op once connected.
func (r *AlertRepository) Connect() error {
	r.mu.RLock()
	connected := r.db != nil
	r.mu.RUnlock()
	if connected {
		return nil
	}

	db, err := Connect(r.databaseURL, r.production)
	if err != nil {
		return err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	r.mu.Lock()
	r.db = db
	r.mu.Unlock()
	return nil
}

// Ready reports whether the repository can serve queries.
func (r *AlertRepository) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db != nil
}

// Close closes the underlying connection if open.
func (r *AlertRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *AlertRepository) conn() (*Database, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, ErrUnavailable
	}
	return r.db, nil
}

// initSchema auto-migrates the alert table and creates the query indexes.
func initSchema(db *Database) error {
	if err := db.db.AutoMigrate(&ConfluenceAlert{}); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// GORM's index tags cannot express the descending timestamp index the
	// window queries rely on; manage the indexes manually.
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_confluence_alerts_symbol ON confluence_alerts (symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_confluence_alerts_timestamp ON confluence_alerts (timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_confluence_alerts_severity ON confluence_alerts (severity)`,
		`CREATE INDEX IF NOT EXISTS idx_confluence_alerts_setup_type ON confluence_alerts (setup_type)`,
	} {
		if err := db.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index creation failed: %w", err)
		}
	}

	log.Println("✅ confluence_alerts schema ready")
	return nil
}

// InsertAlert persists an alert, treating a primary-key conflict as a noop.
// Returns whether a row was actually written.
func (r *AlertRepository) InsertAlert(alert *model.Alert) (bool, error) {
	db, err := r.conn()
	if err != nil {
		return false, err
	}

	row := rowFromAlert(alert)
	res := db.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetAlerts returns alerts with timestamp ≥ since, newest first.
func (r *AlertRepository) GetAlerts(since int64) ([]model.Alert, error) {
	return r.query(since, "", "")
}

// GetAlertsBySymbol filters the window to one symbol.
func (r *AlertRepository) GetAlertsBySymbol(symbol string, since int64) ([]model.Alert, error) {
	return r.query(since, symbol, "")
}

// GetAlertsBySeverity filters the window to one severity band.
func (r *AlertRepository) GetAlertsBySeverity(severity string, since int64) ([]model.Alert, error) {
	return r.query(since, "", severity)
}

func (r *AlertRepository) query(since int64, symbol, severity string) ([]model.Alert, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	q := db.db.Model(&ConfluenceAlert{}).Where("timestamp >= ?", since)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if severity != "" {
		q = q.Where("severity = ?", severity)
	}

	var rows []ConfluenceAlert
	if err := q.Order("timestamp DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	alerts := make([]model.Alert, 0, len(rows))
	for i := range rows {
		alerts = append(alerts, rows[i].Alert())
	}
	return alerts, nil
}

// GetStats returns totals and per-severity/per-setup counts for the window.
func (r *AlertRepository) GetStats(since int64) (*AlertStats, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	stats := &AlertStats{
		BySeverity:  make(map[string]int64),
		BySetupType: make(map[string]int64),
	}

	if err := db.db.Model(&ConfluenceAlert{}).
		Where("timestamp >= ?", since).
		Count(&stats.TotalAlerts).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var bySeverity []bucket
	if err := db.db.Model(&ConfluenceAlert{}).
		Select("severity AS key, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("severity").
		Scan(&bySeverity).Error; err != nil {
		return nil, err
	}
	for _, b := range bySeverity {
		stats.BySeverity[b.Key] = b.Count
	}

	var bySetup []bucket
	if err := db.db.Model(&ConfluenceAlert{}).
		Select("setup_type AS key, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("setup_type").
		Scan(&bySetup).Error; err != nil {
		return nil, err
	}
	for _, b := range bySetup {
		stats.BySetupType[b.Key] = b.Count
	}

	return stats, nil
}

// DeleteAlertsBefore removes alerts older than the cutoff and returns the count.
func (r *AlertRepository) DeleteAlertsBefore(cutoff int64) (int64, error) {
	db, err := r.conn()
	if err != nil {
		return 0, err
	}

	res := db.db.Where("timestamp < ?", cutoff).Delete(&ConfluenceAlert{})
	return res.RowsAffected, res.Error
}
