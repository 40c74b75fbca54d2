package api

import (
	"context"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"perp-radar/database"
	"perp-radar/model"
)

// windowStart resolves the query window. An optional ?hours= parameter
// narrows it; the default and upper bound is the retention window.
func (s *Server) windowStart(r *http.Request) int64 {
	maxHours := int(s.window.Hours())
	hours := getIntParam(r, "hours", maxHours, 1, maxHours)
	return time.Now().UnixMilli() - int64(hours)*time.Hour.Milliseconds()
}

// respondAlerts writes the standard alert list envelope. Persistence errors
// degrade to an empty set: the query surface never fails on outages.
func respondAlerts(w http.ResponseWriter, alerts []model.Alert, err error) {
	if err != nil {
		log.Printf("⚠️  Alert query failed: %v", err)
		alerts = nil
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.repo.GetAlerts(s.windowStart(r))
	respondAlerts(w, alerts, err)
}

func (s *Server) handleAlertsBySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	alerts, err := s.repo.GetAlertsBySymbol(symbol, s.windowStart(r))
	respondAlerts(w, alerts, err)
}

func (s *Server) handleAlertsBySeverity(w http.ResponseWriter, r *http.Request) {
	severity := strings.ToUpper(r.PathValue("severity"))
	alerts, err := s.repo.GetAlertsBySeverity(severity, s.windowStart(r))
	respondAlerts(w, alerts, err)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.GetStats(s.windowStart(r))
	if err != nil {
		log.Printf("⚠️  Stats query failed: %v", err)
		stats = &database.AlertStats{
			BySeverity:  map[string]int64{},
			BySetupType: map[string]int64{},
		}
	}
	writeJSON(w, stats)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().UnixMilli() - s.window.Milliseconds()
	deleted, err := s.repo.DeleteAlertsBefore(cutoff)
	if err != nil {
		log.Printf("⚠️  Cleanup failed: %v", err)
	}
	writeJSON(w, map[string]interface{}{
		"message":      "cleanup completed",
		"deletedCount": deleted,
	})
}

// handleMarket serves the latest observation snapshot, overlaid with live
// mark prices from the websocket feed when available. Falls back to the
// Redis snapshot cache when the in-memory store is empty (fresh restart).
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	observations := s.market.LatestAll()

	if len(observations) == 0 && s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Get(ctx, "market:snapshot", &observations); err != nil {
			log.Printf("⚠️  Snapshot cache miss: %v", err)
		}
	}

	if s.feed != nil {
		for i := range observations {
			if mp, ok := s.feed.Latest(observations[i].Symbol); ok {
				observations[i].Price = mp.Price
				observations[i].FundingRate = mp.FundingRate
				observations[i].NextFundingTime = mp.NextFundingTime
			}
		}
	}

	sort.Slice(observations, func(i, j int) bool {
		return observations[i].QuoteVolume > observations[j].QuoteVolume
	})

	writeJSON(w, map[string]interface{}{
		"symbols":   observations,
		"count":     len(observations),
		"timestamp": time.Now().UnixMilli(),
	})
}
