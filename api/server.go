// Package api exposes the read-only query surface over persisted alerts and
// the live market snapshot.
package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"perp-radar/cache"
	"perp-radar/database"
	"perp-radar/model"
	"perp-radar/stream"
)

const serviceVersion = "1.0.0"

// AlertReader is the persistence contract the API reads through.
type AlertReader interface {
	GetAlerts(since int64) ([]model.Alert, error)
	GetAlertsBySymbol(symbol string, since int64) ([]model.Alert, error)
	GetAlertsBySeverity(severity string, since int64) ([]model.Alert, error)
	GetStats(since int64) (*database.AlertStats, error)
	DeleteAlertsBefore(cutoff int64) (int64, error)
}

// MarketSource supplies the latest observation per symbol.
type MarketSource interface {
	LatestAll() []model.MarketObservation
}

// Server handles HTTP API requests
type Server struct {
	repo      AlertReader
	market    MarketSource
	feed      *stream.MarkPriceFeed
	redis     *cache.Client
	window    time.Duration // default query window (retention)
	frontends map[string]bool
}

// NewServer creates a new API server instance. feed and redis may be nil.
func NewServer(repo AlertReader, market MarketSource, feed *stream.MarkPriceFeed, redis *cache.Client, window time.Duration, frontendURL string) *Server {
	frontends := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:5173": true,
	}
	if frontendURL != "" {
		frontends[frontendURL] = true
	}

	return &Server{
		repo:      repo,
		market:    market,
		feed:      feed,
		redis:     redis,
		window:    window,
		frontends: frontends,
	}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/alerts/{symbol}", s.handleAlertsBySymbol)
	mux.HandleFunc("GET /api/alerts/severity/{severity}", s.handleAlertsBySeverity)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/cleanup", s.handleCleanup)
	mux.HandleFunc("GET /api/market", s.handleMarket)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("🚀 API Server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, s.Handler())
}

// corsMiddleware permits cross-origin access, including credentialed
// requests. Unknown origins are logged but not rejected.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.frontends[origin] {
				log.Printf("🌐 Request from unlisted origin: %s", origin)
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"service": "perp-radar",
		"version": serviceVersion,
		"endpoints": []string{
			"/api/health",
			"/api/alerts",
			"/api/alerts/{symbol}",
			"/api/alerts/severity/{severity}",
			"/api/stats",
			"/api/market",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}
