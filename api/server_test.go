package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-radar/database"
	"perp-radar/model"
	"perp-radar/series"
)

type fakeReader struct {
	alerts []model.Alert
	err    error
}

func (f *fakeReader) filter(pred func(model.Alert) bool) ([]model.Alert, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Alert
	for _, a := range f.alerts {
		if pred(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeReader) GetAlerts(since int64) ([]model.Alert, error) {
	return f.filter(func(a model.Alert) bool { return a.Timestamp >= since })
}

func (f *fakeReader) GetAlertsBySymbol(symbol string, since int64) ([]model.Alert, error) {
	return f.filter(func(a model.Alert) bool { return a.Symbol == symbol && a.Timestamp >= since })
}

func (f *fakeReader) GetAlertsBySeverity(severity string, since int64) ([]model.Alert, error) {
	return f.filter(func(a model.Alert) bool { return a.Severity == severity && a.Timestamp >= since })
}

func (f *fakeReader) GetStats(since int64) (*database.AlertStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	stats := &database.AlertStats{BySeverity: map[string]int64{}, BySetupType: map[string]int64{}}
	for _, a := range f.alerts {
		if a.Timestamp >= since {
			stats.TotalAlerts++
			stats.BySeverity[a.Severity]++
			stats.BySetupType[a.SetupType]++
		}
	}
	return stats, nil
}

func (f *fakeReader) DeleteAlertsBefore(cutoff int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

type alertsEnvelope struct {
	Alerts []model.Alert `json:"alerts"`
	Count  int           `json:"count"`
}

func newTestServer(reader *fakeReader) *Server {
	return NewServer(reader, series.NewStore(time.Hour), nil, nil, 48*time.Hour, "")
}

func doGet(t *testing.T, s *Server, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeReader{})
	var body map[string]interface{}
	rec := doGet(t, s, "/api/health", &body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotZero(t, body["timestamp"])
}

func TestAlertsWindow(t *testing.T) {
	now := time.Now().UnixMilli()
	reader := &fakeReader{alerts: []model.Alert{
		{ID: "1", Symbol: "BTCUSDT", Severity: "CRITICAL", Timestamp: now - 1000},
		{ID: "2", Symbol: "ETHUSDT", Severity: "HIGH", Timestamp: now - 3*time.Hour.Milliseconds()},
		{ID: "3", Symbol: "BTCUSDT", Severity: "HIGH", Timestamp: now - 72*time.Hour.Milliseconds()},
	}}
	s := newTestServer(reader)

	var body alertsEnvelope
	doGet(t, s, "/api/alerts", &body)
	// The 72h-old alert is outside the 48h default window.
	assert.Equal(t, 2, body.Count)

	doGet(t, s, "/api/alerts?hours=1", &body)
	assert.Equal(t, 1, body.Count)
}

func TestAlertsBySymbolUppercases(t *testing.T) {
	now := time.Now().UnixMilli()
	reader := &fakeReader{alerts: []model.Alert{
		{ID: "1", Symbol: "BTCUSDT", Timestamp: now - 1000},
	}}
	s := newTestServer(reader)

	var body alertsEnvelope
	doGet(t, s, "/api/alerts/btcusdt", &body)
	assert.Equal(t, 1, body.Count)
}

func TestUnknownSymbolReturnsEmptyNot404(t *testing.T) {
	s := newTestServer(&fakeReader{})
	var body alertsEnvelope
	rec := doGet(t, s, "/api/alerts/NOPEUSDT", &body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Alerts)
}

func TestPersistenceOutageDegradesToEmpty(t *testing.T) {
	s := newTestServer(&fakeReader{err: errors.New("db down")})

	var body alertsEnvelope
	rec := doGet(t, s, "/api/alerts", &body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, body.Count)

	var stats database.AlertStats
	rec = doGet(t, s, "/api/stats", &stats)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, stats.TotalAlerts)
}

func TestSeverityRoute(t *testing.T) {
	now := time.Now().UnixMilli()
	reader := &fakeReader{alerts: []model.Alert{
		{ID: "1", Symbol: "BTCUSDT", Severity: "CRITICAL", Timestamp: now - 1000},
		{ID: "2", Symbol: "ETHUSDT", Severity: "HIGH", Timestamp: now - 2000},
	}}
	s := newTestServer(reader)

	var body alertsEnvelope
	doGet(t, s, "/api/alerts/severity/critical", &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "BTCUSDT", body.Alerts[0].Symbol)
}

func TestCleanup(t *testing.T) {
	s := newTestServer(&fakeReader{})
	req := httptest.NewRequest(http.MethodPost, "/api/cleanup", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["deletedCount"])
}

func TestCORSAllowsUnknownOriginWithCredentials(t *testing.T) {
	s := newTestServer(&fakeReader{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://some.dashboard.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://some.dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRootListsEndpoints(t *testing.T) {
	s := newTestServer(&fakeReader{})
	var body map[string]interface{}
	doGet(t, s, "/", &body)

	assert.Equal(t, "perp-radar", body["service"])
	assert.NotEmpty(t, body["endpoints"])
}
