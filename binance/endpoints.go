package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ErrAllEndpointsUnavailable is returned when every base URL in the pool
// answered with a geo-block or rate-limit status within a single call.
var ErrAllEndpointsUnavailable = errors.New("all endpoints geo-blocked or rate-limited")

const (
	requestTimeout = 10 * time.Second

	// Binance serves browser traffic unconditionally; a bare Go user agent
	// gets 403 from some edges.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// EndpointPool hides upstream endpoint volatility behind a single Fetch.
// It keeps an ordered list of equivalent base URLs and a cursor; a response
// classified as geo-block (403/451) or rate-limit (429/418) advances the
// cursor and retries on the next base. Any other failure propagates.
type EndpointPool struct {
	bases  []string
	client *http.Client

	mu     sync.Mutex
	cursor int
}

// NewEndpointPool creates a pool over the given base URLs.
func NewEndpointPool(bases []string) *EndpointPool {
	return &EndpointPool{
		bases:  bases,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Cursor returns the current rotation position. Readers tolerate staleness;
// this exists for logging and tests.
func (p *EndpointPool) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// rotatable reports whether a status code means "try the next base URL".
func rotatable(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusUnavailableForLegalReasons, // geo-block
		http.StatusTooManyRequests, http.StatusTeapot: // rate-limit (418 = Binance auto-ban)
		return true
	}
	return false
}

// Fetch performs GET {base}{path}?{params}, starting at the current cursor
// and rotating through the pool on geo-block/rate-limit responses. Transient
// network errors are not retried here; the next detection cycle retries.
func (p *EndpointPool) Fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	p.mu.Lock()
	start := p.cursor
	p.mu.Unlock()

	for attempt := 0; attempt < len(p.bases); attempt++ {
		idx := (start + attempt) % len(p.bases)
		base := p.bases[idx]

		body, status, err := p.get(ctx, base, path, params)
		if err != nil {
			return nil, fmt.Errorf("GET %s%s: %w", base, path, err)
		}

		if rotatable(status) {
			log.Printf("⚠️  %s returned %d for %s, rotating endpoint", base, status, path)
			p.mu.Lock()
			p.cursor = (idx + 1) % len(p.bases)
			p.mu.Unlock()
			continue
		}

		if status != http.StatusOK {
			return nil, fmt.Errorf("GET %s%s: unexpected status %d", base, path, status)
		}

		// Pin the cursor to the base that answered so the next call starts here.
		p.mu.Lock()
		p.cursor = idx
		p.mu.Unlock()
		return body, nil
	}

	return nil, ErrAllEndpointsUnavailable
}

func (p *EndpointPool) get(ctx context.Context, base, path string, params url.Values) ([]byte, int, error) {
	u := base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
