// Package stream maintains a live mark-price map from the Binance futures
// websocket. It feeds the read-only market endpoint; the detection path never
// reads it and keeps polling the series store instead.
package stream

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultStreamURL is the combined mark-price stream for all symbols,
// updated by the exchange every three seconds.
const DefaultStreamURL = "wss://fstream.binance.com/ws/!markPrice@arr"

const (
	initialReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 60 * time.Second
	readTimeout           = 90 * time.Second
)

// MarkPrice is the live state of one symbol.
type MarkPrice struct {
	Symbol          string  `json:"symbol"`
	Price           float64 `json:"price"`
	FundingRate     float64 `json:"fundingRate"`
	NextFundingTime int64   `json:"nextFundingTime"`
	UpdatedAt       int64   `json:"updatedAt"`
}

// markPriceEvent is one element of the !markPrice@arr payload.
type markPriceEvent struct {
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
	EventTime       int64  `json:"E"`
}

// MarkPriceFeed holds the latest mark price per symbol, refreshed by a
// background websocket reader with reconnect.
type MarkPriceFeed struct {
	url string

	mu     sync.RWMutex
	latest map[string]MarkPrice
}

// NewMarkPriceFeed creates a feed over the given stream URL.
func NewMarkPriceFeed(url string) *MarkPriceFeed {
	if url == "" {
		url = DefaultStreamURL
	}
	return &MarkPriceFeed{
		url:    url,
		latest: make(map[string]MarkPrice),
	}
}

// Start launches the reader goroutine. It runs until the context is
// cancelled, reconnecting with exponential backoff on any error.
func (f *MarkPriceFeed) Start(ctx context.Context) {
	go f.run(ctx)
}

func (f *MarkPriceFeed) run(ctx context.Context) {
	reconnectDelay := initialReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			log.Printf("⚠️  Mark-price stream dial failed: %v, retrying in %v", err, reconnectDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			reconnectDelay *= 2
			if reconnectDelay > maxReconnectDelay {
				reconnectDelay = maxReconnectDelay
			}
			continue
		}

		log.Println("✅ Mark-price stream connected")
		reconnectDelay = initialReconnectDelay

		f.readLoop(ctx, conn)
		conn.Close()
	}
}

func (f *MarkPriceFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Close the connection when the context dies so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("⚠️  Mark-price stream read error: %v", err)
			}
			return
		}

		var events []markPriceEvent
		if err := json.Unmarshal(payload, &events); err != nil {
			log.Printf("⚠️  Mark-price decode error: %v", err)
			continue
		}
		f.apply(events)
	}
}

func (f *MarkPriceFeed) apply(events []markPriceEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range events {
		price, err := strconv.ParseFloat(e.MarkPrice, 64)
		if err != nil {
			continue
		}
		funding, _ := strconv.ParseFloat(e.FundingRate, 64)
		f.latest[e.Symbol] = MarkPrice{
			Symbol:          e.Symbol,
			Price:           price,
			FundingRate:     funding,
			NextFundingTime: e.NextFundingTime,
			UpdatedAt:       e.EventTime,
		}
	}
}

// Latest returns the live state for one symbol.
func (f *MarkPriceFeed) Latest(symbol string) (MarkPrice, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	mp, ok := f.latest[symbol]
	return mp, ok
}

// Snapshot returns a copy of the full live map.
func (f *MarkPriceFeed) Snapshot() map[string]MarkPrice {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]MarkPrice, len(f.latest))
	for k, v := range f.latest {
		out[k] = v
	}
	return out
}
