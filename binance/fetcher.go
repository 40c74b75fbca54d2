package binance

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"perp-radar/model"
)

const (
	oiBatchSize = 10
	// ~100ms between OI batches keeps the fan-out far inside Binance's
	// request-weight budget.
	oiBatchInterval = 100 * time.Millisecond
)

// Fetcher produces a full MarketObservation snapshot per invocation:
// 24h tickers and premium index joined by symbol, filtered to trading USDT
// perpetuals, with open interest fetched for the top N by quote volume.
// No state is retained across invocations beyond the pool cursor.
type Fetcher struct {
	pool    *EndpointPool
	topN    int
	limiter *rate.Limiter
	nowFn   func() int64 // ms since epoch; overridable in tests
}

// NewFetcher creates a snapshot fetcher over the endpoint pool.
func NewFetcher(pool *EndpointPool, topN int) *Fetcher {
	return &Fetcher{
		pool:    pool,
		topN:    topN,
		limiter: rate.NewLimiter(rate.Every(oiBatchInterval), 1),
		nowFn:   func() int64 { return time.Now().UnixMilli() },
	}
}

// Snapshot retrieves the current market state. Returns an empty slice when
// the upstream is fully unavailable; partial OI failures drop only the
// affected symbols. Errors are logged, never raised — the scheduler retries
// on the next cycle.
func (f *Fetcher) Snapshot(ctx context.Context) []model.MarketObservation {
	var (
		wg       sync.WaitGroup
		tickers  []ticker24h
		premiums []premiumIndex
		perps    map[string]bool
		tickErr  error
		premErr  error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		tickers, tickErr = f.fetchTickers(ctx)
	}()
	go func() {
		defer wg.Done()
		premiums, premErr = f.fetchPremiumIndex(ctx)
	}()
	go func() {
		defer wg.Done()
		perps = f.fetchPerpetualSet(ctx)
	}()
	wg.Wait()

	if tickErr != nil || premErr != nil {
		log.Printf("❌ Snapshot failed: tickers=%v premiumIndex=%v", tickErr, premErr)
		return nil
	}

	premBySymbol := make(map[string]premiumIndex, len(premiums))
	for _, p := range premiums {
		premBySymbol[p.Symbol] = p
	}

	now := f.nowFn()
	observations := make([]model.MarketObservation, 0, len(tickers))
	for _, t := range tickers {
		if !isUSDTPerp(t.Symbol, perps) {
			continue
		}
		prem, ok := premBySymbol[t.Symbol]
		if !ok {
			continue
		}

		price := parseFloat(t.LastPrice)
		volume := parseFloat(t.Volume)
		takerBuy := parseFloat(t.TakerBuyVolume)

		observations = append(observations, model.MarketObservation{
			Symbol:            strings.ToUpper(t.Symbol),
			Timestamp:         now,
			Price:             price,
			PriceChange24h:    parseFloat(t.PriceChange),
			PriceChangePct24h: parseFloat(t.PriceChangePercent),
			Volume:            volume,
			QuoteVolume:       parseFloat(t.QuoteVolume),
			FundingRate:       parseFloat(prem.LastFundingRate),
			// CVD approximation: taker buys minus taker sells over the
			// 24h reporting window.
			CVD:             takerBuy - (volume - takerBuy),
			High24h:         parseFloat(t.HighPrice),
			Low24h:          parseFloat(t.LowPrice),
			Trades24h:       t.Count,
			NextFundingTime: prem.NextFundingTime,
		})
	}

	sort.Slice(observations, func(i, j int) bool {
		return observations[i].QuoteVolume > observations[j].QuoteVolume
	})
	if len(observations) > f.topN {
		observations = observations[:f.topN]
	}

	return f.attachOpenInterest(ctx, observations)
}

// attachOpenInterest fans out per-symbol OI requests in rate-limited batches.
// A symbol whose OI request fails is dropped from the snapshot for this cycle.
func (f *Fetcher) attachOpenInterest(ctx context.Context, observations []model.MarketObservation) []model.MarketObservation {
	type oiResult struct {
		oi float64
		ok bool
	}

	results := make([]oiResult, len(observations))
	for start := 0; start < len(observations); start += oiBatchSize {
		if err := f.limiter.Wait(ctx); err != nil {
			// Shutdown mid-fetch: keep what we have so far.
			break
		}

		end := start + oiBatchSize
		if end > len(observations) {
			end = len(observations)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				oi, err := f.fetchOpenInterest(ctx, observations[i].Symbol)
				if err != nil {
					log.Printf("⚠️  OI fetch failed for %s: %v", observations[i].Symbol, err)
					return
				}
				results[i] = oiResult{oi: oi, ok: true}
			}(i)
		}
		wg.Wait()
	}

	out := make([]model.MarketObservation, 0, len(observations))
	for i, obs := range observations {
		if !results[i].ok {
			continue
		}
		obs.OpenInterest = results[i].oi
		obs.OpenInterestValue = results[i].oi * obs.Price
		out = append(out, obs)
	}
	return out
}

func (f *Fetcher) fetchTickers(ctx context.Context) ([]ticker24h, error) {
	body, err := f.pool.Fetch(ctx, "/fapi/v1/ticker/24hr", nil)
	if err != nil {
		return nil, err
	}
	var tickers []ticker24h
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}

func (f *Fetcher) fetchPremiumIndex(ctx context.Context) ([]premiumIndex, error) {
	body, err := f.pool.Fetch(ctx, "/fapi/v1/premiumIndex", nil)
	if err != nil {
		return nil, err
	}
	var premiums []premiumIndex
	if err := json.Unmarshal(body, &premiums); err != nil {
		return nil, err
	}
	return premiums, nil
}

// fetchPerpetualSet returns the symbols currently trading as USDT perpetuals.
// On failure it returns nil and the caller falls back to a suffix match, so a
// flaky exchangeInfo never empties the snapshot.
func (f *Fetcher) fetchPerpetualSet(ctx context.Context) map[string]bool {
	body, err := f.pool.Fetch(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		log.Printf("⚠️  exchangeInfo fetch failed, falling back to symbol suffix filter: %v", err)
		return nil
	}
	var info exchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		log.Printf("⚠️  exchangeInfo decode failed: %v", err)
		return nil
	}

	perps := make(map[string]bool, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.QuoteAsset == "USDT" && s.Status == "TRADING" && s.ContractType == "PERPETUAL" {
			perps[s.Symbol] = true
		}
	}
	return perps
}

func (f *Fetcher) fetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{"symbol": []string{symbol}}
	body, err := f.pool.Fetch(ctx, "/fapi/v1/openInterest", params)
	if err != nil {
		return 0, err
	}
	var oi openInterest
	if err := json.Unmarshal(body, &oi); err != nil {
		return 0, err
	}
	return parseFloat(oi.OpenInterest), nil
}

func isUSDTPerp(symbol string, perps map[string]bool) bool {
	if perps != nil {
		return perps[symbol]
	}
	return strings.HasSuffix(symbol, "USDT")
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
