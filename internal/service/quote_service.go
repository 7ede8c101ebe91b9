package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashcard/treasury/internal/config"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Exchange constants
// ──────────────────────────────────────────────────────────────────────────────

const (
	exchangeCoinbase = "coinbase"
	exchangeKraken   = "kraken"
	exchangeBinance  = "binance"
)

// exchangeDef describes a single quote source.
type exchangeDef struct {
	name   string
	weight decimal.Decimal // 0–100
	fetch  func(ctx context.Context) (decimal.Decimal, error)
}

// QuoteSource is one successful exchange fetch, for monitoring views.
type QuoteSource struct {
	Exchange  string          `json:"exchange"`
	Price     decimal.Decimal `json:"price"`
	Weight    decimal.Decimal `json:"weight"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// QuoteService
// ──────────────────────────────────────────────────────────────────────────────

// QuoteService fetches BTC/USD prices from multiple exchanges in parallel,
// computes a weighted average, and caches the result.  The quote sizes card
// redemptions and customer swaps, so a stale or one-sided price is worse than
// a brief outage: partial failures re-normalize the weights over the sources
// that answered, and all-fail returns an error.
type QuoteService struct {
	client *http.Client
	cfg    *config.QuoteConfig

	mu          sync.RWMutex
	cachedPrice decimal.Decimal
	cacheTime   time.Time
	lastSources []QuoteSource

	statusMu    sync.RWMutex
	lastSuccess map[string]time.Time
	exchanges   []exchangeDef
}

// NewQuoteService constructs a QuoteService from the given config.
func NewQuoteService(cfg *config.Config) *QuoteService {
	qs := &QuoteService{
		client: &http.Client{Timeout: cfg.Quote.FetchTimeout},
		cfg:    &cfg.Quote,
		lastSuccess: map[string]time.Time{
			exchangeCoinbase: {},
			exchangeKraken:   {},
			exchangeBinance:  {},
		},
	}

	qs.exchanges = []exchangeDef{
		{
			name:   exchangeCoinbase,
			weight: decimal.NewFromInt(int64(cfg.Quote.CoinbaseWeight)),
			fetch:  qs.fetchCoinbase,
		},
		{
			name:   exchangeKraken,
			weight: decimal.NewFromInt(int64(cfg.Quote.KrakenWeight)),
			fetch:  qs.fetchKraken,
		},
		{
			name:   exchangeBinance,
			weight: decimal.NewFromInt(int64(cfg.Quote.BinanceWeight)),
			fetch:  qs.fetchBinance,
		},
	}

	return qs
}

// ──────────────────────────────────────────────────────────────────────────────
// Public API
// ──────────────────────────────────────────────────────────────────────────────

// BTCUSD returns the current BTC/USD price as a weighted average of all
// configured exchanges.  If the in-memory cache is still fresh (< CacheTTL)
// the cached value is returned immediately.
func (qs *QuoteService) BTCUSD(ctx context.Context) (decimal.Decimal, []QuoteSource, error) {
	// ── Cache check ──────────────────────────────────────────────────────────
	qs.mu.RLock()
	if !qs.cacheTime.IsZero() && time.Since(qs.cacheTime) < qs.cfg.CacheTTL {
		price := qs.cachedPrice
		sources := qs.lastSources
		qs.mu.RUnlock()
		return price, sources, nil
	}
	qs.mu.RUnlock()

	// ── Parallel fetch with shared timeout ───────────────────────────────────
	type result struct {
		name  string
		price decimal.Decimal
		err   error
	}

	fetchCtx, cancel := context.WithTimeout(ctx, qs.client.Timeout)
	defer cancel()

	resultCh := make(chan result, len(qs.exchanges))
	for _, ex := range qs.exchanges {
		ex := ex // capture
		go func() {
			p, err := ex.fetch(fetchCtx)
			resultCh <- result{name: ex.name, price: p, err: err}
		}()
	}

	rawResults := make(map[string]result, len(qs.exchanges))
	for range qs.exchanges {
		r := <-resultCh
		rawResults[r.name] = r
	}

	// ── Weighted average over available sources ──────────────────────────────
	var sources []QuoteSource
	var sumWeighted, sumWeights decimal.Decimal
	now := time.Now()

	for _, ex := range qs.exchanges {
		r := rawResults[ex.name]
		if r.err != nil || r.price.IsZero() {
			continue
		}
		sources = append(sources, QuoteSource{
			Exchange:  ex.name,
			Price:     r.price,
			Weight:    ex.weight,
			FetchedAt: now,
		})
		sumWeighted = sumWeighted.Add(r.price.Mul(ex.weight))
		sumWeights = sumWeights.Add(ex.weight)

		qs.statusMu.Lock()
		qs.lastSuccess[ex.name] = now
		qs.statusMu.Unlock()
	}

	if len(sources) == 0 {
		return decimal.Zero, nil, fmt.Errorf("quote_service: all exchange fetches failed")
	}

	weightedAvg := sumWeighted.Div(sumWeights)

	// ── Update cache ─────────────────────────────────────────────────────────
	qs.mu.Lock()
	qs.cachedPrice = weightedAvg
	qs.cacheTime = now
	qs.lastSources = sources
	qs.mu.Unlock()

	return weightedAvg, sources, nil
}

// CachedPrice returns the most recently cached price and true if the cache is
// still within its TTL.
func (qs *QuoteService) CachedPrice() (decimal.Decimal, bool) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	if qs.cacheTime.IsZero() || time.Since(qs.cacheTime) >= qs.cfg.CacheTTL {
		return decimal.Zero, false
	}
	return qs.cachedPrice, true
}

// ExchangeStatus returns a map of exchange name → whether it answered in the
// last 5 seconds.  Used by the backoffice health view.
func (qs *QuoteService) ExchangeStatus() map[string]bool {
	threshold := 5 * time.Second
	qs.statusMu.RLock()
	defer qs.statusMu.RUnlock()

	status := make(map[string]bool, len(qs.lastSuccess))
	for name, t := range qs.lastSuccess {
		status[name] = !t.IsZero() && time.Since(t) < threshold
	}
	return status
}

// ──────────────────────────────────────────────────────────────────────────────
// Exchange fetchers
// ──────────────────────────────────────────────────────────────────────────────

// fetchCoinbase fetches the BTC/USD spot price from the Coinbase REST API.
//
//	GET /v2/prices/BTC-USD/spot
//	{"data":{"amount":"87350.00","currency":"USD"}}
func (qs *QuoteService) fetchCoinbase(ctx context.Context) (decimal.Decimal, error) {
	url := qs.cfg.CoinbaseURL + "/v2/prices/BTC-USD/spot"
	body, err := qs.doGet(ctx, url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coinbase: %w", err)
	}

	var resp struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("coinbase parse: %w", err)
	}
	if resp.Data.Amount == "" {
		return decimal.Zero, fmt.Errorf("coinbase: empty amount field")
	}
	price, err := decimal.NewFromString(resp.Data.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coinbase decimal: %w", err)
	}
	return price, nil
}

// fetchKraken fetches the BTC/USD last-trade price from the Kraken REST API.
//
//	GET /0/public/Ticker?pair=XBTUSD
//	{"result":{"XXBTZUSD":{"c":["87350.00","0.1"]}}}
func (qs *QuoteService) fetchKraken(ctx context.Context) (decimal.Decimal, error) {
	url := qs.cfg.KrakenURL + "/0/public/Ticker?pair=XBTUSD"
	body, err := qs.doGet(ctx, url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("kraken: %w", err)
	}

	var resp struct {
		Result map[string]struct {
			C []string `json:"c"`
		} `json:"result"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("kraken parse: %w", err)
	}
	for _, ticker := range resp.Result {
		if len(ticker.C) == 0 || ticker.C[0] == "" {
			continue
		}
		price, err := decimal.NewFromString(ticker.C[0])
		if err != nil {
			return decimal.Zero, fmt.Errorf("kraken decimal: %w", err)
		}
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("kraken: empty result")
}

// fetchBinance fetches the BTC/USDT spot price from the Binance REST API.
// USDT is treated as USD for quoting purposes.
//
//	GET /api/v3/ticker/price?symbol=BTCUSDT
//	{"symbol":"BTCUSDT","price":"87350.00"}
func (qs *QuoteService) fetchBinance(ctx context.Context) (decimal.Decimal, error) {
	url := qs.cfg.BinanceURL + "/api/v3/ticker/price?symbol=BTCUSDT"
	body, err := qs.doGet(ctx, url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: %w", err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("binance parse: %w", err)
	}
	if resp.Price == "" {
		return decimal.Zero, fmt.Errorf("binance: empty price field")
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance decimal: %w", err)
	}
	return price, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// HTTP helper
// ──────────────────────────────────────────────────────────────────────────────

// doGet performs an HTTP GET and returns the body bytes, or an error for any
// non-200 status code.
func (qs *QuoteService) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "hashcard-treasury/1.0")

	resp, err := qs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
