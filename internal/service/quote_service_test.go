package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hashcard/treasury/internal/config"
	"github.com/shopspring/decimal"
)

// quoteFixture stands up three fake exchanges and returns a QuoteService
// pointed at them.
func quoteFixture(t *testing.T, coinbase, kraken, binance http.HandlerFunc) *QuoteService {
	t.Helper()
	cb := httptest.NewServer(coinbase)
	kr := httptest.NewServer(kraken)
	bn := httptest.NewServer(binance)
	t.Cleanup(func() { cb.Close(); kr.Close(); bn.Close() })

	cfg := &config.Config{
		Quote: config.QuoteConfig{
			CoinbaseURL:    cb.URL,
			KrakenURL:      kr.URL,
			BinanceURL:     bn.URL,
			FetchTimeout:   2 * time.Second,
			CacheTTL:       time.Minute,
			CoinbaseWeight: 40,
			KrakenWeight:   30,
			BinanceWeight:  30,
		},
	}
	return NewQuoteService(cfg)
}

func coinbaseOK(price string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"amount":"` + price + `","currency":"USD"}}`))
	}
}

func krakenOK(price string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"XXBTZUSD":{"c":["` + price + `","0.1"]}}}`))
	}
}

func binanceOK(price string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"` + price + `"}`))
	}
}

func failing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}
}

func TestBTCUSDWeightedAverage(t *testing.T) {
	qs := quoteFixture(t, coinbaseOK("100000"), krakenOK("101000"), binanceOK("102000"))

	price, sources, err := qs.BTCUSD(context.Background())
	if err != nil {
		t.Fatalf("BTCUSD: %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(sources))
	}
	// 100000*40 + 101000*30 + 102000*30 = 10_090_000 / 100 = 100900
	want := decimal.RequireFromString("100900")
	if !price.Equal(want) {
		t.Errorf("price = %s, want %s", price, want)
	}
}

func TestBTCUSDPartialFailureRenormalizes(t *testing.T) {
	qs := quoteFixture(t, failing(), krakenOK("100000"), binanceOK("102000"))

	price, sources, err := qs.BTCUSD(context.Background())
	if err != nil {
		t.Fatalf("BTCUSD: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	// (100000*30 + 102000*30) / 60 = 101000
	want := decimal.RequireFromString("101000")
	if !price.Equal(want) {
		t.Errorf("price = %s, want %s", price, want)
	}
}

func TestBTCUSDAllFail(t *testing.T) {
	qs := quoteFixture(t, failing(), failing(), failing())
	if _, _, err := qs.BTCUSD(context.Background()); err == nil {
		t.Fatal("expected error when every exchange is down")
	}
	if _, ok := qs.CachedPrice(); ok {
		t.Error("failed fetch must not populate the cache")
	}
}

func TestBTCUSDCacheServesRepeatCalls(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	counting := func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		coinbaseOK("100000")(w, r)
	}

	qs := quoteFixture(t, counting, krakenOK("100000"), binanceOK("100000"))

	if _, _, err := qs.BTCUSD(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, _, err := qs.BTCUSD(context.Background()); err != nil {
			t.Fatalf("cached fetch %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("upstream called %d times, want 1 (cache TTL is a minute)", calls)
	}
}

// Concurrent readers against the cache; run with -race.
func TestBTCUSDConcurrentAccess(t *testing.T) {
	qs := quoteFixture(t, coinbaseOK("100000"), krakenOK("100000"), binanceOK("100000"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := qs.BTCUSD(context.Background()); err != nil {
				t.Errorf("BTCUSD: %v", err)
			}
			qs.CachedPrice()
			qs.ExchangeStatus()
		}()
	}
	wg.Wait()
}
