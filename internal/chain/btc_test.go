package chain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashcard/treasury/internal/domain"
	"github.com/shopspring/decimal"
)

func TestBTCClientTipHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/blocks/tip/height" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("868421\n"))
	}))
	defer srv.Close()

	c := NewBTCClient(srv.URL, srv.Client())
	h, err := c.TipHeight(context.Background())
	if err != nil {
		t.Fatalf("TipHeight: %v", err)
	}
	if h != 868421 {
		t.Errorf("height = %d, want 868421", h)
	}
}

func TestBTCClientAddressTxs(t *testing.T) {
	const addr = "bc1qtreasury"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/address/"+addr+"/txs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"txid": "aa11",
				"status": {"confirmed": true, "block_height": 868400},
				"vin":  [{"prevout": {"scriptpubkey_address": "bc1qcustomer", "value": 60000000}}],
				"vout": [
					{"scriptpubkey_address": "bc1qtreasury", "value": 50000000},
					{"scriptpubkey_address": "bc1qcustomer", "value": 9990000}
				]
			}
		]`))
	}))
	defer srv.Close()

	c := NewBTCClient(srv.URL, srv.Client())
	txs, err := c.AddressTxs(context.Background(), addr)
	if err != nil {
		t.Fatalf("AddressTxs: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d txs, want 1", len(txs))
	}

	tx := txs[0]
	if got := tx.AmountTo(addr); !got.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("AmountTo = %s, want 0.5", got)
	}
	if tx.SpendsFrom(addr) {
		t.Error("SpendsFrom(treasury) = true for an inbound deposit")
	}
	if !tx.SpendsFrom("bc1qcustomer") {
		t.Error("SpendsFrom(customer) = false, want true")
	}
	if got := tx.Status.Confirmations(868401); got != 2 {
		t.Errorf("Confirmations = %d, want 2", got)
	}
}

func TestBTCClientTxStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewBTCClient(srv.URL, srv.Client())
	_, err := c.TxStatus(context.Background(), "deadbeef")
	if !errors.Is(err, domain.ErrTxNotFound) {
		t.Errorf("err = %v, want ErrTxNotFound", err)
	}
}

func TestBTCTxStatusConfirmations(t *testing.T) {
	tests := []struct {
		name   string
		status BTCTxStatus
		tip    int64
		want   int64
	}{
		{"unconfirmed", BTCTxStatus{Confirmed: false}, 100, 0},
		{"in tip block", BTCTxStatus{Confirmed: true, BlockHeight: 100}, 100, 1},
		{"two deep", BTCTxStatus{Confirmed: true, BlockHeight: 99}, 100, 2},
		{"tip behind", BTCTxStatus{Confirmed: true, BlockHeight: 101}, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Confirmations(tt.tip); got != tt.want {
				t.Errorf("Confirmations(%d) = %d, want %d", tt.tip, got, tt.want)
			}
		})
	}
}
