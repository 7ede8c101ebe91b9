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

const usdcContract = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"

func TestEVMClientBlockNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "eth_blockNumber" {
			t.Errorf("unexpected action %s", r.URL.Query().Get("action"))
		}
		w.Write([]byte(`{"result":"0x134e82a"}`))
	}))
	defer srv.Close()

	c := NewEVMClient(srv.URL, "", srv.Client())
	n, err := c.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}
	if n != 0x134e82a {
		t.Errorf("block = %d, want %d", n, 0x134e82a)
	}
}

func TestEVMClientReceiptNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":null}`))
	}))
	defer srv.Close()

	c := NewEVMClient(srv.URL, "", srv.Client())
	_, err := c.TransactionReceipt(context.Background(), "0xdead")
	if !errors.Is(err, domain.ErrTxNotFound) {
		t.Errorf("err = %v, want ErrTxNotFound", err)
	}
}

func TestEVMReceiptUSDCTransfers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 250 USDC = 250_000_000 raw = 0xee6b280
		w.Write([]byte(`{"result":{
			"status": "0x1",
			"blockNumber": "0x134e800",
			"logs": [
				{
					"address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
					"topics": [
						"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
						"0x000000000000000000000000c0ffee0000000000000000000000000000000001",
						"0x000000000000000000000000c0ffee0000000000000000000000000000000002"
					],
					"data": "0x000000000000000000000000000000000000000000000000000000000ee6b280"
				},
				{
					"address": "0x1111111111111111111111111111111111111111",
					"topics": ["0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"],
					"data": "0x01"
				}
			]
		}}`))
	}))
	defer srv.Close()

	c := NewEVMClient(srv.URL, "", srv.Client())
	rcpt, err := c.TransactionReceipt(context.Background(), "0xbeef")
	if err != nil {
		t.Fatalf("TransactionReceipt: %v", err)
	}
	if !rcpt.Succeeded() {
		t.Fatal("Succeeded() = false for status 0x1")
	}

	transfers := rcpt.USDCTransfers(usdcContract)
	if len(transfers) != 1 {
		t.Fatalf("got %d transfers, want 1 (other-contract log must be skipped)", len(transfers))
	}
	tr := transfers[0]
	if tr.From != "0xc0ffee0000000000000000000000000000000001" {
		t.Errorf("From = %s", tr.From)
	}
	if tr.To != "0xc0ffee0000000000000000000000000000000002" {
		t.Errorf("To = %s", tr.To)
	}
	if !tr.Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Amount = %s, want 250", tr.Amount)
	}
}

func TestEVMReceiptReverted(t *testing.T) {
	rcpt := &EVMReceipt{Status: "0x0"}
	if rcpt.Succeeded() {
		t.Error("Succeeded() = true for status 0x0")
	}
}

func TestParseHexInt64(t *testing.T) {
	if _, err := parseHexInt64("0x"); err == nil {
		t.Error("expected error for empty quantity")
	}
	if _, err := parseHexInt64("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	n, err := parseHexInt64("0x10")
	if err != nil || n != 16 {
		t.Errorf("parseHexInt64(0x10) = %d, %v", n, err)
	}
}
