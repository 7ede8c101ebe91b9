package signer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSendBTC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/btc/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.OrderID == "" || req.Address == "" {
			t.Errorf("incomplete request: %+v", req)
		}
		json.NewEncoder(w).Encode(SendResponse{TxHash: "f00d"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", time.Second)
	hash, err := c.SendBTC(context.Background(), SendRequest{
		OrderID: "order-1",
		Address: "bc1qdest",
		Amount:  decimal.NewFromFloat(0.25),
	})
	if err != nil {
		t.Fatalf("SendBTC: %v", err)
	}
	if hash != "f00d" {
		t.Errorf("hash = %q, want f00d", hash)
	}
}

func TestSendBTCUpstreamErrorIsNotRejection(t *testing.T) {
	// A 5xx may have been returned after the broadcast went out; it must not
	// read as a definitive rejection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal signer error", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", time.Second)
	_, err := c.SendBTC(context.Background(), SendRequest{OrderID: "order-1"})
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if errors.Is(err, ErrRejected) {
		t.Error("503 classified as rejection; broadcast state is unknown on 5xx")
	}
}

func TestSendBTCRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "destination address invalid", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", time.Second)
	_, err := c.SendBTC(context.Background(), SendRequest{OrderID: "order-1"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected on 4xx", err)
	}
}

func TestSendBTCTransportErrorIsNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New(srv.URL, "secret", time.Second)
	_, err := c.SendBTC(context.Background(), SendRequest{OrderID: "order-1"})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if errors.Is(err, ErrRejected) {
		t.Error("transport failure classified as rejection")
	}
}

func TestSendBTCEmptyHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", time.Second)
	if _, err := c.SendBTC(context.Background(), SendRequest{OrderID: "order-1"}); err == nil {
		t.Fatal("expected error on empty tx_hash")
	}
}
