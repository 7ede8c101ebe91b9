// Package signer is the HTTP client for the external custody signer.  Keys
// never enter this system; the engine asks the signer to build, sign and
// broadcast a BTC payment and gets back the transaction hash.
package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRejected marks a definitive refusal: the signer answered with a client
// error, so nothing was broadcast and the payment can safely be failed.
// Transport failures and signer-side 5xx responses are NOT rejections; for
// those the broadcast state is unknown.
var ErrRejected = errors.New("signer rejected send")

// SendRequest asks the signer to pay amount BTC to address.  OrderID doubles
// as the signer-side idempotency key: replays of the same order return the
// original transaction hash instead of paying twice.
type SendRequest struct {
	OrderID string          `json:"order_id"`
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount_btc"`
}

// SendResponse is the signer's reply after broadcast.
type SendResponse struct {
	TxHash string `json:"tx_hash"`
}

// Client talks to the signer service.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New constructs a signer client.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// SendBTC submits one payment and returns the broadcast transaction hash.
// An error wrapping ErrRejected means the signer refused the request and
// nothing went out.  Any other error leaves the caller unsure whether the
// payment was broadcast; the order must stay in its in-flight state for
// operator review, never silently retry.
func (c *Client) SendBTC(ctx context.Context, req SendRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("signer: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/btc/send", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("signer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("signer: http post: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("signer: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", fmt.Errorf("signer: status %d: %s: %w", resp.StatusCode, string(body), ErrRejected)
		}
		return "", fmt.Errorf("signer: status %d: %s", resp.StatusCode, string(body))
	}

	var sendResp SendResponse
	if err := json.Unmarshal(body, &sendResp); err != nil {
		return "", fmt.Errorf("signer: parse response: %w", err)
	}
	if sendResp.TxHash == "" {
		return "", fmt.Errorf("signer: empty tx_hash in response")
	}
	return sendResp.TxHash, nil
}
