// Package chain contains thin HTTP clients for the block explorers the
// engine watches: an esplora-style Bitcoin API and an etherscan-style
// EVM proxy API.  Both are read-only; the engine never holds keys and
// never broadcasts through these clients.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashcard/treasury/internal/domain"
	"github.com/shopspring/decimal"
)

// satsPerBTC converts esplora's integer satoshi values to BTC decimals.
var satsPerBTC = decimal.NewFromInt(100_000_000)

// ──────────────────────────────────────────────────────────────────────────────
// Wire types (esplora JSON)
// ──────────────────────────────────────────────────────────────────────────────

// BTCTxStatus is a transaction's confirmation state.
type BTCTxStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
}

// Confirmations returns how many blocks deep the transaction is at the given
// tip, counting the including block as one.  Zero while unconfirmed.
func (s *BTCTxStatus) Confirmations(tip int64) int64 {
	if !s.Confirmed || s.BlockHeight <= 0 || tip < s.BlockHeight {
		return 0
	}
	return tip - s.BlockHeight + 1
}

// BTCVout is one transaction output.  Value is in satoshis.
type BTCVout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// BTCVin is one transaction input, with its previous output expanded.
type BTCVin struct {
	Prevout BTCVout `json:"prevout"`
}

// BTCTx is a Bitcoin transaction as returned by the address endpoint.
type BTCTx struct {
	TxID   string      `json:"txid"`
	Status BTCTxStatus `json:"status"`
	Vin    []BTCVin    `json:"vin"`
	Vout   []BTCVout   `json:"vout"`
}

// AmountTo sums the BTC this transaction pays to the given address.
func (tx *BTCTx) AmountTo(address string) decimal.Decimal {
	var sats int64
	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddress == address {
			sats += out.Value
		}
	}
	return decimal.NewFromInt(sats).Div(satsPerBTC)
}

// SpendsFrom reports whether any input of this transaction came from the
// given address.  Used to tell change outputs apart from real deposits when
// the treasury pays itself.
func (tx *BTCTx) SpendsFrom(address string) bool {
	for _, in := range tx.Vin {
		if in.Prevout.ScriptPubKeyAddress == address {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// BTCClient
// ──────────────────────────────────────────────────────────────────────────────

// BTCClient talks to an esplora-compatible Bitcoin explorer API
// (blockstream.info or a self-hosted electrs).
type BTCClient struct {
	baseURL string
	client  *http.Client
}

// NewBTCClient constructs a client for the given base URL, e.g.
// "https://blockstream.info/api".
func NewBTCClient(baseURL string, client *http.Client) *BTCClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &BTCClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// TipHeight returns the current chain tip height.
//
//	GET /blocks/tip/height → plain-text integer
func (c *BTCClient) TipHeight(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, fmt.Errorf("btc tip height: %w", err)
	}
	h, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("btc tip height parse: %w", err)
	}
	return h, nil
}

// AddressTxs returns recent transactions touching an address, newest first.
//
//	GET /address/:address/txs
func (c *BTCClient) AddressTxs(ctx context.Context, address string) ([]BTCTx, error) {
	body, err := c.get(ctx, "/address/"+address+"/txs")
	if err != nil {
		return nil, fmt.Errorf("btc address txs: %w", err)
	}
	var txs []BTCTx
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("btc address txs parse: %w", err)
	}
	return txs, nil
}

// TxStatus returns the confirmation status of a transaction, or
// domain.ErrTxNotFound when the explorer has never seen the hash.
//
//	GET /tx/:txid/status
func (c *BTCClient) TxStatus(ctx context.Context, txid string) (*BTCTxStatus, error) {
	body, err := c.get(ctx, "/tx/"+txid+"/status")
	if err != nil {
		if errors404(err) {
			return nil, domain.ErrTxNotFound
		}
		return nil, fmt.Errorf("btc tx status: %w", err)
	}
	var status BTCTxStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("btc tx status parse: %w", err)
	}
	return &status, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// HTTP helper
// ──────────────────────────────────────────────────────────────────────────────

// statusError carries the HTTP status code so callers can recognise 404.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.code, e.url)
}

func errors404(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (c *BTCClient) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "hashcard-treasury/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, url: url}
	}
	return io.ReadAll(resp.Body)
}
