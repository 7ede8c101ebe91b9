package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashcard/treasury/internal/domain"
	"github.com/shopspring/decimal"
)

// transferTopic is the event signature hash of the ERC-20
// Transfer(address,address,uint256) event.
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// usdcDecimals: USDC carries 6 decimal places on-chain.
const usdcDecimals = 6

// ──────────────────────────────────────────────────────────────────────────────
// Wire types (etherscan proxy JSON-RPC passthrough)
// ──────────────────────────────────────────────────────────────────────────────

// EVMLog is one event log inside a receipt.
type EVMLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// EVMReceipt is an eth_getTransactionReceipt result.
type EVMReceipt struct {
	Status      string   `json:"status"`      // "0x1" success, "0x0" reverted
	BlockNumber string   `json:"blockNumber"` // hex
	Logs        []EVMLog `json:"logs"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r *EVMReceipt) Succeeded() bool {
	return r.Status == "0x1"
}

// TokenTransfer is one decoded ERC-20 Transfer event.
type TokenTransfer struct {
	From   string
	To     string
	Amount decimal.Decimal // token units (USDC: 6 decimals already applied)
}

// USDCTransfers decodes every Transfer event the given USDC contract emitted
// in this receipt.  Events from other contracts and non-Transfer events are
// skipped; malformed logs are skipped rather than failing the whole decode.
func (r *EVMReceipt) USDCTransfers(contract string) []TokenTransfer {
	contract = strings.ToLower(contract)
	var transfers []TokenTransfer

	for _, lg := range r.Logs {
		if strings.ToLower(lg.Address) != contract {
			continue
		}
		if len(lg.Topics) != 3 || strings.ToLower(lg.Topics[0]) != transferTopic {
			continue
		}

		amount, ok := parseHexAmount(lg.Data, usdcDecimals)
		if !ok {
			continue
		}
		transfers = append(transfers, TokenTransfer{
			From:   topicToAddress(lg.Topics[1]),
			To:     topicToAddress(lg.Topics[2]),
			Amount: amount,
		})
	}
	return transfers
}

// topicToAddress extracts the 20-byte address from a 32-byte indexed topic.
func topicToAddress(topic string) string {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(t) < 40 {
		return ""
	}
	return "0x" + t[len(t)-40:]
}

// parseHexAmount decodes a 0x-prefixed big-endian integer and shifts it by
// the token's decimal places.
func parseHexAmount(data string, decimals int32) (decimal.Decimal, bool) {
	h := strings.TrimPrefix(strings.ToLower(data), "0x")
	if h == "" {
		return decimal.Zero, false
	}
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(n, -decimals), true
}

// parseHexInt64 decodes a 0x-prefixed hex quantity (block numbers).
func parseHexInt64(s string) (int64, error) {
	h := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if h == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	n, ok := new(big.Int).SetString(h, 16)
	if !ok || !n.IsInt64() {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	return n.Int64(), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// EVMClient
// ──────────────────────────────────────────────────────────────────────────────

// EVMClient talks to an etherscan-style proxy API (module=proxy) to read
// block height and transaction receipts.
type EVMClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewEVMClient constructs a client for the given base URL, e.g.
// "https://api.etherscan.io/api".
func NewEVMClient(baseURL, apiKey string, client *http.Client) *EVMClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &EVMClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

// BlockNumber returns the current block height.
//
//	GET ?module=proxy&action=eth_blockNumber → {"result":"0x..."}
func (c *EVMClient) BlockNumber(ctx context.Context) (int64, error) {
	var resp struct {
		Result string `json:"result"`
	}
	if err := c.get(ctx, url.Values{
		"module": {"proxy"},
		"action": {"eth_blockNumber"},
	}, &resp); err != nil {
		return 0, fmt.Errorf("evm block number: %w", err)
	}
	n, err := parseHexInt64(resp.Result)
	if err != nil {
		return 0, fmt.Errorf("evm block number parse: %w", err)
	}
	return n, nil
}

// TransactionReceipt fetches the receipt for a transaction hash.  A null
// result means the chain has never seen (or not yet mined) the hash, mapped
// to domain.ErrTxNotFound.
//
//	GET ?module=proxy&action=eth_getTransactionReceipt&txhash=0x...
func (c *EVMClient) TransactionReceipt(ctx context.Context, txHash string) (*EVMReceipt, error) {
	var resp struct {
		Result *EVMReceipt `json:"result"`
	}
	if err := c.get(ctx, url.Values{
		"module": {"proxy"},
		"action": {"eth_getTransactionReceipt"},
		"txhash": {txHash},
	}, &resp); err != nil {
		return nil, fmt.Errorf("evm receipt: %w", err)
	}
	if resp.Result == nil {
		return nil, domain.ErrTxNotFound
	}
	return resp.Result, nil
}

func (c *EVMClient) get(ctx context.Context, params url.Values, out any) error {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "hashcard-treasury/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse body: %w", err)
	}
	return nil
}
