package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// SwapSide is the direction of a customer-initiated swap.
type SwapSide string

const (
	SwapBuyBTC  SwapSide = "BUY_BTC"  // customer pays USDC, receives BTC
	SwapSellBTC SwapSide = "SELL_BTC" // customer sends BTC, receives USDC
)

// IsValid returns true if the side is recognised.
func (s SwapSide) IsValid() bool {
	return s == SwapBuyBTC || s == SwapSellBTC
}

// SwapStatus is the settlement state of a swap order.
type SwapStatus string

const (
	SwapPending    SwapStatus = "pending"    // awaiting payment / deposit
	SwapProcessing SwapStatus = "processing" // payment verified, fulfillment underway
	SwapCompleted  SwapStatus = "completed"
	SwapFailed     SwapStatus = "failed"
	SwapCancelled  SwapStatus = "cancelled"
)

// ──────────────────────────────────────────────────────────────────────────────
// CustomerSwapOrder
// ──────────────────────────────────────────────────────────────────────────────

// CustomerSwapOrder is a customer's BUY_BTC or SELL_BTC intent, quoted at
// creation time.  TxHash is the anti-replay key: once set it must be globally
// unique — a single on-chain transaction can settle at most one order.
type CustomerSwapOrder struct {
	ID                 uuid.UUID       `json:"id"                  db:"id"`
	CustomerID         uuid.UUID       `json:"customer_id"         db:"customer_id"`
	Side               SwapSide        `json:"side"                db:"side"`
	BTCAmount          decimal.Decimal `json:"btc_amount"          db:"btc_amount"`
	USDCAmount         decimal.Decimal `json:"usdc_amount"         db:"usdc_amount"`
	BTCPriceAtOrder    decimal.Decimal `json:"btc_price_at_order"  db:"btc_price_at_order"`
	DestinationAddress *string         `json:"destination_address" db:"destination_address"`
	SourceAddress      *string         `json:"source_address"      db:"source_address"`
	InventoryAllocated bool            `json:"inventory_allocated" db:"inventory_allocated"`
	TxHash             *string         `json:"tx_hash"             db:"tx_hash"`
	Status             SwapStatus      `json:"status"              db:"status"`
	CreatedAt          time.Time       `json:"created_at"          db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"          db:"updated_at"`
	CompletedAt        *time.Time      `json:"completed_at"        db:"completed_at"`
}

// IsPending returns true while the order is still awaiting settlement work.
func (o *CustomerSwapOrder) IsPending() bool {
	return o.Status == SwapPending
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateSwapRequest — value object used by SwapService
// ──────────────────────────────────────────────────────────────────────────────

// CreateSwapRequest carries the validated inputs for opening a swap order.
// Exactly one of USDCAmount (BUY_BTC) or BTCAmount (SELL_BTC) is the sizing
// input; the counter-amount is quoted by the service.
type CreateSwapRequest struct {
	CustomerID         uuid.UUID
	Side               SwapSide
	USDCAmount         decimal.Decimal
	BTCAmount          decimal.Decimal
	DestinationAddress string // BUY_BTC: where the customer wants BTC sent
	SourceAddress      string // SELL_BTC: the address the deposit will come from
}

// SwapOrderResponse is the API-safe view of a swap order.
type SwapOrderResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Side               SwapSide        `json:"side"`
	BTCAmount          decimal.Decimal `json:"btc_amount"`
	USDCAmount         decimal.Decimal `json:"usdc_amount"`
	BTCPriceAtOrder    decimal.Decimal `json:"btc_price_at_order"`
	DestinationAddress *string         `json:"destination_address,omitempty"`
	SourceAddress      *string         `json:"source_address,omitempty"`
	Status             SwapStatus      `json:"status"`
	TxHash             *string         `json:"tx_hash,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// ToResponse converts a CustomerSwapOrder to its API response form.
func (o *CustomerSwapOrder) ToResponse() SwapOrderResponse {
	return SwapOrderResponse{
		ID:                 o.ID,
		Side:               o.Side,
		BTCAmount:          o.BTCAmount,
		USDCAmount:         o.USDCAmount,
		BTCPriceAtOrder:    o.BTCPriceAtOrder,
		DestinationAddress: o.DestinationAddress,
		SourceAddress:      o.SourceAddress,
		Status:             o.Status,
		TxHash:             o.TxHash,
		CreatedAt:          o.CreatedAt,
		CompletedAt:        o.CompletedAt,
	}
}
