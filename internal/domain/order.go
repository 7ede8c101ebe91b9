package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// OrderType distinguishes the two obligations the treasury settles in BTC.
type OrderType string

const (
	OrderTypeRedemption OrderType = "REDEMPTION" // prepaid card redeemed for BTC
	OrderTypeBuyOrder   OrderType = "BUY_ORDER"  // customer bought BTC with USDC
)

// IsValid returns true if the order type is recognised.
func (t OrderType) IsValid() bool {
	return t == OrderTypeRedemption || t == OrderTypeBuyOrder
}

// OrderStatus is the fulfillment state machine position of an order.
type OrderStatus string

const (
	OrderSubmitted        OrderStatus = "submitted"
	OrderKYCPending       OrderStatus = "kyc_pending"
	OrderWaitingInventory OrderStatus = "waiting_inventory"
	OrderReadyToSend      OrderStatus = "ready_to_send"
	OrderSending          OrderStatus = "sending"
	OrderSent             OrderStatus = "sent"
	OrderCompleted        OrderStatus = "completed"
	OrderFailed           OrderStatus = "failed"
	OrderHold             OrderStatus = "hold" // administrator-forced pause
)

// Blocked-reason values recorded when a gate refuses to advance an order.
const (
	BlockedKYCPending            = "kyc_pending"
	BlockedPayoutsPaused         = "payouts_paused"
	BlockedMissingDestination    = "missing_destination"
	BlockedInsufficientInventory = "insufficient_inventory"
	BlockedAdminHold             = "admin_hold"
)

// transitions is the full set of legal state-machine edges.  Everything not
// listed here is rejected; repo updates additionally guard WHERE status=$from
// so a concurrent or repeated advance is a no-op rather than a corruption.
var transitions = map[OrderStatus][]OrderStatus{
	OrderSubmitted:        {OrderKYCPending, OrderHold},
	OrderKYCPending:       {OrderWaitingInventory, OrderHold},
	OrderWaitingInventory: {OrderReadyToSend, OrderHold},
	OrderReadyToSend:      {OrderSending, OrderHold},
	OrderSending:          {OrderSent, OrderFailed},
	OrderSent:             {OrderCompleted, OrderFailed},
	OrderHold:             {OrderKYCPending}, // admin release re-enters the gates
}

// CanTransition reports whether moving from → to is a legal state-machine edge.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states the machine never leaves.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderFailed
}

// Holdable returns true for gated states an administrator may force to HOLD.
// In-flight sends and terminal orders cannot be held.
func (s OrderStatus) Holdable() bool {
	switch s {
	case OrderSubmitted, OrderKYCPending, OrderWaitingInventory, OrderReadyToSend:
		return true
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// FulfillmentOrder
// ──────────────────────────────────────────────────────────────────────────────

// FulfillmentOrder is the unit of settlement work: "send this much BTC to
// this address".  Created by a card redemption or a verified buy order, and
// advanced exclusively by the queue processor.  Terminal orders are retained
// permanently.
type FulfillmentOrder struct {
	ID                 uuid.UUID       `json:"id"                  db:"id"`
	OrderType          OrderType       `json:"order_type"          db:"order_type"`
	CustomerID         uuid.UUID       `json:"customer_id"         db:"customer_id"`
	SwapOrderID        *uuid.UUID      `json:"swap_order_id"       db:"swap_order_id"`
	CardID             *uuid.UUID      `json:"card_id"             db:"card_id"`
	USDValue           decimal.Decimal `json:"usd_value"           db:"usd_value"`
	BTCAmount          decimal.Decimal `json:"btc_amount"          db:"btc_amount"`
	DestinationAddress string          `json:"destination_address" db:"destination_address"`
	Status             OrderStatus     `json:"status"              db:"status"`
	BlockedReason      *string         `json:"blocked_reason"      db:"blocked_reason"`
	TxHash             *string         `json:"tx_hash"             db:"tx_hash"`
	SentAt             *time.Time      `json:"sent_at"             db:"sent_at"`
	CompletedAt        *time.Time      `json:"completed_at"        db:"completed_at"`
	CreatedAt          time.Time       `json:"created_at"          db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"          db:"updated_at"`
}

// IsSettled returns true once the order reached COMPLETED.
func (o *FulfillmentOrder) IsSettled() bool {
	return o.Status == OrderCompleted
}

// NeedsInventory returns true while the order has not yet reserved BTC.
func (o *FulfillmentOrder) NeedsInventory() bool {
	return o.Status == OrderKYCPending || o.Status == OrderWaitingInventory
}
