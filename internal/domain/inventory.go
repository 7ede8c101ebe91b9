// Package domain defines the core business entities and types for the
// hashcard custodial treasury: BTC inventory lots, allocations, fulfillment
// orders, customer swap orders and the operational records around them.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// LotSource identifies how a batch of BTC entered the treasury.
type LotSource string

const (
	LotSourceManual   LotSource = "manual"   // admin top-up via backoffice
	LotSourceExchange LotSource = "exchange" // purchased on an exchange
	LotSourceOther    LotSource = "other"
)

// IsValid returns true if the source is a recognised origin.
func (s LotSource) IsValid() bool {
	return s == LotSourceManual || s == LotSourceExchange || s == LotSourceOther
}

// BTCScale is the decimal precision used for every BTC amount
// (matching DB DECIMAL(18,8)).
const BTCScale = 8

// ──────────────────────────────────────────────────────────────────────────────
// InventoryLot
// ──────────────────────────────────────────────────────────────────────────────

// InventoryLot is a discrete batch of BTC received into the treasury.  Lots
// are tracked separately so allocations can be drawn oldest-first and each
// batch can carry its own maturation hold.  Lots are never deleted; depleted
// lots remain for audit.
type InventoryLot struct {
	ID              uuid.UUID       `json:"id"               db:"id"`
	AmountTotal     decimal.Decimal `json:"amount_total"     db:"amount_total"`
	AmountAvailable decimal.Decimal `json:"amount_available" db:"amount_available"`
	Source          LotSource       `json:"source"           db:"source"`
	ReceivedAt      time.Time       `json:"received_at"      db:"received_at"`
	EligibleAt      time.Time       `json:"eligible_at"      db:"eligible_at"`
	CreatedAt       time.Time       `json:"created_at"       db:"created_at"`
}

// IsEligible reports whether the lot's hold period has elapsed at the given
// instant.
func (l *InventoryLot) IsEligible(now time.Time) bool {
	return !l.EligibleAt.After(now)
}

// IsDepleted returns true once the lot has no available balance left.
func (l *InventoryLot) IsDepleted() bool {
	return l.AmountAvailable.IsZero()
}

// ──────────────────────────────────────────────────────────────────────────────
// LotAllocation
// ──────────────────────────────────────────────────────────────────────────────

// LotAllocation links a fulfillment order to the specific lot quantity it
// reserved.  A reversal restores the lot balance and flips IsReversed; the
// row itself is retained.
type LotAllocation struct {
	ID         uuid.UUID       `json:"id"          db:"id"`
	LotID      uuid.UUID       `json:"lot_id"      db:"lot_id"`
	OrderID    uuid.UUID       `json:"order_id"    db:"order_id"`
	Amount     decimal.Decimal `json:"amount"      db:"amount"`
	IsReversed bool            `json:"is_reversed" db:"is_reversed"`
	CreatedAt  time.Time       `json:"created_at"  db:"created_at"`
	ReversedAt *time.Time      `json:"reversed_at" db:"reversed_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// InventoryStats
// ──────────────────────────────────────────────────────────────────────────────

// InventoryStats is the aggregate view of the treasury's BTC position.
// EligibleBTC is what the allocator can draw from right now; LockedBTC is
// inventory still inside its maturation hold.
type InventoryStats struct {
	TotalBTC    decimal.Decimal `json:"total_btc"    db:"total_btc"`
	EligibleBTC decimal.Decimal `json:"eligible_btc" db:"eligible_btc"`
	LockedBTC   decimal.Decimal `json:"locked_btc"   db:"locked_btc"`
	LotCount    int             `json:"lot_count"    db:"lot_count"`
	ActiveLots  int             `json:"active_lots"  db:"active_lots"`
}

// ──────────────────────────────────────────────────────────────────────────────
// FIFO allocation planning
// ──────────────────────────────────────────────────────────────────────────────

// LotDraw is one planned draw against a single lot.
type LotDraw struct {
	LotID  uuid.UUID
	Amount decimal.Decimal
}

// EligibleLots filters a lot set down to what the allocator may draw from at
// the given instant: maturation hold elapsed and balance remaining.  Input
// order is preserved, so a FIFO-sorted set stays FIFO.
func EligibleLots(lots []*InventoryLot, now time.Time) []*InventoryLot {
	var out []*InventoryLot
	for _, lot := range lots {
		if lot.IsEligible(now) && lot.AmountAvailable.GreaterThan(decimal.Zero) {
			out = append(out, lot)
		}
	}
	return out
}

// PlanAllocation walks eligible lots oldest-first and plans draws until the
// requested amount is satisfied.  The caller is responsible for passing only
// eligible lots, already sorted by received_at ascending (the repository
// query does both, under FOR UPDATE).
//
// The plan is all-or-nothing: if the lots cannot cover the request the
// function returns ErrInsufficientInventory and no draws, so a partial
// reservation can never leak out of a failed allocation.
func PlanAllocation(lots []*InventoryLot, requested decimal.Decimal) ([]LotDraw, error) {
	if requested.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	remaining := requested
	var draws []LotDraw

	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		if lot.AmountAvailable.LessThanOrEqual(decimal.Zero) {
			continue
		}

		draw := decimal.Min(lot.AmountAvailable, remaining)
		draws = append(draws, LotDraw{LotID: lot.ID, Amount: draw})
		remaining = remaining.Sub(draw)
	}

	if remaining.GreaterThan(decimal.Zero) {
		return nil, ErrInsufficientInventory
	}
	return draws, nil
}
