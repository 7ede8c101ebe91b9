package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashoutStatus tracks a USD off-ramp request through manual review and ACH
// settlement.  Cashouts never touch the BTC inventory.
type CashoutStatus string

const (
	CashoutPending  CashoutStatus = "pending"
	CashoutApproved CashoutStatus = "approved"
	CashoutRejected CashoutStatus = "rejected"
	CashoutSettled  CashoutStatus = "settled"
)

// CashoutOrder is a customer request to move USD to a linked bank account.
type CashoutOrder struct {
	ID            uuid.UUID       `json:"id"              db:"id"`
	CustomerID    uuid.UUID       `json:"customer_id"     db:"customer_id"`
	AmountUSD     decimal.Decimal `json:"amount_usd"      db:"amount_usd"`
	BankAccountID string          `json:"bank_account_id" db:"bank_account_id"`
	Status        CashoutStatus   `json:"status"          db:"status"`
	ReviewNote    string          `json:"review_note"     db:"review_note"`
	ReviewedBy    *string         `json:"reviewed_by"     db:"reviewed_by"`
	RequestedAt   time.Time       `json:"requested_at"    db:"requested_at"`
	ReviewedAt    *time.Time      `json:"reviewed_at"     db:"reviewed_at"`
	SettledAt     *time.Time      `json:"settled_at"      db:"settled_at"`
}
