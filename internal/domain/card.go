package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle of a prepaid card.
type CardStatus string

const (
	CardInactive CardStatus = "inactive" // printed, not yet sold
	CardActive   CardStatus = "active"   // activated at point of sale
	CardRedeemed CardStatus = "redeemed" // value claimed by a customer
	CardVoid     CardStatus = "void"
)

// Card is a prepaid value card.  A merchant activates it at sale time; a
// customer redeems it, which creates a REDEMPTION fulfillment order for the
// card's face value.
type Card struct {
	ID           uuid.UUID       `json:"id"             db:"id"`
	Code         string          `json:"-"              db:"code"` // never serialised
	FaceValueUSD decimal.Decimal `json:"face_value_usd" db:"face_value_usd"`
	Status       CardStatus      `json:"status"         db:"status"`
	MerchantID   *uuid.UUID      `json:"merchant_id"    db:"merchant_id"`
	ActivatedAt  *time.Time      `json:"activated_at"   db:"activated_at"`
	RedeemedAt   *time.Time      `json:"redeemed_at"    db:"redeemed_at"`
	CreatedAt    time.Time       `json:"created_at"     db:"created_at"`
}

// IsRedeemable returns true while the card can still be claimed.
func (c *Card) IsRedeemable() bool {
	return c.Status == CardActive
}
