package domain

import (
	"time"

	"github.com/google/uuid"
)

// KYCStatus mirrors the identity-verification collaborator's enum.  Only
// approved customers may progress past the KYC gate; the workflow that moves
// a customer between these states lives outside this system.
type KYCStatus string

const (
	KYCNotStarted KYCStatus = "not_started"
	KYCPending    KYCStatus = "pending"
	KYCApproved   KYCStatus = "approved"
	KYCRejected   KYCStatus = "rejected"
)

// IsApproved returns true only for the approved state.
func (k KYCStatus) IsApproved() bool {
	return k == KYCApproved
}

// Customer is the read-mostly identity record the engine consults for KYC
// gating.  Account management is out of scope; this system only reads it.
type Customer struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	Email     string    `json:"email"      db:"email"`
	KYCStatus KYCStatus `json:"kyc_status" db:"kyc_status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
