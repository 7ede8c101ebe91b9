package domain

import (
	"time"

	"github.com/google/uuid"
)

// Chain identifies which network a treasury wallet lives on.
type Chain string

const (
	ChainBitcoin  Chain = "bitcoin"
	ChainEthereum Chain = "ethereum" // USDC receiving side
)

// IsValid returns true for a recognised chain.
func (c Chain) IsValid() bool {
	return c == ChainBitcoin || c == ChainEthereum
}

// TreasuryWallet is a custodial address the platform controls.  The ledger
// enforces at most one active wallet per chain; keys live in the external
// signer service, never here.
type TreasuryWallet struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	Chain     Chain     `json:"chain"      db:"chain"`
	Address   string    `json:"address"    db:"address"`
	IsActive  bool      `json:"is_active"  db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
