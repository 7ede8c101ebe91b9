package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Inventory errors
var (
	// ErrInsufficientInventory is returned when eligible lots cannot cover a
	// requested allocation.  Expected and non-fatal: the order stays pending
	// and retries on the next processor run.
	ErrInsufficientInventory = errors.New("insufficient eligible inventory")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrLotNotFound is returned when no inventory lot matches the given id.
	ErrLotNotFound = errors.New("inventory lot not found")

	// ErrAllocationNotFound is returned when an order has no active allocations
	// to reverse.
	ErrAllocationNotFound = errors.New("no active allocations for order")

	// ErrLotInvariantViolated is returned when a decrement would push a lot's
	// available balance negative.  Fatal for the order being processed; the
	// surrounding transaction rolls back.
	ErrLotInvariantViolated = errors.New("lot balance invariant violated")
)

// Order errors
var (
	// ErrOrderNotFound is returned when no fulfillment order matches.
	ErrOrderNotFound = errors.New("fulfillment order not found")

	// ErrSwapOrderNotFound is returned when no customer swap order matches.
	ErrSwapOrderNotFound = errors.New("swap order not found")

	// ErrInvalidTransition is returned when a state-machine move is not a legal
	// edge, or the order's current status no longer matches the expected one.
	ErrInvalidTransition = errors.New("illegal order state transition")

	// ErrOrderNotHoldable is returned when an admin tries to hold an order that
	// is in flight or terminal.
	ErrOrderNotHoldable = errors.New("order cannot be placed on hold in its current state")

	// ErrPayoutsPaused is returned when the global kill-switch blocks progress.
	ErrPayoutsPaused = errors.New("payouts are paused")

	// ErrKYCNotApproved blocks an order whose customer has not cleared KYC.
	ErrKYCNotApproved = errors.New("customer KYC is not approved")

	// ErrMissingDestination blocks an order without a destination address.
	ErrMissingDestination = errors.New("order has no destination address")
)

// Verification errors
var (
	// ErrTxAlreadyProcessed is the anti-replay rejection: the transaction hash
	// has already settled another order.  Security-relevant; always logged.
	ErrTxAlreadyProcessed = errors.New("transaction already processed")

	// ErrTxNotFound is returned when the chain shows no record of the claimed
	// transaction hash.
	ErrTxNotFound = errors.New("transaction not found on chain")

	// ErrTxReverted is returned when the transaction exists but reverted.
	ErrTxReverted = errors.New("transaction reverted on chain")

	// ErrInsufficientConfirmations is returned while a matching transaction is
	// still too shallow to accept.  Retryable: the caller re-verifies later.
	ErrInsufficientConfirmations = errors.New("not enough confirmations yet")

	// ErrAmountMismatch is returned when the on-chain amount is outside the
	// verification tolerance.
	ErrAmountMismatch = errors.New("on-chain amount does not match order")

	// ErrRecipientMismatch is returned when the transfer did not pay the
	// expected treasury address.
	ErrRecipientMismatch = errors.New("transfer recipient does not match treasury address")
)

// Card / customer / cashout errors
var (
	// ErrCardNotFound is returned when no card matches the given code.
	ErrCardNotFound = errors.New("card not found")

	// ErrCardNotRedeemable is returned when a redemption is attempted on a card
	// that is not active (already redeemed, void, or never activated).
	ErrCardNotRedeemable = errors.New("card is not redeemable")

	// ErrCardAlreadyActive is returned on a second activation attempt.
	ErrCardAlreadyActive = errors.New("card is already activated")

	// ErrCustomerNotFound is returned when no customer matches the given id.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrCashoutNotFound is returned when no cashout order matches.
	ErrCashoutNotFound = errors.New("cashout order not found")

	// ErrBelowMinCashout is returned when the requested cashout amount is below
	// the configured minimum.
	ErrBelowMinCashout = errors.New("cashout amount is below the minimum")

	// ErrDailyLimitExceeded is returned when a buy order would breach the
	// customer's daily purchase limit.
	ErrDailyLimitExceeded = errors.New("daily purchase limit exceeded")
)

// Wallet / settings errors
var (
	// ErrWalletNotFound is returned when no active treasury wallet exists for
	// the requested chain.
	ErrWalletNotFound = errors.New("no active treasury wallet for chain")

	// ErrSettingNotFound is returned when a settings key has no stored value.
	ErrSettingNotFound = errors.New("setting not found")
)

// Auth errors (thin API-key layer; full auth is an external collaborator)
var (
	// ErrUnauthorized is returned when a valid API key is not presented.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller lacks the required privilege.
	ErrForbidden = errors.New("forbidden: insufficient permissions")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrLotNotFound,
	ErrOrderNotFound,
	ErrSwapOrderNotFound,
	ErrCardNotFound,
	ErrCustomerNotFound,
	ErrCashoutNotFound,
	ErrWalletNotFound,
	ErrSettingNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors.  Use this instead of comparing error values
// directly when translating domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict (replayed
// transactions, double redemptions, illegal transitions).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrTxAlreadyProcessed,
		ErrCardNotRedeemable,
		ErrCardAlreadyActive,
		ErrInvalidTransition,
		ErrOrderNotHoldable,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable returns true for the benign, expected conditions a caller should
// simply retry later rather than surface as a hard failure.
func IsRetryable(err error) bool {
	retryable := []error{
		ErrInsufficientInventory,
		ErrTxNotFound,
		ErrInsufficientConfirmations,
	}
	for _, target := range retryable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
