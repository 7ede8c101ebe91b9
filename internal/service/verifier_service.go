package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/chain"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/metrics"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// amountTolerance is the relative slack allowed between the on-chain USDC
// amount and the order amount (0.1%), absorbing sender-side rounding.
var amountTolerance = decimal.NewFromFloat(0.001)

// EVMChain is the slice of the EVM explorer client the verifier consumes.
type EVMChain interface {
	BlockNumber(ctx context.Context) (int64, error)
	TransactionReceipt(ctx context.Context, txHash string) (*chain.EVMReceipt, error)
}

// SwapStore is the slice of the swap repository the verifier consumes.
type SwapStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CustomerSwapOrder, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.CustomerSwapOrder, error)
	MarkProcessing(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, txHash string) error
	TxHashExists(ctx context.Context, txHash string) (bool, error)
}

// VerifyResult is the outcome reported to the caller.  Confirmations is
// included even on failure so the frontend can show progress; it is omitted
// when no chain read produced one.
type VerifyResult struct {
	Verified      bool   `json:"verified"`
	Confirmations int64  `json:"confirmations,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Pure decision
// ──────────────────────────────────────────────────────────────────────────────

// DecideUSDCPayment applies the verification rules to already-fetched chain
// data: the receipt must contain a USDC transfer to the treasury address, the
// paid amount must be within tolerance of the expected amount, and the
// transaction must be at least minConf blocks deep.
//
// Pure over its inputs so the rules are testable without a chain.
func DecideUSDCPayment(transfers []chain.TokenTransfer, treasuryAddr string, expected decimal.Decimal, confirmations, minConf int64) error {
	treasuryAddr = strings.ToLower(treasuryAddr)

	paid := decimal.Zero
	for _, tr := range transfers {
		if strings.ToLower(tr.To) == treasuryAddr {
			paid = paid.Add(tr.Amount)
		}
	}
	if paid.IsZero() {
		return domain.ErrRecipientMismatch
	}

	diff := paid.Sub(expected).Abs()
	if diff.GreaterThan(expected.Mul(amountTolerance)) {
		return domain.ErrAmountMismatch
	}

	if confirmations < minConf {
		return domain.ErrInsufficientConfirmations
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// VerifierService
// ──────────────────────────────────────────────────────────────────────────────

// VerifierService checks claimed USDC payments against the chain and, on
// success, atomically moves the buy swap to PROCESSING and opens its
// fulfillment order.  Every attempt is audited, success or not.
type VerifierService struct {
	db          *sqlx.DB
	evm         EVMChain
	swapRepo    SwapStore
	orderRepo   *repository.OrderRepository
	walletRepo  *repository.WalletRepository
	auditRepo   *repository.AuditRepository
	fulfillment *FulfillmentService

	usdcContract     string
	minConfirmations int64
}

// NewVerifierService creates a VerifierService.
func NewVerifierService(
	db *sqlx.DB,
	evm EVMChain,
	swapRepo SwapStore,
	orderRepo *repository.OrderRepository,
	walletRepo *repository.WalletRepository,
	auditRepo *repository.AuditRepository,
	fulfillment *FulfillmentService,
	usdcContract string,
	minConfirmations int64,
) *VerifierService {
	return &VerifierService{
		db:               db,
		evm:              evm,
		swapRepo:         swapRepo,
		orderRepo:        orderRepo,
		walletRepo:       walletRepo,
		auditRepo:        auditRepo,
		fulfillment:      fulfillment,
		usdcContract:     usdcContract,
		minConfirmations: minConfirmations,
	}
}

// Verify checks the claimed transaction hash against the chain for a pending
// BUY_BTC swap order.
//
// The chain reads happen before any database transaction so no lock is held
// across network calls.  Only a fully positive decision opens the
// transaction, which re-checks the order state and the global anti-replay
// constraint under a row lock before committing.
func (s *VerifierService) Verify(ctx context.Context, swapOrderID uuid.UUID, txHash string) (*VerifyResult, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if txHash == "" {
		return nil, domain.ErrTxNotFound
	}

	swap, err := s.swapRepo.GetByID(ctx, swapOrderID)
	if err != nil {
		return nil, fmt.Errorf("verifier_service.Verify: %w", err)
	}
	if swap.Side != domain.SwapBuyBTC {
		return nil, fmt.Errorf("verifier_service.Verify: %s is not a buy order: %w",
			swapOrderID, domain.ErrInvalidTransition)
	}
	if swap.Status != domain.SwapPending {
		// Idempotent re-verify: already settled by this same hash.  The
		// confirmation count from the original decision was not retained,
		// so none is reported rather than a made-up one.
		if swap.TxHash != nil && *swap.TxHash == txHash {
			return &VerifyResult{Verified: true}, nil
		}
		return nil, domain.ErrInvalidTransition
	}

	// Cheap replay pre-check before touching the chain.  Authoritative check
	// re-runs inside the transaction below.
	if err := s.checkReplay(ctx, txHash); err != nil {
		s.auditAttempt(ctx, swap.ID, txHash, "rejected: replay")
		metrics.Verifications.WithLabelValues("replay").Inc()
		return nil, err
	}

	// ── Chain reads ──────────────────────────────────────────────────────────
	receipt, err := s.evm.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, domain.ErrTxNotFound) {
			s.auditAttempt(ctx, swap.ID, txHash, "pending: tx not found on chain")
			metrics.Verifications.WithLabelValues("pending").Inc()
			return &VerifyResult{Reason: domain.ErrTxNotFound.Error()}, domain.ErrTxNotFound
		}
		metrics.Verifications.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("verifier_service.Verify: receipt: %w", err)
	}
	if !receipt.Succeeded() {
		s.auditAttempt(ctx, swap.ID, txHash, "rejected: tx reverted")
		metrics.Verifications.WithLabelValues("mismatch").Inc()
		return &VerifyResult{Reason: domain.ErrTxReverted.Error()}, domain.ErrTxReverted
	}

	tip, err := s.evm.BlockNumber(ctx)
	if err != nil {
		metrics.Verifications.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("verifier_service.Verify: block number: %w", err)
	}
	txBlock, err := parseReceiptBlock(receipt.BlockNumber)
	if err != nil {
		metrics.Verifications.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("verifier_service.Verify: %w", err)
	}
	confirmations := tip - txBlock
	if confirmations < 0 {
		confirmations = 0
	}

	treasury, err := s.walletRepo.GetActive(ctx, domain.ChainEthereum)
	if err != nil {
		return nil, fmt.Errorf("verifier_service.Verify: %w", err)
	}

	// ── Decision ─────────────────────────────────────────────────────────────
	decision := DecideUSDCPayment(
		receipt.USDCTransfers(s.usdcContract),
		treasury.Address,
		swap.USDCAmount,
		confirmations,
		s.minConfirmations,
	)
	if decision != nil {
		s.auditAttempt(ctx, swap.ID, txHash, "rejected: "+decision.Error())
		if errors.Is(decision, domain.ErrInsufficientConfirmations) {
			metrics.Verifications.WithLabelValues("pending").Inc()
		} else {
			metrics.Verifications.WithLabelValues("mismatch").Inc()
		}
		return &VerifyResult{Confirmations: confirmations, Reason: decision.Error()}, decision
	}

	// ── Commit: PENDING → PROCESSING + fulfillment order, atomically ─────────
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("verifier_service.Verify: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	locked, err := s.swapRepo.GetByIDForUpdate(ctx, tx, swapOrderID)
	if err != nil {
		return nil, fmt.Errorf("verifier_service.Verify: %w", err)
	}
	if locked.Status != domain.SwapPending {
		err = domain.ErrInvalidTransition
		return nil, err
	}
	if err = s.checkReplay(ctx, txHash); err != nil {
		metrics.Verifications.WithLabelValues("replay").Inc()
		return nil, err
	}

	if err = s.swapRepo.MarkProcessing(ctx, tx, swapOrderID, txHash); err != nil {
		return nil, fmt.Errorf("verifier_service.Verify: %w", err)
	}
	if _, err = s.fulfillment.CreateForBuyTx(ctx, tx, locked); err != nil {
		return nil, err
	}

	swapIDCopy := swapOrderID
	if err = s.auditRepo.AppendTx(ctx, tx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   "verification:" + txHash,
		EventType: domain.AuditVerification,
		OrderID:   &swapIDCopy,
		Actor:     "verifier",
		Detail: fmt.Sprintf("verified tx %s: %s USDC, %d confirmations",
			txHash, swap.USDCAmount.StringFixed(2), confirmations),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("verifier_service.Verify: audit: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("verifier_service.Verify: commit: %w", err)
	}

	metrics.Verifications.WithLabelValues("verified").Inc()
	return &VerifyResult{Verified: true, Confirmations: confirmations}, nil
}

// checkReplay returns ErrTxAlreadyProcessed when the hash already settled any
// order in either table.
func (s *VerifierService) checkReplay(ctx context.Context, txHash string) error {
	if exists, err := s.swapRepo.TxHashExists(ctx, txHash); err != nil {
		return fmt.Errorf("verifier_service.checkReplay: %w", err)
	} else if exists {
		return domain.ErrTxAlreadyProcessed
	}
	if exists, err := s.orderRepo.TxHashExists(ctx, txHash); err != nil {
		return fmt.Errorf("verifier_service.checkReplay: %w", err)
	} else if exists {
		return domain.ErrTxAlreadyProcessed
	}
	return nil
}

// auditAttempt records a failed or pending verification attempt.  Uses a
// time-bucketed event id so repeated attempts with the same hash remain
// visible without flooding the log.
func (s *VerifierService) auditAttempt(ctx context.Context, swapOrderID uuid.UUID, txHash, detail string) {
	swapIDCopy := swapOrderID
	_ = s.auditRepo.Append(ctx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   fmt.Sprintf("verification:%s:%d", txHash, time.Now().Unix()/60),
		EventType: domain.AuditVerification,
		OrderID:   &swapIDCopy,
		Actor:     "verifier",
		Detail:    fmt.Sprintf("tx %s: %s", txHash, detail),
		CreatedAt: time.Now().UTC(),
	})
}

// parseReceiptBlock decodes the hex block number out of a receipt.
func parseReceiptBlock(hexBlock string) (int64, error) {
	if hexBlock == "" {
		return 0, fmt.Errorf("receipt missing block number")
	}
	var n int64
	if _, err := fmt.Sscanf(strings.ToLower(hexBlock), "0x%x", &n); err != nil {
		return 0, fmt.Errorf("receipt block number %q: %w", hexBlock, err)
	}
	return n, nil
}
