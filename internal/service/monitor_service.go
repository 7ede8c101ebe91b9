package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/chain"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/hashcard/treasury/internal/metrics"
	"github.com/hashcard/treasury/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// depositTolerance is the relative slack allowed between an observed BTC
// deposit and the sell order's quoted amount (1%), absorbing sender-side fee
// deduction.
var depositTolerance = decimal.NewFromFloat(0.01)

// BTCChain is the slice of the BTC explorer client the monitor consumes.
type BTCChain interface {
	TipHeight(ctx context.Context) (int64, error)
	AddressTxs(ctx context.Context, address string) ([]chain.BTCTx, error)
	TxStatus(ctx context.Context, txid string) (*chain.BTCTxStatus, error)
}

// DepositMatch pairs one observed deposit with the sell order it settles.
type DepositMatch struct {
	Order  *domain.CustomerSwapOrder
	TxID   string
	Amount decimal.Decimal
}

// ──────────────────────────────────────────────────────────────────────────────
// Pure matching
// ──────────────────────────────────────────────────────────────────────────────

// MatchDeposits pairs confirmed treasury-address transactions with pending
// SELL_BTC orders.  A transaction matches an order when it pays the treasury
// an amount within tolerance of the quoted amount, comes from the order's
// declared source address (when one was declared), and is not the treasury
// paying itself.  Orders are taken oldest-first and each transaction settles
// at most one order.
//
// Pure over its inputs; the poll loop supplies fresh chain data each run.
func MatchDeposits(pendingSells []*domain.CustomerSwapOrder, txs []chain.BTCTx, treasuryAddr string) []DepositMatch {
	var matches []DepositMatch
	claimed := make(map[string]bool, len(txs))

	for _, order := range pendingSells {
		expected := order.BTCAmount
		if expected.LessThanOrEqual(decimal.Zero) {
			continue
		}

		for i := range txs {
			tx := &txs[i]
			if claimed[tx.TxID] || !tx.Status.Confirmed {
				continue
			}
			if tx.SpendsFrom(treasuryAddr) {
				continue // outgoing send or internal change, not a deposit
			}
			if order.SourceAddress != nil && *order.SourceAddress != "" && !tx.SpendsFrom(*order.SourceAddress) {
				continue
			}

			paid := tx.AmountTo(treasuryAddr)
			if paid.IsZero() {
				continue
			}
			if paid.Sub(expected).Abs().GreaterThan(expected.Mul(depositTolerance)) {
				continue
			}

			claimed[tx.TxID] = true
			matches = append(matches, DepositMatch{Order: order, TxID: tx.TxID, Amount: paid})
			break
		}
	}
	return matches
}

// ──────────────────────────────────────────────────────────────────────────────
// MonitorService
// ──────────────────────────────────────────────────────────────────────────────

// MonitorService watches the Bitcoin chain for two things: incoming customer
// deposits that settle SELL_BTC orders, and confirmation of the treasury's
// own outgoing sends.  It never allocates inventory.
type MonitorService struct {
	db         *sqlx.DB
	btc        BTCChain
	swapRepo   *repository.SwapRepository
	orderRepo  *repository.OrderRepository
	walletRepo *repository.WalletRepository
	auditRepo  *repository.AuditRepository

	minConfirmations int64 // BTC threshold, typically lower than the USDC one
	batchSize        int
}

// NewMonitorService creates a MonitorService.
func NewMonitorService(
	db *sqlx.DB,
	btc BTCChain,
	swapRepo *repository.SwapRepository,
	orderRepo *repository.OrderRepository,
	walletRepo *repository.WalletRepository,
	auditRepo *repository.AuditRepository,
	minConfirmations int64,
	batchSize int,
) *MonitorService {
	return &MonitorService{
		db:               db,
		btc:              btc,
		swapRepo:         swapRepo,
		orderRepo:        orderRepo,
		walletRepo:       walletRepo,
		auditRepo:        auditRepo,
		minConfirmations: minConfirmations,
		batchSize:        batchSize,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Sell-side reconciliation
// ──────────────────────────────────────────────────────────────────────────────

// ReconcileSellDeposits polls the treasury BTC address and marks pending
// SELL_BTC orders as processing when a matching confirmed deposit appears.
// Per-match failures are logged and skipped; the next run retries.
func (s *MonitorService) ReconcileSellDeposits(ctx context.Context) (int, error) {
	wallet, err := s.walletRepo.GetActive(ctx, domain.ChainBitcoin)
	if err != nil {
		return 0, fmt.Errorf("monitor_service.ReconcileSellDeposits: %w", err)
	}

	pending, err := s.swapRepo.ListPendingBySide(ctx, domain.SwapSellBTC, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("monitor_service.ReconcileSellDeposits: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	txs, err := s.btc.AddressTxs(ctx, wallet.Address)
	if err != nil {
		return 0, fmt.Errorf("monitor_service.ReconcileSellDeposits: %w", err)
	}

	matched := 0
	for _, m := range MatchDeposits(pending, txs, wallet.Address) {
		if err := s.applyDepositMatch(ctx, m); err != nil {
			log.Printf("[monitor] deposit %s -> order %s: %v", m.TxID, m.Order.ID, err)
			continue
		}
		matched++
		metrics.DepositsMatched.Inc()
	}
	return matched, nil
}

// applyDepositMatch records one matched deposit in its own transaction: lock
// the order, re-check it is still pending, enforce the global anti-replay
// constraint, then mark it processing with the deposit hash.
func (s *MonitorService) applyDepositMatch(ctx context.Context, m DepositMatch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	locked, err := s.swapRepo.GetByIDForUpdate(ctx, tx, m.Order.ID)
	if err != nil {
		return err
	}
	if locked.Status != domain.SwapPending {
		err = domain.ErrInvalidTransition
		return err
	}

	if exists, rerr := s.swapRepo.TxHashExists(ctx, m.TxID); rerr != nil {
		err = rerr
		return err
	} else if exists {
		err = domain.ErrTxAlreadyProcessed
		return err
	}
	if exists, rerr := s.orderRepo.TxHashExists(ctx, m.TxID); rerr != nil {
		err = rerr
		return err
	} else if exists {
		err = domain.ErrTxAlreadyProcessed
		return err
	}

	if err = s.swapRepo.MarkProcessing(ctx, tx, m.Order.ID, m.TxID); err != nil {
		return err
	}

	orderIDCopy := m.Order.ID
	if err = s.auditRepo.AppendTx(ctx, tx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   "deposit_matched:" + m.TxID,
		EventType: domain.AuditDepositMatched,
		OrderID:   &orderIDCopy,
		Actor:     "monitor",
		Detail: fmt.Sprintf("deposit %s: %s BTC matched to sell order",
			m.TxID, m.Amount.StringFixed(domain.BTCScale)),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Outgoing confirmation
// ──────────────────────────────────────────────────────────────────────────────

// ConfirmOutgoing promotes SENT fulfillment orders to COMPLETED once their
// broadcast transaction is deep enough, and completes the linked buy swap in
// the same transaction.  Processing SELL_BTC swaps are likewise completed
// once their matched deposit clears the threshold.  Per-item failures are
// logged and retried next run.
func (s *MonitorService) ConfirmOutgoing(ctx context.Context) (int, error) {
	tip, err := s.btc.TipHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("monitor_service.ConfirmOutgoing: %w", err)
	}

	completed := 0

	// ── SENT fulfillment orders ──────────────────────────────────────────────
	sent, err := s.orderRepo.ListByStatus(ctx, domain.OrderSent, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("monitor_service.ConfirmOutgoing: %w", err)
	}
	for _, order := range sent {
		if order.TxHash == nil {
			continue
		}
		ok, err := s.confirmedAt(ctx, *order.TxHash, tip)
		if err != nil {
			log.Printf("[monitor] order %s tx %s: %v", order.ID, *order.TxHash, err)
			continue
		}
		if !ok {
			continue
		}
		if err := s.completeOrder(ctx, order); err != nil {
			log.Printf("[monitor] complete order %s: %v", order.ID, err)
			continue
		}
		completed++
	}

	// ── Processing sell swaps ────────────────────────────────────────────────
	sells, err := s.swapRepo.ListProcessingWithTxHash(ctx, domain.SwapSellBTC, s.batchSize)
	if err != nil {
		return completed, fmt.Errorf("monitor_service.ConfirmOutgoing: %w", err)
	}
	for _, swap := range sells {
		ok, err := s.confirmedAt(ctx, *swap.TxHash, tip)
		if err != nil {
			log.Printf("[monitor] sell swap %s tx %s: %v", swap.ID, *swap.TxHash, err)
			continue
		}
		if !ok {
			continue
		}
		if err := s.completeSellSwap(ctx, swap.ID); err != nil {
			log.Printf("[monitor] complete sell swap %s: %v", swap.ID, err)
			continue
		}
		completed++
	}

	return completed, nil
}

// confirmedAt reports whether a transaction has reached the confirmation
// threshold at the given tip.  A hash the chain has not seen yet is simply
// not confirmed.
func (s *MonitorService) confirmedAt(ctx context.Context, txHash string, tip int64) (bool, error) {
	status, err := s.btc.TxStatus(ctx, txHash)
	if err != nil {
		if err == domain.ErrTxNotFound {
			return false, nil
		}
		return false, err
	}
	return status.Confirmations(tip) >= s.minConfirmations, nil
}

// completeOrder finishes a SENT fulfillment order and its linked buy swap in
// one transaction.
func (s *MonitorService) completeOrder(ctx context.Context, order *domain.FulfillmentOrder) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.orderRepo.MarkCompleted(ctx, tx, order.ID); err != nil {
		return err
	}
	if order.SwapOrderID != nil {
		if err = s.swapRepo.MarkCompleted(ctx, tx, *order.SwapOrderID); err != nil {
			return err
		}
	}

	orderIDCopy := order.ID
	if err = s.auditRepo.AppendTx(ctx, tx, &domain.AuditLogEntry{
		ID:        uuid.New(),
		EventID:   fmt.Sprintf("order_transition:%s:sent->completed", order.ID),
		EventType: domain.AuditOrderTransition,
		OrderID:   &orderIDCopy,
		Actor:     "monitor",
		Detail:    "sent -> completed",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	metrics.OrdersAdvanced.WithLabelValues(string(domain.OrderCompleted)).Inc()
	return nil
}

// completeSellSwap finishes a processing SELL_BTC swap whose deposit cleared.
func (s *MonitorService) completeSellSwap(ctx context.Context, swapID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.swapRepo.MarkCompleted(ctx, tx, swapID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
