package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// SwapRepository handles database operations for customer swap orders.
type SwapRepository struct {
	db *sqlx.DB
}

// NewSwapRepository creates a new SwapRepository.
func NewSwapRepository(db *sqlx.DB) *SwapRepository {
	return &SwapRepository{db: db}
}

// Create inserts a new swap order.
func (r *SwapRepository) Create(ctx context.Context, o *domain.CustomerSwapOrder) error {
	query := `
		INSERT INTO customer_swap_orders
			(id, customer_id, side, btc_amount, usdc_amount, btc_price_at_order,
			 destination_address, source_address, inventory_allocated, status,
			 created_at, updated_at)
		VALUES
			(:id, :customer_id, :side, :btc_amount, :usdc_amount, :btc_price_at_order,
			 :destination_address, :source_address, :inventory_allocated, :status,
			 :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("swap_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a swap order by its primary key.
func (r *SwapRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CustomerSwapOrder, error) {
	var o domain.CustomerSwapOrder
	err := r.db.GetContext(ctx, &o, `SELECT * FROM customer_swap_orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSwapOrderNotFound
		}
		return nil, fmt.Errorf("swap_repo.GetByID: %w", err)
	}
	return &o, nil
}

// GetByIDForUpdate fetches a swap order with its row locked, inside a
// transaction.  Verification locks the order before the anti-replay check so
// two concurrent verify calls for the same order serialize.
func (r *SwapRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.CustomerSwapOrder, error) {
	var o domain.CustomerSwapOrder
	err := tx.GetContext(ctx, &o, `SELECT * FROM customer_swap_orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSwapOrderNotFound
		}
		return nil, fmt.Errorf("swap_repo.GetByIDForUpdate: %w", err)
	}
	return &o, nil
}

// ListByCustomer returns a customer's swap orders, newest first, paginated.
func (r *SwapRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*domain.CustomerSwapOrder, error) {
	var orders []*domain.CustomerSwapOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM customer_swap_orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("swap_repo.ListByCustomer: %w", err)
	}
	return orders, nil
}

// ListPendingBySide returns pending swap orders of one side, oldest-first.
// The processor drains SELL_BTC deposits and verified BUY_BTC orders from
// this queue.
func (r *SwapRepository) ListPendingBySide(ctx context.Context, side domain.SwapSide, limit int) ([]*domain.CustomerSwapOrder, error) {
	var orders []*domain.CustomerSwapOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM customer_swap_orders
		WHERE side = $1 AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT $2`,
		string(side), limit)
	if err != nil {
		return nil, fmt.Errorf("swap_repo.ListPendingBySide: %w", err)
	}
	return orders, nil
}

// ListProcessingWithTxHash returns processing orders of one side that carry a
// settlement transaction hash, oldest-first.  The chain monitor polls these
// until the hash clears the confirmation threshold.
func (r *SwapRepository) ListProcessingWithTxHash(ctx context.Context, side domain.SwapSide, limit int) ([]*domain.CustomerSwapOrder, error) {
	var orders []*domain.CustomerSwapOrder
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM customer_swap_orders
		WHERE side = $1 AND status = 'processing' AND tx_hash IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $2`,
		string(side), limit)
	if err != nil {
		return nil, fmt.Errorf("swap_repo.ListProcessingWithTxHash: %w", err)
	}
	return orders, nil
}

// MarkProcessing moves a pending order to processing and records the settling
// transaction hash, inside a transaction.  The status = 'pending' guard makes
// a concurrent second verification a no-op.
func (r *SwapRepository) MarkProcessing(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, txHash string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE customer_swap_orders
		SET status     = 'processing',
		    tx_hash    = $1,
		    updated_at = now()
		WHERE id = $2 AND status = 'pending'`,
		txHash, orderID)
	if err != nil {
		return fmt.Errorf("swap_repo.MarkProcessing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// SetInventoryAllocated flags that the order's BTC has been reserved, inside
// a transaction.
func (r *SwapRepository) SetInventoryAllocated(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE customer_swap_orders
		SET inventory_allocated = true,
		    updated_at          = now()
		WHERE id = $1`,
		orderID)
	if err != nil {
		return fmt.Errorf("swap_repo.SetInventoryAllocated: %w", err)
	}
	return nil
}

// MarkCompleted finishes a processing order.
func (r *SwapRepository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE customer_swap_orders
		SET status       = 'completed',
		    completed_at = now(),
		    updated_at   = now()
		WHERE id = $1 AND status = 'processing'`,
		orderID)
	if err != nil {
		return fmt.Errorf("swap_repo.MarkCompleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// MarkFailed fails a pending or processing order with no settlement.
func (r *SwapRepository) MarkFailed(ctx context.Context, orderID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE customer_swap_orders
		SET status     = 'failed',
		    updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		orderID)
	if err != nil {
		return fmt.Errorf("swap_repo.MarkFailed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// TxHashExists reports whether a transaction hash already settled any swap
// order.  Combined with OrderRepository.TxHashExists this is the global
// anti-replay check across both order tables.
func (r *SwapRepository) TxHashExists(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM customer_swap_orders WHERE tx_hash = $1)`,
		txHash)
	if err != nil {
		return false, fmt.Errorf("swap_repo.TxHashExists: %w", err)
	}
	return exists, nil
}

// DailyBuyTotal sums a customer's BUY_BTC volume (USDC) opened today,
// excluding failed and cancelled orders.  Enforces the daily purchase limit.
func (r *SwapRepository) DailyBuyTotal(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(usdc_amount), 0)
		FROM customer_swap_orders
		WHERE customer_id = $1
		  AND side = 'BUY_BTC'
		  AND status NOT IN ('failed', 'cancelled')
		  AND created_at >= date_trunc('day', now())`,
		customerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("swap_repo.DailyBuyTotal: %w", err)
	}
	return total, nil
}
