package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// InventoryRepository handles database operations for inventory lots and
// lot allocations.
type InventoryRepository struct {
	db *sqlx.DB
}

// NewInventoryRepository creates a new InventoryRepository.
func NewInventoryRepository(db *sqlx.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// CreateLot inserts a new inventory lot.
func (r *InventoryRepository) CreateLot(ctx context.Context, lot *domain.InventoryLot) error {
	query := `
		INSERT INTO inventory_lots
			(id, amount_total, amount_available, source, received_at, eligible_at, created_at)
		VALUES
			(:id, :amount_total, :amount_available, :source, :received_at, :eligible_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lot); err != nil {
		return fmt.Errorf("inventory_repo.CreateLot: %w", err)
	}
	return nil
}

// GetLotByID fetches a single lot by its primary key.
func (r *InventoryRepository) GetLotByID(ctx context.Context, id uuid.UUID) (*domain.InventoryLot, error) {
	var lot domain.InventoryLot
	err := r.db.GetContext(ctx, &lot, `SELECT * FROM inventory_lots WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLotNotFound
		}
		return nil, fmt.Errorf("inventory_repo.GetLotByID: %w", err)
	}
	return &lot, nil
}

// GetEligibleForUpdate returns every lot that has matured and still carries
// available balance, oldest-first, with the rows locked for the duration of
// the transaction.  Two concurrent allocators therefore serialize on the same
// lot set and cannot both draw the last satoshi.
//
// Ordering is received_at, then created_at, then id — a total order, so the
// FIFO walk is deterministic even for lots received in the same instant.
func (r *InventoryRepository) GetEligibleForUpdate(ctx context.Context, tx *sqlx.Tx, now time.Time) ([]*domain.InventoryLot, error) {
	var lots []*domain.InventoryLot
	err := tx.SelectContext(ctx, &lots, `
		SELECT * FROM inventory_lots
		WHERE eligible_at <= $1
		  AND amount_available > 0
		ORDER BY received_at ASC, created_at ASC, id ASC
		FOR UPDATE`,
		now)
	if err != nil {
		return nil, fmt.Errorf("inventory_repo.GetEligibleForUpdate: %w", err)
	}
	return lots, nil
}

// DecrementAvailable subtracts amount from a lot's available balance inside a
// transaction.  The guard `amount_available >= $1` makes an over-draw a no-op;
// zero rows affected means the lot changed underneath us and the caller must
// roll back.
func (r *InventoryRepository) DecrementAvailable(ctx context.Context, tx *sqlx.Tx, lotID uuid.UUID, amount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE inventory_lots
		SET amount_available = amount_available - $1
		WHERE id = $2
		  AND amount_available >= $1`,
		amount, lotID)
	if err != nil {
		return fmt.Errorf("inventory_repo.DecrementAvailable: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrLotInvariantViolated
	}
	return nil
}

// RestoreAvailable returns amount to a lot's available balance inside a
// transaction (allocation reversal).  The restored balance can never exceed
// amount_total because reversals only return what a prior decrement took.
func (r *InventoryRepository) RestoreAvailable(ctx context.Context, tx *sqlx.Tx, lotID uuid.UUID, amount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE inventory_lots
		SET amount_available = amount_available + $1
		WHERE id = $2`,
		amount, lotID)
	if err != nil {
		return fmt.Errorf("inventory_repo.RestoreAvailable: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrLotNotFound
	}
	return nil
}

// InsertAllocation records one lot draw for an order inside a transaction.
func (r *InventoryRepository) InsertAllocation(ctx context.Context, tx *sqlx.Tx, a *domain.LotAllocation) error {
	query := `
		INSERT INTO lot_allocations
			(id, lot_id, order_id, amount, is_reversed, created_at)
		VALUES
			(:id, :lot_id, :order_id, :amount, :is_reversed, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("inventory_repo.InsertAllocation: %w", err)
	}
	return nil
}

// ActiveAllocationsForUpdate returns the non-reversed allocations for an
// order, locked for the duration of the transaction.  Used by the reversal
// path so a concurrent second reversal blocks, then sees is_reversed = true.
func (r *InventoryRepository) ActiveAllocationsForUpdate(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) ([]*domain.LotAllocation, error) {
	var allocs []*domain.LotAllocation
	err := tx.SelectContext(ctx, &allocs, `
		SELECT * FROM lot_allocations
		WHERE order_id = $1 AND is_reversed = false
		ORDER BY created_at ASC
		FOR UPDATE`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("inventory_repo.ActiveAllocationsForUpdate: %w", err)
	}
	return allocs, nil
}

// MarkAllocationsReversed flips is_reversed on every active allocation of an
// order inside a transaction.  The is_reversed = false guard makes a repeated
// reversal affect zero rows instead of double-restoring.
func (r *InventoryRepository) MarkAllocationsReversed(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE lot_allocations
		SET is_reversed = true,
		    reversed_at = now()
		WHERE order_id = $1
		  AND is_reversed = false`,
		orderID)
	if err != nil {
		return 0, fmt.Errorf("inventory_repo.MarkAllocationsReversed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AllocationsByOrder returns every allocation row for an order, reversed or
// not, for audit views.
func (r *InventoryRepository) AllocationsByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.LotAllocation, error) {
	var allocs []*domain.LotAllocation
	err := r.db.SelectContext(ctx, &allocs,
		`SELECT * FROM lot_allocations WHERE order_id = $1 ORDER BY created_at ASC`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("inventory_repo.AllocationsByOrder: %w", err)
	}
	return allocs, nil
}

// Stats computes the aggregate treasury position in a single query.
func (r *InventoryRepository) Stats(ctx context.Context, now time.Time) (*domain.InventoryStats, error) {
	var s domain.InventoryStats
	err := r.db.GetContext(ctx, &s, `
		SELECT
			COALESCE(SUM(amount_available), 0)                                          AS total_btc,
			COALESCE(SUM(amount_available) FILTER (WHERE eligible_at <= $1), 0)         AS eligible_btc,
			COALESCE(SUM(amount_available) FILTER (WHERE eligible_at >  $1), 0)         AS locked_btc,
			COUNT(*)                                                                    AS lot_count,
			COUNT(*) FILTER (WHERE amount_available > 0)                                AS active_lots
		FROM inventory_lots`,
		now)
	if err != nil {
		return nil, fmt.Errorf("inventory_repo.Stats: %w", err)
	}
	return &s, nil
}

// ListLots returns lots newest-first, paginated, for the backoffice view.
func (r *InventoryRepository) ListLots(ctx context.Context, limit, offset int) ([]*domain.InventoryLot, error) {
	var lots []*domain.InventoryLot
	err := r.db.SelectContext(ctx, &lots, `
		SELECT * FROM inventory_lots
		ORDER BY received_at DESC, created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("inventory_repo.ListLots: %w", err)
	}
	return lots, nil
}
