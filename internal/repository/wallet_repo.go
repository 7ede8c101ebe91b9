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
)

// WalletRepository handles database operations for treasury wallets.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetActive fetches the single active treasury wallet for a chain.
func (r *WalletRepository) GetActive(ctx context.Context, chain domain.Chain) (*domain.TreasuryWallet, error) {
	var w domain.TreasuryWallet
	err := r.db.GetContext(ctx, &w,
		`SELECT * FROM treasury_wallets WHERE chain = $1 AND is_active = true`,
		string(chain))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetActive: %w", err)
	}
	return &w, nil
}

// Activate installs a new active wallet for a chain.  The previous active
// wallet (if any) is deactivated in the same transaction so the one-active-
// per-chain invariant holds at every commit point.
func (r *WalletRepository) Activate(ctx context.Context, chain domain.Chain, address string) (*domain.TreasuryWallet, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.Activate begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`UPDATE treasury_wallets SET is_active = false WHERE chain = $1 AND is_active = true`,
		string(chain))
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.Activate deactivate: %w", err)
	}

	w := &domain.TreasuryWallet{
		ID:        uuid.New(),
		Chain:     chain,
		Address:   address,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO treasury_wallets (id, chain, address, is_active, created_at)
		VALUES (:id, :chain, :address, :is_active, :created_at)`, w)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.Activate insert: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("wallet_repo.Activate commit: %w", err)
	}
	return w, nil
}

// List returns every wallet ever registered, newest first.
func (r *WalletRepository) List(ctx context.Context) ([]*domain.TreasuryWallet, error) {
	var wallets []*domain.TreasuryWallet
	err := r.db.SelectContext(ctx, &wallets,
		`SELECT * FROM treasury_wallets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.List: %w", err)
	}
	return wallets, nil
}
