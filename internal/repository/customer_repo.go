package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/jmoiron/sqlx"
)

// CustomerRepository reads customer identity records.  The engine only
// consults KYC status; account lifecycle is owned elsewhere.
type CustomerRepository struct {
	db *sqlx.DB
}

// NewCustomerRepository creates a new CustomerRepository.
func NewCustomerRepository(db *sqlx.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// GetByID fetches a customer by its primary key.
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	var c domain.Customer
	err := r.db.GetContext(ctx, &c, `SELECT * FROM customers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("customer_repo.GetByID: %w", err)
	}
	return &c, nil
}

// GetKYCStatus fetches just the KYC status for a customer.
func (r *CustomerRepository) GetKYCStatus(ctx context.Context, id uuid.UUID) (domain.KYCStatus, error) {
	var status domain.KYCStatus
	err := r.db.GetContext(ctx, &status,
		`SELECT kyc_status FROM customers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrCustomerNotFound
		}
		return "", fmt.Errorf("customer_repo.GetKYCStatus: %w", err)
	}
	return status, nil
}
