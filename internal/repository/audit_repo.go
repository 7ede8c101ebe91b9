package repository

import (
	"context"
	"fmt"

	"github.com/hashcard/treasury/internal/domain"
	"github.com/jmoiron/sqlx"
)

// AuditRepository appends to the immutable audit log.  There is no update or
// delete path; the table only grows.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditInsert = `
	INSERT INTO audit_log
		(id, event_id, event_type, order_id, actor, detail, created_at)
	VALUES
		(:id, :event_id, :event_type, :order_id, :actor, :detail, :created_at)
	ON CONFLICT (event_id) DO NOTHING`

// Append writes one audit entry outside of any transaction.  The event_id
// unique index makes a replayed write a silent no-op.
func (r *AuditRepository) Append(ctx context.Context, e *domain.AuditLogEntry) error {
	if _, err := r.db.NamedExecContext(ctx, auditInsert, e); err != nil {
		return fmt.Errorf("audit_repo.Append: %w", err)
	}
	return nil
}

// AppendTx writes one audit entry inside an existing transaction, so the
// audit record commits or rolls back together with the state change it
// describes.
func (r *AuditRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, e *domain.AuditLogEntry) error {
	if _, err := tx.NamedExecContext(ctx, auditInsert, e); err != nil {
		return fmt.Errorf("audit_repo.AppendTx: %w", err)
	}
	return nil
}

// List returns audit entries newest-first, optionally filtered by event type.
// eventType="" means all types.
func (r *AuditRepository) List(ctx context.Context, eventType string, limit, offset int) ([]*domain.AuditLogEntry, error) {
	var entries []*domain.AuditLogEntry
	var err error
	if eventType != "" {
		err = r.db.SelectContext(ctx, &entries, `
			SELECT * FROM audit_log
			WHERE event_type = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`,
			eventType, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &entries, `
			SELECT * FROM audit_log
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("audit_repo.List: %w", err)
	}
	return entries, nil
}
