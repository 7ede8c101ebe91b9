package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit event types recorded by the engine.
const (
	AuditLotCreated         = "lot_created"
	AuditAllocation         = "allocation"
	AuditAllocationReversed = "allocation_reversed"
	AuditOrderTransition    = "order_transition"
	AuditVerification       = "verification"
	AuditDepositMatched     = "deposit_matched"
	AuditSettingChanged     = "setting_changed"
)

// AuditLogEntry is an append-only, immutable record of a state transition or
// verification decision.  EventID is supplied by the caller and unique, so a
// replayed write of the same event is a no-op rather than a duplicate.
type AuditLogEntry struct {
	ID        uuid.UUID  `json:"id"         db:"id"`
	EventID   string     `json:"event_id"   db:"event_id"`
	EventType string     `json:"event_type" db:"event_type"`
	OrderID   *uuid.UUID `json:"order_id"   db:"order_id"`
	Actor     string     `json:"actor"      db:"actor"`
	Detail    string     `json:"detail"     db:"detail"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
