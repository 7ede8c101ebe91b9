package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeSettings struct{ snap domain.SettingsSnapshot }

func (f fakeSettings) Snapshot(context.Context, domain.SettingsSnapshot) (domain.SettingsSnapshot, error) {
	return f.snap, nil
}

// fakeOrderQueue records which statuses the processor asked for.
type fakeOrderQueue struct {
	listed  []domain.OrderStatus
	ready   []*domain.FulfillmentOrder
	blocked map[uuid.UUID]string
}

func (f *fakeOrderQueue) ListByStatus(_ context.Context, status domain.OrderStatus, _ int) ([]*domain.FulfillmentOrder, error) {
	f.listed = append(f.listed, status)
	if status == domain.OrderReadyToSend {
		return f.ready, nil
	}
	return nil, nil
}

func (f *fakeOrderQueue) SetBlockedReason(_ context.Context, orderID uuid.UUID, reason string) error {
	if f.blocked == nil {
		f.blocked = map[uuid.UUID]string{}
	}
	f.blocked[orderID] = reason
	return nil
}

func (f *fakeOrderQueue) MarkSent(context.Context, *sqlx.Tx, uuid.UUID, string) error {
	return errors.New("unexpected MarkSent")
}

func readyOrder() *domain.FulfillmentOrder {
	return &domain.FulfillmentOrder{
		ID:                 uuid.New(),
		OrderType:          domain.OrderTypeRedemption,
		CustomerID:         uuid.New(),
		BTCAmount:          decimal.RequireFromString("0.1"),
		DestinationAddress: "bc1qdest",
		Status:             domain.OrderReadyToSend,
		CreatedAt:          time.Now().UTC(),
	}
}

func TestRunPausedFreezesQueue(t *testing.T) {
	// With the payouts kill switch on, a run must not advance any order or
	// move any inventory: zero processed, pause stamped on ready orders.
	// Everything past the settings read is nil here, so any pass that runs
	// anyway fails the test loudly.
	queue := &fakeOrderQueue{ready: []*domain.FulfillmentOrder{readyOrder(), readyOrder()}}
	p := &ProcessorService{
		orderRepo:    queue,
		settingsRepo: fakeSettings{snap: domain.SettingsSnapshot{PayoutsPaused: true}},
		batchSize:    50,
	}

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Paused {
		t.Error("report.Paused = false, want true")
	}
	if report.Intake != 0 || report.Advanced != 0 || report.Sent != 0 || report.Failed != 0 {
		t.Errorf("paused run progressed orders: %+v", report)
	}
	if report.Blocked != 2 {
		t.Errorf("report.Blocked = %d, want both ready orders stamped", report.Blocked)
	}

	// The only queue read is the ready list for stamping the pause reason.
	if len(queue.listed) != 1 || queue.listed[0] != domain.OrderReadyToSend {
		t.Errorf("statuses listed during pause = %v, want [ready_to_send] only", queue.listed)
	}
	for id, reason := range queue.blocked {
		if reason != domain.BlockedPayoutsPaused {
			t.Errorf("order %s stamped %q, want %q", id, reason, domain.BlockedPayoutsPaused)
		}
	}
}

func TestRunSingleFlight(t *testing.T) {
	p := &ProcessorService{
		orderRepo:    &fakeOrderQueue{},
		settingsRepo: fakeSettings{snap: domain.SettingsSnapshot{PayoutsPaused: true}},
		batchSize:    50,
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("err = %v, want ErrRunInProgress while a run holds the lock", err)
	}
}
