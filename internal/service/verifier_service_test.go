package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/chain"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const treasuryAddr = "0xc0ffee0000000000000000000000000000000002"

func usdc(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func transfer(to, amount string) chain.TokenTransfer {
	return chain.TokenTransfer{
		From:   "0xc0ffee0000000000000000000000000000000001",
		To:     to,
		Amount: usdc(amount),
	}
}

func TestDecideUSDCPaymentVerified(t *testing.T) {
	err := DecideUSDCPayment(
		[]chain.TokenTransfer{transfer(treasuryAddr, "250")},
		treasuryAddr, usdc("250"), 12, 12)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

func TestDecideUSDCPaymentRecipientMismatch(t *testing.T) {
	err := DecideUSDCPayment(
		[]chain.TokenTransfer{transfer("0x1111111111111111111111111111111111111111", "250")},
		treasuryAddr, usdc("250"), 20, 12)
	if !errors.Is(err, domain.ErrRecipientMismatch) {
		t.Errorf("err = %v, want ErrRecipientMismatch", err)
	}
}

func TestDecideUSDCPaymentNoTransfers(t *testing.T) {
	err := DecideUSDCPayment(nil, treasuryAddr, usdc("250"), 20, 12)
	if !errors.Is(err, domain.ErrRecipientMismatch) {
		t.Errorf("err = %v, want ErrRecipientMismatch", err)
	}
}

func TestDecideUSDCPaymentAmountTolerance(t *testing.T) {
	tests := []struct {
		name    string
		paid    string
		wantErr error
	}{
		{"exact", "1000", nil},
		{"under within 0.1%", "999.01", nil},
		{"over within 0.1%", "1000.99", nil},
		{"at boundary", "999", nil}, // |diff| == expected*0.001 is accepted
		{"under beyond 0.1%", "998.99", domain.ErrAmountMismatch},
		{"over beyond 0.1%", "1001.01", domain.ErrAmountMismatch},
		{"wildly off", "10", domain.ErrAmountMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DecideUSDCPayment(
				[]chain.TokenTransfer{transfer(treasuryAddr, tt.paid)},
				treasuryAddr, usdc("1000"), 20, 12)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("paid %s: err = %v, want %v", tt.paid, err, tt.wantErr)
			}
		})
	}
}

func TestDecideUSDCPaymentInsufficientConfirmations(t *testing.T) {
	err := DecideUSDCPayment(
		[]chain.TokenTransfer{transfer(treasuryAddr, "250")},
		treasuryAddr, usdc("250"), 11, 12)
	if !errors.Is(err, domain.ErrInsufficientConfirmations) {
		t.Errorf("err = %v, want ErrInsufficientConfirmations", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("insufficient confirmations must be retryable")
	}
}

func TestDecideUSDCPaymentSumsSplitTransfers(t *testing.T) {
	// Two transfers to the treasury in one tx add up.
	err := DecideUSDCPayment(
		[]chain.TokenTransfer{
			transfer(treasuryAddr, "100"),
			transfer(treasuryAddr, "150"),
		},
		treasuryAddr, usdc("250"), 20, 12)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

func TestDecideUSDCPaymentCaseInsensitiveAddress(t *testing.T) {
	err := DecideUSDCPayment(
		[]chain.TokenTransfer{transfer("0xC0FFEE0000000000000000000000000000000002", "250")},
		treasuryAddr, usdc("250"), 20, 12)
	if err != nil {
		t.Fatalf("checksummed recipient address rejected: %v", err)
	}
}

// fakeSwapStore serves swap orders from memory.  Only the read path is
// implemented; the settling paths must not be reached by these tests.
type fakeSwapStore struct {
	byID map[uuid.UUID]*domain.CustomerSwapOrder
}

func (f *fakeSwapStore) GetByID(_ context.Context, id uuid.UUID) (*domain.CustomerSwapOrder, error) {
	if o, ok := f.byID[id]; ok {
		return o, nil
	}
	return nil, domain.ErrOrderNotFound
}

func (f *fakeSwapStore) GetByIDForUpdate(context.Context, *sqlx.Tx, uuid.UUID) (*domain.CustomerSwapOrder, error) {
	return nil, errors.New("unexpected GetByIDForUpdate")
}

func (f *fakeSwapStore) MarkProcessing(context.Context, *sqlx.Tx, uuid.UUID, string) error {
	return errors.New("unexpected MarkProcessing")
}

func (f *fakeSwapStore) TxHashExists(context.Context, string) (bool, error) {
	return false, errors.New("unexpected TxHashExists")
}

func TestVerifyIdempotentReVerify(t *testing.T) {
	// A swap already settled by this exact hash verifies again without
	// touching the chain, and without inventing a confirmation count.
	hash := "0xaaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999"
	swap := &domain.CustomerSwapOrder{
		ID:     uuid.New(),
		Side:   domain.SwapBuyBTC,
		Status: domain.SwapProcessing,
		TxHash: &hash,
	}
	v := &VerifierService{
		swapRepo: &fakeSwapStore{byID: map[uuid.UUID]*domain.CustomerSwapOrder{swap.ID: swap}},
	}

	// Caller hash differs only in case and whitespace.
	res, err := v.Verify(context.Background(), swap.ID, "  "+strings.ToUpper(hash[:2])+hash[2:])
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Verified {
		t.Error("re-verify with the settling hash must report verified")
	}
	if res.Confirmations != 0 {
		t.Errorf("confirmations = %d, want 0 (no chain read happened)", res.Confirmations)
	}
}

func TestVerifyNonPendingDifferentHashRejected(t *testing.T) {
	hash := "0xaaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999"
	swap := &domain.CustomerSwapOrder{
		ID:     uuid.New(),
		Side:   domain.SwapBuyBTC,
		Status: domain.SwapProcessing,
		TxHash: &hash,
	}
	v := &VerifierService{
		swapRepo: &fakeSwapStore{byID: map[uuid.UUID]*domain.CustomerSwapOrder{swap.ID: swap}},
	}

	_, err := v.Verify(context.Background(), swap.ID, "0x1111111111111111111111111111111111111111111111111111111111111111")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestParseReceiptBlock(t *testing.T) {
	n, err := parseReceiptBlock("0x134e800")
	if err != nil || n != 0x134e800 {
		t.Errorf("parseReceiptBlock = %d, %v", n, err)
	}
	if _, err := parseReceiptBlock(""); err == nil {
		t.Error("expected error for empty block number")
	}
}
