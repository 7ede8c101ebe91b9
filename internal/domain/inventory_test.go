package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func lot(available string, receivedOffset time.Duration) *InventoryLot {
	amt := decimal.RequireFromString(available)
	now := time.Now().UTC()
	return &InventoryLot{
		ID:              uuid.New(),
		AmountTotal:     amt,
		AmountAvailable: amt,
		Source:          LotSourceManual,
		ReceivedAt:      now.Add(receivedOffset),
		EligibleAt:      now.Add(receivedOffset),
		CreatedAt:       now.Add(receivedOffset),
	}
}

func TestPlanAllocationSpansLots(t *testing.T) {
	// Lots 2.0 and 1.5; a 3.0 request drains the first and takes 1.0 of the
	// second.
	a := lot("2.0", -2*time.Hour)
	b := lot("1.5", -1*time.Hour)

	draws, err := PlanAllocation([]*InventoryLot{a, b}, decimal.RequireFromString("3.0"))
	if err != nil {
		t.Fatalf("PlanAllocation: %v", err)
	}
	if len(draws) != 2 {
		t.Fatalf("got %d draws, want 2", len(draws))
	}
	if draws[0].LotID != a.ID || !draws[0].Amount.Equal(decimal.RequireFromString("2.0")) {
		t.Errorf("draw 0 = {%s %s}, want full 2.0 from oldest lot", draws[0].LotID, draws[0].Amount)
	}
	if draws[1].LotID != b.ID || !draws[1].Amount.Equal(decimal.RequireFromString("1.0")) {
		t.Errorf("draw 1 = {%s %s}, want 1.0 from second lot", draws[1].LotID, draws[1].Amount)
	}
}

func TestPlanAllocationInsufficientIsAllOrNothing(t *testing.T) {
	a := lot("2.0", -2*time.Hour)
	b := lot("1.5", -1*time.Hour)

	draws, err := PlanAllocation([]*InventoryLot{a, b}, decimal.RequireFromString("4.0"))
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("err = %v, want ErrInsufficientInventory", err)
	}
	if draws != nil {
		t.Errorf("got %d draws on failure, want none", len(draws))
	}
	// Inputs untouched: the caller's lots carry their full balances.
	if !a.AmountAvailable.Equal(decimal.RequireFromString("2.0")) {
		t.Errorf("lot a mutated to %s", a.AmountAvailable)
	}
}

func TestPlanAllocationExactFit(t *testing.T) {
	a := lot("0.75", -time.Hour)
	draws, err := PlanAllocation([]*InventoryLot{a}, decimal.RequireFromString("0.75"))
	if err != nil {
		t.Fatalf("PlanAllocation: %v", err)
	}
	if len(draws) != 1 || !draws[0].Amount.Equal(a.AmountTotal) {
		t.Errorf("draws = %+v, want single full draw", draws)
	}
}

func TestPlanAllocationSkipsDepletedLots(t *testing.T) {
	empty := lot("0", -3*time.Hour)
	full := lot("1.0", -time.Hour)

	draws, err := PlanAllocation([]*InventoryLot{empty, full}, decimal.RequireFromString("0.5"))
	if err != nil {
		t.Fatalf("PlanAllocation: %v", err)
	}
	if len(draws) != 1 || draws[0].LotID != full.ID {
		t.Errorf("draws = %+v, want single draw from the non-empty lot", draws)
	}
}

func TestPlanAllocationRejectsNonPositive(t *testing.T) {
	a := lot("1.0", -time.Hour)
	for _, req := range []string{"0", "-0.1"} {
		if _, err := PlanAllocation([]*InventoryLot{a}, decimal.RequireFromString(req)); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("request %s: err = %v, want ErrInvalidAmount", req, err)
		}
	}
}

func TestPlanAllocationEmptyInventory(t *testing.T) {
	_, err := PlanAllocation(nil, decimal.RequireFromString("0.1"))
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Errorf("err = %v, want ErrInsufficientInventory", err)
	}
}

func TestPlanAllocationSatoshiDust(t *testing.T) {
	// Smallest representable amount allocates cleanly.
	a := lot("0.00000001", -time.Hour)
	draws, err := PlanAllocation([]*InventoryLot{a}, decimal.RequireFromString("0.00000001"))
	if err != nil {
		t.Fatalf("PlanAllocation: %v", err)
	}
	if len(draws) != 1 {
		t.Fatalf("got %d draws, want 1", len(draws))
	}
}

// heldLot builds a lot whose maturation hold has not necessarily elapsed.
func heldLot(available string, receivedOffset, eligibleOffset time.Duration) *InventoryLot {
	l := lot(available, receivedOffset)
	l.EligibleAt = time.Now().UTC().Add(eligibleOffset)
	return l
}

func btc(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sumAvailable(lots []*InventoryLot) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		total = total.Add(l.AmountAvailable)
	}
	return total
}

func TestEligibleLotsFiltering(t *testing.T) {
	now := time.Now().UTC()
	ready := heldLot("1.0", -48*time.Hour, -24*time.Hour)
	exact := heldLot("0.5", -24*time.Hour, 0) // eligible_at == now counts
	exact.EligibleAt = now
	held := heldLot("0.3", -time.Hour, time.Hour)
	empty := heldLot("0", -72*time.Hour, -48*time.Hour)

	got := EligibleLots([]*InventoryLot{ready, exact, held, empty}, now)
	if len(got) != 2 {
		t.Fatalf("got %d eligible lots, want 2", len(got))
	}
	if got[0].ID != ready.ID || got[1].ID != exact.ID {
		t.Error("eligible filter changed FIFO order")
	}
}

func TestAllocationRespectsMaturationHold(t *testing.T) {
	// Lot A (0.5) is matured, lot B (0.3) is still inside its hold.  An order
	// for 0.6 must not draw on B early; once B matures the same order fills
	// from A then B, oldest first.
	now := time.Now().UTC()
	a := heldLot("0.5", -48*time.Hour, -24*time.Hour)
	b := heldLot("0.3", -2*time.Hour, time.Hour)
	lots := []*InventoryLot{a, b}

	eligible := sumAvailable(EligibleLots(lots, now))
	locked := sumAvailable(lots).Sub(eligible)
	if !eligible.Equal(btc("0.5")) || !locked.Equal(btc("0.3")) {
		t.Fatalf("eligible/locked = %s/%s, want 0.5/0.3", eligible, locked)
	}

	if _, err := PlanAllocation(EligibleLots(lots, now), btc("0.6")); !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("err = %v, want ErrInsufficientInventory while lot B is held", err)
	}

	later := now.Add(2 * time.Hour)
	draws, err := PlanAllocation(EligibleLots(lots, later), btc("0.6"))
	if err != nil {
		t.Fatalf("PlanAllocation after hold: %v", err)
	}
	if len(draws) != 2 {
		t.Fatalf("got %d draws, want 2", len(draws))
	}
	if draws[0].LotID != a.ID || !draws[0].Amount.Equal(btc("0.5")) {
		t.Errorf("draw 0 = {%s %s}, want all 0.5 from lot A first", draws[0].LotID, draws[0].Amount)
	}
	if draws[1].LotID != b.ID || !draws[1].Amount.Equal(btc("0.1")) {
		t.Errorf("draw 1 = {%s %s}, want 0.1 from lot B", draws[1].LotID, draws[1].Amount)
	}
}

// applyDraws and reverseDraws mirror what the allocator's guarded SQL does to
// lot balances, so the conservation property can be checked in memory.
func applyDraws(lots []*InventoryLot, draws []LotDraw) {
	for _, d := range draws {
		for _, l := range lots {
			if l.ID == d.LotID {
				l.AmountAvailable = l.AmountAvailable.Sub(d.Amount)
			}
		}
	}
}

func reverseDraws(lots []*InventoryLot, draws []LotDraw) {
	for _, d := range draws {
		for _, l := range lots {
			if l.ID == d.LotID {
				l.AmountAvailable = l.AmountAvailable.Add(d.Amount)
			}
		}
	}
}

func TestAllocationConservationAndReversal(t *testing.T) {
	lots := []*InventoryLot{
		lot("2.0", -3*time.Hour),
		lot("0.25", -2*time.Hour),
		lot("1.75", -time.Hour),
	}
	before := sumAvailable(lots)

	draws, err := PlanAllocation(lots, btc("2.2"))
	if err != nil {
		t.Fatalf("PlanAllocation: %v", err)
	}

	allocated := decimal.Zero
	for _, d := range draws {
		allocated = allocated.Add(d.Amount)
	}
	if !allocated.Equal(btc("2.2")) {
		t.Fatalf("draws total %s, want exactly the request", allocated)
	}

	// sum(available) + sum(active draws) == sum(total), before and after.
	applyDraws(lots, draws)
	if !sumAvailable(lots).Add(allocated).Equal(before) {
		t.Errorf("conservation broken: available %s + allocated %s != %s",
			sumAvailable(lots), allocated, before)
	}
	for _, l := range lots {
		if l.AmountAvailable.IsNegative() {
			t.Errorf("lot %s over-allocated to %s", l.ID, l.AmountAvailable)
		}
	}

	// Reversal restores every lot exactly.
	reverseDraws(lots, draws)
	for _, l := range lots {
		if !l.AmountAvailable.Equal(l.AmountTotal) {
			t.Errorf("lot %s = %s after reversal, want %s", l.ID, l.AmountAvailable, l.AmountTotal)
		}
	}
}

func TestAllocationDeterministic(t *testing.T) {
	// Two runs over the same position plan the same draws; a re-run with no
	// new input has nothing different to do.
	build := func() []*InventoryLot {
		return []*InventoryLot{lot("1.2", -2*time.Hour), lot("0.8", -time.Hour)}
	}
	first := build()
	second := build()
	for i := range first {
		second[i].ID = first[i].ID
	}

	d1, err1 := PlanAllocation(first, btc("1.5"))
	d2, err2 := PlanAllocation(second, btc("1.5"))
	if err1 != nil || err2 != nil {
		t.Fatalf("PlanAllocation: %v / %v", err1, err2)
	}
	if len(d1) != len(d2) {
		t.Fatalf("plans differ in length: %d vs %d", len(d1), len(d2))
	}
	for i := range d1 {
		if d1[i].LotID != d2[i].LotID || !d1[i].Amount.Equal(d2[i].Amount) {
			t.Errorf("draw %d differs: %+v vs %+v", i, d1[i], d2[i])
		}
	}

	// After the position is drained, the same demand can only be refused —
	// repeating a completed run never double-draws.
	applyDraws(first, d1)
	applyDraws(first, []LotDraw{{LotID: first[1].ID, Amount: btc("0.5")}}) // drain the rest
	if _, err := PlanAllocation(EligibleLots(first, time.Now().UTC()), btc("1.5")); !errors.Is(err, ErrInsufficientInventory) {
		t.Errorf("err = %v, want ErrInsufficientInventory on drained lots", err)
	}
}

func TestLotEligibility(t *testing.T) {
	now := time.Now().UTC()
	l := &InventoryLot{EligibleAt: now.Add(time.Hour)}
	if l.IsEligible(now) {
		t.Error("lot inside its hold reported eligible")
	}
	if !l.IsEligible(now.Add(time.Hour)) {
		t.Error("lot not eligible exactly at eligible_at")
	}
}
