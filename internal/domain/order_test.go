package domain

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	path := []OrderStatus{
		OrderSubmitted, OrderKYCPending, OrderWaitingInventory,
		OrderReadyToSend, OrderSending, OrderSent, OrderCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Errorf("CanTransition(%s, %s) = false, want true", path[i], path[i+1])
		}
	}
}

func TestCanTransitionRejectsSkips(t *testing.T) {
	illegal := []struct{ from, to OrderStatus }{
		{OrderSubmitted, OrderReadyToSend}, // cannot skip the gates
		{OrderKYCPending, OrderSending},
		{OrderWaitingInventory, OrderSent},
		{OrderCompleted, OrderSending}, // terminal states never leave
		{OrderFailed, OrderSubmitted},
		{OrderSending, OrderHold}, // in-flight sends cannot be held
		{OrderSent, OrderHold},
		{OrderSent, OrderWaitingInventory}, // no going backwards
	}
	for _, tt := range illegal {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tt.from, tt.to)
		}
	}
}

func TestFailureEdges(t *testing.T) {
	if !CanTransition(OrderSending, OrderFailed) {
		t.Error("SENDING must be able to fail")
	}
	if !CanTransition(OrderSent, OrderFailed) {
		t.Error("SENT must be able to fail")
	}
}

func TestHoldAndRelease(t *testing.T) {
	for _, s := range []OrderStatus{OrderSubmitted, OrderKYCPending, OrderWaitingInventory, OrderReadyToSend} {
		if !s.Holdable() {
			t.Errorf("%s.Holdable() = false, want true", s)
		}
		if !CanTransition(s, OrderHold) {
			t.Errorf("CanTransition(%s, hold) = false, want true", s)
		}
	}
	for _, s := range []OrderStatus{OrderSending, OrderSent, OrderCompleted, OrderFailed, OrderHold} {
		if s.Holdable() {
			t.Errorf("%s.Holdable() = true, want false", s)
		}
	}
	// Release re-enters at the KYC gate, nowhere else.
	if !CanTransition(OrderHold, OrderKYCPending) {
		t.Error("CanTransition(hold, kyc_pending) = false, want true")
	}
	if CanTransition(OrderHold, OrderReadyToSend) {
		t.Error("release must not jump straight to ready_to_send")
	}
}

func TestIsTerminal(t *testing.T) {
	if !OrderCompleted.IsTerminal() || !OrderFailed.IsTerminal() {
		t.Error("completed and failed are terminal")
	}
	if OrderHold.IsTerminal() || OrderSent.IsTerminal() {
		t.Error("hold and sent are not terminal")
	}
}
