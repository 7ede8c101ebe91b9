package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashcard/treasury/internal/chain"
	"github.com/hashcard/treasury/internal/domain"
	"github.com/shopspring/decimal"
)

const btcTreasury = "bc1qtreasury"

func sellOrder(btcAmount, source string, age time.Duration) *domain.CustomerSwapOrder {
	o := &domain.CustomerSwapOrder{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		Side:       domain.SwapSellBTC,
		BTCAmount:  decimal.RequireFromString(btcAmount),
		Status:     domain.SwapPending,
		CreatedAt:  time.Now().UTC().Add(-age),
	}
	if source != "" {
		o.SourceAddress = &source
	}
	return o
}

func depositTx(txid, from string, sats int64, confirmed bool) chain.BTCTx {
	return chain.BTCTx{
		TxID:   txid,
		Status: chain.BTCTxStatus{Confirmed: confirmed, BlockHeight: 868400},
		Vin:    []chain.BTCVin{{Prevout: chain.BTCVout{ScriptPubKeyAddress: from, Value: sats + 1000}}},
		Vout:   []chain.BTCVout{{ScriptPubKeyAddress: btcTreasury, Value: sats}},
	}
}

func TestMatchDepositsExact(t *testing.T) {
	order := sellOrder("0.5", "bc1qcustomer", time.Hour)
	txs := []chain.BTCTx{depositTx("aa", "bc1qcustomer", 50_000_000, true)}

	matches := MatchDeposits([]*domain.CustomerSwapOrder{order}, txs, btcTreasury)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Order.ID != order.ID || matches[0].TxID != "aa" {
		t.Errorf("match = %+v", matches[0])
	}
}

func TestMatchDepositsWithinTolerance(t *testing.T) {
	// 0.496 BTC against a 0.5 quote: inside the 1% band (sender paid the fee).
	order := sellOrder("0.5", "", time.Hour)
	txs := []chain.BTCTx{depositTx("aa", "bc1qcustomer", 49_600_000, true)}

	if got := MatchDeposits([]*domain.CustomerSwapOrder{order}, txs, btcTreasury); len(got) != 1 {
		t.Fatalf("got %d matches, want 1", len(got))
	}

	// 0.49 BTC: outside the band, no match.
	short := []chain.BTCTx{depositTx("bb", "bc1qcustomer", 49_000_000, true)}
	if got := MatchDeposits([]*domain.CustomerSwapOrder{order}, short, btcTreasury); len(got) != 0 {
		t.Fatalf("got %d matches for out-of-tolerance deposit, want 0", len(got))
	}
}

func TestMatchDepositsRequiresConfirmation(t *testing.T) {
	order := sellOrder("0.5", "", time.Hour)
	txs := []chain.BTCTx{depositTx("aa", "bc1qcustomer", 50_000_000, false)}

	if got := MatchDeposits([]*domain.CustomerSwapOrder{order}, txs, btcTreasury); len(got) != 0 {
		t.Fatalf("mempool tx matched: %+v", got)
	}
}

func TestMatchDepositsSourceAddressFilter(t *testing.T) {
	order := sellOrder("0.5", "bc1qdeclared", time.Hour)
	txs := []chain.BTCTx{depositTx("aa", "bc1qsomeoneelse", 50_000_000, true)}

	if got := MatchDeposits([]*domain.CustomerSwapOrder{order}, txs, btcTreasury); len(got) != 0 {
		t.Fatalf("deposit from undeclared source matched: %+v", got)
	}
}

func TestMatchDepositsSkipsSelfSpends(t *testing.T) {
	// Treasury change output looks like a deposit but spends from the
	// treasury itself.
	order := sellOrder("0.5", "", time.Hour)
	change := chain.BTCTx{
		TxID:   "cc",
		Status: chain.BTCTxStatus{Confirmed: true, BlockHeight: 868400},
		Vin:    []chain.BTCVin{{Prevout: chain.BTCVout{ScriptPubKeyAddress: btcTreasury, Value: 60_000_000}}},
		Vout:   []chain.BTCVout{{ScriptPubKeyAddress: btcTreasury, Value: 50_000_000}},
	}

	if got := MatchDeposits([]*domain.CustomerSwapOrder{order}, []chain.BTCTx{change}, btcTreasury); len(got) != 0 {
		t.Fatalf("self-spend matched as a deposit: %+v", got)
	}
}

func TestMatchDepositsOneTxSettlesOneOrder(t *testing.T) {
	// Two identical orders, one deposit: only the older order matches.
	older := sellOrder("0.5", "", 2*time.Hour)
	newer := sellOrder("0.5", "", time.Hour)
	txs := []chain.BTCTx{depositTx("aa", "bc1qcustomer", 50_000_000, true)}

	matches := MatchDeposits([]*domain.CustomerSwapOrder{older, newer}, txs, btcTreasury)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Order.ID != older.ID {
		t.Error("deposit matched the newer order; oldest-first expected")
	}
}

func TestMatchDepositsTwoDepositsTwoOrders(t *testing.T) {
	a := sellOrder("0.5", "", 2*time.Hour)
	b := sellOrder("1.0", "", time.Hour)
	txs := []chain.BTCTx{
		depositTx("aa", "bc1qx", 100_000_000, true),
		depositTx("bb", "bc1qy", 50_000_000, true),
	}

	matches := MatchDeposits([]*domain.CustomerSwapOrder{a, b}, txs, btcTreasury)
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Order.ID != a.ID || matches[0].TxID != "bb" {
		t.Errorf("order a matched %s, want bb", matches[0].TxID)
	}
	if matches[1].Order.ID != b.ID || matches[1].TxID != "aa" {
		t.Errorf("order b matched %s, want aa", matches[1].TxID)
	}
}
