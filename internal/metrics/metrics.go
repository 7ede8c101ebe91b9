// Package metrics exposes the engine's Prometheus instruments.  Registered on
// the default registry; the backoffice router serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcessorRuns counts queue-processor runs by outcome ("ok", "paused",
	// "error").
	ProcessorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Name:      "processor_runs_total",
		Help:      "Queue processor runs by outcome.",
	}, []string{"outcome"})

	// OrdersAdvanced counts fulfillment order state transitions by target
	// status.
	OrdersAdvanced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Name:      "orders_advanced_total",
		Help:      "Fulfillment order transitions by target status.",
	}, []string{"to"})

	// Allocations counts FIFO allocation attempts by result ("ok",
	// "insufficient", "error").
	Allocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Name:      "allocations_total",
		Help:      "Inventory allocation attempts by result.",
	}, []string{"result"})

	// Verifications counts payment verification attempts by result
	// ("verified", "replay", "mismatch", "pending", "error").
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Name:      "verifications_total",
		Help:      "USDC payment verification attempts by result.",
	}, []string{"result"})

	// DepositsMatched counts BTC deposits matched to SELL_BTC orders.
	DepositsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treasury",
		Name:      "deposits_matched_total",
		Help:      "BTC deposits matched to sell orders.",
	})

	// EligibleBTC is the currently allocatable inventory.
	EligibleBTC = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "treasury",
		Name:      "inventory_eligible_btc",
		Help:      "BTC inventory past its maturation hold and unallocated.",
	})

	// LockedBTC is inventory still inside its maturation hold.
	LockedBTC = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "treasury",
		Name:      "inventory_locked_btc",
		Help:      "BTC inventory still inside its maturation hold.",
	})
)
