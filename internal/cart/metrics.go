package cart

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_operations_total",
			Help: "Total number of cart store operations that changed the cart",
		},
		[]string{"operation"},
	)

	stockClampsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_stock_clamps_total",
			Help: "Total number of requested quantities reduced to the available stock",
		},
		[]string{"operation"},
	)

	reconcileLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_reconcile_lookups_total",
			Help: "Catalog stock lookups issued by reconciliation, by outcome",
		},
		[]string{"outcome"},
	)

	snapshotFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_snapshot_failures_total",
			Help: "Snapshot read, write and decode failures",
		},
		[]string{"stage"},
	)

	cartLines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cart_lines",
			Help: "Number of lines in the active cart",
		},
	)
)

// Lookup outcomes.
const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeMissing = "missing"
)

// Snapshot failure stages.
const (
	stageRead   = "read"
	stageWrite  = "write"
	stageDecode = "decode"
	stageEncode = "encode"
)
