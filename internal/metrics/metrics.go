// Package metrics holds the Prometheus collectors shared by the ledger packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChargesTotal counts charge decisions by outcome (authorized, denied, failed).
	ChargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chargeledger",
			Subsystem: "ledger",
			Name:      "charges_total",
			Help:      "Total charge attempts by outcome",
		},
		[]string{"outcome"},
	)

	ResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chargeledger",
			Subsystem: "ledger",
			Name:      "resets_total",
			Help:      "Total successful balance resets",
		},
	)

	// CoordinatorDuration measures the time from requesting exclusivity to
	// finishing the critical section, waiting included.
	CoordinatorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chargeledger",
			Subsystem: "coordinator",
			Name:      "apply_duration_seconds",
			Help:      "Duration of coordinated read-decide-write cycles",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	LockTableEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chargeledger",
			Subsystem: "coordinator",
			Name:      "lock_table_entries",
			Help:      "Accounts with an operation holding or waiting for their lock",
		},
	)

	WriteConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chargeledger",
			Subsystem: "coordinator",
			Name:      "write_conflicts_total",
			Help:      "Conditional writes rejected because the balance changed after the read",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chargeledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)
