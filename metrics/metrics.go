// Prometheus collectors for the bridge daemon. Registered on the default
// registry; reporter exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "receivables",
		Name:      "events_applied_total",
		Help:      "Escrow events applied to the projection store, by kind.",
	}, []string{"kind"})

	BurnsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "receivables",
		Name:      "burns_discovered_total",
		Help:      "Relevant burn messages discovered on the source chain.",
	})

	BackfillChunkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "receivables",
		Name:      "backfill_chunk_errors_total",
		Help:      "Backfill chunks skipped due to RPC errors.",
	})

	AttestationPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "receivables",
		Name:      "attestation_polls_total",
		Help:      "Attestation service polls, by outcome (complete|pending|error).",
	}, []string{"outcome"})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "receivables",
		Name:      "settlements_total",
		Help:      "Completed settlements, by path (attested|auto|external).",
	}, []string{"path"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "receivables",
		Name:      "txqueue_depth",
		Help:      "Operations waiting in the transaction serialization queue.",
	})

	QueueSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "receivables",
		Name:      "txqueue_submissions_total",
		Help:      "Operations submitted to the transaction serialization queue.",
	})
)
