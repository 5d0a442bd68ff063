// Package metrics exposes the Prometheus gauges/counters/histograms
// named in spec.md section 8's testable properties (dispatch latency,
// circuit state, queue depth, DLQ rate).
//
// Grounded verbatim on email-service/app/metrics/metrics.go's
// promauto-package-var style, relabeled per component and extended with
// the circuit/queue/rate-limit gauges the email service has no
// equivalent of.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_ingest_total",
			Help: "Total number of ingest.v1 submissions accepted by source channel",
		},
		[]string{"channel", "provider"},
	)

	dedupeHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_dedupe_hits_total",
			Help: "Total number of inbound envelopes recognized as duplicates",
		},
	)

	triageDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_triage_decisions_total",
			Help: "Total number of triage decisions by action and parse source",
		},
		[]string{"action", "parse_source"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchboard_dispatch_duration_seconds",
			Help:    "Per-target dispatch call duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"target", "outcome"},
	)

	dispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_dispatch_outcomes_total",
			Help: "Total dispatch attempts by target and outcome",
		},
		[]string{"target", "outcome", "error_category"},
	)

	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "switchboard_circuit_state",
			Help: "Current circuit breaker state per target (0=closed, 1=half_open, 2=open)",
		},
		[]string{"target"},
	)

	rateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_rate_limit_rejections_total",
			Help: "Total admissions rejected by the token bucket limiter",
		},
		[]string{"target", "tier"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "switchboard_buffer_queue_depth",
			Help: "Current buffered item count per policy tier",
		},
		[]string{"tier"},
	)

	dlqTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_dlq_total",
			Help: "Total entries written to the dead letter queue by failure category",
		},
		[]string{"failure_category"},
	)

	dlqReplayTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_dlq_replay_total",
			Help: "Total dead letter replay attempts by outcome",
		},
		[]string{"outcome"},
	)

	operatorActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_operator_actions_total",
			Help: "Total operator actions recorded by action type and outcome",
		},
		[]string{"action_type", "outcome"},
	)
)

func RecordIngest(channel, provider string) {
	ingestTotal.WithLabelValues(channel, provider).Inc()
}

func RecordDedupeHit() {
	dedupeHitsTotal.Inc()
}

func RecordTriageDecision(action, parseSource string) {
	triageDecisionsTotal.WithLabelValues(action, parseSource).Inc()
}

func RecordDispatch(target, outcome string, d time.Duration) {
	dispatchDuration.WithLabelValues(target, outcome).Observe(d.Seconds())
}

func RecordDispatchOutcome(target, outcome, errorCategory string) {
	dispatchOutcomesTotal.WithLabelValues(target, outcome, errorCategory).Inc()
}

func SetCircuitState(target string, state int) {
	circuitState.WithLabelValues(target).Set(float64(state))
}

func RecordRateLimitRejection(target, tier string) {
	rateLimitRejectionsTotal.WithLabelValues(target, tier).Inc()
}

func SetQueueDepth(tier string, depth int) {
	queueDepth.WithLabelValues(tier).Set(float64(depth))
}

func RecordDLQ(failureCategory string) {
	dlqTotal.WithLabelValues(failureCategory).Inc()
}

func RecordDLQReplay(outcome string) {
	dlqReplayTotal.WithLabelValues(outcome).Inc()
}

func RecordOperatorAction(actionType, outcome string) {
	operatorActionsTotal.WithLabelValues(actionType, outcome).Inc()
}
