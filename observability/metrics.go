package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type originationMetrics struct {
	resolutions  *prometheus.CounterVec
	quotes       *prometheus.CounterVec
	preflight    *prometheus.CounterVec
	approvals    *prometheus.CounterVec
	submissions  *prometheus.CounterVec
	gasFallbacks prometheus.Counter
	ledgerReads  *prometheus.HistogramVec
}

var (
	originationOnce     sync.Once
	originationRegistry *originationMetrics
)

// Origination returns the lazily-initialised metrics registry for the loan
// origination flow.
func Origination() *originationMetrics {
	originationOnce.Do(func() {
		originationRegistry = &originationMetrics{
			resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rwalend",
				Subsystem: "origination",
				Name:      "position_resolutions_total",
				Help:      "Position resolver invocations segmented by outcome.",
			}, []string{"outcome"}),
			quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rwalend",
				Subsystem: "origination",
				Name:      "quotes_total",
				Help:      "Loan term computations segmented by provenance.",
			}, []string{"provenance"}),
			preflight: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rwalend",
				Subsystem: "origination",
				Name:      "preflight_total",
				Help:      "Preflight validations segmented by failing check, or ok.",
			}, []string{"result"}),
			approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rwalend",
				Subsystem: "origination",
				Name:      "approvals_total",
				Help:      "Token allowance approvals segmented by outcome.",
			}, []string{"outcome"}),
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rwalend",
				Subsystem: "origination",
				Name:      "submissions_total",
				Help:      "Loan creation submissions segmented by outcome.",
			}, []string{"outcome"}),
			gasFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rwalend",
				Subsystem: "origination",
				Name:      "gas_estimate_fallbacks_total",
				Help:      "Submissions that used the static per-tier gas limit after estimation failed.",
			}),
			ledgerReads: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "rwalend",
				Subsystem: "ledger",
				Name:      "read_duration_seconds",
				Help:      "Latency distribution for ledger view calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"call"}),
		}
		prometheus.MustRegister(
			originationRegistry.resolutions,
			originationRegistry.quotes,
			originationRegistry.preflight,
			originationRegistry.approvals,
			originationRegistry.submissions,
			originationRegistry.gasFallbacks,
			originationRegistry.ledgerReads,
		)
	})
	return originationRegistry
}

func normalizeLabel(value, fallback string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

// RecordResolution counts one resolver run.
func (m *originationMetrics) RecordResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(normalizeLabel(outcome, "unknown")).Inc()
}

// RecordQuote counts a provisional or authoritative quote.
func (m *originationMetrics) RecordQuote(provenance string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(normalizeLabel(provenance, "unknown")).Inc()
}

// RecordPreflight counts a preflight run, labelled with the failing check or "ok".
func (m *originationMetrics) RecordPreflight(result string) {
	if m == nil {
		return
	}
	m.preflight.WithLabelValues(normalizeLabel(result, "ok")).Inc()
}

// RecordApproval counts one allowance approval attempt.
func (m *originationMetrics) RecordApproval(outcome string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(normalizeLabel(outcome, "unknown")).Inc()
}

// RecordSubmission counts one origination submission.
func (m *originationMetrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(outcome, "unknown")).Inc()
}

// RecordGasFallback counts a submission that fell back to the static gas limit.
func (m *originationMetrics) RecordGasFallback() {
	if m == nil {
		return
	}
	m.gasFallbacks.Inc()
}

// ObserveLedgerRead records the latency of a single ledger view call.
func (m *originationMetrics) ObserveLedgerRead(call string, d time.Duration) {
	if m == nil {
		return
	}
	m.ledgerReads.WithLabelValues(normalizeLabel(call, "unknown")).Observe(d.Seconds())
}
