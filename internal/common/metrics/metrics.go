// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelaySubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_submissions_total",
			Help: "Total number of relayed submissions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	FallbackWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fallback_writes_total",
			Help: "Fallback file writes by kind and result",
		},
		[]string{"kind", "result"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_delivery_duration_seconds",
			Help:    "Duration of mail verification plus send in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	SchemaViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_schema_violations_total",
			Help: "Submissions whose formData did not match the schema",
		},
		[]string{"kind"},
	)

	FieldRuleViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_field_rule_violations_total",
			Help: "Submissions failing a form field rule, by field",
		},
		[]string{"kind", "field"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_rate_limited_total",
			Help: "Submissions rejected by the per-client throttle",
		},
	)
)

// Outcome labels for RelaySubmissions.
const (
	OutcomeDelivered    = "delivered"
	OutcomeSavedNotSent = "saved_not_sent"
	OutcomeFailed       = "failed"
	OutcomeRejected     = "rejected"
	ResultOK            = "ok"
	ResultError         = "error"
)
