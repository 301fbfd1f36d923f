package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks the latency of engine operations
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "blooddrive_operation_duration_seconds",
			Help: "Duration of engine operations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"operation", "status"}, // status is "success" or an error code
	)

	// EnrollmentOutcomes counts enrollment attempts by resulting status or rejection code
	EnrollmentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blooddrive_enrollment_outcomes_total",
			Help: "Enrollment attempts by outcome",
		},
		[]string{"outcome"},
	)

	// DonationsCompleted counts completed donations
	DonationsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blooddrive_donations_completed_total",
			Help: "Number of donations marked completed",
		},
	)

	// CollectedVolume sums collected blood volume
	CollectedVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blooddrive_collected_volume_ml_total",
			Help: "Collected blood volume in millilitres",
		},
	)

	// EligibilityRules counts how often each eligibility rule fires
	EligibilityRules = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blooddrive_eligibility_rules_triggered_total",
			Help: "Eligibility rules triggered by questionnaire evaluations",
		},
		[]string{"rule"},
	)

	// EventPublishFailures counts events that could not be delivered
	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blooddrive_event_publish_failures_total",
			Help: "Donation events that failed to publish",
		},
	)
)

// RecordOperationDuration records the duration of one engine operation
func RecordOperationDuration(operation, status string, duration float64) {
	OperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordEnrollmentOutcome counts one enrollment attempt
func RecordEnrollmentOutcome(outcome string) {
	EnrollmentOutcomes.WithLabelValues(outcome).Inc()
}

// RecordDonationCompleted counts one completed donation and its volume
func RecordDonationCompleted(quantityML int) {
	DonationsCompleted.Inc()
	CollectedVolume.Add(float64(quantityML))
}

// RecordEligibilityRules counts each triggered rule
func RecordEligibilityRules(rules []string) {
	for _, r := range rules {
		EligibilityRules.WithLabelValues(r).Inc()
	}
}

// RecordEventPublishFailure counts one undelivered event
func RecordEventPublishFailure() {
	EventPublishFailures.Inc()
}
