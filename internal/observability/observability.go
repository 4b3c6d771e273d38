package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	Registry = prometheus.NewRegistry()

	moderationActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_moderation_actions_total",
			Help: "Moderation actions successfully executed on the platform",
		},
		[]string{"action"},
	)

	violationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_violations_total",
			Help: "Content policy violations detected",
		},
		[]string{"kind"},
	)

	messagesProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ngguard_messages_processed_total",
			Help: "Group messages passed through the enforcement pipeline",
		},
	)

	burstBansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ngguard_burst_bans_total",
			Help: "Global bans issued by the burst detector",
		},
	)

	messageProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ngguard_message_processing_duration_seconds",
			Help:    "Time spent in the enforcement pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		moderationActionsTotal,
		violationsTotal,
		messagesProcessedTotal,
		burstBansTotal,
		messageProcessingDuration,
	)
}

func RecordAction(action string) {
	moderationActionsTotal.WithLabelValues(action).Inc()
}

func RecordViolation(kind string) {
	violationsTotal.WithLabelValues(kind).Inc()
}

func RecordMessageProcessed() {
	messagesProcessedTotal.Inc()
}

func RecordBurstBan() {
	burstBansTotal.Inc()
}

// StartMessageProcessing returns a func recording the elapsed time under the given status.
func StartMessageProcessing() func(status string) {
	start := time.Now()
	return func(status string) {
		messageProcessingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
