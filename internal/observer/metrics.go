package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for standard event metrics
	eventProcessingLabels = []string{"event_type", "org_id"}
	// Labels for tracking specific processing actions
	eventActionLabels = []string{"event_type", "org_id", "action", "error_type"}

	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_events_received_total",
			Help: "Total number of gateway events received from NATS.",
		},
		eventProcessingLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_events_processed_total",
			Help: "Total number of gateway events successfully processed and acknowledged.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_events_failed_total",
			Help: "Total number of gateway events that failed processing (resulting in NAK or error).",
		},
		eventProcessingLabels,
	)

	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_archive_event_processing_duration_seconds",
			Help:    "Histogram of gateway event processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventProcessingLabels,
	)

	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_event_processing_actions_total",
			Help: "Total count of specific actions taken after event processing, labeled by error type.",
		},
		eventActionLabels,
	)

	AckRegressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_ack_regressions_total",
			Help: "Total number of ack updates discarded because they would move a message backward.",
		},
		[]string{"org_id"},
	)

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_archive_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"operation", "entity", "org_id", "status"},
	)

	SyncRunsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_sync_runs_started_total",
			Help: "Total number of sync runs started, labeled by kind.",
		},
		[]string{"org_id", "kind"},
	)
	SyncRunsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_sync_runs_finished_total",
			Help: "Total number of sync runs settled, labeled by kind and final status.",
		},
		[]string{"org_id", "kind", "status"},
	)
	SyncedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_synced_messages_total",
			Help: "Total number of messages ingested through sync runs.",
		},
		[]string{"org_id", "kind"},
	)

	MediaTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_media_tasks_submitted_total",
			Help: "Total number of media descriptor tasks submitted to the worker pool.",
		},
		[]string{"org_id"},
	)
	MediaTasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_media_tasks_processed_total",
			Help: "Total number of media descriptor tasks processed, labeled by outcome.",
		},
		[]string{"org_id", "status"},
	)
	MediaQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_archive_media_queue_length",
		Help: "Current number of media tasks waiting in the worker pool.",
	})

	// Load generator metrics, used only by cmd/tester.
	loadgenLabels = []string{"subject", "org_id"}

	LoadgenMessagesAttemptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_loadgen_messages_attempted_total",
			Help: "Total number of synthetic events the load generator attempted to publish.",
		},
		loadgenLabels,
	)
	LoadgenMessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_loadgen_messages_published_total",
			Help: "Total number of synthetic events successfully published to NATS.",
		},
		loadgenLabels,
	)
	LoadgenPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_archive_loadgen_publish_errors_total",
			Help: "Total number of failed synthetic event publish attempts.",
		},
		loadgenLabels,
	)
)

// InitMetrics toggles metric collection. promauto has already registered the
// collectors; this only gates the helper functions below.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// sanitizeOrg keeps label cardinality bounded when the org ID is missing.
func sanitizeOrg(org string) string {
	if strings.TrimSpace(org) == "" {
		return "unknown"
	}
	return org
}

// IncEventsReceived increments the received events counter.
func IncEventsReceived(eventType, org string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, sanitizeOrg(org)).Inc()
}

// IncEventsProcessed increments the processed events counter.
func IncEventsProcessed(eventType, org string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, sanitizeOrg(org)).Inc()
}

// IncEventsFailed increments the failed events counter.
func IncEventsFailed(eventType, org string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, sanitizeOrg(org)).Inc()
}

// ObserveEventProcessingDuration records how long one event took end to end.
func ObserveEventProcessingDuration(eventType, org string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeOrg(org)).Observe(duration.Seconds())
}

// IncEventProcessingAction counts a post-processing decision (ack, nak, term).
func IncEventProcessingAction(eventType, org, action, errorType string) {
	if !metricsEnabled {
		return
	}
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeOrg(org), action, errorType).Inc()
}

// IncAckRegression counts a discarded out-of-order ack update.
func IncAckRegression(org string) {
	if !metricsEnabled {
		return
	}
	AckRegressionsTotal.WithLabelValues(sanitizeOrg(org)).Inc()
}

// ObserveDbOperationDuration records one repository operation.
func ObserveDbOperationDuration(operation, entity, org string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeOrg(org), status).Observe(duration.Seconds())
}

// IncSyncRunStarted counts a sync run entering the started state.
func IncSyncRunStarted(org, kind string) {
	if !metricsEnabled {
		return
	}
	SyncRunsStartedTotal.WithLabelValues(sanitizeOrg(org), kind).Inc()
}

// IncSyncRunFinished counts a sync run settling to completed or failed.
func IncSyncRunFinished(org, kind, status string) {
	if !metricsEnabled {
		return
	}
	SyncRunsFinishedTotal.WithLabelValues(sanitizeOrg(org), kind, status).Inc()
}

// AddSyncedMessages counts messages ingested by a sync run.
func AddSyncedMessages(org, kind string, n int) {
	if !metricsEnabled || n <= 0 {
		return
	}
	SyncedMessagesTotal.WithLabelValues(sanitizeOrg(org), kind).Add(float64(n))
}

// IncMediaTasksSubmitted counts a media task handed to the pool.
func IncMediaTasksSubmitted(org string) {
	if !metricsEnabled {
		return
	}
	MediaTasksSubmittedTotal.WithLabelValues(sanitizeOrg(org)).Inc()
}

// IncMediaTasksProcessed counts a finished media task by outcome.
func IncMediaTasksProcessed(org, status string) {
	if !metricsEnabled {
		return
	}
	MediaTasksProcessedTotal.WithLabelValues(sanitizeOrg(org), status).Inc()
}

// SetMediaQueueLength publishes the pool's waiting task count.
func SetMediaQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	MediaQueueLength.Set(float64(length))
}

// IncLoadgenMessagesAttempted counts a synthetic event the load generator tried to send.
func IncLoadgenMessagesAttempted(subject, org string) {
	if !metricsEnabled {
		return
	}
	LoadgenMessagesAttemptedTotal.WithLabelValues(subject, sanitizeOrg(org)).Inc()
}

// IncLoadgenMessagesPublished counts a synthetic event accepted by NATS.
func IncLoadgenMessagesPublished(subject, org string) {
	if !metricsEnabled {
		return
	}
	LoadgenMessagesPublishedTotal.WithLabelValues(subject, sanitizeOrg(org)).Inc()
}

// IncLoadgenPublishErrors counts a failed synthetic event publish.
func IncLoadgenPublishErrors(subject, org string) {
	if !metricsEnabled {
		return
	}
	LoadgenPublishErrorsTotal.WithLabelValues(subject, sanitizeOrg(org)).Inc()
}

// SanitizeErrorType maps an arbitrary error string to a bounded label value.
func SanitizeErrorType(errStr string) string {
	errStr = strings.ToLower(errStr)
	switch {
	case strings.Contains(errStr, "validation"):
		return "validation"
	case strings.Contains(errStr, "unauthorized"):
		return "unauthorized"
	case strings.Contains(errStr, "conflict"):
		return "conflict"
	case strings.Contains(errStr, "duplicate"):
		return "duplicate"
	case strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "database"):
		return "database"
	case strings.Contains(errStr, "nats"):
		return "nats"
	case strings.Contains(errStr, "integrity"):
		return "integrity"
	case errStr == "":
		return "none"
	default:
		return "other"
	}
}
