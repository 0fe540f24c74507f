package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oppgjor_queue_messages_total",
		Help: "Queue messages handled by intake, by outcome",
	}, []string{"outcome"})

	// Order processing
	OrdersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oppgjor_orders_processed_total",
		Help: "Order processing attempts, by outcome and error code",
	}, []string{"outcome", "code"})

	ReportsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oppgjor_reports_created_total",
		Help: "Reports created, by report type",
	}, []string{"type"})

	// Notification delivery
	NotificationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oppgjor_notification_attempts_total",
		Help: "Notification delivery attempts, by system, action and outcome",
	}, []string{"system", "action", "outcome"})

	NotificationsPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oppgjor_notifications_pending",
		Help: "Pending notification requests per system, sampled by the status endpoint",
	}, []string{"system"})

	// Archival
	ReportsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oppgjor_reports_archived_total",
		Help: "Reports archived by the archival task",
	})

	ProcessingDisabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oppgjor_processing_disabled",
		Help: "1 while background processing is paused",
	})
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeIdle    = "idle"
)
