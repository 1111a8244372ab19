package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All collectors register with the default registry through promauto.
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tia_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tia_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	IntentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tia_purchase_intents_created_total",
			Help: "Purchase intents persisted after a gateway order was created",
		},
	)

	ConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tia_payment_confirmations_total",
			Help: "Payment confirmations by outcome",
		},
		[]string{"outcome"},
	)

	UnitsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tia_ticket_units_issued_total",
			Help: "Ticket units minted",
		},
	)

	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tia_admissions_total",
			Help: "Admission scans by result status",
		},
		[]string{"status"},
	)

	ArtifactFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tia_artifact_failures_total",
			Help: "Ticket PDFs that could not be rendered",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tia_notifications_total",
			Help: "Notification sends by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tia_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tia_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tia_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
