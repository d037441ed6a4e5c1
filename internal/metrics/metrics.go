// Package metrics содержит prometheus-метрики агента и сервера лицензий.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CreditsTracked кредиты, списанные агентом, по компонентам.
	CreditsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohost_agent_credits_tracked_total",
			Help: "Credits charged locally per component",
		},
		[]string{"component"},
	)

	// OutboxPending неподтверждённые сервером списания.
	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cohost_agent_outbox_pending",
			Help: "Usage deltas waiting for server acknowledgement",
		},
	)

	// OutboxDead списания, исчерпавшие попытки.
	OutboxDead = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cohost_agent_outbox_dead",
			Help: "Usage deltas that exhausted their retry budget",
		},
	)

	// SyncAttempts попытки отправки списаний по результату.
	SyncAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohost_agent_sync_attempts_total",
			Help: "Usage sync attempts by result",
		},
		[]string{"result"},
	)

	// LicenseChecks проверки лицензии агентом по источнику ответа.
	LicenseChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohost_agent_license_checks_total",
			Help: "License validations by source and validity",
		},
		[]string{"source", "valid"},
	)

	// ServerValidations проверки лицензии на сервере.
	ServerValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohost_server_validations_total",
			Help: "License validations served",
		},
		[]string{"valid"},
	)

	// ServerCreditsDebited кредиты, списанные сервером.
	ServerCreditsDebited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cohost_server_credits_debited_total",
			Help: "Credits debited from accounts",
		},
	)

	// ServerDuplicateUsage повторно присланные списания.
	ServerDuplicateUsage = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cohost_server_usage_duplicates_total",
			Help: "Usage updates ignored because their event id was already applied",
		},
	)

	// DemoRegistrations активации демо.
	DemoRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohost_server_demo_registrations_total",
			Help: "Demo registrations by result",
		},
		[]string{"result"},
	)

	// Payments платежи по статусу.
	Payments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohost_server_payments_total",
			Help: "Payments by status",
		},
		[]string{"status"},
	)

	// HTTPRequestDuration длительность HTTP-запросов сервера.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cohost_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// BoolLabel значение метки для булевых признаков.
func BoolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
