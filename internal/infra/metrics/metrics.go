package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LeadsExtracted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leads_extracted_total",
		Help: "Количество извлечённых пар «получатель — сделка»",
	})
	DeliveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_delivery_attempts_total",
		Help: "Попытки записи в леджер по вкладкам и статусу",
	}, []string{"bucket", "status"})
	DeliverySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_delivery_seconds",
		Help:    "Время записи одной строки в леджер со всеми повторами",
		Buckets: prometheus.DefBuckets,
	})
	OverflowSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overflow_saved_total",
		Help: "Записи, ушедшие в дисковую очередь после исчерпания повторов",
	})
	OverflowRestored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overflow_restored_total",
		Help: "Записи, восстановленные из дисковой очереди в леджер",
	})
	AckReminders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ack_reminders_total",
		Help: "Отправленные напоминания о подтверждении по номеру шага",
	}, []string{"step"})
	AckConfirmed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ack_confirmed_total",
		Help: "Подтверждённые лиды",
	})
	AckExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ack_expired_total",
		Help: "Сессии, истёкшие без подтверждения",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		LeadsExtracted,
		DeliveryAttempts,
		DeliverySeconds,
		OverflowSaved,
		OverflowRestored,
		AckReminders,
		AckConfirmed,
		AckExpired,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
