// Package metrics holds the application's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	// MessagesProcessed counts inbound chat messages by outcome command.
	MessagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat_layer",
			Subsystem: "engine",
			Name:      "messages_total",
			Help:      "Inbound chat messages processed, labeled by parsed command.",
		},
		[]string{"command"},
	)

	// OperationsSettled counts settlement outcomes.
	OperationsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat_layer",
			Subsystem: "settlement",
			Name:      "operations_total",
			Help:      "Pending operations reaching a terminal state.",
		},
		[]string{"kind", "state"},
	)

	// NotificationsSent counts successful outbound deliveries.
	NotificationsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chat_layer",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications delivered to the chat channel.",
		},
	)

	// NotificationsFailed counts swallowed delivery failures.
	NotificationsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chat_layer",
			Subsystem: "notify",
			Name:      "failed_total",
			Help:      "Notification deliveries that failed and were dropped.",
		},
	)
)

func init() {
	Registry.MustRegister(MessagesProcessed, OperationsSettled, NotificationsSent, NotificationsFailed)
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
