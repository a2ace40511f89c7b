package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	CarrierErrors     *prometheus.CounterVec
	TokenRefreshes    *prometheus.CounterVec
	OrdersExpired     prometheus.Counter
	OrderTransitions  *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
}

// NewMetrics creates metrics and registers them with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_requests_total",
				Help: "Total number of requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_request_duration_seconds",
				Help:    "Request duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_carrier_errors_total",
				Help: "Total carrier API errors by operation and error type",
			},
			[]string{"operation", "error_type"},
		),
		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_carrier_token_refreshes_total",
				Help: "Carrier OAuth token refresh exchanges by result",
			},
			[]string{"result"},
		),
		OrdersExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fulfillment_orders_expired_total",
				Help: "Pending orders cancelled by the expiry sweep",
			},
		),
		OrderTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_order_transitions_total",
				Help: "Committed order status transitions by target status",
			},
			[]string{"status"},
		),
		WebhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_webhook_deliveries_total",
				Help: "Outbound order webhook deliveries by result",
			},
			[]string{"result"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCarrierError records a carrier error metric.
func (m *Metrics) RecordCarrierError(operation, errorType string) {
	m.CarrierErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordTokenRefresh records the outcome of a token refresh exchange.
func (m *Metrics) RecordTokenRefresh(result string) {
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

// RecordExpired adds n sweep-cancelled orders.
func (m *Metrics) RecordExpired(n int64) {
	if n > 0 {
		m.OrdersExpired.Add(float64(n))
	}
}

// RecordTransition records a committed order transition.
func (m *Metrics) RecordTransition(status string) {
	m.OrderTransitions.WithLabelValues(status).Inc()
}

// RecordWebhook records a webhook delivery outcome.
func (m *Metrics) RecordWebhook(result string) {
	m.WebhookDeliveries.WithLabelValues(result).Inc()
}
