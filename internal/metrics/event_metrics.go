package metrics

import "github.com/prometheus/client_golang/prometheus"

// EventMetrics — метрики потребителя событий витрины.
type EventMetrics struct {
	consumed    *prometheus.CounterVec
	stockAlerts prometheus.Counter
}

// NewEventMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewEventMetricsWithRegisterer(registerer prometheus.Registerer) *EventMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &EventMetrics{
		consumed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_events_consumed_total",
			Help: "Total number of storefront events consumed grouped by event type",
		}, []string{"event_type"}),
		stockAlerts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_alerts_total",
			Help: "Total number of stock depletion alerts raised",
		}),
	}
}

// ObserveEvent учитывает обработанное событие.
func (m *EventMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.consumed.WithLabelValues(eventType).Inc()
}

// ObserveStockAlert учитывает оповещение о закончившемся размере.
func (m *EventMetrics) ObserveStockAlert() {
	if m == nil {
		return
	}
	m.stockAlerts.Inc()
}
