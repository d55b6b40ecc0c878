package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Итоги оформления заказа.
const (
	OutcomePlaced  = "placed"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// CheckoutMetrics содержит метрики оформления заказов.
type CheckoutMetrics struct {
	checkouts     *prometheus.CounterVec
	ordersPlaced  prometheus.Counter
	itemsFailed   *prometheus.CounterVec
	compensations prometheus.Counter
	stockDepleted prometheus.Counter

	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для оформлений в процессе
	activeCheckouts prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Total number of checkout submissions grouped by outcome",
		}, []string{"outcome"}),
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders created by checkout",
		}),
		itemsFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_items_failed_total",
			Help: "Total number of line items rejected during checkout grouped by reason",
		}, []string{"reason"}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_compensations_total",
			Help: "Total number of committed line items rolled back after a later failure",
		}),
		stockDepleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_depleted_total",
			Help: "Total number of product sizes that reached zero stock",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout submissions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_checkouts",
			Help: "Number of checkout submissions currently in progress",
		}),
	}
}

// RecordCheckoutStarted увеличивает число активных оформлений.
func (m *CheckoutMetrics) RecordCheckoutStarted() {
	m.activeCheckouts.Inc()
}

// RecordCheckoutFinished фиксирует итог и длительность оформления.
func (m *CheckoutMetrics) RecordCheckoutFinished(outcome string, duration time.Duration) {
	m.activeCheckouts.Dec()
	m.checkouts.WithLabelValues(outcome).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordOrderPlaced увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordOrderPlaced() {
	m.ordersPlaced.Inc()
}

// RecordItemFailed увеличивает счётчик отклонённых позиций.
func (m *CheckoutMetrics) RecordItemFailed(reason string) {
	m.itemsFailed.WithLabelValues(reason).Inc()
}

// RecordCompensation увеличивает счётчик откатанных позиций.
func (m *CheckoutMetrics) RecordCompensation() {
	m.compensations.Inc()
}

// RecordStockDepleted увеличивает счётчик обнулившихся размеров.
func (m *CheckoutMetrics) RecordStockDepleted() {
	m.stockDepleted.Inc()
}

// RecordStepDuration записывает время выполнения шага оформления.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
