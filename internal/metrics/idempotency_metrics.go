package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdempotencyMetrics — метрики очистки ключей идемпотентности по транспортам (grpc, http).
type IdempotencyMetrics struct {
	sweeps     *prometheus.CounterVec
	purged     *prometheus.CounterVec
	lastPurged *prometheus.GaugeVec
}

// NewIdempotencyMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторный вызов с тем же registerer возвращает уже зарегистрированные коллекторы.
func NewIdempotencyMetricsWithRegisterer(registerer prometheus.Registerer) *IdempotencyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &IdempotencyMetrics{
		sweeps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_sweeps_total",
			Help: "Total number of idempotency key sweeps grouped by result",
		}, []string{"result"}),
		purged: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_purged_total",
			Help: "Total number of expired idempotency keys removed grouped by transport",
		}, []string{"source"}),
		lastPurged: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "storefront_idempotency_last_sweep_purged",
			Help: "Expired idempotency keys removed by the last sweep grouped by transport",
		}, []string{"source"}),
	}
}

// RecordSweep учитывает завершённый проход очистки с результатом ok или error.
func (m *IdempotencyMetrics) RecordSweep(result string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result).Inc()
}

// RecordPurged учитывает удалённые ключи транспорта за последний проход.
func (m *IdempotencyMetrics) RecordPurged(source string, purged int) {
	if m == nil {
		return
	}
	m.purged.WithLabelValues(source).Add(float64(purged))
	m.lastPurged.WithLabelValues(source).Set(float64(purged))
}
