package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		w.logger = logger
	}
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		w.interval = interval
	}
}

// WithBatchSize задаёт число ключей, удаляемых одним запросом к хранилищу.
func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) {
		w.batchSize = batchSize
	}
}

// WithMetrics задаёт метрики; по умолчанию они регистрируются в prometheus.DefaultRegisterer.
func WithMetrics(m *metrics.IdempotencyMetrics) CleanupOption {
	return func(w *CleanupWorker) {
		w.metrics = m
	}
}

// CleanupWorker удаляет просроченные ключи идемпотентности gRPC и HTTP и
// отчитывается по каждому транспорту отдельно.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	metrics   *metrics.IdempotencyMetrics
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewCleanupWorker создаёт воркер очистки ключей идемпотентности.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "idempotency-cleanup")
	}
	if w.metrics == nil {
		w.metrics = metrics.NewIdempotencyMetricsWithRegisterer(nil)
	}
	if w.interval <= 0 {
		w.interval = defaultCleanupInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultCleanupBatchSize
	}
	return w
}

// Run чистит ключи сразу и затем раз в interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: no idempotency store")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	purge, err := w.Sweep(ctx, w.now())
	if errors.Is(err, context.Canceled) {
		return
	}

	fields := log.Fields{}
	for _, source := range domain.IdempotencySources {
		w.metrics.RecordPurged(string(source), purge[source])
		fields[string(source)+"_purged"] = purge[source]
	}

	if err != nil {
		w.metrics.RecordSweep("error")
		w.logger.WithError(err).WithFields(fields).Warn("idempotency sweep stopped early")
		return
	}
	w.metrics.RecordSweep("ok")
	if purge.Total() > 0 {
		w.logger.WithFields(fields).Info("expired idempotency keys purged")
	}
}

// Sweep удаляет все ключи с ttl <= before порциями batchSize. При ошибке
// возвращает то, что успело удалиться.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (domain.IdempotencyPurge, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := make(domain.IdempotencyPurge, len(domain.IdempotencySources))
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return total, fmt.Errorf("delete expired idempotency keys: %w", err)
		}
		total.Merge(batch)

		if batch.Total() < w.batchSize {
			return total, nil
		}
	}
}
