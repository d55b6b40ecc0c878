package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithDLQPublisher задаёт publisher для событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) {
		w.dlqPublisher = publisher
	}
}

// WithRoute отправляет события eventType в отдельный publisher (например, топик
// оповещений об остатках) вместо основного.
func WithRoute(eventType string, publisher domain.OutboxPublisher) Option {
	return func(w *Worker) {
		if publisher == nil {
			return
		}
		if w.routes == nil {
			w.routes = make(map[string]domain.OutboxPublisher)
		}
		w.routes[eventType] = publisher
	}
}

// WithMetrics задаёт метрики; по умолчанию они регистрируются в prometheus.DefaultRegisterer.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		w.pollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(w *Worker) {
		w.batchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(w *Worker) {
		w.maxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовую задержку экспоненциального backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		w.retryBaseDelay = delay
	}
}

// Report — итог одного прохода по outbox.
type Report struct {
	Sent         int
	Failed       int
	DeadLettered int
}

// Worker публикует pending-события витрины (order.*, product.stock_depleted) в брокер.
// Оповещения об исчерпании остатков уходят первыми в каждом батче.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	routes         map[string]domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	metrics        *metrics.OutboxMetrics
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.metrics == nil {
		w.metrics = metrics.NewOutboxMetricsWithRegisterer(nil)
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.retryBaseDelay < 0 {
		w.retryBaseDelay = 0
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		report := w.ProcessOnce(ctx)
		if report.Failed > 0 {
			w.logger.WithFields(log.Fields{
				"sent":          report.Sent,
				"failed":        report.Failed,
				"dead_lettered": report.DeadLettered,
			}).Warn("outbox batch finished with failures")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует один батч pending-событий.
func (w *Worker) ProcessOnce(ctx context.Context) Report {
	var report Report
	if ctx.Err() != nil {
		return report
	}

	w.refreshBacklog(ctx)

	events, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return report
	}
	if len(events) == 0 {
		return report
	}
	prioritize(events)

	for _, event := range events {
		if ctx.Err() != nil {
			return report
		}

		if err := w.publishWithRetry(ctx, event); err != nil {
			report.Failed++
			w.logger.WithError(err).WithFields(log.Fields{
				"outbox_id":    event.ID,
				"event_type":   event.EventType,
				"aggregate_id": event.AggregateID,
			}).Error("outbox publish failed after retries")
			w.metrics.RecordAttempt(event.EventType, metrics.OutboxResultFailed)

			if dead, dlqErr := w.publishToDLQ(ctx, event, err); dlqErr != nil {
				w.logger.WithError(dlqErr).WithField("outbox_id", event.ID).Warn("failed to publish to DLQ")
				w.metrics.RecordAttempt(event.EventType, metrics.OutboxResultDLQFailed)
			} else if dead {
				report.DeadLettered++
			}
			if markErr := w.repo.MarkFailed(ctx, event.ID); markErr != nil {
				w.logger.WithError(markErr).WithField("outbox_id", event.ID).Warn("failed to mark outbox as failed")
			}
			continue
		}

		report.Sent++
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			w.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to mark outbox as sent")
		}
	}

	w.refreshBacklog(ctx)
	return report
}

// prioritize ставит оповещения об остатках в начало батча. Сортировка устойчивая,
// поэтому порядок событий одного агрегата не меняется.
func prioritize(events []domain.OutboxMessage) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventType == domain.EventProductStockDepleted &&
			events[j].EventType != domain.EventProductStockDepleted
	})
}

func (w *Worker) publisherFor(eventType string) domain.OutboxPublisher {
	if publisher, ok := w.routes[eventType]; ok {
		return publisher
	}
	return w.publisher
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	publisher := w.publisherFor(event.EventType)
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := publisher.Publish(ctx, event)
		if err == nil {
			w.metrics.RecordAttempt(event.EventType, metrics.OutboxResultSent)
			return nil
		}
		lastErr = err
		w.metrics.RecordAttempt(event.EventType, metrics.OutboxResultRetry)

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	w.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt, w.now())
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return w.retryBaseDelay
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

// DeadLetter — тело сообщения в DLQ. cmd/dlq-reprocess читает те же поля.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

func (w *Worker) publishToDLQ(ctx context.Context, event domain.OutboxMessage, publishErr error) (bool, error) {
	if w.dlqPublisher == nil {
		return false, nil
	}

	var original json.RawMessage
	if len(event.Payload) > 0 {
		original = json.RawMessage(event.Payload)
	}
	payload, err := json.Marshal(DeadLetter{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        original,
		PublishError:   publishErr.Error(),
		EnqueuedAt:     event.CreatedAt.UTC(),
		DLQPublishedAt: w.now(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal dlq payload: %w", err)
	}

	dead := event
	dead.Payload = payload
	if err := w.dlqPublisher.Publish(ctx, dead); err != nil {
		return false, fmt.Errorf("publish to dlq: %w", err)
	}
	return true, nil
}
