package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	// List возвращает события заказа от старых к новым; при равном времени в порядке записи.
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
	// DeleteForOrder удаляет таймлайн удалённого заказа и возвращает число событий.
	DeleteForOrder(ctx context.Context, orderID string) (int, error)
}

// IdempotencyRepository хранит состояние обработки запросов по ключам идемпотентности.
// Ключи gRPC и HTTP хранятся раздельно.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key IdempotencyKey, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key IdempotencyKey) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key IdempotencyKey, responseBody []byte, statusCode int) error
	MarkFailed(ctx context.Context, key IdempotencyKey, responseBody []byte, statusCode int) error
	// DeleteExpired удаляет до limit записей с ttl <= before, самые старые первыми.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (IdempotencyPurge, error)
}

// Агрегаты, к которым относятся события outbox.
const (
	AggregateOrder   = "order"
	AggregateProduct = "product"
)

// Типы событий outbox.
const (
	EventOrderPlaced          = "order.placed"
	EventOrderStatusChanged   = "order.status_changed"
	EventOrderDeleted         = "order.deleted"
	EventOrderCompensated     = "order.compensated"
	EventProductStockDepleted = "product.stock_depleted"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
