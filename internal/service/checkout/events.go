package checkout

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (s *Service) emitOrderPlaced(ctx context.Context, order domain.Order) {
	s.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.TimelineOrderPlaced,
		Occurred: order.CreatedAt,
	})
	s.enqueue(ctx, domain.AggregateOrder, order.ID, domain.EventOrderPlaced, domain.NewOrderPlacedEvent(order))
}

func (s *Service) emitOrderCompensated(ctx context.Context, order domain.Order) {
	now := time.Now().UTC()
	const reason = "checkout rolled back after a later line item failed"
	s.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.TimelineOrderCompensated,
		Reason:   reason,
		Occurred: now,
	})
	s.enqueue(ctx, domain.AggregateOrder, order.ID, domain.EventOrderCompensated, domain.OrderRemovedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reason:    reason,
		RemovedAt: now,
	})
}

func (s *Service) emitStockDepleted(ctx context.Context, product domain.Product, size, orderID string) {
	if s.metrics != nil {
		s.metrics.RecordStockDepleted()
	}
	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"size":       size,
	}).Info("product size sold out")
	s.enqueue(ctx, domain.AggregateProduct, product.ID, domain.EventProductStockDepleted, domain.StockDepletedEvent{
		ProductID:   product.ID,
		ProductName: product.Name,
		Size:        size,
		OrderID:     orderID,
		DepletedAt:  time.Now().UTC(),
	})
}

func (s *Service) appendTimeline(ctx context.Context, event domain.TimelineEvent) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"event":    event.Type,
		}).Warn("append timeline event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

// enqueue кладёт событие в outbox; ошибка не прерывает оформление.
func (s *Service) enqueue(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) {
	if s.outbox == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("marshal event failed")
		return
	}
	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("enqueue event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}
