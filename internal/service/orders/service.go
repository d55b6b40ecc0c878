package orders

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Details — заказ вместе с его таймлайном.
type Details struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// Service — административные операции над заказами и поддержка
// денормализованного списка заказов пользователя.
type Service struct {
	orders   domain.OrderRepository
	users    domain.UserRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
}

// NewService создаёт сервис заказов. outbox и timeline могут быть nil.
func NewService(
	orders domain.OrderRepository,
	users domain.UserRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders")
	}
	return &Service{
		orders:   orders,
		users:    users,
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
	}
}

// Get возвращает заказ и его таймлайн.
func (s *Service) Get(ctx context.Context, id string) (Details, error) {
	order, err := s.orders.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Details{}, domain.WrapStoreError("get order", err)
	}
	details := Details{Order: order}
	if s.timeline != nil {
		events, err := s.timeline.List(ctx, order.ID)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to load timeline")
		} else {
			details.Timeline = events
		}
	}
	return details, nil
}

// ListForUser возвращает заказы пользователя, новые первыми.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.NewValidationError(domain.ErrUserIDRequired)
	}
	orders, err := s.orders.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, domain.WrapStoreError("list user orders", err)
	}
	return orders, nil
}

// ListForPhone находит пользователя по телефону и возвращает его заказы.
func (s *Service) ListForPhone(ctx context.Context, phone string, limit int) ([]domain.Order, error) {
	phone = domain.NormalizePhone(phone)
	if phone == "" {
		return nil, domain.NewValidationError(domain.ErrPhoneRequired)
	}
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return nil, domain.WrapStoreError("find user", err)
	}
	return s.ListForUser(ctx, user.ID, limit)
}

// ListAll возвращает все заказы (админка), новые первыми.
func (s *Service) ListAll(ctx context.Context, limit int) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, limit)
	if err != nil {
		return nil, domain.WrapStoreError("list orders", err)
	}
	return orders, nil
}

// UpdateStatus переводит заказ в любой допустимый статус, в том числе назад.
func (s *Service) UpdateStatus(ctx context.Context, id, rawStatus string) (domain.Order, error) {
	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.Order{}, err
	}
	current, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, domain.WrapStoreError("get order", err)
	}

	updated, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return domain.Order{}, domain.WrapStoreError("update order status", err)
	}
	// Повтор того же статуса обновляет только updated_at: без события и записи в таймлайне.
	if current.Status == status {
		return updated, nil
	}

	s.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:  updated.ID,
		Type:     domain.TimelineOrderStatusChanged,
		Reason:   string(current.Status) + " -> " + string(updated.Status),
		Occurred: updated.UpdatedAt,
	})
	s.enqueue(ctx, updated.ID, domain.EventOrderStatusChanged, domain.OrderStatusChangedEvent{
		OrderID:   updated.ID,
		Previous:  current.Status,
		Status:    updated.Status,
		ChangedAt: updated.UpdatedAt,
	})
	s.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"from":     current.Status,
		"to":       updated.Status,
	}).Info("order status changed")
	return updated, nil
}

// Delete удаляет заказ, затем убирает его ID из списка пользователя и его таймлайн.
// Эти шаги не атомарны с первым: ошибки только логируются.
func (s *Service) Delete(ctx context.Context, id string) (domain.Order, error) {
	deleted, err := s.orders.Delete(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, domain.WrapStoreError("delete order", err)
	}

	if deleted.UserID != "" {
		if err := s.users.RemoveOrderID(ctx, deleted.UserID, deleted.ID); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": deleted.ID,
				"user_id":  deleted.UserID,
			}).Warn("failed to remove order id from user")
		}
	}

	if s.timeline != nil {
		if _, err := s.timeline.DeleteForOrder(ctx, deleted.ID); err != nil {
			s.logger.WithError(err).WithField("order_id", deleted.ID).Warn("failed to delete order timeline")
		}
	}

	s.enqueue(ctx, deleted.ID, domain.EventOrderDeleted, domain.OrderRemovedEvent{
		OrderID:   deleted.ID,
		UserID:    deleted.UserID,
		RemovedAt: time.Now().UTC(),
	})
	s.logger.WithField("order_id", deleted.ID).Info("order deleted")
	return deleted, nil
}

// RebuildUserIndex пересчитывает список заказов пользователя по хранилищу заказов.
func (s *Service) RebuildUserIndex(ctx context.Context, userID string) ([]string, error) {
	user, err := s.users.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, domain.WrapStoreError("get user", err)
	}
	orders, err := s.orders.ListByUser(ctx, user.ID, 0)
	if err != nil {
		return nil, domain.WrapStoreError("list user orders", err)
	}

	// в списке пользователя заказы идут в порядке оформления
	ids := make([]string, 0, len(orders))
	for i := len(orders) - 1; i >= 0; i-- {
		ids = append(ids, orders[i].ID)
	}
	if err := s.users.ReplaceOrderIDs(ctx, user.ID, ids); err != nil {
		return nil, domain.WrapStoreError("replace order ids", err)
	}

	s.logger.WithFields(log.Fields{
		"user_id": user.ID,
		"before":  len(user.OrderIDs),
		"after":   len(ids),
	}).Info("user order index rebuilt")
	return ids, nil
}

func (s *Service) appendTimeline(ctx context.Context, event domain.TimelineEvent) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithField("order_id", event.OrderID).Warn("append timeline event failed")
	}
}

func (s *Service) enqueue(ctx context.Context, orderID, eventType string, payload any) {
	if s.outbox == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return
	}
	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       data,
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("enqueue event failed")
	}
}
