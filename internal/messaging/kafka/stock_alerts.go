package kafka

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// StockAlert — оповещение о том, что размер товара закончился.
type StockAlert struct {
	domain.StockDepletedEvent
	EventID string
}

// StockAlertHandler разбирает события витрины и передаёт оповещения об
// исчерпанных остатках в notify. Прочие события только учитываются.
type StockAlertHandler struct {
	notify  func(context.Context, StockAlert) error
	metrics *metrics.EventMetrics
	logger  *log.Entry
}

// NewStockAlertHandler создаёт обработчик. notify == nil пишет оповещение в лог.
func NewStockAlertHandler(notify func(context.Context, StockAlert) error, m *metrics.EventMetrics, logger *log.Entry) *StockAlertHandler {
	if logger == nil {
		logger = log.WithField("component", "stock-alerts")
	}
	h := &StockAlertHandler{notify: notify, metrics: m, logger: logger}
	if h.notify == nil {
		h.notify = h.logAlert
	}
	return h
}

// Handle реализует MessageHandler.
func (h *StockAlertHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	env, err := ParseEnvelope(message)
	if err != nil {
		return err
	}
	h.metrics.ObserveEvent(env.EventType)

	if env.EventType != domain.EventProductStockDepleted {
		h.logger.WithFields(log.Fields{
			"event_type":   env.EventType,
			"aggregate_id": env.AggregateID,
		}).Debug("event skipped")
		return nil
	}

	var alert StockAlert
	if err := env.DecodePayload(&alert.StockDepletedEvent); err != nil {
		return err
	}
	alert.EventID = env.ID
	if alert.ProductID == "" {
		alert.ProductID = env.AggregateID
	}

	if err := h.notify(ctx, alert); err != nil {
		return err
	}
	h.metrics.ObserveStockAlert()
	return nil
}

func (h *StockAlertHandler) logAlert(_ context.Context, alert StockAlert) error {
	h.logger.WithFields(log.Fields{
		"product_id":   alert.ProductID,
		"product_name": alert.ProductName,
		"size":         alert.Size,
		"order_id":     alert.OrderID,
		"depleted_at":  alert.DepletedAt,
	}).Warn("product size is out of stock")
	return nil
}
