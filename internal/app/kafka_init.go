package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokerList []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers возвращает publisher событий и DLQ-publisher поверх producer.
// Без producer оба nil: outbox worker не запускается, события копятся в outbox.
func outboxPublishers(producer *kafka.Producer, cfg Config) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return nil, nil
	}
	dlqTopic := cfg.KafkaDLQ
	if dlqTopic == "" {
		dlqTopic = kafka.TopicDeadLetterQueue
	}
	return kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), kafka.NewOutboxPublisher(producer, dlqTopic)
}

// outboxRoutes возвращает publisher'ы для типов событий, вынесенных в отдельные топики.
func outboxRoutes(producer *kafka.Producer, cfg Config) []outbox.Option {
	if producer == nil || cfg.KafkaStockAlertsTopic == "" || cfg.KafkaStockAlertsTopic == cfg.KafkaTopic {
		return nil
	}
	return []outbox.Option{
		outbox.WithRoute(domain.EventProductStockDepleted, kafka.NewOutboxPublisher(producer, cfg.KafkaStockAlertsTopic)),
	}
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
