package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const defaultGroupID = "storefront-stock-alerts"

type options struct {
	configPath  string
	groupID     string
	metricsAddr string
	maxRetries  int
}

// settings — итоговые параметры consumer'а: флаги поверх общей конфигурации витрины.
type settings struct {
	brokers     []string
	topic       string
	dlqTopic    string
	groupID     string
	metricsAddr string
	maxRetries  int
}

type alertConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

var (
	newDLQProducer = kafka.NewProducer
	newConsumer    = func(brokers []string, groupID string, topics []string, handler kafka.MessageHandler, opts ...kafka.ConsumerOption) (alertConsumer, error) {
		return kafka.NewConsumer(brokers, groupID, topics, handler, opts...)
	}
)

func parseOptions(args []string, output io.Writer) (options, error) {
	opts := options{}
	fs := flag.NewFlagSet("stock-alerts", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "path to YAML config (overrides "+app.EnvConfigPath+")")
	fs.StringVar(&opts.groupID, "group", defaultGroupID, "Kafka consumer group")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "address for /metrics; empty disables the endpoint")
	fs.IntVar(&opts.maxRetries, "max-retries", 3, "handler retries before the message goes to DLQ")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if strings.TrimSpace(opts.groupID) == "" {
		return options{}, errors.New("group is required")
	}
	if opts.maxRetries < 0 {
		return options{}, errors.New("max-retries must be >= 0")
	}
	return opts, nil
}

func loadSettings(opts options) (settings, error) {
	cfg, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return settings{}, err
	}
	if err := app.ConfigureLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return settings{}, err
	}

	s := settings{
		brokers:     cfg.Brokers(),
		topic:       cfg.KafkaTopic,
		dlqTopic:    cfg.KafkaDLQ,
		groupID:     opts.groupID,
		metricsAddr: opts.metricsAddr,
		maxRetries:  opts.maxRetries,
	}
	if len(s.brokers) == 0 {
		return settings{}, errors.New("kafka_brokers is required")
	}
	if cfg.KafkaStockAlertsTopic != "" {
		s.topic = cfg.KafkaStockAlertsTopic
	}
	if s.topic == "" {
		s.topic = kafka.TopicOrderEvents
	}
	return s, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "stock-alerts")

	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.WithError(err).Fatal("invalid flags")
	}
	s, err := loadSettings(opts)
	if err != nil {
		logger.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, s, prometheus.NewRegistry(), logger); err != nil {
		logger.WithError(err).Fatal("stock alerts consumer failed")
	}
}

// run читает события витрины до отмены ctx. Необработанные после всех
// повторов сообщения уходят в DLQ.
func run(ctx context.Context, s settings, registry *prometheus.Registry, logger *log.Entry) error {
	producer, err := newDLQProducer(s.brokers)
	if err != nil {
		return fmt.Errorf("create dlq producer: %w", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close dlq producer")
		}
	}()

	handler := kafka.NewStockAlertHandler(nil, metrics.NewEventMetricsWithRegisterer(registry), logger)
	consumer, err := newConsumer(s.brokers, s.groupID, []string{s.topic}, handler.Handle,
		kafka.WithDLQ(producer, s.dlqTopic),
		kafka.WithMaxRetries(s.maxRetries),
		kafka.WithConsumerLogger(logger.WithField("group", s.groupID)),
	)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	var metricsServer *http.Server
	if s.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: s.metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	logger.WithFields(log.Fields{
		"topic":     s.topic,
		"group":     s.groupID,
		"dlq_topic": s.dlqTopic,
	}).Info("stock alerts consumer started")

	<-ctx.Done()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return consumer.Stop()
}
