package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// EnvConfigPath задаёт путь к YAML-конфигу, если флаг -config не указан.
const EnvConfigPath = "STOREFRONT_CONFIG"

const envPrefix = "STOREFRONT_"

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	StorageDriver       string `yaml:"storage_driver"`
	PostgresDSN         string `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool   `yaml:"postgres_auto_migrate"`

	// KafkaBrokers — список брокеров через запятую; пусто означает работу без Kafka.
	KafkaBrokers string `yaml:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_topic"`
	KafkaDLQ     string `yaml:"kafka_dlq_topic"`
	// KafkaStockAlertsTopic — отдельный топик для product.stock_depleted; пусто означает KafkaTopic.
	KafkaStockAlertsTopic string `yaml:"kafka_stock_alerts_topic"`

	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`

	IdempotencyCleanupInterval  time.Duration `yaml:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `yaml:"idempotency_cleanup_batch_size"`

	CheckoutCompensate bool `yaml:"checkout_compensate"`

	// AdminPasswordHash — bcrypt-хэш пароля администратора. Пустой хэш отключает вход.
	AdminPasswordHash string        `yaml:"admin_password_hash"`
	AdminJWTSecret    string        `yaml:"admin_jwt_secret"`
	AdminTokenTTL     time.Duration `yaml:"admin_token_ttl"`

	UploadDir          string `yaml:"upload_dir"`
	UploadPublicPrefix string `yaml:"upload_public_prefix"`
	UploadMaxBytes     int64  `yaml:"upload_max_bytes"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		KafkaTopic:                  "storefront.order.events",
		KafkaDLQ:                    "storefront.dlq",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		AdminTokenTTL:               12 * time.Hour,
		UploadDir:                   "uploads",
		UploadPublicPrefix:          "/uploads/",
		UploadMaxBytes:              5 << 20,
		LogLevel:                    "info",
		LogFormat:                   "text",
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл (если задан),
// затем переменные окружения STOREFRONT_*.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"GRPC_ADDR":                &c.GRPCAddr,
		"HTTP_ADDR":                &c.HTTPAddr,
		"METRICS_ADDR":             &c.MetricsAddr,
		"STORAGE_DRIVER":           &c.StorageDriver,
		"POSTGRES_DSN":             &c.PostgresDSN,
		"KAFKA_BROKERS":            &c.KafkaBrokers,
		"KAFKA_TOPIC":              &c.KafkaTopic,
		"KAFKA_DLQ_TOPIC":          &c.KafkaDLQ,
		"KAFKA_STOCK_ALERTS_TOPIC": &c.KafkaStockAlertsTopic,
		"ADMIN_PASSWORD_HASH":      &c.AdminPasswordHash,
		"ADMIN_JWT_SECRET":         &c.AdminJWTSecret,
		"UPLOAD_DIR":               &c.UploadDir,
		"UPLOAD_PUBLIC_PREFIX":     &c.UploadPublicPrefix,
		"LOG_LEVEL":                &c.LogLevel,
		"LOG_FORMAT":               &c.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	bools := map[string]*bool{
		"POSTGRES_AUTO_MIGRATE": &c.PostgresAutoMigrate,
		"CHECKOUT_COMPENSATE":   &c.CheckoutCompensate,
	}
	for name, dst := range bools {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		parsed, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = parsed
	}

	ints := map[string]*int{
		"OUTBOX_BATCH_SIZE":              &c.OutboxBatchSize,
		"OUTBOX_MAX_ATTEMPTS":            &c.OutboxMaxAttempts,
		"IDEMPOTENCY_CLEANUP_BATCH_SIZE": &c.IdempotencyCleanupBatchSize,
	}
	for name, dst := range ints {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = parsed
	}

	if v, ok := lookup(envPrefix + "UPLOAD_MAX_BYTES"); ok {
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sUPLOAD_MAX_BYTES: %w", envPrefix, err)
		}
		c.UploadMaxBytes = parsed
	}

	durations := map[string]*time.Duration{
		"OUTBOX_POLL_INTERVAL":         &c.OutboxPollInterval,
		"OUTBOX_RETRY_DELAY":           &c.OutboxRetryDelay,
		"IDEMPOTENCY_CLEANUP_INTERVAL": &c.IdempotencyCleanupInterval,
		"ADMIN_TOKEN_TTL":              &c.AdminTokenTTL,
	}
	for name, dst := range durations {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = parsed
	}
	return nil
}

// parseBool дополнительно к strconv.ParseBool понимает yes/no и on/off.
func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(raw))
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var problems []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			problems = append(problems, errors.New("postgres_dsn is required for postgres storage"))
		}
	default:
		problems = append(problems, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.GRPCAddr == "" {
		problems = append(problems, errors.New("grpc_addr is required"))
	}
	if c.HTTPAddr == "" {
		problems = append(problems, errors.New("http_addr is required"))
	}
	if c.MetricsAddr == "" {
		problems = append(problems, errors.New("metrics_addr is required"))
	}
	if c.UploadMaxBytes <= 0 {
		problems = append(problems, errors.New("upload_max_bytes must be positive"))
	}
	if c.AdminPasswordHash != "" && c.AdminJWTSecret == "" {
		problems = append(problems, errors.New("admin_jwt_secret is required when admin_password_hash is set"))
	}
	return errors.Join(problems...)
}

// Brokers возвращает список Kafka-брокеров без пустых элементов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
