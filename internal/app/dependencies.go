package app

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/upload"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Dependencies содержит сервисы приложения поверх выбранного хранилища.
type Dependencies struct {
	Catalog  *catalog.Service
	Accounts *account.Service
	Orders   *orders.Service
	Checkout *checkout.Service
	Uploads  *upload.Service
	Auth     *httpapi.Authenticator

	storage *runtimeStorage
	logger  *log.Entry
}

// newDependencies собирает сервисы. registerer используется для метрик checkout и HTTP.
func newDependencies(cfg Config, storage *runtimeStorage, registerer prometheus.Registerer, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	checkoutSvc := checkout.NewService(
		storage.products,
		storage.orders,
		storage.users,
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithOutbox(storage.outboxRepo),
		checkout.WithTimeline(storage.timelineRepo),
		checkout.WithMetrics(metrics.NewCheckoutMetricsWithRegisterer(registerer)),
		checkout.WithCompensation(cfg.CheckoutCompensate),
	)

	var uploads *upload.Service
	if cfg.UploadDir != "" {
		uploads = upload.NewService(cfg.UploadDir,
			upload.WithMaxBytes(cfg.UploadMaxBytes),
			upload.WithPublicPrefix(cfg.UploadPublicPrefix),
			upload.WithLogger(logger.WithField("component", "upload")),
		)
	}

	return &Dependencies{
		Catalog:  catalog.NewService(storage.products, logger.WithField("component", "catalog")),
		Accounts: account.NewService(storage.users, logger.WithField("component", "account")),
		Orders: orders.NewService(
			storage.orders,
			storage.users,
			storage.outboxRepo,
			storage.timelineRepo,
			logger.WithField("component", "orders"),
		),
		Checkout: checkoutSvc,
		Uploads:  uploads,
		Auth:     httpapi.NewAuthenticator(cfg.AdminPasswordHash, cfg.AdminJWTSecret, cfg.AdminTokenTTL),
		storage:  storage,
		logger:   logger,
	}
}

// grpcService возвращает реализацию storefront.v1.OrderService.
func (d *Dependencies) grpcService() *grpcsvc.OrderService {
	return grpcsvc.NewOrderService(d.Checkout, d.Orders, d.storage.idempotencyRepo, d.logger.WithField("layer", "grpc"))
}

// httpHandler собирает HTTP JSON API.
func (d *Dependencies) httpHandler(registerer prometheus.Registerer) *httpapi.Server {
	return httpapi.NewServer(httpapi.Dependencies{
		Catalog:     d.Catalog,
		Accounts:    d.Accounts,
		Orders:      d.Orders,
		Checkout:    d.Checkout,
		Uploads:     d.Uploads,
		Auth:        d.Auth,
		Idempotency: d.storage.idempotencyRepo,
		Metrics:     metrics.NewHTTPMetricsWithRegisterer(registerer),
		Logger:      d.logger.WithField("layer", "http"),
		Version:     version.Get().Version,
	})
}
