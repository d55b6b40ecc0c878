package main

import (
	"context"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// embeddedServer — OrderService поверх in-memory хранилищ с заранее заведённым товаром и покупателем.
type embeddedServer struct {
	addr     string
	products domain.ProductRepository
	server   *grpc.Server
}

func startEmbeddedServer(ctx context.Context, cfg config, logger *log.Entry) (*embeddedServer, error) {
	products := memory.NewProductRepository()
	ordersRepo := memory.NewOrderRepository()
	users := memory.NewUserRepository()
	timeline := memory.NewTimelineRepository()
	outbox := memory.NewOutboxRepository()

	if err := products.Create(ctx, domain.Product{
		ID:         cfg.productID,
		Code:       "LOAD-" + cfg.productID,
		Name:       "Load test product",
		PriceMinor: 10000,
		Sizes:      []string{cfg.size},
		Stock:      domain.Stock{cfg.size: cfg.stock},
	}); err != nil {
		return nil, fmt.Errorf("seed product: %w", err)
	}
	if _, err := users.Create(ctx, domain.User{FullName: "Load Test", Phone: cfg.phone}); err != nil {
		return nil, fmt.Errorf("seed user: %w", err)
	}

	checkoutSvc := checkout.NewService(products, ordersRepo, users,
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithOutbox(outbox),
		checkout.WithTimeline(timeline),
	)
	ordersSvc := orders.NewService(ordersRepo, users, outbox, timeline, logger.WithField("component", "orders"))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	server := grpc.NewServer()
	storefrontv1.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(
		checkoutSvc, ordersSvc, memory.NewIdempotencyRepository(), logger.WithField("layer", "grpc"),
	))
	go func() {
		if err := server.Serve(lis); err != nil {
			logger.WithError(err).Warn("embedded grpc server stopped")
		}
	}()

	return &embeddedServer{addr: lis.Addr().String(), products: products, server: server}, nil
}

// remaining читает текущий остаток размера.
func (s *embeddedServer) remaining(ctx context.Context, productID, size string) (int, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.Stock[size], nil
}

func (s *embeddedServer) stop() {
	s.server.GracefulStop()
}
