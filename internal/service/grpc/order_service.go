package grpcsvc

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
)

// OrderService реализует gRPC API витрины поверх сервисов оформления и заказов.
type OrderService struct {
	storefrontv1.UnimplementedOrderServiceServer

	checkout *checkout.Service
	orders   *orders.Service
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
}

const defaultListOrdersLimit = 100

// NewOrderService конструирует сервис с зависимостями. idemRepo может быть nil:
// тогда idempotency-key не требуется.
func NewOrderService(
	checkoutSvc *checkout.Service,
	ordersSvc *orders.Service,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-service")
	}
	return &OrderService{
		checkout: checkoutSvc,
		orders:   ordersSvc,
		idemRepo: idemRepo,
		logger:   logger,
	}
}

// PlaceOrders оформляет корзину: по заказу на позицию.
// Частичный успех возвращается как обычный ответ с заполненным Failure.
func (s *OrderService) PlaceOrders(ctx context.Context, req *storefrontv1.PlaceOrdersRequest) (*storefrontv1.PlaceOrdersResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if len(req.Items) == 0 {
		return nil, status.Error(codes.InvalidArgument, "at least one item is required")
	}

	return withIdempotency(s, ctx, storefrontv1.OrderService_PlaceOrders_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.PlaceOrdersResponse, error) {
			return s.placeOrdersInternal(ctx, req)
		},
	)
}

func (s *OrderService) placeOrdersInternal(ctx context.Context, req *storefrontv1.PlaceOrdersRequest) (*storefrontv1.PlaceOrdersResponse, error) {
	result, err := s.checkout.Place(ctx, fromPlaceRequest(req))

	resp := &storefrontv1.PlaceOrdersResponse{Orders: toWireOrders(result.Orders)}
	resp.Placed = int32(len(resp.Orders)) //nolint:gosec // размер корзины ограничен транспортом.
	if err == nil {
		return resp, nil
	}

	itemErr, ok := checkout.AsItemError(err)
	if !ok {
		return nil, s.toStatus(err, "PlaceOrders")
	}
	s.logger.WithError(err).WithFields(log.Fields{
		"item":   itemErr.Index,
		"placed": itemErr.Placed,
		"reason": itemErr.Reason(),
	}).Warn("checkout stopped at line item")
	resp.Failure = toWireFailure(itemErr)
	return resp, nil
}

// GetOrder возвращает заказ и таймлайн событий.
func (s *OrderService) GetOrder(ctx context.Context, req *storefrontv1.GetOrderRequest) (*storefrontv1.GetOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}

	details, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}
	return &storefrontv1.GetOrderResponse{
		Order:    toWireOrder(details.Order),
		Timeline: toWireTimeline(details.Timeline),
	}, nil
}

// ListOrders возвращает заказы пользователя по ID или телефону.
func (s *OrderService) ListOrders(ctx context.Context, req *storefrontv1.ListOrdersRequest) (*storefrontv1.ListOrdersResponse, error) {
	if req == nil || (strings.TrimSpace(req.UserID) == "" && strings.TrimSpace(req.Phone) == "") {
		return nil, status.Error(codes.InvalidArgument, "userId or phone is required")
	}

	limit := int(req.Limit)
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}

	var (
		list []domain.Order
		err  error
	)
	if strings.TrimSpace(req.UserID) != "" {
		list, err = s.orders.ListForUser(ctx, req.UserID, limit)
	} else {
		list, err = s.orders.ListForPhone(ctx, req.Phone, limit)
	}
	if err != nil {
		return nil, s.toStatus(err, "ListOrders")
	}
	return &storefrontv1.ListOrdersResponse{Orders: toWireOrders(list)}, nil
}

// UpdateOrderStatus меняет статус заказа.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, req *storefrontv1.UpdateOrderStatusRequest) (*storefrontv1.UpdateOrderStatusResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}

	return withIdempotency(s, ctx, storefrontv1.OrderService_UpdateOrderStatus_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.UpdateOrderStatusResponse, error) {
			order, err := s.orders.UpdateStatus(ctx, req.OrderID, req.Status)
			if err != nil {
				return nil, s.toStatus(err, "UpdateOrderStatus")
			}
			return &storefrontv1.UpdateOrderStatusResponse{Order: toWireOrder(order)}, nil
		},
	)
}

// DeleteOrder удаляет заказ и убирает его из списка пользователя.
func (s *OrderService) DeleteOrder(ctx context.Context, req *storefrontv1.DeleteOrderRequest) (*storefrontv1.DeleteOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}

	order, err := s.orders.Delete(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "DeleteOrder")
	}
	return &storefrontv1.DeleteOrderResponse{Order: toWireOrder(order)}, nil
}

// toStatus переводит доменную ошибку в gRPC-статус. Ошибки хранилища
// наружу не раскрываются.
func (s *OrderService) toStatus(err error, operation string) error {
	switch {
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case domain.IsInsufficientStock(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.IsConflict(err):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithError(err).WithField("operation", operation).Error("request failed")
		return status.Error(codes.Internal, "internal storage error")
	}
}
