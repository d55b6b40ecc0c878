package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const (
	bufSize       = 1024 * 1024
	customerPhone = "+97688001122"
)

// recordingPublisher запоминает опубликованные outbox-сообщения.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) byType(eventType string) []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.OutboxMessage
	for _, event := range p.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

// OrderLifecycleTestSuite прогоняет заказ через gRPC API, outbox и обработчик оповещений.
type OrderLifecycleTestSuite struct {
	suite.Suite
	products  domain.ProductRepository
	outbox    *memory.OutboxRepository
	published *recordingPublisher
	worker    *outbox.Worker
	client    storefrontv1.OrderServiceClient
	conn      *grpc.ClientConn
	server    *grpc.Server
	keySeq    int
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	ctx := context.Background()
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	s.products = memory.NewProductRepository()
	ordersRepo := memory.NewOrderRepository()
	users := memory.NewUserRepository()
	timeline := memory.NewTimelineRepository()
	s.outbox = memory.NewOutboxRepository()

	s.Require().NoError(s.products.Create(ctx, domain.Product{
		ID:         "hoodie",
		Code:       "HD-01",
		Name:       "Hoodie",
		PriceMinor: 89000,
		Sizes:      []string{"M", "L"},
		Stock:      domain.Stock{"M": 2, "L": 1},
	}))
	s.Require().NoError(s.products.Create(ctx, domain.Product{
		ID:         "cap",
		Code:       "CP-01",
		Name:       "Cap",
		PriceMinor: 25000,
		Sizes:      []string{"ONE"},
	}))
	_, err := users.Create(ctx, domain.User{FullName: "Saraa Bold", Phone: customerPhone})
	s.Require().NoError(err)

	checkoutSvc := checkout.NewService(s.products, ordersRepo, users,
		checkout.WithLogger(logger),
		checkout.WithOutbox(s.outbox),
		checkout.WithTimeline(timeline),
	)
	ordersSvc := orders.NewService(ordersRepo, users, s.outbox, timeline, logger)

	s.published = &recordingPublisher{}
	s.worker = outbox.NewWorker(s.outbox, s.published, outbox.WithLogger(logger))

	lis := bufconn.Listen(bufSize)
	s.server = grpc.NewServer()
	storefrontv1.RegisterOrderServiceServer(s.server, grpcsvc.NewOrderService(
		checkoutSvc, ordersSvc, memory.NewIdempotencyRepository(), logger,
	))
	go func() { _ = s.server.Serve(lis) }()

	s.conn, err = grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)
	s.client = storefrontv1.NewOrderServiceClient(s.conn)
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	_ = s.conn.Close()
	s.server.Stop()
}

// call добавляет уникальный idempotency-key.
func (s *OrderLifecycleTestSuite) call() context.Context {
	s.keySeq++
	return metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", fmt.Sprintf("it-%s-%d", s.T().Name(), s.keySeq))
}

func (s *OrderLifecycleTestSuite) address() *storefrontv1.Address {
	return &storefrontv1.Address{FullName: "Saraa Bold", Address: "Seoul St 12", City: "Ulaanbaatar", District: "CHD"}
}

func (s *OrderLifecycleTestSuite) stock(productID, size string) int {
	product, err := s.products.Get(context.Background(), productID)
	s.Require().NoError(err)
	return product.Stock[size]
}

func (s *OrderLifecycleTestSuite) TestOrderLifecycle() {
	t := s.T()

	placed, err := s.client.PlaceOrders(s.call(), &storefrontv1.PlaceOrdersRequest{
		Phone:   customerPhone,
		Address: s.address(),
		Items: []storefrontv1.LineItem{
			{ProductID: "hoodie", Size: "M", Quantity: 1},
			{ProductID: "cap", Size: "ONE", Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Nil(t, placed.Failure)
	require.EqualValues(t, 2, placed.Placed)
	require.Len(t, placed.Orders, 2)
	require.Equal(t, int64(89000), placed.Orders[0].TotalMinor)
	require.Equal(t, int64(75000), placed.Orders[1].TotalMinor)
	require.Equal(t, string(domain.OrderStatusPending), placed.Orders[0].Status)
	require.Equal(t, "Seoul St 12", placed.Orders[0].Delivery.Address)
	require.Equal(t, 1, s.stock("hoodie", "M"))

	hoodieOrder := placed.Orders[0].ID

	updated, err := s.client.UpdateOrderStatus(s.call(), &storefrontv1.UpdateOrderStatusRequest{
		OrderID: hoodieOrder,
		Status:  string(domain.OrderStatusShipped),
	})
	require.NoError(t, err)
	require.Equal(t, string(domain.OrderStatusShipped), updated.Order.Status)

	got, err := s.client.GetOrder(context.Background(), &storefrontv1.GetOrderRequest{OrderID: hoodieOrder})
	require.NoError(t, err)
	require.Equal(t, string(domain.OrderStatusShipped), got.Order.Status)
	require.Len(t, got.Timeline, 2)
	require.Equal(t, domain.TimelineOrderPlaced, got.Timeline[0].Type)
	require.Equal(t, domain.TimelineOrderStatusChanged, got.Timeline[1].Type)

	list, err := s.client.ListOrders(context.Background(), &storefrontv1.ListOrdersRequest{Phone: customerPhone})
	require.NoError(t, err)
	require.Len(t, list.Orders, 2)

	_, err = s.client.DeleteOrder(context.Background(), &storefrontv1.DeleteOrderRequest{OrderID: placed.Orders[1].ID})
	require.NoError(t, err)

	list, err = s.client.ListOrders(context.Background(), &storefrontv1.ListOrdersRequest{Phone: customerPhone})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.Equal(t, hoodieOrder, list.Orders[0].ID)

	_, err = s.client.GetOrder(context.Background(), &storefrontv1.GetOrderRequest{OrderID: placed.Orders[1].ID})
	require.Equal(t, codes.NotFound, status.Code(err))

	s.worker.ProcessOnce(context.Background())
	require.Len(t, s.published.byType(domain.EventOrderPlaced), 2)
	require.Len(t, s.published.byType(domain.EventOrderStatusChanged), 1)
	require.Len(t, s.published.byType(domain.EventOrderDeleted), 1)
	require.Empty(t, s.outbox.AllPending())
}

func (s *OrderLifecycleTestSuite) TestPartialCheckoutStopsAtSoldOutItem() {
	t := s.T()

	resp, err := s.client.PlaceOrders(s.call(), &storefrontv1.PlaceOrdersRequest{
		Phone:   customerPhone,
		Address: s.address(),
		Items: []storefrontv1.LineItem{
			{ProductID: "hoodie", Size: "L", Quantity: 1},
			{ProductID: "hoodie", Size: "L", Quantity: 1},
			{ProductID: "cap", Size: "ONE", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, resp.Placed)
	require.NotNil(t, resp.Failure)
	require.EqualValues(t, 1, resp.Failure.Index)
	require.Equal(t, storefrontv1.FailureInsufficientStock, resp.Failure.Reason)
	require.NotNil(t, resp.Failure.Available)
	require.EqualValues(t, 0, *resp.Failure.Available)
	require.Equal(t, 0, s.stock("hoodie", "L"))

	list, err := s.client.ListOrders(context.Background(), &storefrontv1.ListOrdersRequest{Phone: customerPhone})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1, "items after the failed one must not be placed")
}

func (s *OrderLifecycleTestSuite) TestIdempotentRetryPlacesOnce() {
	t := s.T()

	ctx := metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", "retry-1")
	req := &storefrontv1.PlaceOrdersRequest{
		Phone:   customerPhone,
		Address: s.address(),
		Items:   []storefrontv1.LineItem{{ProductID: "hoodie", Size: "M", Quantity: 1}},
	}

	first, err := s.client.PlaceOrders(ctx, req)
	require.NoError(t, err)
	second, err := s.client.PlaceOrders(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.Orders[0].ID, second.Orders[0].ID)
	require.Equal(t, 1, s.stock("hoodie", "M"))

	req.Items[0].Quantity = 2
	_, err = s.client.PlaceOrders(ctx, req)
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = s.client.PlaceOrders(context.Background(), req)
	require.Equal(t, codes.InvalidArgument, status.Code(err), "idempotency-key is required")
}

func (s *OrderLifecycleTestSuite) TestSellOutRaisesStockAlert() {
	t := s.T()

	resp, err := s.client.PlaceOrders(s.call(), &storefrontv1.PlaceOrdersRequest{
		Phone:   customerPhone,
		Address: s.address(),
		Items:   []storefrontv1.LineItem{{ProductID: "hoodie", Size: "M", Quantity: 2}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, resp.Placed)

	s.worker.ProcessOnce(context.Background())
	depleted := s.published.byType(domain.EventProductStockDepleted)
	require.Len(t, depleted, 1)

	var alerts []kafka.StockAlert
	handler := kafka.NewStockAlertHandler(func(_ context.Context, alert kafka.StockAlert) error {
		alerts = append(alerts, alert)
		return nil
	}, nil, nil)

	for _, event := range s.published.byType(domain.EventOrderPlaced) {
		require.NoError(t, handler.Handle(context.Background(), envelopeMessage(t, event)))
	}
	require.Empty(t, alerts, "order events must not raise alerts")

	require.NoError(t, handler.Handle(context.Background(), envelopeMessage(t, depleted[0])))
	require.Len(t, alerts, 1)
	require.Equal(t, "hoodie", alerts[0].ProductID)
	require.Equal(t, "M", alerts[0].Size)
	require.Equal(t, resp.Orders[0].ID, alerts[0].OrderID)
}

func (s *OrderLifecycleTestSuite) TestInvalidStatusIsRejected() {
	resp, err := s.client.PlaceOrders(s.call(), &storefrontv1.PlaceOrdersRequest{
		Phone:   customerPhone,
		Address: s.address(),
		Items:   []storefrontv1.LineItem{{ProductID: "cap", Size: "ONE", Quantity: 1}},
	})
	s.Require().NoError(err)

	_, err = s.client.UpdateOrderStatus(s.call(), &storefrontv1.UpdateOrderStatusRequest{
		OrderID: resp.Orders[0].ID,
		Status:  "lost",
	})
	s.Require().Equal(codes.InvalidArgument, status.Code(err))

	_, err = s.client.UpdateOrderStatus(s.call(), &storefrontv1.UpdateOrderStatusRequest{
		OrderID: "missing",
		Status:  string(domain.OrderStatusDelivered),
	})
	s.Require().Equal(codes.NotFound, status.Code(err))
}

// envelopeMessage упаковывает outbox-сообщение так же, как его видит consumer.
func envelopeMessage(t *testing.T, event domain.OutboxMessage) *sarama.ConsumerMessage {
	t.Helper()

	env := kafka.NewEnvelope(event, event.CreatedAt)
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: kafka.TopicOrderEvents, Key: []byte(event.AggregateID), Value: value}
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
