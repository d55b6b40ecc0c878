package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/storefront/internal/service/checkout"

// LineItem — позиция корзины в том виде, в котором её прислал клиент.
type LineItem struct {
	ProductID   string
	ProductCode string
	Name        string
	Size        string
	Color       string
	Image       string
	PriceMinor  int64
	Quantity    int
}

// PlaceRequest — оформление корзины. Пользователь задаётся ID или телефоном,
// адрес доставки — ID сохранённого адреса или явным адресом.
type PlaceRequest struct {
	UserID    string
	Phone     string
	AddressID string
	Address   *domain.Address
	Items     []LineItem
}

// Result содержит заказы, созданные до первой ошибки (или все).
type Result struct {
	Orders []domain.Order
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithOutbox включает публикацию событий через transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithTimeline включает запись событий жизненного цикла заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) {
		s.timeline = timeline
	}
}

// WithMetrics задаёт метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer задаёт tracer; по умолчанию берётся глобальный провайдер otel.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithCompensation включает откат уже созданных заказов при ошибке на следующей позиции.
func WithCompensation(enabled bool) Option {
	return func(s *Service) {
		s.compensate = enabled
	}
}

// Service оформляет заказы: списывает остаток, создаёт заказ на каждую позицию
// и поддерживает список заказов пользователя.
type Service struct {
	products   domain.ProductRepository
	orders     domain.OrderRepository
	users      domain.UserRepository
	outbox     domain.OutboxRepository
	timeline   domain.TimelineRepository
	logger     *log.Entry
	metrics    *metrics.CheckoutMetrics
	tracer     trace.Tracer
	compensate bool
}

// NewService создаёт сервис оформления заказов.
func NewService(
	products domain.ProductRepository,
	orders domain.OrderRepository,
	users domain.UserRepository,
	options ...Option,
) *Service {
	s := &Service{
		products: products,
		orders:   orders,
		users:    users,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "checkout")
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// committed — позиция, уже превращённая в заказ.
type committed struct {
	order       domain.Order
	decremented bool
}

// Place оформляет позиции строго по порядку. Первая ошибка останавливает обработку:
// заказы предыдущих позиций остаются в силе (или откатываются с WithCompensation),
// а ошибка возвращается как *ItemError.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Place", trace.WithAttributes(
		attribute.String("checkout.user_id", req.UserID),
		attribute.Int("checkout.items", len(req.Items)),
	))
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordCheckoutStarted()
	}
	defer func() {
		outcome := metrics.OutcomePlaced
		if err != nil {
			outcome = metrics.OutcomeFailed
			if len(res.Orders) > 0 {
				outcome = metrics.OutcomePartial
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetStatus(codes.Ok, outcome)
		}
		span.SetAttributes(attribute.Int("checkout.placed", len(res.Orders)))
		span.End()
		if s.metrics != nil {
			s.metrics.RecordCheckoutFinished(outcome, time.Since(start))
		}
	}()

	items, err := normalizeItems(req.Items)
	if err != nil {
		return Result{}, err
	}

	user, err := s.resolveUser(ctx, req)
	if err != nil {
		return Result{}, err
	}
	addr, err := resolveAddress(user, req)
	if err != nil {
		return Result{}, err
	}
	delivery := domain.NewDeliverySnapshot(addr, user)

	done := make([]committed, 0, len(items))
	for i, item := range items {
		placed, itemErr := s.placeItem(ctx, i, user, delivery, item)
		if itemErr != nil {
			itemErr.Placed = len(done)
			if s.metrics != nil {
				s.metrics.RecordItemFailed(itemErr.Reason())
			}
			s.logger.WithError(itemErr.Err).WithFields(log.Fields{
				"user_id": user.ID,
				"index":   i,
				"size":    item.Size,
				"placed":  len(done),
			}).Warn("checkout stopped on line item")

			if s.compensate && len(done) > 0 {
				itemErr.Compensated = s.rollback(ctx, user.ID, done)
				itemErr.Placed = len(done) - itemErr.Compensated
				return Result{Orders: survivors(done, itemErr.Compensated)}, itemErr
			}
			return Result{Orders: ordersOf(done)}, itemErr
		}
		done = append(done, placed)
	}

	s.logger.WithFields(log.Fields{
		"user_id": user.ID,
		"orders":  len(done),
	}).Info("checkout completed")
	return Result{Orders: ordersOf(done)}, nil
}

func (s *Service) placeItem(ctx context.Context, index int, user domain.User, delivery domain.DeliverySnapshot, item LineItem) (committed, *ItemError) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceItem", trace.WithAttributes(
		attribute.Int("checkout.item_index", index),
		attribute.String("product.id", item.ProductID),
		attribute.String("product.size", item.Size),
		attribute.Int("checkout.quantity", item.Quantity),
	))
	defer span.End()

	fail := func(productID, name string, err error) (committed, *ItemError) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "line item failed")
		return committed{}, &ItemError{Index: index, ProductID: productID, ProductName: name, Size: item.Size, Err: err}
	}

	product, found, err := s.lookupProduct(ctx, item)
	if err != nil {
		return fail(item.ProductID, item.Name, err)
	}

	snapshot := domain.ProductSnapshot{
		ProductID:  item.ProductID,
		Code:       item.ProductCode,
		Name:       item.Name,
		Size:       item.Size,
		Color:      item.Color,
		PriceMinor: item.PriceMinor,
		Image:      item.Image,
	}

	decremented := false
	if found {
		snapshot = mergeSnapshot(snapshot, product)

		stepStart := time.Now()
		updated, err := s.products.DecrementStock(ctx, product.ID, item.Size, item.Quantity)
		s.recordStep("decrement_stock", stepStart)
		switch {
		case err == nil:
			decremented = true
			product = updated
		case domain.IsInsufficientStock(err):
			return fail(product.ID, product.Name, err)
		case errors.Is(err, domain.ErrProductNotFound):
			// товар удалён между чтением и списанием: считаем остаток неучитываемым
			s.logger.WithField("product_id", product.ID).Warn("product disappeared before stock decrement")
			found = false
		default:
			return fail(product.ID, product.Name, domain.Persistence("decrement stock", err))
		}
	} else {
		s.logger.WithFields(log.Fields{
			"product_id":   item.ProductID,
			"product_code": item.ProductCode,
		}).Warn("product not found in catalog, stock treated as untracked")
	}
	span.SetAttributes(attribute.Bool("product.found", found))

	stepStart := time.Now()
	order, err := s.orders.Insert(ctx, domain.Order{
		UserID:   user.ID,
		Product:  snapshot,
		Quantity: item.Quantity,
		Delivery: delivery,
		Status:   domain.OrderStatusPending,
	})
	s.recordStep("insert_order", stepStart)
	if err != nil {
		if decremented {
			s.restoreStock(ctx, product.ID, item.Size, item.Quantity)
		}
		if !domain.IsValidation(err) {
			err = domain.Persistence("insert order", err)
		}
		return fail(snapshot.ProductID, snapshot.Name, err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	if err := s.users.AppendOrderID(ctx, user.ID, order.ID); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"user_id":  user.ID,
			"order_id": order.ID,
		}).Warn("failed to append order id to user")
	}
	if s.metrics != nil {
		s.metrics.RecordOrderPlaced()
	}

	s.emitOrderPlaced(ctx, order)
	if decremented {
		if left, tracked := product.Available(item.Size); tracked && left == 0 {
			s.emitStockDepleted(ctx, product, item.Size, order.ID)
		}
	}

	return committed{order: order, decremented: decremented}, nil
}

// lookupProduct ищет товар по ID, затем по устаревшему коду.
// Отсутствие товара не ошибка: остаток считается неучитываемым.
func (s *Service) lookupProduct(ctx context.Context, item LineItem) (domain.Product, bool, error) {
	if item.ProductID != "" {
		product, err := s.products.Get(ctx, item.ProductID)
		if err == nil {
			return product, true, nil
		}
		if !errors.Is(err, domain.ErrProductNotFound) {
			return domain.Product{}, false, domain.Persistence("get product", err)
		}
	}

	code := item.ProductCode
	if code == "" {
		code = item.ProductID
	}
	if code == "" {
		return domain.Product{}, false, nil
	}
	product, err := s.products.GetByCode(ctx, code)
	if err == nil {
		return product, true, nil
	}
	if errors.Is(err, domain.ErrProductNotFound) {
		return domain.Product{}, false, nil
	}
	return domain.Product{}, false, domain.Persistence("get product by code", err)
}

func (s *Service) resolveUser(ctx context.Context, req PlaceRequest) (domain.User, error) {
	var (
		user domain.User
		err  error
	)
	switch {
	case strings.TrimSpace(req.UserID) != "":
		user, err = s.users.Get(ctx, strings.TrimSpace(req.UserID))
	case strings.TrimSpace(req.Phone) != "":
		user, err = s.users.FindByPhone(ctx, domain.NormalizePhone(req.Phone))
	default:
		return domain.User{}, domain.NewValidationError(domain.ErrUserIDRequired)
	}
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, domain.Persistence("resolve user", err)
	}
	return user, nil
}

func resolveAddress(user domain.User, req PlaceRequest) (domain.Address, error) {
	if req.AddressID != "" {
		addr, ok := user.FindAddress(req.AddressID)
		if !ok {
			return domain.Address{}, domain.ErrAddressNotFound
		}
		return addr, nil
	}
	if req.Address == nil {
		return domain.Address{}, domain.NewValidationError(domain.ErrAddressRequired)
	}
	if err := req.Address.Validate(); err != nil {
		return domain.Address{}, err
	}
	return *req.Address, nil
}

// normalizeItems проверяет корзину до любых изменений в хранилищах.
// Нулевое количество означает 1.
func normalizeItems(in []LineItem) ([]LineItem, error) {
	if len(in) == 0 {
		return nil, domain.NewValidationError(domain.ErrItemsRequired)
	}
	items := append([]LineItem(nil), in...)
	for i := range items {
		if items[i].Quantity == 0 {
			items[i].Quantity = 1
		}
		var problems []error
		if strings.TrimSpace(items[i].Size) == "" {
			problems = append(problems, domain.ErrSizeRequired)
		}
		if items[i].Quantity < 0 {
			problems = append(problems, domain.ErrQuantityInvalid)
		}
		if items[i].PriceMinor < 0 {
			problems = append(problems, domain.ErrPriceInvalid)
		}
		if strings.TrimSpace(items[i].ProductID) == "" && strings.TrimSpace(items[i].ProductCode) == "" && strings.TrimSpace(items[i].Name) == "" {
			problems = append(problems, domain.ErrProductNameRequired)
		}
		if err := domain.NewValidationError(problems...); err != nil {
			return nil, &ItemError{
				Index:       i,
				ProductID:   items[i].ProductID,
				ProductName: items[i].Name,
				Size:        items[i].Size,
				Err:         err,
			}
		}
	}
	return items, nil
}

// mergeSnapshot дополняет данные клиента карточкой товара.
func mergeSnapshot(snapshot domain.ProductSnapshot, product domain.Product) domain.ProductSnapshot {
	snapshot.ProductID = product.ID
	if snapshot.Code == "" {
		snapshot.Code = product.Code
	}
	if strings.TrimSpace(snapshot.Name) == "" {
		snapshot.Name = product.Name
	}
	if snapshot.PriceMinor == 0 {
		snapshot.PriceMinor = product.PriceMinor
	}
	if snapshot.Image == "" {
		snapshot.Image = product.Image
	}
	return snapshot
}

func (s *Service) restoreStock(ctx context.Context, productID, size string, qty int) {
	if err := s.products.RestoreStock(ctx, productID, size, qty); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"product_id": productID,
			"size":       size,
			"quantity":   qty,
		}).Error("failed to restore stock")
	}
}

// rollback откатывает созданные заказы в обратном порядке и возвращает число откатанных.
func (s *Service) rollback(ctx context.Context, userID string, done []committed) int {
	rolledBack := 0
	for i := len(done) - 1; i >= 0; i-- {
		order := done[i].order
		if _, err := s.orders.Delete(ctx, order.ID); err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("compensation: failed to delete order")
			break
		}
		if done[i].decremented {
			s.restoreStock(ctx, order.Product.ProductID, order.Product.Size, order.Quantity)
		}
		if err := s.users.RemoveOrderID(ctx, userID, order.ID); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("compensation: failed to remove order id from user")
		}
		s.emitOrderCompensated(ctx, order)
		if s.metrics != nil {
			s.metrics.RecordCompensation()
		}
		rolledBack++
	}
	return rolledBack
}

func (s *Service) recordStep(step string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStepDuration(step, time.Since(start))
	}
}

func ordersOf(done []committed) []domain.Order {
	orders := make([]domain.Order, 0, len(done))
	for _, c := range done {
		orders = append(orders, c.order)
	}
	return orders
}

// survivors возвращает заказы, которые не удалось откатать (откат идёт с конца).
func survivors(done []committed, rolledBack int) []domain.Order {
	return ordersOf(done[:len(done)-rolledBack])
}
