package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus описывает жизненный цикл заказа витрины.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан при оформлении, ещё не обработан.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ принят в работу.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает статус без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", NewValidationError(ErrStatusInvalid)
	}
	return status, nil
}

// ProductSnapshot — копия данных товара на момент оформления.
type ProductSnapshot struct {
	ProductID  string
	Code       string
	Name       string
	Size       string
	Color      string
	PriceMinor int64
	Image      string
}

// DeliverySnapshot — копия адреса доставки на момент оформления.
type DeliverySnapshot struct {
	FullName string
	Phone    string
	Address  string
	City     string
	District string
	Notes    string
}

// NewDeliverySnapshot копирует адрес в заказ. Имя и телефон берутся из профиля,
// если в адресе они не заполнены.
func NewDeliverySnapshot(addr Address, owner User) DeliverySnapshot {
	fullName := strings.TrimSpace(addr.FullName)
	if fullName == "" {
		fullName = owner.FullName
	}
	phone := strings.TrimSpace(addr.Phone)
	if phone == "" {
		phone = owner.Phone
	}
	return DeliverySnapshot{
		FullName: fullName,
		Phone:    phone,
		Address:  addr.Line,
		City:     addr.City,
		District: addr.District,
		Notes:    addr.Notes,
	}
}

// Order — одна позиция корзины, оформленная как отдельный заказ.
// Снимки товара и доставки после создания не меняются.
type Order struct {
	ID        string
	UserID    string
	Product   ProductSnapshot
	Quantity  int
	Delivery  DeliverySnapshot
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalMinor возвращает стоимость позиции.
func (o Order) TotalMinor() int64 {
	return o.Product.PriceMinor * int64(o.Quantity)
}

// ValidateInvariants проверяет обязательные поля заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.UserID) == "" {
		errs = append(errs, ErrUserIDRequired)
	}
	if strings.TrimSpace(o.Delivery.FullName) == "" {
		errs = append(errs, ErrFullNameRequired)
	}
	if strings.TrimSpace(o.Delivery.Phone) == "" {
		errs = append(errs, ErrPhoneRequired)
	}
	if strings.TrimSpace(o.Delivery.Address) == "" {
		errs = append(errs, ErrAddressLineRequired)
	}
	if strings.TrimSpace(o.Delivery.City) == "" {
		errs = append(errs, ErrCityRequired)
	}
	if strings.TrimSpace(o.Delivery.District) == "" {
		errs = append(errs, ErrDistrictRequired)
	}
	if strings.TrimSpace(o.Product.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if strings.TrimSpace(o.Product.Size) == "" {
		errs = append(errs, ErrSizeRequired)
	}
	if o.Product.PriceMinor < 0 {
		errs = append(errs, ErrPriceInvalid)
	}
	if o.Quantity < 1 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if o.Status != "" && !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}

	return errs
}

// SortOrdersNewestFirst сортирует заказы по дате создания (новые первыми).
func SortOrdersNewestFirst(items []Order) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}

// PrepareOrderDraft заполняет поля, которые назначает хранилище при вставке:
// ID, время создания/обновления, статус pending и количество по умолчанию.
func PrepareOrderDraft(draft Order, now time.Time) Order {
	order := draft
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	if order.Status == "" {
		order.Status = OrderStatusPending
	}
	if order.Quantity == 0 {
		order.Quantity = 1
	}
	return order
}
