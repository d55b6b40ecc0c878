package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания заказа со всеми обязательными полями.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:     "order-1",
		UserID: "user-1",
		Product: domain.ProductSnapshot{
			ProductID:  "product-1",
			Name:       "T-Shirt",
			Size:       "S",
			PriceMinor: 19900,
		},
		Quantity: 2,
		Delivery: domain.DeliverySnapshot{
			FullName: "Ayşe Yılmaz",
			Phone:    "+905551112233",
			Address:  "Bağdat Cd. 10",
			City:     "İstanbul",
			District: "Kadıköy",
		},
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
	if got := order.TotalMinor(); got != 39800 {
		t.Fatalf("unexpected total: %d", got)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *domain.Order)
		want   error
	}{
		{name: "missing user", mutate: func(o *domain.Order) { o.UserID = "" }, want: domain.ErrUserIDRequired},
		{name: "missing full name", mutate: func(o *domain.Order) { o.Delivery.FullName = " " }, want: domain.ErrFullNameRequired},
		{name: "missing phone", mutate: func(o *domain.Order) { o.Delivery.Phone = "" }, want: domain.ErrPhoneRequired},
		{name: "missing address", mutate: func(o *domain.Order) { o.Delivery.Address = "" }, want: domain.ErrAddressLineRequired},
		{name: "missing city", mutate: func(o *domain.Order) { o.Delivery.City = "" }, want: domain.ErrCityRequired},
		{name: "missing district", mutate: func(o *domain.Order) { o.Delivery.District = "" }, want: domain.ErrDistrictRequired},
		{name: "missing product name", mutate: func(o *domain.Order) { o.Product.Name = "" }, want: domain.ErrProductNameRequired},
		{name: "missing size", mutate: func(o *domain.Order) { o.Product.Size = "" }, want: domain.ErrSizeRequired},
		{name: "negative price", mutate: func(o *domain.Order) { o.Product.PriceMinor = -1 }, want: domain.ErrPriceInvalid},
		{name: "zero quantity", mutate: func(o *domain.Order) { o.Quantity = 0 }, want: domain.ErrQuantityInvalid},
		{name: "unknown status", mutate: func(o *domain.Order) { o.Status = "lost" }, want: domain.ErrStatusInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := makeOrder()
			tt.mutate(&order)
			errs := order.ValidateInvariants()
			if len(errs) != 1 {
				t.Fatalf("expected exactly one error, got %v", errs)
			}
			if !errors.Is(errs[0], tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, errs[0])
			}
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    domain.OrderStatus
		wantErr bool
	}{
		{raw: "pending", want: domain.OrderStatusPending},
		{raw: " Processing ", want: domain.OrderStatusProcessing},
		{raw: "SHIPPED", want: domain.OrderStatusShipped},
		{raw: "delivered", want: domain.OrderStatusDelivered},
		{raw: "canceled", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := domain.ParseOrderStatus(tt.raw)
			if tt.wantErr {
				if !domain.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSortOrdersNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	orders := []domain.Order{
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base.Add(time.Hour)},
		{ID: "c", CreatedAt: base.Add(-time.Hour)},
	}

	domain.SortOrdersNewestFirst(orders)

	if orders[0].ID != "b" || orders[1].ID != "a" || orders[2].ID != "c" {
		t.Fatalf("unexpected order: %s %s %s", orders[0].ID, orders[1].ID, orders[2].ID)
	}
}

func TestNewDeliverySnapshot_FallsBackToProfile(t *testing.T) {
	owner := domain.User{FullName: "Bat Erdene", Phone: "+97699112233"}

	tests := []struct {
		name      string
		addr      domain.Address
		wantName  string
		wantPhone string
	}{
		{
			name:      "address without contact",
			addr:      domain.Address{Line: "Peace Ave 5", City: "Ulaanbaatar", District: "SBD"},
			wantName:  "Bat Erdene",
			wantPhone: "+97699112233",
		},
		{
			name:      "address with own contact",
			addr:      domain.Address{FullName: "Saraa", Phone: "+97688001122", Line: "Peace Ave 5", City: "Ulaanbaatar", District: "SBD"},
			wantName:  "Saraa",
			wantPhone: "+97688001122",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.NewDeliverySnapshot(tt.addr, owner)
			if got.FullName != tt.wantName || got.Phone != tt.wantPhone {
				t.Fatalf("unexpected contact: %+v", got)
			}
			if got.Address != tt.addr.Line || got.City != tt.addr.City || got.District != tt.addr.District {
				t.Fatalf("address fields not copied: %+v", got)
			}
		})
	}
}
