// Package storefrontv1 описывает wire-контракт gRPC API витрины.
//
// Сообщения — обычные Go-структуры с json-тегами; по сети они передаются
// в конверте google.protobuf.Struct (см. Encode/Decode). Числа в Struct
// хранятся как double, поэтому суммы в минорных единицах (int64) идут
// строками, как int64 в proto3 JSON.
package storefrontv1

import "time"

// Коды причин отказа позиции при оформлении.
const (
	FailureInsufficientStock = "insufficient_stock"
	FailureProductNotFound   = "product_not_found"
	FailureValidation        = "validation"
	FailurePersistence       = "persistence"
)

// LineItem — позиция корзины.
type LineItem struct {
	ProductID   string `json:"productId"`
	ProductCode string `json:"productCode,omitempty"`
	Name        string `json:"name,omitempty"`
	Size        string `json:"size"`
	Color       string `json:"color,omitempty"`
	PriceMinor  int64  `json:"priceMinor,string,omitempty"`
	Quantity    int32  `json:"quantity,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Address — адрес доставки, выбранный или введённый при оформлении.
type Address struct {
	ID       string `json:"id,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address"`
	City     string `json:"city"`
	District string `json:"district"`
	Notes    string `json:"notes,omitempty"`
}

// Delivery — снимок адреса доставки в заказе.
type Delivery struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	District string `json:"district"`
	Notes    string `json:"notes,omitempty"`
}

// Order — заказ на одну позицию корзины.
type Order struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ProductID   string    `json:"productId,omitempty"`
	ProductCode string    `json:"productCode,omitempty"`
	ProductName string    `json:"productName"`
	Size        string    `json:"size"`
	Color       string    `json:"color,omitempty"`
	PriceMinor  int64     `json:"priceMinor,string"`
	Image       string    `json:"image,omitempty"`
	Quantity    int32     `json:"quantity"`
	TotalMinor  int64     `json:"totalMinor,string"`
	Delivery    Delivery  `json:"delivery"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TimelineEvent — событие жизненного цикла заказа.
type TimelineEvent struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// PlacementFailure описывает позицию, на которой оформление остановилось.
type PlacementFailure struct {
	Index       int32  `json:"index"`
	ProductID   string `json:"productId,omitempty"`
	ProductName string `json:"productName,omitempty"`
	Size        string `json:"size,omitempty"`
	Available   *int32 `json:"available,omitempty"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
}

// PlaceOrdersRequest — оформление корзины. Пользователь задаётся ID или телефоном,
// адрес — ID сохранённого адреса или полностью.
type PlaceOrdersRequest struct {
	UserID    string     `json:"userId,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	AddressID string     `json:"addressId,omitempty"`
	Address   *Address   `json:"address,omitempty"`
	Items     []LineItem `json:"items"`
}

// PlaceOrdersResponse содержит созданные заказы. При частичном успехе
// Failure указывает на позицию, которая не была оформлена.
type PlaceOrdersResponse struct {
	Orders  []Order           `json:"orders"`
	Placed  int32             `json:"placed"`
	Failure *PlacementFailure `json:"failure,omitempty"`
}

type GetOrderRequest struct {
	OrderID string `json:"orderId"`
}

type GetOrderResponse struct {
	Order    Order           `json:"order"`
	Timeline []TimelineEvent `json:"timeline,omitempty"`
}

// ListOrdersRequest выбирает заказы пользователя по ID или телефону.
type ListOrdersRequest struct {
	UserID string `json:"userId,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Limit  int32  `json:"limit,omitempty"`
}

type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type UpdateOrderStatusResponse struct {
	Order Order `json:"order"`
}

type DeleteOrderRequest struct {
	OrderID string `json:"orderId"`
}

type DeleteOrderResponse struct {
	Order Order `json:"order"`
}
