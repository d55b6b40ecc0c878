package domain

import "time"

// OrderPlacedEvent — полезная нагрузка order.placed.
type OrderPlacedEvent struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	ProductID   string    `json:"product_id,omitempty"`
	ProductName string    `json:"product_name"`
	Size        string    `json:"size"`
	Quantity    int       `json:"quantity"`
	TotalMinor  int64     `json:"total_minor"`
	PlacedAt    time.Time `json:"placed_at"`
}

// OrderStatusChangedEvent — полезная нагрузка order.status_changed.
type OrderStatusChangedEvent struct {
	OrderID   string      `json:"order_id"`
	Previous  OrderStatus `json:"previous"`
	Status    OrderStatus `json:"status"`
	ChangedAt time.Time   `json:"changed_at"`
}

// OrderRemovedEvent — полезная нагрузка order.deleted и order.compensated.
type OrderRemovedEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason,omitempty"`
	RemovedAt time.Time `json:"removed_at"`
}

// StockDepletedEvent — полезная нагрузка product.stock_depleted.
type StockDepletedEvent struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Size        string    `json:"size"`
	OrderID     string    `json:"order_id,omitempty"`
	DepletedAt  time.Time `json:"depleted_at"`
}

// NewOrderPlacedEvent собирает событие по созданному заказу.
func NewOrderPlacedEvent(order Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		ProductID:   order.Product.ProductID,
		ProductName: order.Product.Name,
		Size:        order.Product.Size,
		Quantity:    order.Quantity,
		TotalMinor:  order.TotalMinor(),
		PlacedAt:    order.CreatedAt,
	}
}
