package checkout

import (
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Причины отказа по позиции (метки метрик и поле reason в ответах транспорта).
const (
	ReasonInsufficientStock = "insufficient_stock"
	ReasonProductNotFound   = "product_not_found"
	ReasonValidation        = "validation"
	ReasonPersistence       = "persistence"
)

// ItemError описывает позицию корзины, на которой оформление остановилось.
// Placed — сколько заказов из предыдущих позиций уже создано и осталось в силе.
type ItemError struct {
	Index       int
	ProductID   string
	ProductName string
	Size        string
	Placed      int
	// Compensated — сколько ранее созданных заказов откатано (только с WithCompensation).
	Compensated int
	Err         error
}

func (e *ItemError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("line item %d (%s, size %s): %v", e.Index+1, name, e.Size, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Reason классифицирует причину отказа.
func (e *ItemError) Reason() string {
	switch {
	case domain.IsInsufficientStock(e.Err):
		return ReasonInsufficientStock
	case errors.Is(e.Err, domain.ErrProductNotFound):
		return ReasonProductNotFound
	case domain.IsValidation(e.Err):
		return ReasonValidation
	default:
		return ReasonPersistence
	}
}

// Available возвращает оставшийся остаток, если позиция отклонена из-за нехватки.
func (e *ItemError) Available() (int, bool) {
	stockErr, ok := domain.AsInsufficientStock(e.Err)
	if !ok {
		return 0, false
	}
	return stockErr.Available, true
}

// AsItemError достаёт детали отказа по позиции.
func AsItemError(err error) (*ItemError, bool) {
	var target *ItemError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
