package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProductNotFound возвращается, если товар не найден ни по ID, ни по коду.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUserNotFound возвращается, если пользователь с таким телефоном/ID не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrAddressNotFound — адрес не найден в списке адресов пользователя.
	ErrAddressNotFound = errors.New("address not found")

	// ErrUserAlreadyExists — телефон уже зарегистрирован.
	ErrUserAlreadyExists = errors.New("user with this phone already exists")
	// ErrOrderAlreadyExists — заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrProductAlreadyExists — товар с таким ID или кодом уже существует.
	ErrProductAlreadyExists = errors.New("product already exists")

	// ErrInsufficientStock — на складе не хватает остатка для выбранного размера.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrValidation — базовая ошибка валидации входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence — неожиданная ошибка хранилища, наружу отдаётся без деталей.
	ErrPersistence = errors.New("persistence failure")

	// Ошибки обязательных полей.
	ErrFullNameRequired    = errors.New("full_name is required")
	ErrPhoneRequired       = errors.New("phone is required")
	ErrAddressLineRequired = errors.New("address is required")
	ErrCityRequired        = errors.New("city is required")
	ErrDistrictRequired    = errors.New("district is required")
	ErrProductNameRequired = errors.New("product name is required")
	ErrSizeRequired        = errors.New("size is required")
	ErrUserIDRequired      = errors.New("user_id is required")
	ErrItemsRequired       = errors.New("at least one line item is required")
	ErrAddressRequired     = errors.New("delivery address is required")

	// ErrQuantityInvalid — количество должно быть >= 1.
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// ErrPriceInvalid — цена не может быть отрицательной.
	ErrPriceInvalid = errors.New("price must be non-negative")
	// ErrStockInvalid — остаток по размеру не может быть отрицательным.
	ErrStockInvalid = errors.New("stock must be non-negative")
	// ErrStatusInvalid — неизвестный статус заказа.
	ErrStatusInvalid = errors.New("unknown order status")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencySourceInvalid — ключ без известного транспорта.
	ErrIdempotencySourceInvalid = errors.New("idempotency key source is invalid")
	// ErrIdempotencyRequestHashRequired — не передан хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован для того же запроса.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOrderIDRequired — событие таймлайна без заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrTimelineTypeInvalid — неизвестный тип события таймлайна.
	ErrTimelineTypeInvalid = errors.New("unknown timeline event type")
)

// InsufficientStockError описывает отказ в списании остатка.
type InsufficientStockError struct {
	ProductID string
	Size      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	if e.Size == "" {
		return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for size %s: requested %d, available %d", e.Size, e.Requested, e.Available)
}

// Is позволяет сравнивать ошибку с ErrInsufficientStock через errors.Is.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ValidationError собирает все найденные проблемы входных данных.
type ValidationError struct {
	Problems []error
}

// NewValidationError возвращает nil, если problems пуст.
func NewValidationError(problems ...error) error {
	filtered := make([]error, 0, len(problems))
	for _, p := range problems {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &ValidationError{Problems: filtered}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap отдаёт отдельные проблемы, чтобы errors.Is находил конкретные sentinel-ошибки.
func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

// Is сопоставляет ошибку с ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsNotFound проверяет, относится ли ошибка к "не найдено".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAddressNotFound)
}

// IsConflict проверяет, является ли ошибка конфликтом уникальности.
func IsConflict(err error) bool {
	return errors.Is(err, ErrUserAlreadyExists) ||
		errors.Is(err, ErrOrderAlreadyExists) ||
		errors.Is(err, ErrProductAlreadyExists)
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInsufficientStock проверяет ошибку нехватки остатка.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}

// AsInsufficientStock достаёт детали нехватки остатка.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var target *InsufficientStockError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsIdempotencyConflict проверяет конфликт повторного использования idempotency-key.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// Persistence оборачивает ошибку хранилища в ErrPersistence с контекстом операции.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// WrapStoreError пропускает доменные ошибки как есть, а остальные
// ошибки хранилища оборачивает в ErrPersistence.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsConflict(err) || IsValidation(err) || IsInsufficientStock(err) || errors.Is(err, ErrPersistence) {
		return err
	}
	return Persistence(op, err)
}
