package domain

import (
	"sort"
	"strings"
	"time"
)

// DefaultSizes используются, если товар создан без списка размеров.
var DefaultSizes = []string{"S", "M", "L", "XL"}

// Stock хранит остатки по размерам. nil или пустая карта — остатки не отслеживаются.
type Stock map[string]int

// Tracked сообщает, ведётся ли учёт остатков хотя бы по одному размеру.
func (s Stock) Tracked() bool {
	return len(s) > 0
}

// Clone возвращает независимую копию.
func (s Stock) Clone() Stock {
	if s == nil {
		return nil
	}
	dst := make(Stock, len(s))
	for k, v := range s {
		dst[k] = v
	}
	return dst
}

// Product — карточка товара каталога.
type Product struct {
	ID          string
	Code        string
	Name        string
	Description string
	// PriceMinor — цена в минимальных денежных единицах.
	PriceMinor int64
	// OriginalPriceMinor — цена до скидки; 0 означает отсутствие.
	OriginalPriceMinor int64
	Image              string
	Images             []string
	Tags               []string
	Sizes              []string
	Stock              Stock
	// LegacyStock — агрегированный остаток из старых записей без разбивки по размерам.
	LegacyStock *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InStock вычисляет признак наличия товара.
func (p Product) InStock() bool {
	if p.Stock.Tracked() {
		for _, qty := range p.Stock {
			if qty > 0 {
				return true
			}
		}
		return false
	}
	if p.LegacyStock != nil {
		return *p.LegacyStock > 0
	}
	return true
}

// Available возвращает остаток по размеру и признак того, что размер учитывается.
func (p Product) Available(size string) (int, bool) {
	if p.Stock.Tracked() {
		qty, ok := p.Stock[size]
		return qty, ok
	}
	if p.LegacyStock != nil {
		return *p.LegacyStock, true
	}
	return 0, false
}

// ApplyDecrement проверяет и уменьшает остаток в памяти.
// Для неучитываемого размера изменение не применяется и ошибки нет.
func (p *Product) ApplyDecrement(size string, qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if p.Stock.Tracked() {
		available, ok := p.Stock[size]
		if !ok {
			return nil
		}
		if available < qty {
			return &InsufficientStockError{ProductID: p.ID, Size: size, Available: available, Requested: qty}
		}
		p.Stock[size] = available - qty
		return nil
	}
	if p.LegacyStock != nil {
		if *p.LegacyStock < qty {
			return &InsufficientStockError{ProductID: p.ID, Size: size, Available: *p.LegacyStock, Requested: qty}
		}
		left := *p.LegacyStock - qty
		p.LegacyStock = &left
	}
	return nil
}

// ApplyRestore возвращает остаток (компенсация). Неучитываемые размеры не меняются.
func (p *Product) ApplyRestore(size string, qty int) {
	if qty <= 0 {
		return
	}
	if p.Stock.Tracked() {
		if available, ok := p.Stock[size]; ok {
			p.Stock[size] = available + qty
		}
		return
	}
	if p.LegacyStock != nil {
		restored := *p.LegacyStock + qty
		p.LegacyStock = &restored
	}
}

// NormalizePrices сбрасывает старую цену, если она не больше текущей.
func (p *Product) NormalizePrices() {
	if p.OriginalPriceMinor <= p.PriceMinor {
		p.OriginalPriceMinor = 0
	}
}

// NormalizeStock переводит агрегированный остаток в разбивку по размерам,
// деля его поровну с округлением вниз.
func (p *Product) NormalizeStock() {
	if p.LegacyStock == nil {
		return
	}
	if len(p.Sizes) == 0 {
		return
	}
	total := *p.LegacyStock
	if total < 0 {
		total = 0
	}
	per := total / len(p.Sizes)
	stock := make(Stock, len(p.Sizes))
	for _, size := range p.Sizes {
		stock[size] = per
	}
	p.Stock = stock
	p.LegacyStock = nil
}

// Validate проверяет поля, которые задаёт администратор.
func (p Product) Validate() error {
	var problems []error
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 || p.OriginalPriceMinor < 0 {
		problems = append(problems, ErrPriceInvalid)
	}
	for _, qty := range p.Stock {
		if qty < 0 {
			problems = append(problems, ErrStockInvalid)
			break
		}
	}
	if p.LegacyStock != nil && *p.LegacyStock < 0 {
		problems = append(problems, ErrStockInvalid)
	}
	return NewValidationError(problems...)
}

// HasTag проверяет точное совпадение тега.
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Matches выполняет регистронезависимый поиск по названию, описанию, коду и тегам.
func (p Product) Matches(search string) bool {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return true
	}
	fields := append([]string{p.Name, p.Description, p.Code}, p.Tags...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию товара.
func (p Product) Clone() Product {
	dst := p
	dst.Images = append([]string(nil), p.Images...)
	dst.Tags = append([]string(nil), p.Tags...)
	dst.Sizes = append([]string(nil), p.Sizes...)
	dst.Stock = p.Stock.Clone()
	if p.LegacyStock != nil {
		v := *p.LegacyStock
		dst.LegacyStock = &v
	}
	return dst
}

// ProductFilter задаёт параметры выборки каталога.
type ProductFilter struct {
	Search string
	Tag    string
	Limit  int
}

// SortProductsNewestFirst сортирует товары по дате создания (новые первыми).
func SortProductsNewestFirst(items []Product) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
