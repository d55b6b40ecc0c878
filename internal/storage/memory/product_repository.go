package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// productRepositoryInMemory — in-memory каталог. Проверка и списание остатка
// выполняются под одной блокировкой, поэтому конкурентные заказы не уводят остаток в минус.
type productRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Product
	byCode map[string]string
}

// NewProductRepository возвращает in-memory репозиторий товаров.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items:  make(map[string]domain.Product),
		byCode: make(map[string]string),
	}
}

func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrProductAlreadyExists
	}
	if product.Code != "" {
		if _, exists := r.byCode[product.Code]; exists {
			return domain.ErrProductAlreadyExists
		}
		r.byCode[product.Code] = product.ID
	}
	r.items[product.ID] = product.Clone()
	return nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product.Clone(), nil
}

func (r *productRepositoryInMemory) GetByCode(_ context.Context, code string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[code]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return r.items[id].Clone(), nil
}

func (r *productRepositoryInMemory) List(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		if filter.Tag != "" && !product.HasTag(filter.Tag) {
			continue
		}
		if !product.Matches(filter.Search) {
			continue
		}
		result = append(result, product.Clone())
	}

	domain.SortProductsNewestFirst(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if err := r.moveCode(current, product); err != nil {
		return err
	}
	product.CreatedAt = current.CreatedAt
	r.items[product.ID] = product.Clone()
	return nil
}

func (r *productRepositoryInMemory) UpdateDetails(_ context.Context, product domain.Product) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[product.ID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err := r.moveCode(current, product); err != nil {
		return domain.Product{}, err
	}

	// Остаток читается под той же блокировкой, что и DecrementStock.
	stored := product.Clone()
	stored.Stock = current.Stock.Clone()
	stored.LegacyStock = nil
	if current.LegacyStock != nil {
		legacy := *current.LegacyStock
		stored.LegacyStock = &legacy
	}
	stored.CreatedAt = current.CreatedAt
	r.items[product.ID] = stored
	return stored.Clone(), nil
}

// moveCode переносит индекс кода товара; вызывается под r.mu.
func (r *productRepositoryInMemory) moveCode(current, product domain.Product) error {
	if product.Code == current.Code {
		return nil
	}
	if product.Code != "" {
		if ownerID, taken := r.byCode[product.Code]; taken && ownerID != product.ID {
			return domain.ErrProductAlreadyExists
		}
		r.byCode[product.Code] = product.ID
	}
	if current.Code != "" {
		delete(r.byCode, current.Code)
	}
	return nil
}

func (r *productRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.Code != "" {
		delete(r.byCode, product.Code)
	}
	delete(r.items, id)
	return nil
}

func (r *productRepositoryInMemory) DecrementStock(_ context.Context, id, size string, qty int) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}

	// Работаем с копией: при ошибке сохранённый товар не меняется.
	updated := product.Clone()
	if err := updated.ApplyDecrement(size, qty); err != nil {
		return product.Clone(), err
	}
	updated.UpdatedAt = time.Now().UTC()
	r.items[id] = updated
	return updated.Clone(), nil
}

func (r *productRepositoryInMemory) RestoreStock(_ context.Context, id, size string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.ApplyRestore(size, qty)
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	return nil
}

func (r *productRepositoryInMemory) Tags(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, product := range r.items {
		for _, tag := range product.Tags {
			if strings.TrimSpace(tag) == "" {
				continue
			}
			seen[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

func (r *productRepositoryInMemory) RemoveTag(_ context.Context, tag string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	now := time.Now().UTC()
	for id, product := range r.items {
		if !product.HasTag(tag) {
			continue
		}
		kept := make([]string, 0, len(product.Tags))
		for _, t := range product.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		product.Tags = kept
		product.UpdatedAt = now
		r.items[id] = product
		changed++
	}
	return changed, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
