package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductInput — поля товара, которые задаёт администратор.
type ProductInput struct {
	Code               string
	Name               string
	Description        string
	PriceMinor         int64
	OriginalPriceMinor int64
	Image              string
	Images             []string
	Tags               []string
	Sizes              []string
	// Stock — остатки по размерам. nil при обновлении оставляет текущие остатки.
	Stock domain.Stock
	// LegacyStock — общий остаток, делится поровну между размерами.
	LegacyStock *int
}

// Service управляет каталогом товаров.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		products: products,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create добавляет товар в каталог.
func (s *Service) Create(ctx context.Context, in ProductInput) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(&product, in, nil)

	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, domain.WrapStoreError("create product", err)
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"name":       product.Name,
	}).Info("product created")
	return product, nil
}

// Update перезаписывает изменяемые поля товара.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (domain.Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:        current.ID,
		CreatedAt: current.CreatedAt,
		UpdatedAt: s.now(),
	}
	apply(&product, in, &current)

	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	// Без нового остатка пишем только карточку: иначе списание, прошедшее после
	// чтения current, перезаписалось бы старым значением.
	if in.Stock == nil && in.LegacyStock == nil {
		stored, err := s.products.UpdateDetails(ctx, product)
		if err != nil {
			return domain.Product{}, domain.WrapStoreError("update product", err)
		}
		return stored, nil
	}
	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, domain.WrapStoreError("update product", err)
	}
	return product, nil
}

// Get ищет товар по ID, затем по коду товара.
func (s *Service) Get(ctx context.Context, idOrCode string) (domain.Product, error) {
	idOrCode = strings.TrimSpace(idOrCode)
	if idOrCode == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product, err := s.products.Get(ctx, idOrCode)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, domain.ErrProductNotFound) {
		return domain.Product{}, domain.WrapStoreError("get product", err)
	}
	product, err = s.products.GetByCode(ctx, idOrCode)
	if err != nil {
		return domain.Product{}, domain.WrapStoreError("get product by code", err)
	}
	return product, nil
}

// List возвращает товары по поиску и тегу, новые первыми.
func (s *Service) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Tag = strings.TrimSpace(filter.Tag)
	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, domain.WrapStoreError("list products", err)
	}
	return products, nil
}

// Delete удаляет товар.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return domain.WrapStoreError("delete product", err)
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

// Tags возвращает все теги каталога.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	tags, err := s.products.Tags(ctx)
	if err != nil {
		return nil, domain.WrapStoreError("list tags", err)
	}
	return tags, nil
}

// RemoveTag убирает тег у всех товаров.
func (s *Service) RemoveTag(ctx context.Context, tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, domain.NewValidationError(ErrTagRequired)
	}
	updated, err := s.products.RemoveTag(ctx, tag)
	if err != nil {
		return 0, domain.WrapStoreError("remove tag", err)
	}
	s.logger.WithFields(log.Fields{
		"tag":     tag,
		"updated": updated,
	}).Info("tag removed from catalog")
	return updated, nil
}

// ErrTagRequired — пустое имя тега.
var ErrTagRequired = errors.New("tag is required")

// apply переносит ввод администратора в товар. current задан при обновлении.
func apply(product *domain.Product, in ProductInput, current *domain.Product) {
	product.Code = strings.TrimSpace(in.Code)
	product.Name = strings.TrimSpace(in.Name)
	product.Description = strings.TrimSpace(in.Description)
	product.PriceMinor = in.PriceMinor
	product.OriginalPriceMinor = in.OriginalPriceMinor
	product.NormalizePrices()

	product.Image = strings.TrimSpace(in.Image)
	product.Images = cleanList(in.Images)
	if len(product.Images) == 0 && product.Image != "" {
		product.Images = []string{product.Image}
	}
	if product.Image == "" && len(product.Images) > 0 {
		product.Image = product.Images[0]
	}
	product.Tags = cleanList(in.Tags)

	product.Sizes = cleanList(in.Sizes)
	if len(product.Sizes) == 0 && current != nil {
		product.Sizes = append([]string(nil), current.Sizes...)
	}
	if len(product.Sizes) == 0 {
		product.Sizes = append([]string(nil), domain.DefaultSizes...)
	}

	switch {
	case in.Stock != nil:
		product.Stock = in.Stock.Clone()
	case in.LegacyStock != nil:
		total := *in.LegacyStock
		product.LegacyStock = &total
		product.NormalizeStock()
	case current != nil:
		product.Stock = current.Stock.Clone()
		if current.LegacyStock != nil {
			legacy := *current.LegacyStock
			product.LegacyStock = &legacy
		}
	}
}

// cleanList обрезает пробелы, убирает пустые значения и дубли с сохранением порядка.
func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
