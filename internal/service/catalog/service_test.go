package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newTestService() *Service {
	svc := NewService(memory.NewProductRepository(), nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	svc.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}
	return svc
}

func TestCreate_AppliesDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	product, err := svc.Create(ctx, ProductInput{
		Name:               "  Linen Shirt ",
		PriceMinor:         12000,
		OriginalPriceMinor: 9000,
		Image:              "/uploads/a.jpg",
		Tags:               []string{"summer", " summer", "", "linen"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if product.Name != "Linen Shirt" {
		t.Fatalf("name must be trimmed: %q", product.Name)
	}
	if product.OriginalPriceMinor != 0 {
		t.Fatalf("original price not above price must be cleared, got %d", product.OriginalPriceMinor)
	}
	if len(product.Sizes) != len(domain.DefaultSizes) {
		t.Fatalf("default sizes expected, got %v", product.Sizes)
	}
	if len(product.Images) != 1 || product.Images[0] != "/uploads/a.jpg" {
		t.Fatalf("main image must seed gallery: %v", product.Images)
	}
	if len(product.Tags) != 2 {
		t.Fatalf("tags must be de-duplicated: %v", product.Tags)
	}
	if !product.InStock() {
		t.Fatal("product without stock must be in stock (untracked)")
	}
}

func TestCreate_ValidationFailure(t *testing.T) {
	svc := newTestService()

	_, err := svc.Create(context.Background(), ProductInput{PriceMinor: -1, Stock: domain.Stock{"S": -2}})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, want := range []error{domain.ErrProductNameRequired, domain.ErrPriceInvalid, domain.ErrStockInvalid} {
		if !errors.Is(err, want) {
			t.Fatalf("expected %v in %v", want, err)
		}
	}
}

func TestUpdate_LegacyStockIsDistributed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	created, err := svc.Create(ctx, ProductInput{Name: "Hoodie", PriceMinor: 30000, Sizes: []string{"S", "M", "L"}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	total := 10
	updated, err := svc.Update(ctx, created.ID, ProductInput{
		Name:               "Hoodie",
		PriceMinor:         30000,
		OriginalPriceMinor: 35000,
		LegacyStock:        &total,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if updated.LegacyStock != nil {
		t.Fatal("legacy aggregate must be normalized away")
	}
	for _, size := range []string{"S", "M", "L"} {
		if updated.Stock[size] != 3 {
			t.Fatalf("size %s: expected 3, got %d", size, updated.Stock[size])
		}
	}
	if updated.OriginalPriceMinor != 35000 {
		t.Fatalf("original price above price must be kept, got %d", updated.OriginalPriceMinor)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) || !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("unexpected timestamps: created=%s updated=%s", updated.CreatedAt, updated.UpdatedAt)
	}
}

func TestUpdate_KeepsStockWhenOmitted(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	created, err := svc.Create(ctx, ProductInput{Name: "Cap", PriceMinor: 5000, Sizes: []string{"One"}, Stock: domain.Stock{"One": 4}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := svc.Update(ctx, created.ID, ProductInput{Name: "Cap v2", PriceMinor: 5500})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Stock["One"] != 4 || len(updated.Sizes) != 1 {
		t.Fatalf("stock and sizes must be kept: stock=%v sizes=%v", updated.Stock, updated.Sizes)
	}
}

// sellingProducts списывает остаток сразу после того, как сервис прочитал товар.
type sellingProducts struct {
	domain.ProductRepository
	afterGet func(ctx context.Context)
}

func (r *sellingProducts) Get(ctx context.Context, id string) (domain.Product, error) {
	product, err := r.ProductRepository.Get(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook(ctx)
	}
	return product, err
}

func TestUpdate_DoesNotResurrectStockSoldDuringEdit(t *testing.T) {
	ctx := context.Background()
	repo := &sellingProducts{ProductRepository: memory.NewProductRepository()}
	svc := NewService(repo, nil)

	created, err := svc.Create(ctx, ProductInput{Name: "Tee", PriceMinor: 15000, Sizes: []string{"S", "M"}, Stock: domain.Stock{"S": 2, "M": 1}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	repo.afterGet = func(ctx context.Context) {
		if _, err := repo.DecrementStock(ctx, created.ID, "S", 2); err != nil {
			t.Fatalf("decrement during edit failed: %v", err)
		}
	}
	updated, err := svc.Update(ctx, created.ID, ProductInput{Name: "Tee Classic", PriceMinor: 15000, Sizes: []string{"S", "M"}})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	stored, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Name != "Tee Classic" {
		t.Fatalf("details must be saved, got name %q", stored.Name)
	}
	if stored.Stock["S"] != 0 || stored.Stock["M"] != 1 {
		t.Fatalf("sold stock must stay sold: %v", stored.Stock)
	}
	if updated.Stock["S"] != 0 {
		t.Fatalf("returned product must carry stored stock, got %v", updated.Stock)
	}
}

func TestUpdate_ExplicitStockReplacesStored(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	created, err := svc.Create(ctx, ProductInput{Name: "Tee", PriceMinor: 15000, Sizes: []string{"S"}, Stock: domain.Stock{"S": 1}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	updated, err := svc.Update(ctx, created.ID, ProductInput{Name: "Tee", PriceMinor: 15000, Sizes: []string{"S"}, Stock: domain.Stock{"S": 7}})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	stored, _ := svc.Get(ctx, created.ID)
	if updated.Stock["S"] != 7 || stored.Stock["S"] != 7 {
		t.Fatalf("explicit stock must be written: returned=%v stored=%v", updated.Stock, stored.Stock)
	}
}

func TestGet_FallsBackToCode(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	created, err := svc.Create(ctx, ProductInput{Code: "TS-001", Name: "T-Shirt", PriceMinor: 15000})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "by id", key: created.ID},
		{name: "by code", key: "TS-001"},
		{name: "unknown", key: "nope", wantErr: domain.ErrProductNotFound},
		{name: "empty", key: " ", wantErr: domain.ErrProductNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Get(ctx, tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || got.ID != created.ID {
				t.Fatalf("unexpected result: %+v, %v", got, err)
			}
		})
	}
}

func TestCreate_DuplicateCode(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	if _, err := svc.Create(ctx, ProductInput{Code: "TS-001", Name: "A", PriceMinor: 1}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err := svc.Create(ctx, ProductInput{Code: "TS-001", Name: "B", PriceMinor: 1})
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestListTagsAndRemoveTag(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	for _, in := range []ProductInput{
		{Name: "Linen Shirt", PriceMinor: 1, Tags: []string{"summer", "linen"}},
		{Name: "Wool Coat", PriceMinor: 1, Tags: []string{"winter"}},
		{Name: "Straw Hat", PriceMinor: 1, Tags: []string{"summer"}},
	} {
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	summer, err := svc.List(ctx, domain.ProductFilter{Tag: "summer"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summer) != 2 || summer[0].Name != "Straw Hat" {
		t.Fatalf("expected newest-first summer products, got %+v", summer)
	}

	found, err := svc.List(ctx, domain.ProductFilter{Search: " coat "})
	if err != nil || len(found) != 1 {
		t.Fatalf("search failed: %v %+v", err, found)
	}

	tags, err := svc.Tags(ctx)
	if err != nil || len(tags) != 3 {
		t.Fatalf("unexpected tags: %v %v", tags, err)
	}

	updated, err := svc.RemoveTag(ctx, "summer")
	if err != nil || updated != 2 {
		t.Fatalf("remove tag: updated=%d err=%v", updated, err)
	}
	if _, err := svc.RemoveTag(ctx, " "); !errors.Is(err, ErrTagRequired) {
		t.Fatalf("expected tag required, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	created, err := svc.Create(ctx, ProductInput{Name: "Scarf", PriceMinor: 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
