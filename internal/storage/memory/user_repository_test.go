package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func createUser(t *testing.T, repo domain.UserRepository) domain.User {
	t.Helper()
	user, err := repo.Create(context.Background(), domain.User{
		FullName: "Ali Demir",
		Phone:    "+905550000000",
		Addresses: []domain.Address{
			{Line: "Atatürk Blv. 5", City: "Ankara", District: "Çankaya"},
		},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return user
}

func TestUserRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	user := createUser(t, repo)

	if user.ID == "" || user.Addresses[0].ID == "" {
		t.Fatalf("expected generated ids, got %+v", user)
	}
	if user.OrderIDs == nil || len(user.OrderIDs) != 0 {
		t.Fatalf("expected empty order list, got %v", user.OrderIDs)
	}

	byPhone, err := repo.FindByPhone(ctx, "+905550000000")
	if err != nil || byPhone.ID != user.ID {
		t.Fatalf("FindByPhone returned %+v, %v", byPhone, err)
	}

	if _, err := repo.Create(ctx, domain.User{Phone: "+905550000000"}); !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepository_AddressLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	user := createUser(t, repo)

	// Тот же адрес с другим регистром и пробелами не дублируется.
	same, err := repo.AddAddress(ctx, user.Phone, domain.Address{Line: "  atatürk  blv. 5", City: "ANKARA", District: "çankaya"})
	if err != nil {
		t.Fatalf("add duplicate failed: %v", err)
	}
	if len(same.Addresses) != 1 {
		t.Fatalf("duplicate address must be skipped, got %d", len(same.Addresses))
	}

	added, err := repo.AddAddress(ctx, user.Phone, domain.Address{Line: "Bağdat Cd. 10", City: "İstanbul", District: "Kadıköy"})
	if err != nil {
		t.Fatalf("add address failed: %v", err)
	}
	if len(added.Addresses) != 2 || added.Addresses[1].ID == "" {
		t.Fatalf("unexpected addresses: %+v", added.Addresses)
	}

	edited := added.Addresses[1]
	edited.Notes = "ring twice"
	updated, err := repo.UpdateAddress(ctx, user.Phone, edited)
	if err != nil {
		t.Fatalf("update address failed: %v", err)
	}
	if got, _ := updated.FindAddress(edited.ID); got.Notes != "ring twice" {
		t.Fatalf("address not updated: %+v", got)
	}

	removed, err := repo.RemoveAddress(ctx, user.Phone, user.Addresses[0].ID)
	if err != nil {
		t.Fatalf("remove address failed: %v", err)
	}
	if len(removed.Addresses) != 1 || removed.Addresses[0].ID != edited.ID {
		t.Fatalf("unexpected addresses after remove: %+v", removed.Addresses)
	}

	if _, err := repo.AddAddress(ctx, "+900000000000", edited); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepository_OrderIDs(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	user := createUser(t, repo)

	for _, id := range []string{"o1", "o2", "o1"} {
		if err := repo.AppendOrderID(ctx, user.ID, id); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	got, _ := repo.Get(ctx, user.ID)
	if len(got.OrderIDs) != 2 {
		t.Fatalf("append must be idempotent, got %v", got.OrderIDs)
	}

	if err := repo.RemoveOrderID(ctx, user.ID, "o1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	got, _ = repo.Get(ctx, user.ID)
	if len(got.OrderIDs) != 1 || got.OrderIDs[0] != "o2" {
		t.Fatalf("unexpected order ids: %v", got.OrderIDs)
	}

	if err := repo.ReplaceOrderIDs(ctx, user.ID, []string{"o3", "o4"}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	got, _ = repo.Get(ctx, user.ID)
	if len(got.OrderIDs) != 2 || got.OrderIDs[0] != "o3" {
		t.Fatalf("unexpected order ids after replace: %v", got.OrderIDs)
	}

	if err := repo.AppendOrderID(ctx, "missing", "o5"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
