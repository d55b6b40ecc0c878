package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOrderRepository_PostgresInsertGetAndList(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	older, err := repo.Insert(ctx, sampleOrder("user-1", now.Add(-2*time.Minute)))
	if err != nil {
		t.Fatalf("insert older: %v", err)
	}
	newer, err := repo.Insert(ctx, sampleOrder("user-1", now.Add(-time.Minute)))
	if err != nil {
		t.Fatalf("insert newer: %v", err)
	}
	if _, err := repo.Insert(ctx, sampleOrder("user-2", now)); err != nil {
		t.Fatalf("insert other user: %v", err)
	}

	got, err := repo.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Product != older.Product || got.Delivery != older.Delivery || got.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order payload: %+v", got)
	}

	listed, err := repo.ListByUser(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("list by user with limit: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != newer.ID {
		t.Fatalf("unexpected list result with limit: %+v", listed)
	}

	all, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].UserID != "user-2" {
		t.Fatalf("unexpected admin listing: %+v", all)
	}
}

func TestOrderRepository_PostgresStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order, err := repo.Insert(ctx, sampleOrder("user-1", time.Now().UTC()))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	shipped, err := repo.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if shipped.Status != domain.OrderStatusShipped || shipped.Product != order.Product {
		t.Fatalf("unexpected order after status update: %+v", shipped)
	}
	if _, err := repo.UpdateStatus(ctx, "missing", domain.OrderStatusShipped); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	deleted, err := repo.Delete(ctx, order.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.ID != order.ID {
		t.Fatalf("unexpected deleted order: %+v", deleted)
	}
	if _, err := repo.Get(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound after delete, got %v", err)
	}
	if _, err := repo.Insert(ctx, order); err != nil {
		t.Fatalf("re-insert after delete: %v", err)
	}
	if _, err := repo.Insert(ctx, order); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for non-unique code")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
}
