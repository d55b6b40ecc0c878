package orders_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type fixture struct {
	orders   domain.OrderRepository
	users    domain.UserRepository
	outbox   *memory.OutboxRepository
	timeline domain.TimelineRepository
	svc      *orders.Service
	user     domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orders:   memory.NewOrderRepository(),
		users:    memory.NewUserRepository(),
		outbox:   memory.NewOutboxRepository(),
		timeline: memory.NewTimelineRepository(),
	}
	f.svc = orders.NewService(f.orders, f.users, f.outbox, f.timeline, nil)

	user, err := f.users.Create(context.Background(), domain.User{FullName: "Bat", Phone: "99112233"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	f.user = user
	return f
}

func (f *fixture) placeOrder(t *testing.T, createdAt time.Time) domain.Order {
	t.Helper()
	ctx := context.Background()
	order, err := f.orders.Insert(ctx, domain.Order{
		UserID:    f.user.ID,
		Product:   domain.ProductSnapshot{ProductID: "tshirt", Name: "T-Shirt", Size: "S", PriceMinor: 15000},
		Quantity:  1,
		Delivery:  domain.DeliverySnapshot{FullName: "Bat", Phone: "99112233", Address: "Peace Ave 5", City: "Ulaanbaatar", District: "SBD"},
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}
	if err := f.users.AppendOrderID(ctx, f.user.ID, order.ID); err != nil {
		t.Fatalf("append order id: %v", err)
	}
	return order
}

func TestUpdateStatus_AnyDirection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.placeOrder(t, time.Now().UTC())

	steps := []domain.OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusDelivered,
		domain.OrderStatusPending,
	}
	for _, want := range steps {
		updated, err := f.svc.UpdateStatus(ctx, order.ID, string(want))
		if err != nil {
			t.Fatalf("update to %s failed: %v", want, err)
		}
		if updated.Status != want {
			t.Fatalf("expected %s, got %s", want, updated.Status)
		}
	}

	details, err := f.svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(details.Timeline) != len(steps) {
		t.Fatalf("expected %d timeline events, got %d", len(steps), len(details.Timeline))
	}
	if details.Timeline[2].Reason != "delivered -> pending" {
		t.Fatalf("unexpected transition reason: %q", details.Timeline[2].Reason)
	}

	pending, _ := f.outbox.PullPending(ctx, 10)
	if len(pending) != len(steps) {
		t.Fatalf("expected %d outbox events, got %d", len(steps), len(pending))
	}
}

func TestUpdateStatus_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.placeOrder(t, time.Now().UTC().Add(-time.Hour))

	if _, err := f.svc.UpdateStatus(ctx, order.ID, "lost"); !errors.Is(err, domain.ErrStatusInvalid) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, "missing", "shipped"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	same, err := f.svc.UpdateStatus(ctx, order.ID, "PENDING")
	if err != nil || same.Status != domain.OrderStatusPending {
		t.Fatalf("same status must be accepted: %+v %v", same, err)
	}
	if !same.UpdatedAt.After(order.UpdatedAt) {
		t.Fatalf("same status must still bump updated_at: before=%s after=%s", order.UpdatedAt, same.UpdatedAt)
	}
	stored, _ := f.orders.Get(ctx, order.ID)
	if !stored.UpdatedAt.Equal(same.UpdatedAt) {
		t.Fatalf("updated_at must be persisted: %s vs %s", stored.UpdatedAt, same.UpdatedAt)
	}
	if events, _ := f.timeline.List(ctx, order.ID); len(events) != 0 {
		t.Fatalf("same status must not touch the timeline: %+v", events)
	}
	if pending, _ := f.outbox.PullPending(ctx, 10); len(pending) != 0 {
		t.Fatalf("same status must not emit events: %+v", pending)
	}
}

func TestDelete_RemovesOrderFromUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	keep := f.placeOrder(t, time.Now().UTC().Add(-time.Hour))
	drop := f.placeOrder(t, time.Now().UTC())
	for _, order := range []domain.Order{keep, drop} {
		if _, err := f.svc.UpdateStatus(ctx, order.ID, "shipped"); err != nil {
			t.Fatalf("update status: %v", err)
		}
	}

	deleted, err := f.svc.Delete(ctx, drop.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted.ID != drop.ID {
		t.Fatalf("unexpected deleted order: %s", deleted.ID)
	}
	if _, err := f.orders.Get(ctx, drop.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("order must be gone, got %v", err)
	}

	user, _ := f.users.Get(ctx, f.user.ID)
	if len(user.OrderIDs) != 1 || user.OrderIDs[0] != keep.ID {
		t.Fatalf("unexpected user order ids: %v", user.OrderIDs)
	}

	if events, _ := f.timeline.List(ctx, drop.ID); len(events) != 0 {
		t.Fatalf("timeline of a deleted order must be purged: %+v", events)
	}
	if events, _ := f.timeline.List(ctx, keep.ID); len(events) != 1 {
		t.Fatalf("timeline of the kept order must stay: %+v", events)
	}

	if _, err := f.svc.Delete(ctx, drop.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("second delete must report not found, got %v", err)
	}
}

func TestListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	older := f.placeOrder(t, base)
	newer := f.placeOrder(t, base.Add(time.Hour))

	byPhone, err := f.svc.ListForPhone(ctx, "9911 2233", 0)
	if err != nil {
		t.Fatalf("list by phone: %v", err)
	}
	if len(byPhone) != 2 || byPhone[0].ID != newer.ID || byPhone[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", byPhone)
	}

	limited, err := f.svc.ListAll(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("list all with limit: %v %d", err, len(limited))
	}

	if _, err := f.svc.ListForUser(ctx, " ", 0); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.ListForPhone(ctx, "11110000", 0); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestRebuildUserIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	first := f.placeOrder(t, base)
	second := f.placeOrder(t, base.Add(time.Minute))

	if err := f.users.ReplaceOrderIDs(ctx, f.user.ID, []string{"stale", second.ID}); err != nil {
		t.Fatalf("corrupt index: %v", err)
	}

	ids, err := f.svc.RebuildUserIndex(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Fatalf("unexpected rebuilt ids: %v", ids)
	}
	user, _ := f.users.Get(ctx, f.user.ID)
	if len(user.OrderIDs) != 2 || user.OrderIDs[0] != first.ID {
		t.Fatalf("index not persisted: %v", user.OrderIDs)
	}
}
