package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	base := time.Now().UTC().Round(time.Microsecond)
	events := []domain.TimelineEvent{
		{OrderID: "order-1", Type: domain.TimelineOrderStatusChanged, Reason: "shipped", Occurred: base.Add(time.Second)},
		{OrderID: "order-1", Type: domain.TimelineOrderPlaced, Occurred: base},
		{OrderID: "order-2", Type: domain.TimelineOrderPlaced},
	}
	for _, e := range events {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := repo.List(ctx, "order-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Type != domain.TimelineOrderPlaced || got[1].Reason != "shipped" {
		t.Fatalf("unexpected timeline: %+v", got)
	}

	other, err := repo.List(ctx, "order-2")
	if err != nil || len(other) != 1 || other[0].Occurred.IsZero() {
		t.Fatalf("expected generated timestamp, got %+v, %v", other, err)
	}
}

func TestTimelineRepository_PostgresDeleteForOrderAndValidation(t *testing.T) {
	ctx := context.Background()
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	for _, e := range []domain.TimelineEvent{
		{OrderID: "order-1", Type: domain.TimelineOrderPlaced},
		{OrderID: "order-1", Type: domain.TimelineOrderStatusChanged, Reason: "pending -> shipped"},
		{OrderID: "order-2", Type: domain.TimelineOrderPlaced},
	} {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	removed, err := repo.DeleteForOrder(ctx, "order-1")
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed events, got %d %v", removed, err)
	}
	if n := countRows(t, store, "timeline_events", "order_id = $1", "order-1"); n != 0 {
		t.Fatalf("order-1 timeline must be gone, %d rows left", n)
	}
	if n := countRows(t, store, "timeline_events", ""); n != 1 {
		t.Fatalf("expected one remaining event, got %d", n)
	}

	if err := repo.Append(ctx, domain.TimelineEvent{OrderID: "order-2", Type: "OrderLost"}); !errors.Is(err, domain.ErrTimelineTypeInvalid) {
		t.Fatalf("expected ErrTimelineTypeInvalid, got %v", err)
	}
	if n := countRows(t, store, "timeline_events", ""); n != 1 {
		t.Fatalf("invalid event must not be inserted, got %d rows", n)
	}
}
