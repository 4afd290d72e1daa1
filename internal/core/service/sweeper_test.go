package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/infinitelocus/canteen/internal/core/domain"
)

func newTestSweeper(store *mockStore, cache *mockCache, orders *OrderService) *Sweeper {
	return NewSweeper(store, cache, orders, time.Minute, zerolog.Nop())
}

func TestSweep_CancelsExpiredOrders(t *testing.T) {
	store := newMockStore(map[string]int{"latte": 10})
	cache := newMockCache()
	svc := newTestService(store, cache)
	sweeper := newTestSweeper(store, cache, svc)

	placedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return placedAt }

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "user-1",
		Items:  []LineItem{{ItemID: "latte", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}
	if got := store.stockOf("latte"); got != 7 {
		t.Fatalf("expected stock 7 after placement, got %d", got)
	}

	// One second past the deadline.
	sweeper.now = func() time.Time { return order.ExpiresAt.Add(time.Second) }

	if got := sweeper.Sweep(context.Background()); got != 1 {
		t.Errorf("expected 1 cancellation, got %d", got)
	}

	swept, err := store.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("order lookup failed: %v", err)
	}
	if swept.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled status, got %s", swept.Status)
	}
	if swept.CancelReason != domain.ReasonAutoExpired {
		t.Errorf("expected reason %q, got %q", domain.ReasonAutoExpired, swept.CancelReason)
	}
	if got := store.stockOf("latte"); got != 10 {
		t.Errorf("expected stock restored to 10, got %d", got)
	}
}

func TestSweep_LeavesUnexpiredOrders(t *testing.T) {
	store := newMockStore(map[string]int{"latte": 10})
	cache := newMockCache()
	svc := newTestService(store, cache)
	sweeper := newTestSweeper(store, cache, svc)

	placedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return placedAt }

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "user-1",
		Items:  []LineItem{{ItemID: "latte", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	// One second before the deadline.
	sweeper.now = func() time.Time { return order.ExpiresAt.Add(-time.Second) }

	if got := sweeper.Sweep(context.Background()); got != 0 {
		t.Errorf("expected no cancellations, got %d", got)
	}

	kept, _ := store.GetOrder(context.Background(), order.ID)
	if kept.Status != domain.OrderStatusPending {
		t.Errorf("expected order untouched, got %s", kept.Status)
	}
}

func TestSweep_LockHeldElsewhere(t *testing.T) {
	store := newMockStore(map[string]int{"latte": 10})
	cache := newMockCache()
	cache.locked = true
	svc := newTestService(store, cache)
	sweeper := newTestSweeper(store, cache, svc)

	placedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return placedAt }

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "user-1",
		Items:  []LineItem{{ItemID: "latte", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	sweeper.now = func() time.Time { return order.ExpiresAt.Add(time.Hour) }

	if got := sweeper.Sweep(context.Background()); got != 0 {
		t.Errorf("expected sweep to yield to lock holder, got %d cancellations", got)
	}

	kept, _ := store.GetOrder(context.Background(), order.ID)
	if kept.Status != domain.OrderStatusPending {
		t.Errorf("expected order untouched, got %s", kept.Status)
	}
}

func TestSweep_ToleratesAlreadyTerminalOrders(t *testing.T) {
	// The scan can race a user cancellation: an order returned as expired may
	// be terminal by the time the sweeper acts on it. That is counted as a
	// skip, and the remaining orders are still processed.
	store := newMockStore(map[string]int{"latte": 10})
	cache := newMockCache()
	svc := newTestService(store, cache)
	sweeper := newTestSweeper(store, cache, svc)

	placedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return placedAt }

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "user-1",
		Items:  []LineItem{{ItemID: "latte", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	racer, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "user-2",
		Items:  []LineItem{{ItemID: "latte", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}
	if _, err := svc.CancelOrder(context.Background(), racer.ID, "", ActorUser); err != nil {
		t.Fatalf("cancellation failed: %v", err)
	}
	store.extraExpired = []domain.Order{*racer}

	sweeper.now = func() time.Time { return order.ExpiresAt.Add(time.Second) }

	if got := sweeper.Sweep(context.Background()); got != 1 {
		t.Errorf("expected 1 cancellation despite the terminal racer, got %d", got)
	}

	swept, _ := store.GetOrder(context.Background(), order.ID)
	if swept.Status != domain.OrderStatusCancelled {
		t.Errorf("expected expired order cancelled, got %s", swept.Status)
	}
}

func TestSweep_ContinuesAfterFailure(t *testing.T) {
	store := newMockStore(map[string]int{"latte": 10, "bagel": 10})
	cache := newMockCache()
	svc := newTestService(store, cache)
	sweeper := newTestSweeper(store, cache, svc)

	placedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return placedAt }

	broken, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "user-1",
		Items:  []LineItem{{ItemID: "latte", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}
	healthy, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "user-2",
		Items:  []LineItem{{ItemID: "bagel", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	// The first order references an item the catalog no longer has, so its
	// cancellation fails; the second must still be swept.
	store.mu.Lock()
	delete(store.items, "latte")
	store.mu.Unlock()

	sweeper.now = func() time.Time { return broken.ExpiresAt.Add(time.Second) }

	if got := sweeper.Sweep(context.Background()); got != 1 {
		t.Errorf("expected 1 cancellation, got %d", got)
	}

	swept, _ := store.GetOrder(context.Background(), healthy.ID)
	if swept.Status != domain.OrderStatusCancelled {
		t.Errorf("expected healthy order cancelled, got %s", swept.Status)
	}
	stuck, _ := store.GetOrder(context.Background(), broken.ID)
	if stuck.Status != domain.OrderStatusPending {
		t.Errorf("expected broken order left pending, got %s", stuck.Status)
	}
}
