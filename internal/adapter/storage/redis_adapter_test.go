package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/infinitelocus/canteen/internal/port"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestReserveStock_Mirror(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	itemID := "test-item-" + uuid.NewString()
	defer client.Del(ctx, "stock:"+itemID)

	if err := adapter.SetStock(ctx, itemID, 10); err != nil {
		t.Fatalf("SetStock failed: %v", err)
	}

	gate, err := adapter.ReserveStock(ctx, itemID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate != port.GateReserved {
		t.Errorf("expected GateReserved, got %v", gate)
	}

	stock, _ := client.Get(ctx, "stock:"+itemID).Int()
	if stock != 7 {
		t.Errorf("expected stock 7, got %d", stock)
	}
}

func TestReserveStock_Rejected(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	itemID := "test-item-" + uuid.NewString()
	defer client.Del(ctx, "stock:"+itemID)

	adapter.SetStock(ctx, itemID, 2)

	gate, err := adapter.ReserveStock(ctx, itemID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate != port.GateRejected {
		t.Errorf("expected GateRejected, got %v", gate)
	}

	// Rejection must not touch the counter.
	stock, _ := client.Get(ctx, "stock:"+itemID).Int()
	if stock != 2 {
		t.Errorf("expected stock 2, got %d", stock)
	}
}

func TestReserveStock_MissingKeyIsMiss(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	itemID := "test-item-" + uuid.NewString()

	gate, err := adapter.ReserveStock(ctx, itemID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate != port.GateMiss {
		t.Errorf("expected GateMiss, got %v", gate)
	}

	// A miss must not create the key.
	exists, _ := client.Exists(ctx, "stock:"+itemID).Result()
	if exists != 0 {
		t.Error("miss materialized the mirror key")
	}
}

func TestReserveStock_ConcurrentMirror(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	itemID := "test-item-" + uuid.NewString()
	defer client.Del(ctx, "stock:"+itemID)

	adapter.SetStock(ctx, itemID, 50)

	var reserved, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate, err := adapter.ReserveStock(ctx, itemID, 1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			switch gate {
			case port.GateReserved:
				reserved.Add(1)
			case port.GateRejected:
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	if reserved.Load() != 50 {
		t.Errorf("expected exactly 50 reservations, got %d", reserved.Load())
	}
	if rejected.Load() != 50 {
		t.Errorf("expected 50 rejections, got %d", rejected.Load())
	}

	stock, _ := client.Get(ctx, "stock:"+itemID).Int()
	if stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestReleaseStock_OnlyIfMirrored(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	itemID := "test-item-" + uuid.NewString()
	defer client.Del(ctx, "stock:"+itemID)

	// Releasing an unmirrored item must not seed the key with a bogus count.
	if err := adapter.ReleaseStock(ctx, itemID, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exists, _ := client.Exists(ctx, "stock:"+itemID).Result()
	if exists != 0 {
		t.Error("release materialized the mirror key")
	}

	adapter.SetStock(ctx, itemID, 10)
	if err := adapter.ReleaseStock(ctx, itemID, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stock, _ := client.Get(ctx, "stock:"+itemID).Int()
	if stock != 15 {
		t.Errorf("expected stock 15, got %d", stock)
	}
}

func TestDeleteStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	itemID := "test-item-" + uuid.NewString()

	adapter.SetStock(ctx, itemID, 10)
	if err := adapter.DeleteStock(ctx, itemID); err != nil {
		t.Fatalf("DeleteStock failed: %v", err)
	}

	gate, err := adapter.ReserveStock(ctx, itemID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate != port.GateMiss {
		t.Errorf("expected GateMiss after delete, got %v", gate)
	}
}

func TestSetIdempotency(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "test-req-" + uuid.NewString()
	defer client.Del(ctx, "idem:"+key)

	ok, err := adapter.SetIdempotency(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first claim to succeed")
	}

	ok, err = adapter.SetIdempotency(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second claim to fail")
	}
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "test-req-" + uuid.NewString()
	defer client.Del(ctx, "idem:"+key)

	var claims atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, key)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				claims.Add(1)
			}
		}()
	}
	wg.Wait()

	if claims.Load() != 1 {
		t.Errorf("expected exactly 1 claim, got %d", claims.Load())
	}
}

func TestAcquireSweepLock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	defer client.Del(ctx, "sweep:leader")

	client.Del(ctx, "sweep:leader")

	ok, err := adapter.AcquireSweepLock(ctx, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected lock acquisition to succeed")
	}

	ok, err = adapter.AcquireSweepLock(ctx, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected held lock to be refused")
	}
}
