package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestTryAdmit_UnderLimit(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	keeper := NewRedisQuotaKeeper(client)

	client.Del(ctx, "quota:sale-1:customer-a")

	total, ok, err := keeper.TryAdmit(ctx, "customer-a", "sale-1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || total != 1 {
		t.Errorf("expected admitted with total 1, got ok=%v total=%d", ok, total)
	}

	total, ok, err = keeper.TryAdmit(ctx, "customer-a", "sale-1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || total != 2 {
		t.Errorf("expected admitted with total 2, got ok=%v total=%d", ok, total)
	}
}

func TestTryAdmit_OverLimit(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	keeper := NewRedisQuotaKeeper(client)

	client.Del(ctx, "quota:sale-1:customer-a")

	if _, ok, _ := keeper.TryAdmit(ctx, "customer-a", "sale-1", 1, 1); !ok {
		t.Fatal("first admit should succeed")
	}

	_, ok, err := keeper.TryAdmit(ctx, "customer-a", "sale-1", 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected rejection over limit")
	}

	// Counter untouched by the rejected attempt.
	val, _ := client.Get(ctx, "quota:sale-1:customer-a").Int()
	if val != 1 {
		t.Errorf("expected counter 1, got %d", val)
	}
}

func TestTryAdmit_QuantityLargerThanLimit(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	keeper := NewRedisQuotaKeeper(client)

	client.Del(ctx, "quota:sale-1:customer-b")

	_, ok, err := keeper.TryAdmit(ctx, "customer-b", "sale-1", 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected rejection when quantity alone exceeds limit")
	}
}

func TestTryAdmit_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	keeper := NewRedisQuotaKeeper(client)

	client.Del(ctx, "quota:sale-1:racer")

	var successCount atomic.Int32
	var wg sync.WaitGroup

	// One customer racing itself with limit 1: exactly one admission.
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := keeper.TryAdmit(ctx, "racer", "sale-1", 1, 1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 admission, got %d", successCount.Load())
	}
}

func TestQuotaRelease_FloorsAtZero(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	keeper := NewRedisQuotaKeeper(client)

	client.Del(ctx, "quota:sale-1:customer-a")
	keeper.TryAdmit(ctx, "customer-a", "sale-1", 1, 5)

	if err := keeper.Release(ctx, "customer-a", "sale-1", 3); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	val, _ := client.Get(ctx, "quota:sale-1:customer-a").Int()
	if val != 0 {
		t.Errorf("expected counter floored at 0, got %d", val)
	}
}

func TestQuotaListCustomers(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	keeper := NewRedisQuotaKeeper(client)

	saleID := "list-customers-sale"
	iter := client.Scan(ctx, 0, "quota:"+saleID+":*", 0).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}

	keeper.TryAdmit(ctx, "customer-a", saleID, 1, 5)
	keeper.SetTotal(ctx, "customer-b", saleID, 2)

	customers, err := keeper.ListCustomers(ctx, saleID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	seen := make(map[string]bool)
	for _, c := range customers {
		seen[c] = true
	}
	if len(customers) != 2 || !seen["customer-a"] || !seen["customer-b"] {
		t.Errorf("expected customer-a and customer-b, got %v", customers)
	}

	none, err := keeper.ListCustomers(ctx, "sale-with-no-counters")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no customers, got %v", none)
	}
}

func TestQuotaSetTotal(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	keeper := NewRedisQuotaKeeper(client)

	client.Del(ctx, "quota:sale-1:customer-a")

	if err := keeper.SetTotal(ctx, "customer-a", "sale-1", 2); err != nil {
		t.Fatalf("set total failed: %v", err)
	}

	// Subsequent admissions respect the rebuilt total.
	_, ok, _ := keeper.TryAdmit(ctx, "customer-a", "sale-1", 1, 2)
	if ok {
		t.Error("expected rejection at rebuilt limit")
	}
}
