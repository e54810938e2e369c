package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/neso/internal/services/federation/storage"
)

func TestEnqueueFansOutPerAddress(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	fixTime(store, now)

	if err := store.EnqueueDelivery(ctx, "https://social.example/ap/u/alice", `{"type":"Create"}`,
		[]string{"https://remote.example/inbox/a", "https://remote.example/inbox/b"}, "key-1"); err != nil {
		t.Fatalf("enqueue delivery: %v", err)
	}

	fixTime(store, now.Add(time.Second))
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		delivery, waitUntil, err := store.DequeueDelivery(ctx)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if delivery == nil {
			t.Fatalf("dequeue %d returned no delivery (waitUntil %v)", i, waitUntil)
		}
		if delivery.Attempt != 0 {
			t.Fatalf("attempt = %d, want 0", delivery.Attempt)
		}
		if !delivery.After.Equal(now) {
			t.Fatalf("after = %v, want %v", delivery.After, now)
		}
		seen[delivery.Address] = true
	}
	if !seen["https://remote.example/inbox/a"] || !seen["https://remote.example/inbox/b"] {
		t.Fatalf("expected both addresses dequeued, got %v", seen)
	}

	delivery, waitUntil, err := store.DequeueDelivery(ctx)
	if err != nil {
		t.Fatalf("dequeue empty: %v", err)
	}
	if delivery != nil || !waitUntil.IsZero() {
		t.Fatalf("expected empty queue, got %+v waitUntil %v", delivery, waitUntil)
	}
}

func TestDequeueReturnsWaitUntilForFutureWork(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	fixTime(store, now)

	if err := store.EnqueueDelivery(ctx, "https://social.example/ap/u/alice", "{}",
		[]string{"https://remote.example/inbox/a"}, "key-1"); err != nil {
		t.Fatalf("enqueue delivery: %v", err)
	}

	// Eligibility requires after strictly below now; at the enqueue instant
	// the row is still pending.
	delivery, waitUntil, err := store.DequeueDelivery(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if delivery != nil {
		t.Fatalf("expected no eligible delivery, got %+v", delivery)
	}
	if !waitUntil.Equal(now) {
		t.Fatalf("waitUntil = %v, want %v", waitUntil, now)
	}

	fixTime(store, now.Add(time.Millisecond))
	delivery, _, err = store.DequeueDelivery(ctx)
	if err != nil {
		t.Fatalf("dequeue after due: %v", err)
	}
	if delivery == nil {
		t.Fatal("expected due delivery")
	}
}

func TestRequeueBacksOffExponentially(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	enqueuedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	fixTime(store, enqueuedAt)

	if err := store.EnqueueDelivery(ctx, "https://social.example/ap/u/alice", "{}",
		[]string{"https://remote.example/inbox/a"}, "key-1"); err != nil {
		t.Fatalf("enqueue delivery: %v", err)
	}

	fixTime(store, enqueuedAt.Add(time.Second))
	first, _, err := store.DequeueDelivery(ctx)
	if err != nil || first == nil {
		t.Fatalf("dequeue first: %+v %v", first, err)
	}
	if err := store.RequeueDelivery(ctx, *first); err != nil {
		t.Fatalf("requeue first: %v", err)
	}

	fixTime(store, enqueuedAt.Add(time.Minute))
	second, _, err := store.DequeueDelivery(ctx)
	if err != nil || second == nil {
		t.Fatalf("dequeue second: %+v %v", second, err)
	}
	if second.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", second.Attempt)
	}
	if want := enqueuedAt.Add(10 * time.Millisecond); !second.After.Equal(want) {
		t.Fatalf("after = %v, want %v", second.After, want)
	}

	if err := store.RequeueDelivery(ctx, *second); err != nil {
		t.Fatalf("requeue second: %v", err)
	}
	third, _, err := store.DequeueDelivery(ctx)
	if err != nil || third == nil {
		t.Fatalf("dequeue third: %+v %v", third, err)
	}
	if third.Attempt != 2 {
		t.Fatalf("attempt = %d, want 2", third.Attempt)
	}
	if want := enqueuedAt.Add(110 * time.Millisecond); !third.After.Equal(want) {
		t.Fatalf("after = %v, want %v", third.After, want)
	}
}

func TestRequeueBackoffSaturatesAtHighAttempts(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	held := storage.DeliveryRecord{
		Address: "https://remote.example/inbox/a",
		ActorID: "https://social.example/ap/u/alice",
		Body:    "{}",
		Attempt: 30,
		After:   base,
	}
	if err := store.RequeueDelivery(ctx, held); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	saturated := base.Add(time.Duration(1e12) * time.Millisecond)
	fixTime(store, saturated.Add(time.Second))
	requeued, _, err := store.DequeueDelivery(ctx)
	if err != nil || requeued == nil {
		t.Fatalf("dequeue: %+v %v", requeued, err)
	}
	if requeued.Attempt != 31 {
		t.Fatalf("attempt = %d, want 31", requeued.Attempt)
	}
	if !requeued.After.Equal(saturated) {
		t.Fatalf("after = %v, want saturated %v", requeued.After, saturated)
	}
	if !requeued.After.After(base) {
		t.Fatalf("after %v moved backwards from %v", requeued.After, base)
	}
}

func TestConcurrentDequeueNeverSharesARow(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	fixTime(store, now)

	if err := store.EnqueueDelivery(ctx, "https://social.example/ap/u/alice", "{}",
		[]string{"https://remote.example/inbox/a"}, "key-1"); err != nil {
		t.Fatalf("enqueue delivery: %v", err)
	}
	fixTime(store, now.Add(time.Second))

	const workers = 8
	var wg sync.WaitGroup
	addresses := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			delivery, _, err := store.DequeueDelivery(ctx)
			if err != nil {
				t.Errorf("dequeue: %v", err)
				return
			}
			if delivery != nil {
				addresses <- delivery.Address
			}
		}()
	}
	wg.Wait()
	close(addresses)

	var winners int
	for range addresses {
		winners++
	}
	if winners != 1 {
		t.Fatalf("expected exactly one dequeue winner, got %d", winners)
	}
}
