package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/neso/internal/services/federation/storage"
)

type fakeQueue struct {
	mu       sync.Mutex
	pending  []storage.DeliveryRecord
	requeued []storage.DeliveryRecord
	onDrain  func()
}

func (q *fakeQueue) DequeueDelivery(context.Context) (*storage.DeliveryRecord, time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		if q.onDrain != nil {
			q.onDrain()
		}
		return nil, time.Time{}, nil
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	return &next, time.Time{}, nil
}

func (q *fakeQueue) RequeueDelivery(_ context.Context, delivery storage.DeliveryRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeued = append(q.requeued, delivery)
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []storage.DeliveryRecord
	fail bool
}

func (s *fakeSender) Send(_ context.Context, delivery storage.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, delivery)
	if s.fail {
		return fmt.Errorf("inbox unreachable")
	}
	return nil
}

func runUntilDrained(t *testing.T, queue *fakeQueue, sender *fakeSender, cfg Config) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.onDrain = cancel

	loop, err := New(queue, sender, cfg, func(string, ...any) {})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run returned %v, want clean shutdown", err)
	}
}

func TestLoopSendsEachDeliveryOnce(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{pending: []storage.DeliveryRecord{
		{Address: "https://remote.example/u/carol/inbox", Body: "a"},
		{Address: "https://remote.example/u/dan/inbox", Body: "b"},
	}}
	sender := &fakeSender{}

	runUntilDrained(t, queue, sender, Config{})

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d deliveries, want 2", len(sender.sent))
	}
	if len(queue.requeued) != 0 {
		t.Fatalf("requeued %d deliveries, want 0", len(queue.requeued))
	}
}

func TestLoopRequeuesFailedDelivery(t *testing.T) {
	t.Parallel()

	delivery := storage.DeliveryRecord{Address: "https://remote.example/u/carol/inbox", Body: "a", Attempt: 2}
	queue := &fakeQueue{pending: []storage.DeliveryRecord{delivery}}
	sender := &fakeSender{fail: true}

	runUntilDrained(t, queue, sender, Config{MaxAttempts: 8})

	if len(queue.requeued) != 1 {
		t.Fatalf("requeued %d deliveries, want 1", len(queue.requeued))
	}
	if got := queue.requeued[0]; got.Attempt != delivery.Attempt {
		t.Fatalf("requeued attempt = %d, want caller-held value %d", got.Attempt, delivery.Attempt)
	}
}

func TestLoopDropsDeliveryAtAttemptLimit(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{pending: []storage.DeliveryRecord{
		{Address: "https://remote.example/u/carol/inbox", Body: "a", Attempt: 7},
	}}
	sender := &fakeSender{fail: true}

	runUntilDrained(t, queue, sender, Config{MaxAttempts: 8})

	if len(queue.requeued) != 0 {
		t.Fatalf("requeued %d deliveries, want drop at attempt limit", len(queue.requeued))
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d attempts, want 1", len(sender.sent))
	}
}

func TestIdleWaitCapsAtPollIntervalAndFloorsPastDue(t *testing.T) {
	t.Parallel()

	loop, err := New(&fakeQueue{}, &fakeSender{}, Config{PollInterval: time.Second}, func(string, ...any) {})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	loop.clock = func() time.Time { return now }

	if got := loop.idleWait(time.Time{}); got != time.Second {
		t.Fatalf("empty queue wait = %v, want poll interval", got)
	}
	if got := loop.idleWait(now.Add(200 * time.Millisecond)); got != 200*time.Millisecond {
		t.Fatalf("near-future wait = %v, want 200ms", got)
	}
	if got := loop.idleWait(now.Add(time.Minute)); got != time.Second {
		t.Fatalf("far-future wait = %v, want poll interval cap", got)
	}
	if got := loop.idleWait(now.Add(-time.Minute)); got != time.Millisecond {
		t.Fatalf("past-due wait = %v, want floor", got)
	}
}
