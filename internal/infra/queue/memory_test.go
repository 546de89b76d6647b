package queue

import (
	"context"
	"testing"
	"time"

	"tg-lead-bot/internal/domain"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryDispatchQueue()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, domain.DeliveryRecord{ID: id}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	for _, expected := range []string{"a", "b", "c"} {
		rec, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if rec.ID != expected {
			t.Fatalf("нарушен порядок: ожидали %s, получили %s", expected, rec.ID)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("очередь должна опустеть")
	}
}

func TestMemoryQueuePopBlocksUntilEnqueue(t *testing.T) {
	q := NewMemoryDispatchQueue()
	ctx := context.Background()

	done := make(chan domain.DeliveryRecord, 1)
	go func() {
		rec, err := q.Pop(ctx)
		if err != nil {
			return
		}
		done <- rec
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(ctx, domain.DeliveryRecord{ID: "x"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	select {
	case rec := <-done:
		if rec.ID != "x" {
			t.Fatalf("ожидали x, получили %s", rec.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop не проснулся после Enqueue")
	}
}

func TestMemoryQueuePopCancellable(t *testing.T) {
	q := NewMemoryDispatchQueue()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("ожидали ошибку отмены контекста")
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop не завершился после отмены контекста")
	}
}
