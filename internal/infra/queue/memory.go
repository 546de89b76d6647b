package queue

import (
	"context"
	"sync"

	"tg-lead-bot/internal/domain"
)

// MemoryDispatchQueue — безлимитная внутрипроцессная очередь с одним
// потребителем. Enqueue никогда не блокирует обработчик сообщений.
type MemoryDispatchQueue struct {
	mu       sync.Mutex
	items    []domain.DeliveryRecord
	nonEmpty chan struct{}
}

// NewMemoryDispatchQueue создаёт очередь.
func NewMemoryDispatchQueue() *MemoryDispatchQueue {
	return &MemoryDispatchQueue{nonEmpty: make(chan struct{}, 1)}
}

// Enqueue добавляет запись в хвост очереди.
func (q *MemoryDispatchQueue) Enqueue(ctx context.Context, rec domain.DeliveryRecord) error {
	q.mu.Lock()
	q.items = append(q.items, rec)
	q.mu.Unlock()
	select {
	case q.nonEmpty <- struct{}{}:
	default:
	}
	return nil
}

// Pop блокируется до появления записи или отмены контекста.
func (q *MemoryDispatchQueue) Pop(ctx context.Context) (domain.DeliveryRecord, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			rec := q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				select {
				case q.nonEmpty <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return rec, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.DeliveryRecord{}, ctx.Err()
		case <-q.nonEmpty:
		}
	}
}

// Len возвращает текущую длину очереди.
func (q *MemoryDispatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
