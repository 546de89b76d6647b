package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-lead-bot/internal/domain"
)

// RedisDispatchQueue реализует очередь доставки на базе Redis lists:
// записи переживают рестарт процесса.
type RedisDispatchQueue struct {
	client *redis.Client
	key    string
}

// NewRedisDispatchQueue создаёт очередь по указанному ключу.
func NewRedisDispatchQueue(client *redis.Client, key string) *RedisDispatchQueue {
	return &RedisDispatchQueue{client: client, key: key}
}

// Enqueue публикует запись в очередь.
func (q *RedisDispatchQueue) Enqueue(ctx context.Context, rec domain.DeliveryRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push record: %w", err)
	}
	return nil
}

// Pop блокирующе читает запись из очереди.
func (q *RedisDispatchQueue) Pop(ctx context.Context) (domain.DeliveryRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.DeliveryRecord{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.DeliveryRecord{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.DeliveryRecord{}, err
		}
		if len(res) != 2 {
			return domain.DeliveryRecord{}, errors.New("redis queue: unexpected response")
		}
		var rec domain.DeliveryRecord
		if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
			return domain.DeliveryRecord{}, fmt.Errorf("decode record: %w", err)
		}
		return rec, nil
	}
}
