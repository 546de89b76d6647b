package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-lead-bot/internal/domain"
)

// RabbitDispatchQueue реализует очередь доставки поверх RabbitMQ:
// долговечная очередь, JSON-тела, подтверждение при получении.
type RabbitDispatchQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewRabbitDispatchQueue подключается к брокеру и объявляет очередь.
func NewRabbitDispatchQueue(amqpURL, queue string) (*RabbitDispatchQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitDispatchQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует запись в очередь.
func (q *RabbitDispatchQueue) Enqueue(ctx context.Context, rec domain.DeliveryRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

// Pop блокирующе читает запись из очереди.
func (q *RabbitDispatchQueue) Pop(ctx context.Context) (domain.DeliveryRecord, error) {
	if q.deliveries == nil {
		deliveries, err := q.ch.ConsumeWithContext(ctx, q.queue, "", true, false, false, false, nil)
		if err != nil {
			return domain.DeliveryRecord{}, fmt.Errorf("consume: %w", err)
		}
		q.deliveries = deliveries
	}
	select {
	case <-ctx.Done():
		return domain.DeliveryRecord{}, ctx.Err()
	case msg, ok := <-q.deliveries:
		if !ok {
			return domain.DeliveryRecord{}, errors.New("rabbit queue: канал потребителя закрыт")
		}
		var rec domain.DeliveryRecord
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			return domain.DeliveryRecord{}, fmt.Errorf("decode record: %w", err)
		}
		return rec, nil
	}
}

// Close освобождает канал и соединение.
func (q *RabbitDispatchQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
