package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-lead-bot/internal/domain"
	"tg-lead-bot/internal/infra/metrics"
)

// Durable оборачивает бэкенд-леджер ограниченными повторами с экспоненциальной
// паузой. Исчерпание попыток возвращает последнюю ошибку вызывающему: решение
// об оверфлоу принимает потребитель очереди, а не этот клиент.
type Durable struct {
	backend     domain.Ledger
	log         zerolog.Logger
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	ensured map[string]struct{}
}

var _ domain.Appender = (*Durable)(nil)

// NewDurable создаёт клиент. maxAttempts меньше 1 трактуется как 1.
func NewDurable(backend domain.Ledger, logger zerolog.Logger, maxAttempts int, backoffBase, backoffCap time.Duration) *Durable {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Durable{
		backend:     backend,
		log:         logger,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		sleep:       sleepCtx,
		ensured:     make(map[string]struct{}),
	}
}

// Append дописывает строку во вкладку, создавая вкладку с заголовком при
// первом обращении. Каждая попытка — свежий вызов API.
func (d *Durable) Append(ctx context.Context, bucket string, row []string) error {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := d.sleep(ctx, d.backoff(attempt-1)); err != nil {
				return err
			}
		}
		lastErr = d.tryAppend(ctx, bucket, row)
		if lastErr == nil {
			metrics.DeliveryAttempts.WithLabelValues(bucket, "success").Inc()
			metrics.DeliverySeconds.Observe(time.Since(start).Seconds())
			return nil
		}
		metrics.DeliveryAttempts.WithLabelValues(bucket, "error").Inc()
		d.log.Warn().Err(lastErr).Str("bucket", bucket).Int("attempt", attempt).Msg("запись в леджер не удалась")
	}
	return fmt.Errorf("запись во вкладку %s после %d попыток: %w", bucket, d.maxAttempts, lastErr)
}

func (d *Durable) tryAppend(ctx context.Context, bucket string, row []string) error {
	if err := d.ensureBucket(ctx, bucket); err != nil {
		return fmt.Errorf("создание вкладки: %w", err)
	}
	return d.backend.AppendRow(ctx, bucket, row)
}

func (d *Durable) ensureBucket(ctx context.Context, bucket string) error {
	d.mu.Lock()
	_, ok := d.ensured[bucket]
	d.mu.Unlock()
	if ok {
		return nil
	}
	if err := d.backend.EnsureBucket(ctx, bucket); err != nil {
		return err
	}
	d.mu.Lock()
	d.ensured[bucket] = struct{}{}
	d.mu.Unlock()
	return nil
}

func (d *Durable) backoff(n int) time.Duration {
	delay := d.backoffBase << (n - 1)
	if delay > d.backoffCap || delay <= 0 {
		delay = d.backoffCap
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
