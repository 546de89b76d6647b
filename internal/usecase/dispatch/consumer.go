package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-lead-bot/internal/domain"
)

// Delivered вызывается после достижения записью терминального статуса.
// overflowed=true означает, что запись ушла в дисковую очередь.
type Delivered func(rec domain.DeliveryRecord, overflowed bool)

// Consumer — единственный потребитель очереди доставки. Записи уходят в
// леджер в порядке постановки; ни одна ошибка отдельной записи не
// останавливает цикл.
type Consumer struct {
	queue    domain.DispatchQueue
	appender domain.Appender
	overflow domain.OverflowStore
	log      zerolog.Logger
	onDone   Delivered
	now      func() time.Time
}

// NewConsumer создаёт потребителя. onDone может быть nil.
func NewConsumer(queue domain.DispatchQueue, appender domain.Appender, overflow domain.OverflowStore, logger zerolog.Logger, onDone Delivered) *Consumer {
	return &Consumer{
		queue:    queue,
		appender: appender,
		overflow: overflow,
		log:      logger,
		onDone:   onDone,
		now:      time.Now,
	}
}

// NewRecord собирает запись доставки из упоминания и вкладки.
func NewRecord(m domain.LeadMention, bucket string, chatID int64, replyTo int) domain.DeliveryRecord {
	return domain.DeliveryRecord{
		ID:             uuid.NewString(),
		Bucket:         bucket,
		Payload:        domain.LedgerRow(m),
		ChatID:         chatID,
		ReplyTo:        replyTo,
		AssigneeHandle: m.AssigneeHandle,
		DealReference:  m.DealReference,
		Status:         domain.DeliveryQueued,
	}
}

// Run крутит цикл потребителя до отмены контекста.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info().Msg("потребитель очереди доставки запущен")
	for {
		rec, err := c.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("потребитель очереди доставки остановлен")
				return
			}
			c.log.Error().Err(err).Msg("ошибка чтения очереди")
			continue
		}
		c.process(ctx, rec)
	}
}

func (c *Consumer) process(ctx context.Context, rec domain.DeliveryRecord) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("record", rec.ID).Msg("паника при обработке записи")
		}
	}()

	err := c.appender.Append(ctx, rec.Bucket, rec.Payload)
	if err == nil {
		rec.Status = domain.DeliveryDelivered
		c.log.Debug().Str("record", rec.ID).Str("bucket", rec.Bucket).Msg("лид записан в леджер")
		c.finish(rec, false)
		return
	}
	if ctx.Err() != nil {
		// Останов процесса: запись сохраняем на диск, иначе она пропадёт.
		c.log.Warn().Str("record", rec.ID).Msg("останов во время доставки, запись уходит в оверфлоу")
	} else {
		c.log.Error().Err(err).Str("record", rec.ID).Str("bucket", rec.Bucket).Msg("повторы исчерпаны, запись уходит в оверфлоу")
	}

	entry := domain.OverflowEntry{Timestamp: c.now(), Bucket: rec.Bucket, Data: rec.Payload}
	if saveErr := c.overflow.Save(entry); saveErr != nil {
		c.log.Error().Err(saveErr).Str("record", rec.ID).Msg("не удалось сохранить запись в оверфлоу")
	}
	rec.Status = domain.DeliveryOverflowed
	c.finish(rec, true)
}

func (c *Consumer) finish(rec domain.DeliveryRecord, overflowed bool) {
	if c.onDone != nil {
		c.onDone(rec, overflowed)
	}
}
