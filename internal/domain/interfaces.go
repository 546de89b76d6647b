package domain

import (
	"context"
	"errors"
	"time"
)

// ErrBucketNotFound возвращается при чтении ещё не созданной вкладки.
var ErrBucketNotFound = errors.New("вкладка леджера не найдена")

// Ledger описывает внешний бэкенд-леджер, разбитый на именованные вкладки.
type Ledger interface {
	EnsureBucket(ctx context.Context, name string) error
	AppendRow(ctx context.Context, bucket string, row []string) error
	ReadAllRows(ctx context.Context, bucket string) ([][]string, error)
	ListBuckets(ctx context.Context) ([]string, error)
}

// Appender — минимальная часть леджера, нужная для повторной доставки.
type Appender interface {
	Append(ctx context.Context, bucket string, row []string) error
}

// DispatchQueue разделяет приём сообщений и запись в леджер.
// Pop блокируется до появления записи или отмены контекста.
type DispatchQueue interface {
	Enqueue(ctx context.Context, rec DeliveryRecord) error
	Pop(ctx context.Context) (DeliveryRecord, error)
}

// OverflowStore хранит на диске записи, не дошедшие до леджера.
type OverflowStore interface {
	Save(entry OverflowEntry) error
	Drain(ctx context.Context, appender Appender) (restored, failed int)
	Count() int
}

// Messenger — минимальная поверхность чат-транспорта, нужная ядру.
type Messenger interface {
	Send(chatID int64, text string) (messageID int, err error)
	Reply(chatID int64, replyTo int, text string) (messageID int, err error)
}

// BucketResolver сопоставляет получателя с вкладкой леджера.
type BucketResolver interface {
	Resolve(handle string) string
	Buckets() []string
	Recipients() map[string][]string
}

// AckTracker ведёт сессии подтверждения доставленных лидов.
type AckTracker interface {
	Track(chatID int64, messageID int, handle, dealRef string)
	Confirm(chatID int64, sender string) bool
	Shutdown(ctx context.Context)
}

// Reporter отдаёт агрегаты по вкладкам за день.
type Reporter interface {
	DailyCount(ctx context.Context, bucket string, date time.Time) (int, error)
	Summary(ctx context.Context, date time.Time) (Summary, error)
}

// Summary — срез счётчиков по вкладкам за один день.
type Summary struct {
	Date     time.Time
	Buckets  map[string]int
	Total    int
	Overflow int
}
