package domain

import "time"

// DeliveryStatus описывает терминальное состояние записи доставки.
type DeliveryStatus string

const (
	DeliveryQueued     DeliveryStatus = "queued"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryOverflowed DeliveryStatus = "overflowed"
)

// LeadMention описывает одну извлечённую пару «получатель — сделка».
type LeadMention struct {
	AssigneeHandle string
	DealReference  string
	RawText        string
	SenderHandle   string
	ObservedAt     time.Time
}

// DeliveryRecord описывает одну логическую запись лида в леджер.
// Поля сериализуются в JSON, потому что очередь может быть внешней.
type DeliveryRecord struct {
	ID             string         `json:"id"`
	Bucket         string         `json:"bucket"`
	Payload        []string       `json:"payload"`
	ChatID         int64          `json:"chat_id"`
	ReplyTo        int            `json:"reply_to"`
	AssigneeHandle string         `json:"assignee_handle"`
	DealReference  string         `json:"deal_reference"`
	AttemptCount   int            `json:"attempt_count"`
	Status         DeliveryStatus `json:"status"`
}

// OverflowEntry описывает запись, не дошедшую до леджера после всех повторов.
type OverflowEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Bucket    string    `json:"bucket"`
	Data      []string  `json:"data"`
}

// AckState описывает состояние сессии подтверждения.
type AckState string

const (
	AckPending   AckState = "pending"
	AckReminded1 AckState = "reminded_1"
	AckReminded2 AckState = "reminded_2"
	AckReminded3 AckState = "reminded_3"
	AckConfirmed AckState = "confirmed"
	AckExpired   AckState = "expired"
)

// AckSession описывает одну живую сессию ожидания подтверждения лида.
type AckSession struct {
	ChatID         int64
	MessageID      int
	AssigneeHandle string
	DealReference  string
	State          AckState
	CreatedAt      time.Time
}

// LedgerRow переводит упоминание в фиксированный пятиколоночный формат
// строки леджера: время, текст, ссылка на сделку, получатель, отправитель.
func LedgerRow(m LeadMention) []string {
	return []string{
		m.ObservedAt.Format("2006-01-02 15:04:05"),
		m.RawText,
		m.DealReference,
		m.AssigneeHandle,
		m.SenderHandle,
	}
}

// LedgerHeader создаётся первой строкой в каждой новой вкладке леджера.
var LedgerHeader = []string{"Дата", "Сообщение", "Ссылка на сделку", "Получатель", "Отправитель"}
