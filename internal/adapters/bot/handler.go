package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-lead-bot/internal/domain"
	"tg-lead-bot/internal/infra/metrics"
	"tg-lead-bot/internal/usecase/ack"
	"tg-lead-bot/internal/usecase/dispatch"
	"tg-lead-bot/internal/usecase/extract"
)

// Handler обрабатывает входящие апдейты: команды, подтверждения и сами
// сообщения с лидами. Запись в леджер всегда уходит через очередь, чтобы
// колбэк транспорта не ждал сетевых вызовов.
type Handler struct {
	messenger domain.Messenger
	log       zerolog.Logger
	extractor *extract.Extractor
	resolver  domain.BucketResolver
	queue     domain.DispatchQueue
	tracker   domain.AckTracker
	overflow  domain.OverflowStore
	durable   domain.Appender
	reporter  domain.Reporter
}

// NewHandler создаёт обработчик.
func NewHandler(messenger domain.Messenger, logger zerolog.Logger, extractor *extract.Extractor, resolver domain.BucketResolver, queue domain.DispatchQueue, tracker domain.AckTracker, overflow domain.OverflowStore, durable domain.Appender, reporter domain.Reporter) *Handler {
	return &Handler{
		messenger: messenger,
		log:       logger,
		extractor: extractor,
		resolver:  resolver,
		queue:     queue,
		tracker:   tracker,
		overflow:  overflow,
		durable:   durable,
		reporter:  reporter,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	h.handleMessage(ctx, upd.Message)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	sender := ""
	if msg.From != nil {
		sender = msg.From.UserName
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		h.reply(msg.Chat.ID, 0, "👋 Добро пожаловать!\nОтправьте сообщение с упоминанием пользователя и ссылкой на сделку.")
		return
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, 0, h.buildHelpMessage())
		return
	case strings.HasPrefix(text, "/stats"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/stats"))
		h.handleStats(ctx, msg.Chat.ID, payload)
		return
	case strings.HasPrefix(text, "/restore"):
		h.handleRestore(ctx, msg.Chat.ID)
		return
	case strings.HasPrefix(text, "/recipients"):
		h.handleRecipients(msg.Chat.ID)
		return
	}

	if ack.IsConfirmPhrase(text) {
		// Случайное «ок» без ожидающего лида молча игнорируем.
		if h.tracker.Confirm(msg.Chat.ID, sender) {
			h.reply(msg.Chat.ID, 0, fmt.Sprintf("✅ @%s, спасибо за подтверждение!", sender))
		}
		return
	}

	mentions := h.extractor.Mentions(text, sender, time.Now())
	if len(mentions) == 0 {
		if h.extractor.HasReference(text) {
			// Ссылка на сделку есть, получателя нет: подсказываем формат.
			h.reply(msg.Chat.ID, msg.MessageID, "⚠️ Неверный формат сообщения. Укажите получателя через @ и ссылку на сделку.")
			return
		}
		h.log.Debug().Int64("chat", msg.Chat.ID).Msg("сообщение без лида, пропускаем")
		return
	}

	for _, m := range mentions {
		metrics.LeadsExtracted.Inc()
		bucket := h.resolver.Resolve(m.AssigneeHandle)
		rec := dispatch.NewRecord(m, bucket, msg.Chat.ID, msg.MessageID)
		if err := h.queue.Enqueue(ctx, rec); err != nil {
			h.log.Error().Err(err).Str("bucket", bucket).Msg("не удалось поставить лид в очередь")
			h.reply(msg.Chat.ID, msg.MessageID, "❌ Ошибка при сохранении данных.")
		}
	}
}

// OnDelivered вызывается потребителем очереди после терминального статуса
// записи. Отправитель видит обычный ответ и при оверфлоу: запись принята и
// лежит в дисковой очереди, правду оператору показывает /stats.
func (h *Handler) OnDelivered(rec domain.DeliveryRecord, overflowed bool) {
	if overflowed {
		h.log.Warn().Str("record", rec.ID).Str("bucket", rec.Bucket).Msg("лид принят в дисковую очередь")
	}
	text := fmt.Sprintf("📨 Лид передан для @%s!\n\n❗️ Пожалуйста, подтвердите получение лида.", rec.AssigneeHandle)
	sentID, err := h.messenger.Reply(rec.ChatID, rec.ReplyTo, text)
	if err != nil {
		h.log.Error().Err(err).Int64("chat", rec.ChatID).Msg("не удалось ответить на лид")
		return
	}
	h.tracker.Track(rec.ChatID, sentID, rec.AssigneeHandle, rec.DealReference)
}

func (h *Handler) handleStats(ctx context.Context, chatID int64, payload string) {
	date, err := ParseStatsDate(payload, time.Now())
	if err != nil {
		h.reply(chatID, 0, "Укажите дату в формате ГГГГ-ММ-ДД, например /stats 2025-03-01")
		return
	}
	summary, err := h.reporter.Summary(ctx, date)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось собрать статистику")
		h.reply(chatID, 0, "Не удалось собрать статистику. Попробуйте позже.")
		return
	}
	h.reply(chatID, 0, FormatSummary(summary))
}

func (h *Handler) handleRestore(ctx context.Context, chatID int64) {
	restored, failed := h.overflow.Drain(ctx, h.durable)
	h.reply(chatID, 0, fmt.Sprintf("Восстановлено из дисковой очереди: %d, не удалось: %d.", restored, failed))
}

func (h *Handler) handleRecipients(chatID int64) {
	recipients := h.resolver.Recipients()
	if len(recipients) == 0 {
		h.reply(chatID, 0, "Карта получателей пуста.")
		return
	}
	buckets := make([]string, 0, len(recipients))
	for bucket := range recipients {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)

	var b strings.Builder
	b.WriteString("Получатели по вкладкам:\n")
	for _, bucket := range buckets {
		b.WriteString(fmt.Sprintf("• %s: @%s\n", bucket, strings.Join(recipients[bucket], ", @")))
	}
	h.reply(chatID, 0, b.String())
}

func (h *Handler) buildHelpMessage() string {
	return strings.Join([]string{
		"Бот раскладывает лиды по вкладкам леджера.",
		"",
		"Лид: сообщение с @получателем и ссылкой на сделку.",
		"Подтверждение: ответьте «ок» или «принял» после получения.",
		"",
		"/stats [ГГГГ-ММ-ДД] — счётчики за день",
		"/restore — повторить доставку из дисковой очереди",
		"/recipients — карта получателей",
	}, "\n")
}

func (h *Handler) reply(chatID int64, replyTo int, text string) {
	var err error
	if replyTo != 0 {
		_, err = h.messenger.Reply(chatID, replyTo, text)
	} else {
		_, err = h.messenger.Send(chatID, text)
	}
	if err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить ответ")
	}
}

// ParseStatsDate разбирает аргумент /stats; пустой аргумент — сегодня.
func ParseStatsDate(payload string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return now, nil
	}
	return time.Parse("2006-01-02", trimmed)
}

// FormatSummary переводит сводку в текст для чата.
func FormatSummary(summary domain.Summary) string {
	buckets := make([]string, 0, len(summary.Buckets))
	for bucket := range summary.Buckets {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 Лиды за %s:\n", summary.Date.Format("2006-01-02")))
	for _, bucket := range buckets {
		b.WriteString(fmt.Sprintf("• %s: %d\n", bucket, summary.Buckets[bucket]))
	}
	b.WriteString(fmt.Sprintf("\nВсего: %d", summary.Total))
	if summary.Overflow > 0 {
		b.WriteString(fmt.Sprintf("\n⚠️ В дисковой очереди: %d", summary.Overflow))
	}
	return b.String()
}
