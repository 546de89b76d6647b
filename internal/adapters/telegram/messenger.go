package telegram

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-lead-bot/internal/domain"
	"tg-lead-bot/internal/infra/metrics"
)

const messageLimit = 4096

// Messenger реализует domain.Messenger поверх Bot API. Длинные тексты
// режутся на части по лимиту Telegram; идентификатор возвращается у первой
// части, к ней и привязываются ответы.
type Messenger struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.Messenger = (*Messenger)(nil)

// NewMessenger создаёт адаптер.
func NewMessenger(bot *tgbotapi.BotAPI, logger zerolog.Logger) *Messenger {
	return &Messenger{bot: bot, log: logger}
}

// Send отправляет сообщение в чат.
func (m *Messenger) Send(chatID int64, text string) (int, error) {
	return m.send(chatID, 0, text)
}

// Reply отправляет ответ на конкретное сообщение.
func (m *Messenger) Reply(chatID int64, replyTo int, text string) (int, error) {
	return m.send(chatID, replyTo, text)
}

func (m *Messenger) send(chatID int64, replyTo int, text string) (int, error) {
	firstID := 0
	for i, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}
		start := time.Now()
		sent, err := m.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send", "", start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			m.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить сообщение")
			return 0, err
		}
		if i == 0 {
			firstID = sent.MessageID
		}
	}
	return firstID, nil
}

// splitMessage режет текст на куски в пределах лимита Telegram,
// предпочитая границы строк, чтобы блоки не рвались посередине.
func splitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			chunk := strings.Trim(string(runes[start:]), "\n")
			if chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := -1
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if split == -1 {
			split = end
		}

		chunk := strings.Trim(string(runes[start:split]), "\n")
		if chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}

	if len(parts) == 0 {
		return []string{trimmed}
	}

	return parts
}
