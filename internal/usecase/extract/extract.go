package extract

import (
	"regexp"
	"strings"
	"time"

	"tg-lead-bot/internal/domain"
)

var (
	handleRegex = regexp.MustCompile(`@([A-Za-z0-9_]+)`)
	urlRegex    = regexp.MustCompile(`https?://[^\s]+`)
)

// Extractor выделяет из свободного текста пары «получатель — сделка».
// Политика спаривания — декартово произведение: каждый найденный получатель
// получает каждую найденную ссылку (одна сделка на нескольких адресатов —
// нормальный случай в исходных чатах).
type Extractor struct {
	marker string
}

// New создаёт экстрактор с маркером платформы сделок.
func New(marker string) *Extractor {
	return &Extractor{marker: marker}
}

// Mentions возвращает все пары из текста сообщения. Без ссылки на сделку
// или без единого получателя результат пустой.
func (e *Extractor) Mentions(text, sender string, observedAt time.Time) []domain.LeadMention {
	refs := e.references(text)
	if len(refs) == 0 {
		return nil
	}
	handles := handleRegex.FindAllStringSubmatch(text, -1)
	if len(handles) == 0 {
		return nil
	}

	mentions := make([]domain.LeadMention, 0, len(handles)*len(refs))
	for _, match := range handles {
		for _, ref := range refs {
			mentions = append(mentions, domain.LeadMention{
				AssigneeHandle: strings.ToLower(match[1]),
				DealReference:  ref,
				RawText:        text,
				SenderHandle:   sender,
				ObservedAt:     observedAt,
			})
		}
	}
	return mentions
}

// HasReference сообщает, есть ли в тексте ссылка на сделку. Нужно
// обработчику, чтобы отличить лид с кривым форматом от обычной болтовни.
func (e *Extractor) HasReference(text string) bool {
	return len(e.references(text)) > 0
}

func (e *Extractor) references(text string) []string {
	var refs []string
	for _, candidate := range urlRegex.FindAllString(text, -1) {
		trimmed := strings.TrimRight(candidate, ".,!?;:)")
		if strings.Contains(trimmed, e.marker) {
			refs = append(refs, trimmed)
		}
	}
	return refs
}
