package ack

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-lead-bot/internal/domain"
	"tg-lead-bot/internal/infra/metrics"
)

// Фразы, которыми получатели подтверждают лид.
var confirmPhrases = map[string]struct{}{
	"ок":          {},
	"ok":          {},
	"окей":        {},
	"принял":      {},
	"приняла":     {},
	"спасибо":     {},
	"ок, спасибо": {},
	"ок спасибо":  {},
}

// IsConfirmPhrase сообщает, является ли текст подтверждением получения.
func IsConfirmPhrase(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, "!.")
	_, ok := confirmPhrases[normalized]
	return ok
}

type session struct {
	domain.AckSession
	cancel chan struct{}
}

// Tracker ведёт сессии подтверждения: pending, до трёх напоминаний, затем
// истечение. Сессии сгруппированы по чату: подтверждение в чате снимает все
// его живые сессии разом.
type Tracker struct {
	messenger   domain.Messenger
	log         zerolog.Logger
	firstDelay  time.Duration
	repeatDelay time.Duration
	after       func(d time.Duration) <-chan time.Time

	mu       sync.Mutex
	sessions map[int64][]*session
	wg       sync.WaitGroup
}

var _ domain.AckTracker = (*Tracker)(nil)

// NewTracker создаёт трекер.
func NewTracker(messenger domain.Messenger, logger zerolog.Logger, firstDelay, repeatDelay time.Duration) *Tracker {
	return &Tracker{
		messenger:   messenger,
		log:         logger,
		firstDelay:  firstDelay,
		repeatDelay: repeatDelay,
		after:       time.After,
		sessions:    make(map[int64][]*session),
	}
}

// Track открывает сессию для доставленного лида и запускает её таймер.
func (t *Tracker) Track(chatID int64, messageID int, handle, dealRef string) {
	sess := &session{
		AckSession: domain.AckSession{
			ChatID:         chatID,
			MessageID:      messageID,
			AssigneeHandle: handle,
			DealReference:  dealRef,
			State:          domain.AckPending,
			CreatedAt:      time.Now(),
		},
		cancel: make(chan struct{}),
	}
	t.mu.Lock()
	t.sessions[chatID] = append(t.sessions[chatID], sess)
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(sess)
}

// Confirm снимает все живые сессии чата. Возвращает false, если снимать
// нечего: случайное «ок» без ожидающего лида молча игнорируется.
func (t *Tracker) Confirm(chatID int64, sender string) bool {
	t.mu.Lock()
	live := t.sessions[chatID]
	delete(t.sessions, chatID)
	t.mu.Unlock()

	if len(live) == 0 {
		return false
	}
	// Сессии уже убраны из карты, поэтому проснувшийся таймер увидит их
	// отсутствие и ничего не отправит.
	for _, sess := range live {
		close(sess.cancel)
		t.log.Debug().Int64("chat", chatID).Str("assignee", sess.AssigneeHandle).Str("confirmed_by", sender).Msg("лид подтверждён")
	}
	metrics.AckConfirmed.Add(float64(len(live)))
	return true
}

// Pending возвращает число живых сессий.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, live := range t.sessions {
		total += len(live)
	}
	return total
}

// Shutdown снимает все сессии и дожидается их таймеров.
func (t *Tracker) Shutdown(ctx context.Context) {
	t.mu.Lock()
	for chatID, live := range t.sessions {
		for _, sess := range live {
			close(sess.cancel)
		}
		delete(t.sessions, chatID)
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.log.Warn().Msg("таймеры подтверждений не успели завершиться")
	}
}

type step struct {
	delay time.Duration
	state domain.AckState
}

func (t *Tracker) run(sess *session) {
	defer t.wg.Done()

	steps := []step{
		{t.firstDelay, domain.AckReminded1},
		{t.repeatDelay, domain.AckReminded2},
		{t.repeatDelay, domain.AckReminded3},
		{t.repeatDelay, domain.AckExpired},
	}
	for i, st := range steps {
		select {
		case <-sess.cancel:
			return
		case <-t.after(st.delay):
		}

		if st.state == domain.AckExpired {
			t.expire(sess)
			return
		}
		if !t.advance(sess, st.state) {
			t.log.Warn().Int64("chat", sess.ChatID).Str("assignee", sess.AssigneeHandle).Msg("таймер проснулся после снятия сессии, напоминание не отправлено")
			return
		}
		t.remind(sess, i+1)
	}
}

// advance переводит сессию в следующее состояние, если она ещё жива.
// Проверка живости прямо перед отправкой закрывает гонку с Confirm.
func (t *Tracker) advance(sess *session, state domain.AckState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.aliveLocked(sess) {
		return false
	}
	sess.State = state
	return true
}

func (t *Tracker) aliveLocked(sess *session) bool {
	for _, live := range t.sessions[sess.ChatID] {
		if live == sess {
			return true
		}
	}
	return false
}

func (t *Tracker) remind(sess *session, number int) {
	text := fmt.Sprintf("⏰ @%s, подтвердите получение лида (напоминание %d).", sess.AssigneeHandle, number)
	if _, err := t.messenger.Reply(sess.ChatID, sess.MessageID, text); err != nil {
		metrics.BotSendErrors.Inc()
		t.log.Error().Err(err).Int64("chat", sess.ChatID).Msg("не удалось отправить напоминание")
		return
	}
	metrics.AckReminders.WithLabelValues(strconv.Itoa(number)).Inc()
}

// expire убирает сессию из карты до отправки уведомления, чтобы опоздавшее
// подтверждение стало no-op, а не гонкой.
func (t *Tracker) expire(sess *session) {
	t.mu.Lock()
	if !t.aliveLocked(sess) {
		t.mu.Unlock()
		return
	}
	live := t.sessions[sess.ChatID]
	remaining := live[:0]
	for _, s := range live {
		if s != sess {
			remaining = append(remaining, s)
		}
	}
	if len(remaining) == 0 {
		delete(t.sessions, sess.ChatID)
	} else {
		t.sessions[sess.ChatID] = remaining
	}
	sess.State = domain.AckExpired
	t.mu.Unlock()

	metrics.AckExpired.Inc()
	text := fmt.Sprintf("❌ @%s не подтвердил получение лида, ожидание снято.", sess.AssigneeHandle)
	if _, err := t.messenger.Reply(sess.ChatID, sess.MessageID, text); err != nil {
		metrics.BotSendErrors.Inc()
		t.log.Error().Err(err).Int64("chat", sess.ChatID).Msg("не удалось отправить уведомление об истечении")
	}
	t.log.Warn().Int64("chat", sess.ChatID).Str("assignee", sess.AssigneeHandle).Str("deal", sess.DealReference).Msg("лид остался без подтверждения")
}
