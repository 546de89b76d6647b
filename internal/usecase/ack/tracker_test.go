package ack

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeMessenger struct {
	mu     sync.Mutex
	nextID int
	sent   []string
}

func (m *fakeMessenger) Send(chatID int64, text string) (int, error) {
	return m.Reply(chatID, 0, text)
}

func (m *fakeMessenger) Reply(chatID int64, replyTo int, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.sent = append(m.sent, text)
	return m.nextID, nil
}

func (m *fakeMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeClock struct {
	mu      sync.Mutex
	waiters []chan time.Time
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	return ch
}

// fire будит первый ожидающий таймер.
func (c *fakeClock) fire(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.waiters) > 0 {
			ch := c.waiters[0]
			c.waiters = c.waiters[1:]
			c.mu.Unlock()
			ch <- time.Now()
			return
		}
		c.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("таймер так и не взвёлся")
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeClock) fireAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.waiters {
		ch <- time.Now()
	}
	c.waiters = nil
}

func waitForSends(t *testing.T, m *fakeMessenger, expected int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.count() < expected {
		if time.Now().After(deadline) {
			t.Fatalf("ожидали %d отправок, получили %d", expected, m.count())
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestTracker() (*Tracker, *fakeMessenger, *fakeClock) {
	messenger := &fakeMessenger{}
	clock := &fakeClock{}
	tracker := NewTracker(messenger, zerolog.Nop(), 120*time.Second, 180*time.Second)
	tracker.after = clock.After
	return tracker, messenger, clock
}

func TestSessionExpiresAfterAllReminders(t *testing.T) {
	tracker, messenger, clock := newTestTracker()
	tracker.Track(10, 1, "shoxjaxon055", "https://x.amocrm.ru/leads/detail/42")

	for i := 1; i <= 3; i++ {
		clock.fire(t)
		waitForSends(t, messenger, i)
	}
	clock.fire(t)
	waitForSends(t, messenger, 4)

	if tracker.Pending() != 0 {
		t.Fatalf("после истечения сессий быть не должно")
	}
	// Три напоминания и финальное уведомление об истечении.
	if messenger.count() != 4 {
		t.Fatalf("ожидали 4 отправки, получили %d", messenger.count())
	}
}

func TestConfirmCancelsAllReminders(t *testing.T) {
	tracker, messenger, clock := newTestTracker()
	tracker.Track(10, 1, "utkirraimov", "https://x.amocrm.ru/leads/detail/1")

	if !tracker.Confirm(10, "utkirraimov") {
		t.Fatalf("подтверждение живой сессии должно вернуть true")
	}
	if tracker.Pending() != 0 {
		t.Fatalf("после подтверждения сессий быть не должно")
	}

	// Даже если таймер успел взвестись, после подтверждения он молчит.
	clock.fireAll()
	time.Sleep(20 * time.Millisecond)
	if messenger.count() != 0 {
		t.Fatalf("после подтверждения отправок быть не должно, получили %d", messenger.count())
	}
}

func TestConfirmAfterFirstReminder(t *testing.T) {
	tracker, messenger, clock := newTestTracker()
	tracker.Track(10, 1, "bob_7007", "https://x.amocrm.ru/leads/detail/2")

	clock.fire(t)
	waitForSends(t, messenger, 1)

	if !tracker.Confirm(10, "bob_7007") {
		t.Fatalf("подтверждение после напоминания должно сработать")
	}
	clock.fireAll()
	time.Sleep(20 * time.Millisecond)
	if messenger.count() != 1 {
		t.Fatalf("после подтверждения было %d отправок вместо 1", messenger.count())
	}
}

func TestStrayConfirmIsNoop(t *testing.T) {
	tracker, _, _ := newTestTracker()
	if tracker.Confirm(99, "nobody") {
		t.Fatalf("подтверждение без сессии должно вернуть false")
	}
}

func TestConfirmClearsWholeChat(t *testing.T) {
	tracker, messenger, clock := newTestTracker()
	tracker.Track(10, 1, "a", "https://x.amocrm.ru/leads/detail/1")
	tracker.Track(10, 2, "b", "https://x.amocrm.ru/leads/detail/2")
	tracker.Track(20, 3, "c", "https://x.amocrm.ru/leads/detail/3")

	if !tracker.Confirm(10, "a") {
		t.Fatalf("ожидали снятие сессий чата 10")
	}
	if tracker.Pending() != 1 {
		t.Fatalf("сессия чужого чата должна выжить, осталось %d", tracker.Pending())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tracker.Shutdown(ctx)
	clock.fireAll()
	time.Sleep(20 * time.Millisecond)
	if messenger.count() != 0 {
		t.Fatalf("после останова отправок быть не должно")
	}
}

func TestIsConfirmPhrase(t *testing.T) {
	confirm := []string{"ок", "ОК", " Ok ", "принял", "Спасибо!", "ок, спасибо"}
	for _, text := range confirm {
		if !IsConfirmPhrase(text) {
			t.Fatalf("фраза %q должна считаться подтверждением", text)
		}
	}
	other := []string{"ну ок, а дальше?", "лид", "", "spasibo"}
	for _, text := range other {
		if IsConfirmPhrase(text) {
			t.Fatalf("фраза %q не должна считаться подтверждением", text)
		}
	}
}
