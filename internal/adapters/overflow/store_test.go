package overflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-lead-bot/internal/domain"
)

type stubAppender struct {
	rows    map[string][][]string
	failFor map[string]bool
}

func newStubAppender() *stubAppender {
	return &stubAppender{rows: make(map[string][][]string), failFor: make(map[string]bool)}
}

func (a *stubAppender) Append(ctx context.Context, bucket string, row []string) error {
	if a.failFor[bucket] {
		return errors.New("леджер недоступен")
	}
	a.rows[bucket] = append(a.rows[bucket], row)
	return nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return store
}

func testEntry(bucket string) domain.OverflowEntry {
	return domain.OverflowEntry{
		Timestamp: time.Now(),
		Bucket:    bucket,
		Data:      []string{"2025-01-01 10:00:00", "текст", "https://x.amocrm.ru/leads/detail/1", "user", "sender"},
	}
}

func TestSaveDrainRoundTrip(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(testEntry("Ташкент")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := store.Count(); got != 1 {
		t.Fatalf("ожидали 1 запись, получили %d", got)
	}

	appender := newStubAppender()
	restored, failed := store.Drain(context.Background(), appender)
	if restored != 1 || failed != 0 {
		t.Fatalf("ожидали (1, 0), получили (%d, %d)", restored, failed)
	}
	if len(appender.rows["Ташкент"]) != 1 {
		t.Fatalf("запись должна дойти до леджера")
	}
	if got := store.Count(); got != 0 {
		t.Fatalf("после дренажа партиция должна опустеть, осталось %d", got)
	}
}

func TestDrainRenamesEmptiedPartition(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(testEntry("Бухара")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	store.Drain(context.Background(), newStubAppender())

	entries, err := os.ReadDir(store.dir)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	var processed int
	for _, de := range entries {
		name := de.Name()
		if filepath.Ext(name) == ".json" && strings.HasPrefix(name, processedPrefix) {
			processed++
		}
	}
	if processed != 1 {
		t.Fatalf("ожидали одну обработанную партицию, получили %d", processed)
	}
}

func TestDrainKeepsResidualOnPartialFailure(t *testing.T) {
	store := newTestStore(t)
	_ = store.Save(testEntry("Ташкент"))
	_ = store.Save(testEntry("Самарканд"))

	appender := newStubAppender()
	appender.failFor["Самарканд"] = true
	restored, failed := store.Drain(context.Background(), appender)
	if restored != 1 || failed != 1 {
		t.Fatalf("ожидали (1, 1), получили (%d, %d)", restored, failed)
	}
	if got := store.Count(); got != 1 {
		t.Fatalf("ожидали 1 остаточную запись, получили %d", got)
	}

	// Второй прогон после восстановления бэкенда добирает остаток.
	appender.failFor["Самарканд"] = false
	restored, failed = store.Drain(context.Background(), appender)
	if restored != 1 || failed != 0 {
		t.Fatalf("ожидали (1, 0), получили (%d, %d)", restored, failed)
	}
	if got := store.Count(); got != 0 {
		t.Fatalf("остаток должен опустеть, получили %d", got)
	}
}

func TestCorruptPartitionSkipped(t *testing.T) {
	store := newTestStore(t)
	_ = store.Save(testEntry("Ташкент"))

	corrupt := filepath.Join(store.dir, "overflow_19990101.json")
	if err := os.WriteFile(corrupt, []byte("{не json"), 0o644); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if got := store.Count(); got != 1 {
		t.Fatalf("битая партиция не должна учитываться, получили %d", got)
	}
	appender := newStubAppender()
	restored, failed := store.Drain(context.Background(), appender)
	if restored != 1 || failed != 0 {
		t.Fatalf("дренаж должен пережить битую партицию, получили (%d, %d)", restored, failed)
	}
}

func TestPartitionFileFormat(t *testing.T) {
	store := newTestStore(t)
	entry := testEntry("Ташкент")
	if err := store.Save(entry); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	path := store.partitionPath(time.Now())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("партиция должна существовать: %v", err)
	}
	for _, fragment := range []string{`"timestamp"`, `"bucket"`, `"data"`, "Ташкент"} {
		if !strings.Contains(string(data), fragment) {
			t.Fatalf("в файле нет %s: %s", fragment, data)
		}
	}
}
