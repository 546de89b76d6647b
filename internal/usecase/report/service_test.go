package report

import (
	"context"
	"testing"
	"time"

	"tg-lead-bot/internal/domain"
)

type stubLedger struct {
	buckets map[string][][]string
}

func (s *stubLedger) EnsureBucket(ctx context.Context, name string) error { return nil }

func (s *stubLedger) AppendRow(ctx context.Context, bucket string, row []string) error {
	s.buckets[bucket] = append(s.buckets[bucket], row)
	return nil
}

func (s *stubLedger) ReadAllRows(ctx context.Context, bucket string) ([][]string, error) {
	rows, ok := s.buckets[bucket]
	if !ok {
		return nil, domain.ErrBucketNotFound
	}
	return rows, nil
}

func (s *stubLedger) ListBuckets(ctx context.Context) ([]string, error) {
	var names []string
	for name := range s.buckets {
		names = append(names, name)
	}
	return names, nil
}

type stubOverflow struct{ entries int }

func (s *stubOverflow) Save(domain.OverflowEntry) error { return nil }
func (s *stubOverflow) Drain(context.Context, domain.Appender) (int, int) {
	return 0, 0
}
func (s *stubOverflow) Count() int { return s.entries }

type stubResolver struct{ buckets []string }

func (s *stubResolver) Resolve(string) string           { return s.buckets[0] }
func (s *stubResolver) Buckets() []string               { return s.buckets }
func (s *stubResolver) Recipients() map[string][]string { return nil }

func row(date, assignee string) []string {
	return []string{date + " 12:00:00", "текст", "https://x.amocrm.ru/leads/detail/1", assignee, "sender"}
}

func TestDailyCountFiltersByDatePrefix(t *testing.T) {
	ledger := &stubLedger{buckets: map[string][][]string{
		"Ташкент": {
			domain.LedgerHeader,
			row("2025-03-01", "a"),
			row("2025-03-01", "b"),
			row("2025-03-02", "c"),
		},
	}}
	s := NewService(ledger, &stubOverflow{}, &stubResolver{buckets: []string{"Ташкент"}})

	date, _ := time.Parse("2006-01-02", "2025-03-01")
	count, err := s.DailyCount(context.Background(), "Ташкент", date)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if count != 2 {
		t.Fatalf("ожидали 2 строки за день, получили %d", count)
	}
}

func TestDailyCountMissingBucketIsZero(t *testing.T) {
	s := NewService(&stubLedger{buckets: map[string][][]string{}}, &stubOverflow{}, &stubResolver{buckets: []string{"Нет"}})
	count, err := s.DailyCount(context.Background(), "Нет", time.Now())
	if err != nil {
		t.Fatalf("отсутствующая вкладка не должна быть ошибкой: %v", err)
	}
	if count != 0 {
		t.Fatalf("ожидали 0, получили %d", count)
	}
}

func TestSummaryIncludesOverflow(t *testing.T) {
	ledger := &stubLedger{buckets: map[string][][]string{
		"Ташкент": {domain.LedgerHeader, row("2025-03-01", "a")},
		"Джиззак": {domain.LedgerHeader, row("2025-03-01", "b"), row("2025-03-01", "c")},
	}}
	s := NewService(ledger, &stubOverflow{entries: 5}, &stubResolver{buckets: []string{"Ташкент", "Джиззак", "All"}})

	date, _ := time.Parse("2006-01-02", "2025-03-01")
	summary, err := s.Summary(context.Background(), date)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if summary.Buckets["Ташкент"] != 1 || summary.Buckets["Джиззак"] != 2 || summary.Buckets["All"] != 0 {
		t.Fatalf("неожиданные счётчики: %+v", summary.Buckets)
	}
	if summary.Total != 3 {
		t.Fatalf("ожидали total 3, получили %d", summary.Total)
	}
	if summary.Overflow != 5 {
		t.Fatalf("ожидали overflow 5, получили %d", summary.Overflow)
	}
}
