package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tg-lead-bot/internal/domain"
)

const dateLayout = "2006-01-02"

// Service считает дневные агрегаты по вкладкам леджера и размер дисковой
// очереди. Только чтение, состояния нет.
type Service struct {
	ledger   domain.Ledger
	overflow domain.OverflowStore
	resolver domain.BucketResolver
}

var _ domain.Reporter = (*Service)(nil)

// NewService создаёт сервис отчётов.
func NewService(ledger domain.Ledger, overflow domain.OverflowStore, resolver domain.BucketResolver) *Service {
	return &Service{ledger: ledger, overflow: overflow, resolver: resolver}
}

// DailyCount возвращает число строк вкладки за указанный день. Ещё не
// созданная вкладка считается пустой, а не ошибкой.
func (s *Service) DailyCount(ctx context.Context, bucket string, date time.Time) (int, error) {
	rows, err := s.ledger.ReadAllRows(ctx, bucket)
	if err != nil {
		if errors.Is(err, domain.ErrBucketNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("чтение вкладки %s: %w", bucket, err)
	}
	prefix := date.Format(dateLayout)
	count := 0
	for _, row := range rows {
		if len(row) > 0 && strings.HasPrefix(row[0], prefix) {
			count++
		}
	}
	return count, nil
}

// Summary собирает счётчики по всем настроенным вкладкам плюс размер
// дисковой очереди.
func (s *Service) Summary(ctx context.Context, date time.Time) (domain.Summary, error) {
	summary := domain.Summary{Date: date, Buckets: make(map[string]int)}
	for _, bucket := range s.resolver.Buckets() {
		count, err := s.DailyCount(ctx, bucket, date)
		if err != nil {
			return domain.Summary{}, err
		}
		summary.Buckets[bucket] = count
		summary.Total += count
	}
	summary.Overflow = s.overflow.Count()
	return summary, nil
}
