package overflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-lead-bot/internal/domain"
	"tg-lead-bot/internal/infra/metrics"
)

const (
	filePrefix      = "overflow_"
	processedPrefix = "processed_"
	dateLayout      = "20060102"
)

// Store хранит на диске записи, не дошедшие до леджера: один JSON-массив на
// календарный день. Опустевшие партиции переименовываются с префиксом
// processed_, а не удаляются, чтобы оставался след для аудита.
type Store struct {
	dir string
	log zerolog.Logger
	now func() time.Time

	mu sync.Mutex
}

var _ domain.OverflowStore = (*Store)(nil)

// NewStore создаёт хранилище в каталоге dir, создавая его при необходимости.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("создание каталога оверфлоу: %w", err)
	}
	return &Store{dir: dir, log: logger, now: time.Now}, nil
}

// Save дописывает запись в партицию текущего дня.
func (s *Store) Save(entry domain.OverflowEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.partitionPath(s.now())
	entries, err := readPartition(path)
	if err != nil {
		// Битую партицию не трогаем: откладываем в сторону и начинаем новую.
		s.log.Error().Err(err).Str("file", path).Msg("партиция повреждена, откладываем")
		if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
			return fmt.Errorf("изоляция битой партиции: %w", renameErr)
		}
		entries = nil
	}
	entries = append(entries, entry)
	if err := writePartition(path, entries); err != nil {
		return fmt.Errorf("запись партиции: %w", err)
	}
	metrics.OverflowSaved.Inc()
	return nil
}

// Drain по одному разу прогоняет каждую запись всех партиций через appender.
// Успешные записи исчезают из партиции, опустевшая партиция помечается
// обработанной. Оставшиеся ошибки ждут следующего прогона.
func (s *Store) Drain(ctx context.Context, appender domain.Appender) (restored, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range s.partitions() {
		entries, err := readPartition(path)
		if err != nil {
			s.log.Error().Err(err).Str("file", path).Msg("партиция не читается, пропускаем")
			continue
		}

		var residual []domain.OverflowEntry
		for _, entry := range entries {
			if err := appender.Append(ctx, entry.Bucket, entry.Data); err != nil {
				s.log.Warn().Err(err).Str("bucket", entry.Bucket).Msg("повторная доставка не удалась")
				residual = append(residual, entry)
				failed++
				continue
			}
			metrics.OverflowRestored.Inc()
			restored++
		}

		if len(residual) == 0 {
			processed := filepath.Join(filepath.Dir(path), processedPrefix+filepath.Base(path))
			if err := os.Rename(path, processed); err != nil {
				s.log.Error().Err(err).Str("file", path).Msg("не удалось пометить партицию обработанной")
			}
			continue
		}
		if err := writePartition(path, residual); err != nil {
			s.log.Error().Err(err).Str("file", path).Msg("не удалось переписать остаток партиции")
		}
	}
	return restored, failed
}

// Count возвращает число записей во всех необработанных партициях.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, path := range s.partitions() {
		entries, err := readPartition(path)
		if err != nil {
			s.log.Error().Err(err).Str("file", path).Msg("партиция не читается при подсчёте")
			continue
		}
		total += len(entries)
	}
	return total
}

func (s *Store) partitionPath(day time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%s.json", filePrefix, day.Format(dateLayout)))
}

func (s *Store) partitions() []string {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error().Err(err).Str("dir", s.dir).Msg("каталог оверфлоу не читается")
		return nil
	}
	var paths []string
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, name))
	}
	sort.Strings(paths)
	return paths
}

func readPartition(path string) ([]domain.OverflowEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []domain.OverflowEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("разбор партиции: %w", err)
	}
	return entries, nil
}

func writePartition(path string, entries []domain.OverflowEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
