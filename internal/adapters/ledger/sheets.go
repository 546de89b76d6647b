package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"tg-lead-bot/internal/domain"
	"tg-lead-bot/internal/infra/metrics"
)

// Sheets реализует domain.Ledger поверх Google Sheets: одна таблица,
// вкладка на каждого получателя или регион.
type Sheets struct {
	srv           *sheets.Service
	spreadsheetID string
	timeout       time.Duration
}

var _ domain.Ledger = (*Sheets)(nil)

// NewSheets создаёт клиент по файлу сервисного аккаунта.
func NewSheets(ctx context.Context, credsFile, spreadsheetID string) (*Sheets, error) {
	srv, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("создание клиента Google Sheets: %w", err)
	}
	return &Sheets{srv: srv, spreadsheetID: spreadsheetID, timeout: 15 * time.Second}, nil
}

// EnsureBucket создаёт вкладку с заголовком, если её ещё нет. Гонка при
// одновременном создании схлопывается в no-op.
func (s *Sheets) EnsureBucket(ctx context.Context, name string) error {
	titles, err := s.ListBuckets(ctx)
	if err != nil {
		return err
	}
	for _, title := range titles {
		if title == name {
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: name},
			},
		}},
	}
	start := time.Now()
	_, err = s.srv.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "add_sheet", name, start, err)
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("создание вкладки %s: %w", name, err)
	}
	return s.AppendRow(ctx, name, domain.LedgerHeader)
}

// AppendRow дописывает одну строку в конец вкладки.
func (s *Sheets) AppendRow(ctx context.Context, bucket string, row []string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	values := make([]interface{}, len(row))
	for i, cell := range row {
		values[i] = cell
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	start := time.Now()
	_, err := s.srv.Spreadsheets.Values.
		Append(s.spreadsheetID, fmt.Sprintf("'%s'!A1", bucket), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "append", bucket, start, err)
	if err != nil {
		return fmt.Errorf("добавление строки во вкладку %s: %w", bucket, err)
	}
	return nil
}

// ReadAllRows возвращает все строки вкладки, включая заголовок.
func (s *Sheets) ReadAllRows(ctx context.Context, bucket string) ([][]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.srv.Spreadsheets.Values.
		Get(s.spreadsheetID, fmt.Sprintf("'%s'!A:E", bucket)).
		Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "read", bucket, start, err)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 400 {
			return nil, domain.ErrBucketNotFound
		}
		return nil, fmt.Errorf("чтение вкладки %s: %w", bucket, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ListBuckets перечисляет вкладки таблицы.
func (s *Sheets) ListBuckets(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	sp, err := s.srv.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "list", "", start, err)
	if err != nil {
		return nil, fmt.Errorf("список вкладок: %w", err)
	}
	titles := make([]string, 0, len(sp.Sheets))
	for _, sheet := range sp.Sheets {
		if sheet.Properties != nil {
			titles = append(titles, sheet.Properties.Title)
		}
	}
	return titles, nil
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 400
}
