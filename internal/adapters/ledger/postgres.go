package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tg-lead-bot/internal/domain"
	"tg-lead-bot/internal/infra/metrics"
)

// Postgres реализует domain.Ledger на pgxpool: вкладки — строки в
// ledger_buckets, содержимое — ledger_rows с фиксированными пятью колонками.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.Ledger = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Migrate создаёт схему, если её ещё нет.
func (p *Postgres) Migrate(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_buckets (
			name TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS ledger_rows (
			id BIGSERIAL PRIMARY KEY,
			bucket TEXT NOT NULL REFERENCES ledger_buckets(name),
			recorded_at TEXT NOT NULL,
			message TEXT NOT NULL,
			deal_ref TEXT NOT NULL,
			assignee TEXT NOT NULL,
			sender TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_rows_bucket ON ledger_rows(bucket);
	`)
	if err != nil {
		return fmt.Errorf("миграция леджера: %w", err)
	}
	return nil
}

// EnsureBucket регистрирует вкладку; повторная регистрация — no-op.
func (p *Postgres) EnsureBucket(ctx context.Context, name string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `INSERT INTO ledger_buckets(name) VALUES($1) ON CONFLICT (name) DO NOTHING`, name)
	metrics.ObserveNetworkRequest("postgres", "ensure_bucket", name, start, err)
	if err != nil {
		return fmt.Errorf("регистрация вкладки %s: %w", name, err)
	}
	return nil
}

// AppendRow дописывает строку во вкладку. Ожидает ровно пять значений.
func (p *Postgres) AppendRow(ctx context.Context, bucket string, row []string) error {
	if len(row) != 5 {
		return fmt.Errorf("ожидали 5 колонок, получили %d", len(row))
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ledger_rows(bucket, recorded_at, message, deal_ref, assignee, sender)
		VALUES($1, $2, $3, $4, $5, $6)
	`, bucket, row[0], row[1], row[2], row[3], row[4])
	metrics.ObserveNetworkRequest("postgres", "append", bucket, start, err)
	if err != nil {
		return fmt.Errorf("добавление строки во вкладку %s: %w", bucket, err)
	}
	return nil
}

// ReadAllRows возвращает строки вкладки в порядке добавления.
func (p *Postgres) ReadAllRows(ctx context.Context, bucket string) ([][]string, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_buckets WHERE name=$1)`, bucket).Scan(&exists); err != nil {
		return nil, fmt.Errorf("проверка вкладки %s: %w", bucket, err)
	}
	if !exists {
		return nil, domain.ErrBucketNotFound
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
		SELECT recorded_at, message, deal_ref, assignee, sender
		FROM ledger_rows WHERE bucket=$1 ORDER BY id
	`, bucket)
	metrics.ObserveNetworkRequest("postgres", "read", bucket, start, err)
	if err != nil {
		return nil, fmt.Errorf("чтение вкладки %s: %w", bucket, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		row := make([]string, 5)
		if err := rows.Scan(&row[0], &row[1], &row[2], &row[3], &row[4]); err != nil {
			return nil, fmt.Errorf("чтение строки: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListBuckets перечисляет зарегистрированные вкладки.
func (p *Postgres) ListBuckets(ctx context.Context) ([]string, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	rows, err := p.pool.Query(ctx, `SELECT name FROM ledger_buckets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("список вкладок: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
