package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tgdn/stockspec-backend/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL. The
// (symbol, date) primary key enforces the one-point-per-day invariant;
// duplicate inserts are ignored rather than rejected so concurrent ingestion
// of the same symbol stays safe.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given connection pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// LatestDateFor returns the most recent stored date for symbol, or
// domain.ErrNotFound when the symbol has no stored prices.
func (s *PriceStore) LatestDateFor(ctx context.Context, symbol string) (time.Time, error) {
	var date time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT date FROM prices WHERE symbol = $1 ORDER BY date DESC LIMIT 1`,
		symbol,
	).Scan(&date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("postgres: latest date for %s: %w", symbol, err)
	}
	return domain.Day(date), nil
}

// InsertRows bulk-inserts rows for one symbol as a single batch and returns
// the number of rows actually inserted.
func (s *PriceStore) InsertRows(ctx context.Context, symbol string, rows []domain.PricePoint) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO prices (symbol, date, close, volume)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, date) DO NOTHING`

	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(query, symbol, domain.Day(p.Date), p.Close, p.Volume)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for i := range rows {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert price batch item %d for %s: %w", i, symbol, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// SeriesFor returns the last n points for symbol in ascending date order.
func (s *PriceStore) SeriesFor(ctx context.Context, symbol string, n int) ([]domain.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, date, close, volume FROM (
			SELECT symbol, date, close, volume
			FROM prices
			WHERE symbol = $1
			ORDER BY date DESC
			LIMIT $2
		) latest
		ORDER BY date ASC`,
		symbol, n,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: series for %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan price point: %w", err)
		}
		p.Date = domain.Day(p.Date)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: series for %s rows: %w", symbol, err)
	}
	return points, nil
}

// PriceAtOrBefore returns the latest point with date <= at, implementing the
// backward-fill lookup used by the performance engine.
func (s *PriceStore) PriceAtOrBefore(ctx context.Context, symbol string, at time.Time) (domain.PricePoint, error) {
	var p domain.PricePoint
	err := s.pool.QueryRow(ctx, `
		SELECT symbol, date, close, volume
		FROM prices
		WHERE symbol = $1 AND date <= $2
		ORDER BY date DESC
		LIMIT 1`,
		symbol, domain.Day(at),
	).Scan(&p.Symbol, &p.Date, &p.Close, &p.Volume)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PricePoint{}, domain.ErrNotFound
		}
		return domain.PricePoint{}, fmt.Errorf("postgres: price at or before for %s: %w", symbol, err)
	}
	p.Date = domain.Day(p.Date)
	return p, nil
}

// Compile-time interface check.
var _ domain.PriceStore = (*PriceStore)(nil)
