package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tgdn/stockspec-backend/internal/domain"
)

// SymbolStore implements domain.SymbolStore using PostgreSQL.
type SymbolStore struct {
	pool *pgxpool.Pool
}

// NewSymbolStore creates a new SymbolStore backed by the given connection pool.
func NewSymbolStore(pool *pgxpool.Pool) *SymbolStore {
	return &SymbolStore{pool: pool}
}

const symbolCols = `code, company, description, sector, industry, exchange, country,
	beta, logo_url, last_price, delta_change, percentage_change, last_updated, created_at`

// scanSymbol scans a single symbol row into a domain.Symbol.
func scanSymbol(row pgx.Row) (domain.Symbol, error) {
	var s domain.Symbol
	err := row.Scan(
		&s.Code, &s.Company, &s.Description, &s.Sector, &s.Industry,
		&s.Exchange, &s.Country, &s.Beta, &s.LogoURL,
		&s.LastPrice, &s.DeltaChange, &s.PercentageChange,
		&s.LastUpdated, &s.CreatedAt,
	)
	return s, err
}

// GetOrCreate returns the symbol row for code, inserting an empty record when
// none exists. The second return value reports whether a row was created.
func (s *SymbolStore) GetOrCreate(ctx context.Context, code string) (domain.Symbol, bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO symbols (code) VALUES ($1) ON CONFLICT (code) DO NOTHING`, code)
	if err != nil {
		return domain.Symbol{}, false, fmt.Errorf("postgres: create symbol %s: %w", code, err)
	}
	created := tag.RowsAffected() == 1

	sym, err := s.Get(ctx, code)
	if err != nil {
		return domain.Symbol{}, false, err
	}
	return sym, created, nil
}

// Get retrieves a symbol by code.
func (s *SymbolStore) Get(ctx context.Context, code string) (domain.Symbol, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+symbolCols+` FROM symbols WHERE code = $1`, code)
	sym, err := scanSymbol(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Symbol{}, domain.ErrNotFound
		}
		return domain.Symbol{}, fmt.Errorf("postgres: get symbol %s: %w", code, err)
	}
	return sym, nil
}

// UpdateCompanyInfo overwrites the company metadata fields of an existing
// symbol. Cached quote fields are left untouched.
func (s *SymbolStore) UpdateCompanyInfo(ctx context.Context, sym domain.Symbol) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE symbols SET
			company     = $2,
			description = $3,
			sector      = $4,
			industry    = $5,
			exchange    = $6,
			country     = $7,
			beta        = $8,
			logo_url    = $9
		WHERE code = $1`,
		sym.Code, sym.Company, sym.Description, sym.Sector, sym.Industry,
		sym.Exchange, sym.Country, sym.Beta, sym.LogoURL,
	)
	if err != nil {
		return fmt.Errorf("postgres: update company info %s: %w", sym.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateQuote overwrites the cached quote fields and last_updated.
func (s *SymbolStore) UpdateQuote(ctx context.Context, code string, q domain.Quote) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE symbols SET
			last_price        = $2,
			delta_change      = $3,
			percentage_change = $4,
			last_updated      = $5
		WHERE code = $1`,
		code, q.Price, q.Delta, q.Percent, q.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: update quote %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListCodes returns every tracked symbol code in lexicographic order.
func (s *SymbolStore) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM symbols ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list symbol codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("postgres: scan symbol code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list symbol codes rows: %w", err)
	}
	return codes, nil
}

// Compile-time interface check.
var _ domain.SymbolStore = (*SymbolStore)(nil)
