package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tgdn/stockspec-backend/internal/domain"
)

// fkViolationCode is the SQLSTATE for foreign key violations.
const fkViolationCode = "23503"

// isFKViolation reports whether err is a foreign key violation, e.g. a basket
// referencing a symbol that was never ingested.
func isFKViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == fkViolationCode
}

// BasketStore implements domain.BasketStore using PostgreSQL. Reuse is
// enforced by the (user_id, symbol_key) uniqueness constraint: two requests
// for the same owner and symbol set always converge on one row.
type BasketStore struct {
	pool *pgxpool.Pool
}

// NewBasketStore creates a new BasketStore backed by the given connection pool.
func NewBasketStore(pool *pgxpool.Pool) *BasketStore {
	return &BasketStore{pool: pool}
}

const basketCols = `id, user_id, symbol_1, symbol_2, symbol_3, created_at`

// scanBasket scans a single basket row into a domain.Basket.
func scanBasket(row pgx.Row) (domain.Basket, error) {
	var b domain.Basket
	err := row.Scan(
		&b.ID, &b.UserID,
		&b.Symbols[0], &b.Symbols[1], &b.Symbols[2],
		&b.CreatedAt,
	)
	return b, err
}

// FindOrCreate returns the basket with the given owner and symbol set,
// creating it when none exists. The symbols must already be normalized
// (sorted, distinct, upper-case) via domain.NormalizeSymbols.
func (s *BasketStore) FindOrCreate(ctx context.Context, userID string, symbols [domain.BasketSize]string) (domain.Basket, error) {
	key := domain.SymbolKey(symbols)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO baskets (id, user_id, symbol_1, symbol_2, symbol_3, symbol_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, symbol_key) DO NOTHING`,
		uuid.New().String(), userID, symbols[0], symbols[1], symbols[2], key,
	)
	if err != nil {
		// A foreign key violation means one of the symbols was never
		// ingested; surface that as a lookup failure, not an infrastructure
		// error.
		if isFKViolation(err) {
			return domain.Basket{}, fmt.Errorf("postgres: create basket for %s: unknown symbol: %w", userID, domain.ErrNotFound)
		}
		return domain.Basket{}, fmt.Errorf("postgres: create basket for %s: %w", userID, err)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+basketCols+` FROM baskets WHERE user_id = $1 AND symbol_key = $2`,
		userID, key,
	)
	b, err := scanBasket(row)
	if err != nil {
		return domain.Basket{}, fmt.Errorf("postgres: find basket for %s: %w", userID, err)
	}
	return b, nil
}

// GetByID retrieves a basket by its primary key.
func (s *BasketStore) GetByID(ctx context.Context, id string) (domain.Basket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+basketCols+` FROM baskets WHERE id = $1`, id)
	b, err := scanBasket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Basket{}, domain.ErrNotFound
		}
		return domain.Basket{}, fmt.Errorf("postgres: get basket %s: %w", id, err)
	}
	return b, nil
}

// Compile-time interface check.
var _ domain.BasketStore = (*BasketStore)(nil)
