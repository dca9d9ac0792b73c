package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// SymbolStore persists per-symbol metadata and cached quote fields.
type SymbolStore interface {
	// GetOrCreate returns the symbol record for code, creating an empty one
	// if none exists. The second return value is true when a row was created.
	GetOrCreate(ctx context.Context, code string) (Symbol, bool, error)
	Get(ctx context.Context, code string) (Symbol, error)
	// UpdateCompanyInfo overwrites the company metadata fields of an existing
	// symbol. Quote fields are not touched.
	UpdateCompanyInfo(ctx context.Context, s Symbol) error
	// UpdateQuote overwrites the cached quote fields and last_updated.
	UpdateQuote(ctx context.Context, code string, q Quote) error
	// ListCodes returns every tracked symbol code.
	ListCodes(ctx context.Context) ([]string, error)
}

// PriceStore persists daily close prices. The ingestion engine is the only
// writer; duplicate (symbol, date) inserts are ignored at the storage layer.
type PriceStore interface {
	// LatestDateFor returns the most recent stored date for symbol, or
	// ErrNotFound when the symbol has no stored prices.
	LatestDateFor(ctx context.Context, symbol string) (time.Time, error)
	// InsertRows bulk-inserts rows for one symbol in a single operation and
	// returns the number of rows actually inserted.
	InsertRows(ctx context.Context, symbol string, rows []PricePoint) (int, error)
	// SeriesFor returns the last n points for symbol in ascending date order.
	SeriesFor(ctx context.Context, symbol string, n int) ([]PricePoint, error)
	// PriceAtOrBefore returns the latest point with date <= at (backward
	// fill), or ErrNotFound when no such point exists.
	PriceAtOrBefore(ctx context.Context, symbol string, at time.Time) (PricePoint, error)
}

// BasketStore persists baskets with find-or-create semantics keyed on
// (user, sorted symbol set).
type BasketStore interface {
	FindOrCreate(ctx context.Context, userID string, symbols [BasketSize]string) (Basket, error)
	GetByID(ctx context.Context, id string) (Basket, error)
}

// ContestStore persists contests and their basket links.
type ContestStore interface {
	Create(ctx context.Context, c Contest) error
	GetByID(ctx context.Context, id string) (Contest, error)
	// AttachBasket links the opponent basket and fixes the contest window.
	// This is the only operation that ever sets start/end times.
	AttachBasket(ctx context.Context, contestID, basketID string, start, end time.Time) error
	// ListEligible returns contests with two baskets, end_time <= now and no
	// winner, i.e. the resolution batch's work queue.
	ListEligible(ctx context.Context, now time.Time) ([]Contest, error)
	// SetWinner assigns the winning user. It must refuse to overwrite an
	// existing winner.
	SetWinner(ctx context.Context, contestID, userID string) error

	ListAwaiting(ctx context.Context, opts ListOpts) ([]Contest, error)
	ListOngoing(ctx context.Context, userID string, opts ListOpts) ([]Contest, error)
	ListFinished(ctx context.Context, userID string, opts ListOpts) ([]Contest, error)
}
