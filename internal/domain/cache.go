package domain

import (
	"context"
	"time"
)

// QuoteCache caches the latest computed quote per symbol so read paths do not
// hit the price table for every card render.
type QuoteCache interface {
	SetQuote(ctx context.Context, symbol string, q Quote) error
	// GetQuote returns ErrNotFound when no quote is cached for the symbol.
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	// GetQuotes returns cached quotes for multiple symbols; symbols without a
	// cached quote are omitted from the result map.
	GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// LockManager provides distributed locks so batch jobs run on a single
// replica at a time.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. On success the
	// returned function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
