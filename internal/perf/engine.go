// Package perf computes symbol and basket returns over contest windows from
// stored daily prices.
package perf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tgdn/stockspec-backend/internal/domain"
)

// Engine answers return queries against the price store. Markets are closed
// on weekends and holidays, so window endpoints are resolved by backward
// fill: the latest stored price at or before the requested instant.
type Engine struct {
	prices domain.PriceStore
}

// New creates a performance engine over the given price store.
func New(prices domain.PriceStore) *Engine {
	return &Engine{prices: prices}
}

// PriceAtOrBefore returns the latest stored close at or before t, or
// domain.ErrInsufficientData when the symbol has no price that early.
func (e *Engine) PriceAtOrBefore(ctx context.Context, symbol string, t time.Time) (float64, error) {
	p, err := e.prices.PriceAtOrBefore(ctx, symbol, t)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("perf: no price for %s at or before %s: %w",
				symbol, t.Format("2006-01-02"), domain.ErrInsufficientData)
		}
		return 0, fmt.Errorf("perf: price for %s: %w", symbol, err)
	}
	return p.Close, nil
}

// ReturnForPeriod computes the fractional return of symbol between start and
// end, e.g. 0.10 for a 10% gain. Both endpoints resolve by backward fill; a
// missing endpoint surfaces domain.ErrInsufficientData, never a default of
// zero.
func (e *Engine) ReturnForPeriod(ctx context.Context, symbol string, start, end time.Time) (float64, error) {
	startPrice, err := e.PriceAtOrBefore(ctx, symbol, start)
	if err != nil {
		return 0, err
	}
	endPrice, err := e.PriceAtOrBefore(ctx, symbol, end)
	if err != nil {
		return 0, err
	}
	if startPrice == 0 {
		return 0, fmt.Errorf("perf: zero start price for %s: %w", symbol, domain.ErrInsufficientData)
	}
	return (endPrice - startPrice) / startPrice, nil
}

// ReturnForBasket computes the equal-weighted mean return of the basket's
// symbols over the window. Any symbol lacking data fails the whole basket
// with domain.ErrInsufficientData.
func (e *Engine) ReturnForBasket(ctx context.Context, basket domain.Basket, start, end time.Time) (float64, error) {
	var sum float64
	for _, symbol := range basket.Symbols {
		r, err := e.ReturnForPeriod(ctx, symbol, start, end)
		if err != nil {
			return 0, fmt.Errorf("perf: basket %s: %w", basket.ID, err)
		}
		sum += r
	}
	return sum / float64(len(basket.Symbols)), nil
}
