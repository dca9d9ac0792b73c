package domain

import "time"

// PricePoint is a single (symbol, trading day) observation. Date carries
// day granularity only: it is always midnight UTC. At most one PricePoint
// exists per (symbol, date) pair; the store enforces this.
type PricePoint struct {
	Symbol string
	Date   time.Time
	Close  float64
	Volume int64
}

// Day truncates t to midnight UTC, the canonical form for PricePoint dates.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
