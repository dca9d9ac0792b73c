package domain

import "time"

// Symbol represents a tradable instrument together with its company metadata
// and the cached quote fields recomputed after each successful price import.
type Symbol struct {
	Code        string
	Company     string
	Description string
	Sector      string
	Industry    string
	Exchange    string
	Country     string
	Beta        *float64
	LogoURL     string

	// Cached quote fields. Nil until at least two price points are stored.
	LastPrice        *float64
	DeltaChange      *float64
	PercentageChange *float64

	LastUpdated time.Time
	CreatedAt   time.Time
}

// Quote is the cached latest price snapshot for a symbol, derived from the
// two most recent stored closes.
type Quote struct {
	Price   float64
	Delta   float64
	Percent float64
	At      time.Time
}
