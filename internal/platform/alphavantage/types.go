package alphavantage

import "time"

// Request configuration structs, one per provider function. Each call kind
// has its own required fields instead of a shared free-form parameter bag.

// DailySeriesRequest fetches the daily close series for one symbol.
type DailySeriesRequest struct {
	Symbol string
	// Full requests the complete history instead of the compact ~100 rows.
	Full bool
}

// SymbolSearchRequest searches the provider's instrument catalogue.
type SymbolSearchRequest struct {
	Keywords string
}

// CompanyOverviewRequest fetches company metadata for one symbol.
type CompanyOverviewRequest struct {
	Symbol string
}

// PriceRow is one raw (date, close, volume) observation as returned by the
// provider, unfiltered. Rows are ordered ascending by date.
type PriceRow struct {
	Date   time.Time
	Close  float64
	Volume int64
}

// SearchMatch is one row of a symbol search result.
type SearchMatch struct {
	Symbol   string
	Name     string
	Type     string
	Region   string
	Currency string
}

// CompanyOverview carries the company metadata fields the symbol registry
// stores. Beta is nil when the provider reports "None" or "-".
type CompanyOverview struct {
	Symbol      string
	Name        string
	Description string
	Exchange    string
	Country     string
	Sector      string
	Industry    string
	Beta        *float64
}

// ResultKind classifies a parsed provider response. The caller branches on
// this explicitly; parse failures are not signalled through panics or
// sentinel-error control flow.
type ResultKind int

const (
	// ResultOK means the payload decoded into usable rows.
	ResultOK ResultKind = iota
	// ResultEmpty means the payload was valid but carried no data: the
	// symbol legitimately has no history (or the request transport-failed
	// and the cycle yields nothing).
	ResultEmpty
	// ResultRateLimited means the payload was syntactically valid but is a
	// soft-throttle notice: the caller should back off and retry later.
	ResultRateLimited
	// ResultMalformed means the payload could not be decoded as the expected
	// format. Hard failure for the request.
	ResultMalformed
)

// String returns the lower-case name of the result kind.
func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultEmpty:
		return "empty"
	case ResultRateLimited:
		return "rate_limited"
	case ResultMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// SeriesResult is the outcome of a daily-series fetch.
type SeriesResult struct {
	Kind ResultKind
	Rows []PriceRow
	// Raw is the response body as received, kept for archival.
	Raw []byte
}

// SearchResult is the outcome of a symbol search.
type SearchResult struct {
	Kind    ResultKind
	Matches []SearchMatch
	Raw     []byte
}

// OverviewResult is the outcome of a company-overview fetch.
type OverviewResult struct {
	Kind    ResultKind
	Company CompanyOverview
	Raw     []byte
}
