package ingest

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgdn/stockspec-backend/internal/domain"
	"github.com/tgdn/stockspec-backend/internal/platform/alphavantage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakes ---

type fakeKeys struct{}

func (fakeKeys) Acquire(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "test-key", nil
}

// fakeProvider serves queued series results per symbol, repeating the last
// one when the queue runs dry.
type fakeProvider struct {
	mu       sync.Mutex
	series   map[string][]alphavantage.SeriesResult
	overview alphavantage.OverviewResult
	search   alphavantage.SearchResult
	searches int
	calls    int
}

func (p *fakeProvider) DailySeries(ctx context.Context, req alphavantage.DailySeriesRequest, apiKey string) (alphavantage.SeriesResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	queue := p.series[req.Symbol]
	if len(queue) == 0 {
		return alphavantage.SeriesResult{Kind: alphavantage.ResultEmpty}, nil
	}
	res := queue[0]
	if len(queue) > 1 {
		p.series[req.Symbol] = queue[1:]
	}
	return res, nil
}

func (p *fakeProvider) CompanyOverview(ctx context.Context, req alphavantage.CompanyOverviewRequest, apiKey string) (alphavantage.OverviewResult, error) {
	return p.overview, nil
}

func (p *fakeProvider) SymbolSearch(ctx context.Context, req alphavantage.SymbolSearchRequest, apiKey string) (alphavantage.SearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searches++
	return p.search, nil
}

type memSymbolStore struct {
	mu      sync.Mutex
	symbols map[string]domain.Symbol
	quotes  map[string]domain.Quote
}

func newMemSymbolStore() *memSymbolStore {
	return &memSymbolStore{symbols: map[string]domain.Symbol{}, quotes: map[string]domain.Quote{}}
}

func (s *memSymbolStore) GetOrCreate(ctx context.Context, code string) (domain.Symbol, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sym, ok := s.symbols[code]; ok {
		return sym, false, nil
	}
	sym := domain.Symbol{Code: code}
	s.symbols[code] = sym
	return sym, true, nil
}

func (s *memSymbolStore) Get(ctx context.Context, code string) (domain.Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.symbols[code]
	if !ok {
		return domain.Symbol{}, domain.ErrNotFound
	}
	return sym, nil
}

func (s *memSymbolStore) UpdateCompanyInfo(ctx context.Context, sym domain.Symbol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[sym.Code] = sym
	return nil
}

func (s *memSymbolStore) UpdateQuote(ctx context.Context, code string, q domain.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[code] = q
	return nil
}

func (s *memSymbolStore) ListCodes(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.symbols))
	for c := range s.symbols {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes, nil
}

type memPriceStore struct {
	mu   sync.Mutex
	rows map[string]map[time.Time]domain.PricePoint
}

func newMemPriceStore() *memPriceStore {
	return &memPriceStore{rows: map[string]map[time.Time]domain.PricePoint{}}
}

func (s *memPriceStore) LatestDateFor(ctx context.Context, symbol string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for d := range s.rows[symbol] {
		if d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		return time.Time{}, domain.ErrNotFound
	}
	return latest, nil
}

func (s *memPriceStore) InsertRows(ctx context.Context, symbol string, rows []domain.PricePoint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[symbol] == nil {
		s.rows[symbol] = map[time.Time]domain.PricePoint{}
	}
	inserted := 0
	for _, r := range rows {
		if _, exists := s.rows[symbol][r.Date]; exists {
			continue
		}
		s.rows[symbol][r.Date] = r
		inserted++
	}
	return inserted, nil
}

func (s *memPriceStore) SeriesFor(ctx context.Context, symbol string, n int) ([]domain.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]domain.PricePoint, 0, len(s.rows[symbol]))
	for _, r := range s.rows[symbol] {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (s *memPriceStore) PriceAtOrBefore(ctx context.Context, symbol string, at time.Time) (domain.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best domain.PricePoint
	found := false
	for _, r := range s.rows[symbol] {
		if r.Date.After(at) {
			continue
		}
		if !found || r.Date.After(best.Date) {
			best = r
			found = true
		}
	}
	if !found {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return best, nil
}

type memQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func newMemQuoteCache() *memQuoteCache {
	return &memQuoteCache{quotes: map[string]domain.Quote{}}
}

func (c *memQuoteCache) SetQuote(ctx context.Context, symbol string, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[symbol] = q
	return nil
}

func (c *memQuoteCache) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func (c *memQuoteCache) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]domain.Quote{}
	for _, s := range symbols {
		if q, ok := c.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

// --- helpers ---

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func okSeries(rows ...alphavantage.PriceRow) alphavantage.SeriesResult {
	return alphavantage.SeriesResult{Kind: alphavantage.ResultOK, Rows: rows, Raw: []byte("csv")}
}

func throttled() alphavantage.SeriesResult {
	return alphavantage.SeriesResult{Kind: alphavantage.ResultRateLimited, Raw: []byte("{}")}
}

type testEnv struct {
	provider *fakeProvider
	symbols  *memSymbolStore
	prices   *memPriceStore
	quotes   *memQuoteCache
	engine   *Engine
	sleeps   *[]time.Duration
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		provider: &fakeProvider{
			series:   map[string][]alphavantage.SeriesResult{},
			overview: alphavantage.OverviewResult{Kind: alphavantage.ResultEmpty},
			search:   alphavantage.SearchResult{Kind: alphavantage.ResultEmpty},
		},
		symbols: newMemSymbolStore(),
		prices:  newMemPriceStore(),
		quotes:  newMemQuoteCache(),
	}
	env.engine = New(env.provider, fakeKeys{}, env.symbols, env.prices, env.quotes, nil, cfg, testLogger())

	var sleeps []time.Duration
	env.sleeps = &sleeps
	env.engine.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return env
}

func defaultCfg() Config {
	return Config{
		BurstWorkers:    2,
		SteadyDelay:     time.Second,
		CooldownInitial: 30 * time.Second,
		CooldownMax:     90 * time.Second,
		MaxCooldowns:    3,
	}
}

// --- tests ---

func TestFetchSymbolInsertsAndRefreshesQuote(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{okSeries(
		alphavantage.PriceRow{Date: day(2024, 3, 4), Close: 100, Volume: 10},
		alphavantage.PriceRow{Date: day(2024, 3, 5), Close: 100, Volume: 10},
		alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 110, Volume: 20},
	)}

	fetched, inserted, err := env.engine.FetchSymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, fetched)
	assert.Equal(t, 3, inserted)

	// Quote derives from the two most recent points: 100 -> 110.
	q := env.symbols.quotes["AAPL"]
	assert.Equal(t, 110.0, q.Price)
	assert.InDelta(t, 10.0, q.Delta, 1e-9)
	assert.InDelta(t, 0.10, q.Percent, 1e-9)

	cached, err := env.quotes.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, q.Price, cached.Price)
}

func TestFetchSymbolIsIdempotent(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	series := okSeries(
		alphavantage.PriceRow{Date: day(2024, 3, 5), Close: 100, Volume: 10},
		alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 110, Volume: 20},
	)
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{series, series}

	_, inserted, err := env.engine.FetchSymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	// Second run sees the same payload; every row is at or before the
	// latest stored date, so nothing new lands.
	fetched, inserted, err := env.engine.FetchSymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, fetched)
	assert.Equal(t, 0, inserted)
}

func TestFetchSymbolOnlyNewerRowsPassFilter(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{
		okSeries(
			alphavantage.PriceRow{Date: day(2024, 3, 5), Close: 100},
			alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 110},
		),
		okSeries(
			alphavantage.PriceRow{Date: day(2024, 3, 5), Close: 100},
			alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 110},
			alphavantage.PriceRow{Date: day(2024, 3, 7), Close: 120},
		),
	}

	_, _, err := env.engine.FetchSymbol(context.Background(), "AAPL")
	require.NoError(t, err)

	fetched, inserted, err := env.engine.FetchSymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, fetched)
	assert.Equal(t, 1, inserted)

	latest, err := env.prices.LatestDateFor(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 7), latest)
}

func TestFetchSymbolRateLimited(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{throttled()}

	_, _, err := env.engine.FetchSymbol(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestFetchSymbolMalformed(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{
		{Kind: alphavantage.ResultMalformed, Raw: []byte("garbage")},
	}

	_, _, err := env.engine.FetchSymbol(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrMalformed)
}

func TestFetchSymbolEnrichesNewSymbol(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	beta := 1.2
	env.provider.overview = alphavantage.OverviewResult{
		Kind: alphavantage.ResultOK,
		Company: alphavantage.CompanyOverview{
			Symbol: "AAPL", Name: "Apple Inc", Sector: "TECHNOLOGY", Beta: &beta,
		},
	}
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{okSeries(
		alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 110},
	)}

	_, _, err := env.engine.FetchSymbol(context.Background(), "AAPL")
	require.NoError(t, err)

	sym, err := env.symbols.Get(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", sym.Company)
	assert.Equal(t, "TECHNOLOGY", sym.Sector)
	require.NotNil(t, sym.Beta)
	assert.Equal(t, 1.2, *sym.Beta)
}

func TestFetchSymbolEnrichmentFallsBackToSearch(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	// Overview has nothing for the symbol; the catalogue knows it.
	env.provider.search = alphavantage.SearchResult{
		Kind: alphavantage.ResultOK,
		Matches: []alphavantage.SearchMatch{
			{Symbol: "AAPLX", Name: "Wrong Match", Region: "Frankfurt"},
			{Symbol: "AAPL", Name: "Apple Inc", Region: "United States"},
		},
	}
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{okSeries(
		alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 110},
	)}

	_, _, err := env.engine.FetchSymbol(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, env.provider.searches)
	sym, err := env.symbols.Get(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", sym.Company)
	assert.Equal(t, "United States", sym.Country)
}

func TestFetchSymbolSearchFallbackFindsNothing(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	env.provider.series["ZZZZ"] = []alphavantage.SeriesResult{okSeries(
		alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 5},
	)}

	// Empty overview and empty catalogue: the cycle still runs, the registry
	// entry just stays bare.
	_, inserted, err := env.engine.FetchSymbol(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	sym, err := env.symbols.Get(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Empty(t, sym.Company)
}

func TestBurstIsolatesFailures(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	env.provider.series["GOOD"] = []alphavantage.SeriesResult{okSeries(
		alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 50},
	)}
	env.provider.series["BAD"] = []alphavantage.SeriesResult{
		{Kind: alphavantage.ResultMalformed, Raw: []byte("x")},
	}

	outcomes := env.engine.Burst(context.Background(), []string{"GOOD", "BAD"})
	require.Len(t, outcomes, 2)
	assert.Equal(t, "GOOD", outcomes[0].Symbol)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 1, outcomes[0].Inserted)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrMalformed)
}

func TestSteadyRequeuesOnThrottle(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{
		throttled(),
		okSeries(alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 100}),
	}

	outcomes, err := env.engine.Steady(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 1, outcomes[0].Inserted)

	// One cooldown sleep for the throttle; no inter-fetch delay since the
	// queue emptied.
	require.Len(t, *env.sleeps, 1)
	assert.Equal(t, 30*time.Second, (*env.sleeps)[0])
}

func TestSteadyCooldownDoublesUpToCap(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxCooldowns = 4
	env := newTestEnv(t, cfg)
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{
		throttled(), throttled(), throttled(),
		okSeries(alphavantage.PriceRow{Date: day(2024, 3, 6), Close: 100}),
	}

	_, err := env.engine.Steady(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	require.Len(t, *env.sleeps, 3)
	assert.Equal(t, 30*time.Second, (*env.sleeps)[0])
	assert.Equal(t, 60*time.Second, (*env.sleeps)[1])
	assert.Equal(t, 90*time.Second, (*env.sleeps)[2], "cooldown is capped")
}

func TestSteadyGivesUpAfterMaxCooldowns(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxCooldowns = 2
	env := newTestEnv(t, cfg)
	always := throttled()
	env.provider.series["AAPL"] = []alphavantage.SeriesResult{always}
	env.provider.series["MSFT"] = []alphavantage.SeriesResult{always}

	outcomes, err := env.engine.Steady(context.Background(), []string{"AAPL", "MSFT"})
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	// Both symbols are reported as rate limited.
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, domain.ErrRateLimited)
	}
}

func TestSteadyStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, defaultCfg())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := env.engine.Steady(ctx, []string{"AAPL", "MSFT"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcomes)
}
