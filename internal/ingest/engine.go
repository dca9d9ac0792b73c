// Package ingest drives fetch-and-store cycles against the market-data
// provider: burst mode fans out over a bounded worker pool, steady mode walks
// symbols sequentially at a fixed pace and backs off on soft throttles.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tgdn/stockspec-backend/internal/domain"
	"github.com/tgdn/stockspec-backend/internal/platform/alphavantage"
)

// Provider is the slice of the market-data client the engine calls.
type Provider interface {
	DailySeries(ctx context.Context, req alphavantage.DailySeriesRequest, apiKey string) (alphavantage.SeriesResult, error)
	CompanyOverview(ctx context.Context, req alphavantage.CompanyOverviewRequest, apiKey string) (alphavantage.OverviewResult, error)
	SymbolSearch(ctx context.Context, req alphavantage.SymbolSearchRequest, apiKey string) (alphavantage.SearchResult, error)
}

// KeySource hands out provider API keys under the pool's rate budget.
type KeySource interface {
	Acquire(ctx context.Context) (string, error)
}

// Config bounds the engine's concurrency and throttle backoff.
type Config struct {
	// BurstWorkers bounds the concurrent fetch pool in burst mode.
	BurstWorkers int
	// SteadyDelay is the pause between fetches in steady mode.
	SteadyDelay time.Duration
	// CooldownInitial and CooldownMax bound the soft-throttle backoff. Each
	// consecutive throttle doubles the cooldown up to the cap.
	CooldownInitial time.Duration
	CooldownMax     time.Duration
	// MaxCooldowns caps consecutive throttle backoffs before a steady run
	// gives up on its remaining symbols.
	MaxCooldowns int
}

// Outcome reports one symbol's fetch cycle.
type Outcome struct {
	Symbol   string
	Fetched  int
	Inserted int
	Err      error
}

// Engine runs fetch-and-store cycles.
type Engine struct {
	provider Provider
	keys     KeySource
	symbols  domain.SymbolStore
	prices   domain.PriceStore
	quotes   domain.QuoteCache      // optional
	archiver domain.PayloadArchiver // optional

	cfg Config
	log *slog.Logger

	// sleep is injectable for backoff tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an ingestion engine. quotes and archiver may be nil; the
// corresponding steps are skipped.
func New(
	provider Provider,
	keys KeySource,
	symbols domain.SymbolStore,
	prices domain.PriceStore,
	quotes domain.QuoteCache,
	archiver domain.PayloadArchiver,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.BurstWorkers < 1 {
		cfg.BurstWorkers = 1
	}
	return &Engine{
		provider: provider,
		keys:     keys,
		symbols:  symbols,
		prices:   prices,
		quotes:   quotes,
		archiver: archiver,
		cfg:      cfg,
		log:      logger.With(slog.String("component", "ingest")),
		sleep:    sleepCtx,
	}
}

// FetchSymbol runs one full cycle for a symbol: register it if unknown
// (enriching company metadata on first sight), fetch the daily series, keep
// only rows newer than the latest stored date, bulk-insert them, and refresh
// the cached quote when anything landed. It returns the number of rows the
// provider sent and the number actually inserted.
//
// A soft throttle surfaces as domain.ErrRateLimited so callers can pace; an
// undecodable payload surfaces as domain.ErrMalformed.
func (e *Engine) FetchSymbol(ctx context.Context, code string) (int, int, error) {
	_, created, err := e.symbols.GetOrCreate(ctx, code)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest: register symbol %s: %w", code, err)
	}
	if created {
		if err := e.enrich(ctx, code); err != nil {
			if ctx.Err() != nil {
				return 0, 0, err
			}
			// Metadata is best-effort; the price cycle still runs.
			e.log.Warn("company enrichment failed",
				slog.String("symbol", code),
				slog.String("error", err.Error()),
			)
		}
	}

	// First sight of a symbol pulls the complete history; subsequent cycles
	// only need the compact tail.
	latest, err := e.prices.LatestDateFor(ctx, code)
	full := false
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return 0, 0, fmt.Errorf("ingest: latest date for %s: %w", code, err)
		}
		full = true
	}

	key, err := e.keys.Acquire(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest: acquire key for %s: %w", code, err)
	}

	res, err := e.provider.DailySeries(ctx, alphavantage.DailySeriesRequest{Symbol: code, Full: full}, key)
	if err != nil {
		return 0, 0, err
	}

	e.archive(ctx, "daily", code, res.Raw)

	switch res.Kind {
	case alphavantage.ResultRateLimited:
		return 0, 0, fmt.Errorf("ingest: fetch %s: %w", code, domain.ErrRateLimited)
	case alphavantage.ResultMalformed:
		return 0, 0, fmt.Errorf("ingest: fetch %s: %w", code, domain.ErrMalformed)
	case alphavantage.ResultEmpty:
		return 0, 0, nil
	}

	// The most recent stored date is treated as final: only strictly newer
	// rows pass the filter, so re-running a cycle inserts nothing.
	fresh := make([]domain.PricePoint, 0, len(res.Rows))
	for _, row := range res.Rows {
		day := domain.Day(row.Date)
		if !full && !day.After(latest) {
			continue
		}
		fresh = append(fresh, domain.PricePoint{
			Symbol: code,
			Date:   day,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}

	inserted, err := e.prices.InsertRows(ctx, code, fresh)
	if err != nil {
		return len(res.Rows), 0, fmt.Errorf("ingest: insert rows for %s: %w", code, err)
	}

	if inserted > 0 {
		if err := e.refreshQuote(ctx, code); err != nil {
			e.log.Warn("quote refresh failed",
				slog.String("symbol", code),
				slog.String("error", err.Error()),
			)
		}
	}

	e.log.Info("symbol cycle complete",
		slog.String("symbol", code),
		slog.Int("fetched", len(res.Rows)),
		slog.Int("inserted", inserted),
	)
	return len(res.Rows), inserted, nil
}

// enrich fetches company metadata for a newly registered symbol. Soft
// throttles are retried with the bounded cooldown; anything else fails the
// enrichment (not the cycle).
func (e *Engine) enrich(ctx context.Context, code string) error {
	cooldown := e.cfg.CooldownInitial
	for attempt := 0; ; attempt++ {
		key, err := e.keys.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("ingest: acquire key for overview %s: %w", code, err)
		}

		res, err := e.provider.CompanyOverview(ctx, alphavantage.CompanyOverviewRequest{Symbol: code}, key)
		if err != nil {
			return err
		}

		e.archive(ctx, "overview", code, res.Raw)

		switch res.Kind {
		case alphavantage.ResultOK:
			return e.symbols.UpdateCompanyInfo(ctx, domain.Symbol{
				Code:        code,
				Company:     res.Company.Name,
				Description: res.Company.Description,
				Sector:      res.Company.Sector,
				Industry:    res.Company.Industry,
				Exchange:    res.Company.Exchange,
				Country:     res.Company.Country,
				Beta:        res.Company.Beta,
			})
		case alphavantage.ResultEmpty:
			// No overview for the symbol; the instrument catalogue can still
			// supply a name.
			return e.enrichFromSearch(ctx, code)
		case alphavantage.ResultMalformed:
			return fmt.Errorf("ingest: overview %s: %w", code, domain.ErrMalformed)
		}

		// Soft throttle.
		if attempt+1 >= e.cfg.MaxCooldowns {
			return fmt.Errorf("ingest: overview %s: %w", code, domain.ErrRateLimited)
		}
		if err := e.sleep(ctx, cooldown); err != nil {
			return err
		}
		cooldown = nextCooldown(cooldown, e.cfg.CooldownMax)
	}
}

// enrichFromSearch fills in what the catalogue knows about a symbol the
// overview endpoint has nothing for. Best-effort: any non-OK search result
// just leaves the registry entry bare.
func (e *Engine) enrichFromSearch(ctx context.Context, code string) error {
	key, err := e.keys.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("ingest: acquire key for search %s: %w", code, err)
	}

	res, err := e.provider.SymbolSearch(ctx, alphavantage.SymbolSearchRequest{Keywords: code}, key)
	if err != nil {
		return err
	}

	e.archive(ctx, "search", code, res.Raw)

	if res.Kind != alphavantage.ResultOK {
		return nil
	}
	for _, m := range res.Matches {
		if m.Symbol != code {
			continue
		}
		return e.symbols.UpdateCompanyInfo(ctx, domain.Symbol{
			Code:    code,
			Company: m.Name,
			Country: m.Region,
		})
	}
	return nil
}

// refreshQuote recomputes the cached last price and day-over-day change from
// the two most recent stored points and publishes the result.
func (e *Engine) refreshQuote(ctx context.Context, code string) error {
	series, err := e.prices.SeriesFor(ctx, code, 2)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return nil
	}

	last := series[len(series)-1]
	q := domain.Quote{Price: last.Close, At: time.Now().UTC()}
	if len(series) == 2 && series[0].Close != 0 {
		q.Delta = last.Close - series[0].Close
		q.Percent = q.Delta / series[0].Close
	}

	if err := e.symbols.UpdateQuote(ctx, code, q); err != nil {
		return err
	}
	if e.quotes != nil {
		if err := e.quotes.SetQuote(ctx, code, q); err != nil {
			// Cache publish is best-effort; the store already has the quote.
			e.log.Warn("quote cache publish failed",
				slog.String("symbol", code),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// archive uploads a raw payload when an archiver is configured. Failures are
// logged and swallowed.
func (e *Engine) archive(ctx context.Context, kind, symbol string, payload []byte) {
	if e.archiver == nil || len(payload) == 0 {
		return
	}
	if err := e.archiver.ArchivePayload(ctx, kind, symbol, time.Now().UTC(), payload); err != nil {
		e.log.Warn("payload archive failed",
			slog.String("kind", kind),
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}

// Burst fetches all symbols concurrently through a bounded worker pool. Each
// symbol's failure is isolated into its outcome; the slice preserves input
// order.
func (e *Engine) Burst(ctx context.Context, codes []string) []Outcome {
	outcomes := make([]Outcome, len(codes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BurstWorkers)
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			fetched, inserted, err := e.FetchSymbol(ctx, code)
			outcomes[i] = Outcome{Symbol: code, Fetched: fetched, Inserted: inserted, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	e.logSummary("burst run complete", outcomes)
	return outcomes
}

// Steady fetches symbols one at a time with a fixed delay between fetches.
// A soft throttle puts the symbol back at the head of the queue and backs off
// with a doubling cooldown; after MaxCooldowns consecutive throttles the run
// gives up and reports the remaining symbols as rate-limited. Cancelling ctx
// stops new fetches; the in-flight symbol finishes its atomic insert.
func (e *Engine) Steady(ctx context.Context, codes []string) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(codes))
	queue := append([]string(nil), codes...)

	cooldown := e.cfg.CooldownInitial
	throttles := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		code := queue[0]
		fetched, inserted, err := e.FetchSymbol(ctx, code)

		if errors.Is(err, domain.ErrRateLimited) {
			throttles++
			if throttles >= e.cfg.MaxCooldowns {
				e.log.Error("giving up after repeated throttling",
					slog.Int("throttles", throttles),
					slog.Int("remaining", len(queue)),
				)
				for _, rem := range queue {
					outcomes = append(outcomes, Outcome{Symbol: rem, Err: domain.ErrRateLimited})
				}
				return outcomes, fmt.Errorf("ingest: steady run: %w", domain.ErrRateLimited)
			}

			e.log.Warn("provider throttled, cooling down",
				slog.String("symbol", code),
				slog.Duration("cooldown", cooldown),
				slog.Int("throttles", throttles),
			)
			if err := e.sleep(ctx, cooldown); err != nil {
				return outcomes, err
			}
			cooldown = nextCooldown(cooldown, e.cfg.CooldownMax)
			continue
		}

		queue = queue[1:]
		outcomes = append(outcomes, Outcome{Symbol: code, Fetched: fetched, Inserted: inserted, Err: err})

		// A clean fetch resets the throttle backoff.
		if err == nil {
			cooldown = e.cfg.CooldownInitial
			throttles = 0
		}

		if len(queue) > 0 && e.cfg.SteadyDelay > 0 {
			if err := e.sleep(ctx, e.cfg.SteadyDelay); err != nil {
				return outcomes, err
			}
		}
	}

	e.logSummary("steady run complete", outcomes)
	return outcomes, nil
}

func (e *Engine) logSummary(msg string, outcomes []Outcome) {
	var fetched, inserted, failed int
	for _, o := range outcomes {
		fetched += o.Fetched
		inserted += o.Inserted
		if o.Err != nil {
			failed++
		}
	}
	e.log.Info(msg,
		slog.Int("symbols", len(outcomes)),
		slog.Int("fetched", fetched),
		slog.Int("inserted", inserted),
		slog.Int("failed", failed),
	)
}

// nextCooldown doubles the cooldown up to the cap.
func nextCooldown(d, max time.Duration) time.Duration {
	d *= 2
	if max > 0 && d > max {
		d = max
	}
	return d
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
