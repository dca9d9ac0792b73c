package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tgdn/stockspec-backend/internal/ingest"
	"github.com/tgdn/stockspec-backend/internal/notify"
	"github.com/tgdn/stockspec-backend/internal/perf"
	"github.com/tgdn/stockspec-backend/internal/resolve"
)

// newIngestEngine builds the ingestion engine from wired dependencies.
func (a *App) newIngestEngine(deps *Dependencies) *ingest.Engine {
	return ingest.New(
		deps.Provider,
		deps.KeyPool,
		deps.SymbolStore,
		deps.PriceStore,
		deps.QuoteCache,
		deps.Archiver,
		ingest.Config{
			BurstWorkers:    a.cfg.Ingest.BurstWorkers,
			SteadyDelay:     a.cfg.Ingest.SteadyDelay.Duration,
			CooldownInitial: a.cfg.Ingest.CooldownInitial.Duration,
			CooldownMax:     a.cfg.Ingest.CooldownMax.Duration,
			MaxCooldowns:    a.cfg.Ingest.MaxCooldowns,
		},
		a.logger,
	)
}

// newResolver builds the resolution batch from wired dependencies.
func (a *App) newResolver(deps *Dependencies) *resolve.Resolver {
	return resolve.New(
		deps.ContestStore,
		perf.New(deps.PriceStore),
		deps.LockManager,
		deps.Notifier,
		a.cfg.Resolver.LockTTL.Duration,
		a.logger,
	)
}

// ingestTargets returns the symbols an ingest run should cover: the
// configured fixed set when present, otherwise every tracked symbol.
func (a *App) ingestTargets(ctx context.Context, deps *Dependencies) ([]string, error) {
	if len(a.cfg.Ingest.Symbols) > 0 {
		return a.cfg.Ingest.Symbols, nil
	}
	codes, err := deps.SymbolStore.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: list tracked symbols: %w", err)
	}
	return codes, nil
}

// reportFailures notifies operators about symbols whose cycle failed.
func (a *App) reportFailures(ctx context.Context, deps *Dependencies, outcomes []ingest.Outcome) {
	var failed []string
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o.Symbol)
		}
	}
	if len(failed) == 0 {
		return
	}
	msg := fmt.Sprintf("%d of %d symbols failed: %v", len(failed), len(outcomes), failed)
	if err := deps.Notifier.Notify(ctx, notify.EventIngestFailed, "Ingestion failures", msg); err != nil {
		a.logger.WarnContext(ctx, "failure notification not delivered",
			slog.String("error", err.Error()),
		)
	}
}

// IngestMode runs one burst ingestion over the target symbols and exits.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	targets, err := a.ingestTargets(ctx, deps)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		a.logger.WarnContext(ctx, "no symbols to ingest")
		return nil
	}

	engine := a.newIngestEngine(deps)
	outcomes := engine.Burst(ctx, targets)
	a.reportFailures(ctx, deps, outcomes)
	return ctx.Err()
}

// SteadyMode runs one steady-rate ingestion over the target symbols and
// exits. Suited to very small key pools where burst mode would spend most of
// its time in the pacing pause.
func (a *App) SteadyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting steady mode")

	targets, err := a.ingestTargets(ctx, deps)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		a.logger.WarnContext(ctx, "no symbols to ingest")
		return nil
	}

	engine := a.newIngestEngine(deps)
	outcomes, err := engine.Steady(ctx, targets)
	a.reportFailures(ctx, deps, outcomes)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("app: steady run: %w", err)
	}
	return ctx.Err()
}

// ResolveMode runs the contest resolution loop until cancelled.
func (a *App) ResolveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting resolve mode",
		slog.Duration("interval", a.cfg.Resolver.Interval.Duration),
	)
	return a.newResolver(deps).RunLoop(ctx, a.cfg.Resolver.Interval.Duration)
}

// FullMode runs the periodic ingestion loop and the resolution loop side by
// side until cancelled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Duration("ingest_interval", a.cfg.Ingest.Interval.Duration),
		slog.Duration("resolve_interval", a.cfg.Resolver.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)

	engine := a.newIngestEngine(deps)
	g.Go(func() error {
		runOnce := func() {
			targets, err := a.ingestTargets(ctx, deps)
			if err != nil {
				a.logger.ErrorContext(ctx, "ingest run skipped", slog.String("error", err.Error()))
				return
			}
			if len(targets) == 0 {
				return
			}
			outcomes := engine.Burst(ctx, targets)
			a.reportFailures(ctx, deps, outcomes)
		}

		// Run immediately on start.
		runOnce()

		ticker := time.NewTicker(a.cfg.Ingest.Interval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				a.logger.Info("ingest loop stopped")
				return ctx.Err()
			case <-ticker.C:
				runOnce()
			}
		}
	})

	resolver := a.newResolver(deps)
	g.Go(func() error {
		return resolver.RunLoop(ctx, a.cfg.Resolver.Interval.Duration)
	})

	return g.Wait()
}
