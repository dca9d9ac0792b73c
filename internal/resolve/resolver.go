// Package resolve assigns winners to contests whose window has closed. The
// resolver is a batch job: it scans eligible contests, compares basket
// returns over the fixed window, and persists each winner exactly once.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tgdn/stockspec-backend/internal/domain"
	"github.com/tgdn/stockspec-backend/internal/notify"
)

// lockKey guards the resolution pass so a multi-replica deployment resolves
// on one replica at a time.
const lockKey = "resolve"

// Performance computes basket returns over a window.
type Performance interface {
	ReturnForBasket(ctx context.Context, basket domain.Basket, start, end time.Time) (float64, error)
}

// EventNotifier is the slice of the notifier the resolver uses.
type EventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Resolver runs the contest resolution batch.
type Resolver struct {
	contests domain.ContestStore
	perf     Performance
	locks    domain.LockManager // optional
	notifier EventNotifier      // optional
	lockTTL  time.Duration
	log      *slog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// New creates a Resolver. locks and notifier may be nil: without locks every
// pass runs unguarded, without a notifier resolution is silent.
func New(
	contests domain.ContestStore,
	perf Performance,
	locks domain.LockManager,
	notifier EventNotifier,
	lockTTL time.Duration,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		contests: contests,
		perf:     perf,
		locks:    locks,
		notifier: notifier,
		lockTTL:  lockTTL,
		log:      logger.With(slog.String("component", "resolver")),
		now:      time.Now,
	}
}

// ResolveEligible resolves every contest whose window closed at or before
// now. Contests lacking price data are skipped, stay eligible and are
// retried on the next pass; one contest's failure never blocks another. It
// returns the number of contests resolved.
func (r *Resolver) ResolveEligible(ctx context.Context, now time.Time) (int, error) {
	eligible, err := r.contests.ListEligible(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("resolve: list eligible: %w", err)
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	resolved := 0
	for _, c := range eligible {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if err := r.resolveOne(ctx, c); err != nil {
			if errors.Is(err, domain.ErrInsufficientData) {
				r.log.Warn("contest lacks price data, retrying next pass",
					slog.String("contest_id", c.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			r.log.Error("contest resolution failed",
				slog.String("contest_id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		resolved++
	}

	r.log.Info("resolution pass complete",
		slog.Int("eligible", len(eligible)),
		slog.Int("resolved", resolved),
	)
	return resolved, nil
}

// resolveOne compares the two basket returns over the contest window and
// persists the winner. The strictly greater return wins; on an exact tie the
// lexicographically lowest basket ID wins, so re-running a pass is
// deterministic.
func (r *Resolver) resolveOne(ctx context.Context, c domain.Contest) error {
	if len(c.Baskets) != 2 || c.StartTime == nil || c.EndTime == nil {
		return fmt.Errorf("resolve: contest %s is not resolvable", c.ID)
	}

	b1, b2 := c.Baskets[0], c.Baskets[1]

	r1, err := r.perf.ReturnForBasket(ctx, b1, *c.StartTime, *c.EndTime)
	if err != nil {
		return err
	}
	r2, err := r.perf.ReturnForBasket(ctx, b2, *c.StartTime, *c.EndTime)
	if err != nil {
		return err
	}

	winner := b1
	if r2 > r1 || (r2 == r1 && b2.ID < b1.ID) {
		winner = b2
	}

	if err := r.contests.SetWinner(ctx, c.ID, winner.UserID); err != nil {
		return fmt.Errorf("resolve: set winner for contest %s: %w", c.ID, err)
	}

	r.log.Info("contest resolved",
		slog.String("contest_id", c.ID),
		slog.String("winner_user_id", winner.UserID),
		slog.Float64("return_1", r1),
		slog.Float64("return_2", r2),
	)

	if r.notifier != nil {
		msg := fmt.Sprintf("Contest %s resolved: user %s won (%.2f%% vs %.2f%%)",
			c.ID, winner.UserID, r1*100, r2*100)
		if err := r.notifier.Notify(ctx, notify.EventContestResolved, "Contest resolved", msg); err != nil {
			r.log.Warn("resolution notification failed",
				slog.String("contest_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// runGuarded runs one pass under the distributed lock. A pass is skipped when
// another replica holds the lock.
func (r *Resolver) runGuarded(ctx context.Context) error {
	if r.locks == nil {
		_, err := r.ResolveEligible(ctx, r.now())
		return err
	}

	unlock, err := r.locks.Acquire(ctx, lockKey, r.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			r.log.Debug("resolution lock held elsewhere, skipping pass")
			return nil
		}
		return fmt.Errorf("resolve: acquire lock: %w", err)
	}
	defer unlock()

	_, err = r.ResolveEligible(ctx, r.now())
	return err
}

// RunLoop runs resolution passes on a repeating interval until the context is
// cancelled.
func (r *Resolver) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := r.runGuarded(ctx); err != nil {
		r.log.Error("resolution pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("resolver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.runGuarded(ctx); err != nil {
				r.log.Error("resolution pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
