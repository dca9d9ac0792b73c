// Package service holds the contest workflows that sit between the (out of
// scope) HTTP layer and the stores: creating contests, joining them, and the
// listing queries the card views need.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tgdn/stockspec-backend/internal/domain"
)

// ContestService implements the contest lifecycle up to the point where the
// resolver takes over.
type ContestService struct {
	contests domain.ContestStore
	baskets  domain.BasketStore
	logger   *slog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewContestService creates a ContestService.
func NewContestService(contests domain.ContestStore, baskets domain.BasketStore, logger *slog.Logger) *ContestService {
	return &ContestService{
		contests: contests,
		baskets:  baskets,
		logger:   logger.With(slog.String("component", "contest_service")),
		now:      time.Now,
	}
}

// CreateContest opens a new contest in the awaiting state with the creator's
// basket attached. The basket is found or created from the given symbol set;
// proposing the same three symbols twice reuses the same basket row. Start
// and end times stay unset until an opponent joins.
func (s *ContestService) CreateContest(ctx context.Context, userID string, symbols []string, stake domain.Stake, dur domain.ContestDuration) (domain.Contest, error) {
	if !stake.Valid() {
		return domain.Contest{}, fmt.Errorf("service: invalid stake %d", int(stake))
	}
	if _, err := dur.Window(); err != nil {
		return domain.Contest{}, fmt.Errorf("service: %w", err)
	}

	normalized, err := domain.NormalizeSymbols(symbols)
	if err != nil {
		return domain.Contest{}, fmt.Errorf("service: %w", err)
	}

	basket, err := s.baskets.FindOrCreate(ctx, userID, normalized)
	if err != nil {
		return domain.Contest{}, fmt.Errorf("service: basket for contest: %w", err)
	}

	contest := domain.Contest{
		ID:       uuid.New().String(),
		Stake:    stake,
		Duration: dur,
		Baskets:  []domain.Basket{basket},
	}
	if err := s.contests.Create(ctx, contest); err != nil {
		return domain.Contest{}, err
	}

	s.logger.InfoContext(ctx, "contest created",
		slog.String("contest_id", contest.ID),
		slog.String("user_id", userID),
		slog.Int("stake", int(stake)),
		slog.String("duration", string(dur)),
	)
	return s.contests.GetByID(ctx, contest.ID)
}

// JoinContest attaches the opponent's basket to an awaiting contest and fixes
// the contest window: start is now, end is now plus the contest duration.
// This is the only place those timestamps are ever set. Joining your own
// contest, a full contest or a resolved contest is rejected.
func (s *ContestService) JoinContest(ctx context.Context, contestID, userID string, symbols []string) (domain.Contest, error) {
	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		return domain.Contest{}, err
	}

	now := s.now().UTC()
	switch contest.State(now) {
	case domain.ContestAwaiting:
	case domain.ContestResolved:
		return domain.Contest{}, fmt.Errorf("service: join contest %s: %w", contestID, domain.ErrContestResolved)
	default:
		return domain.Contest{}, fmt.Errorf("service: join contest %s: %w", contestID, domain.ErrContestFull)
	}
	if contest.HasBasketOwnedBy(userID) {
		return domain.Contest{}, fmt.Errorf("service: user %s already holds a basket in contest %s", userID, contestID)
	}

	normalized, err := domain.NormalizeSymbols(symbols)
	if err != nil {
		return domain.Contest{}, fmt.Errorf("service: %w", err)
	}

	basket, err := s.baskets.FindOrCreate(ctx, userID, normalized)
	if err != nil {
		return domain.Contest{}, fmt.Errorf("service: basket for join: %w", err)
	}

	window, err := contest.Duration.Window()
	if err != nil {
		return domain.Contest{}, fmt.Errorf("service: %w", err)
	}
	if err := s.contests.AttachBasket(ctx, contestID, basket.ID, now, now.Add(window)); err != nil {
		return domain.Contest{}, err
	}

	s.logger.InfoContext(ctx, "contest joined",
		slog.String("contest_id", contestID),
		slog.String("user_id", userID),
		slog.Time("end_time", now.Add(window)),
	)
	return s.contests.GetByID(ctx, contestID)
}

// ListAwaiting returns contests waiting for an opponent.
func (s *ContestService) ListAwaiting(ctx context.Context, opts domain.ListOpts) ([]domain.Contest, error) {
	return s.contests.ListAwaiting(ctx, opts)
}

// ListOngoing returns the user's started but unresolved contests.
func (s *ContestService) ListOngoing(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Contest, error) {
	return s.contests.ListOngoing(ctx, userID, opts)
}

// ListFinished returns the user's resolved contests.
func (s *ContestService) ListFinished(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Contest, error) {
	return s.contests.ListFinished(ctx, userID, opts)
}
