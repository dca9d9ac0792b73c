package domain

import (
	"fmt"
	"time"
)

// Stake is the amount wagered on a contest. Only the three enumerated
// values are valid.
type Stake int

const (
	StakeFive    Stake = 5
	StakeTen     Stake = 10
	StakeFifteen Stake = 15
)

// Valid reports whether s is one of the enumerated stake amounts.
func (s Stake) Valid() bool {
	switch s {
	case StakeFive, StakeTen, StakeFifteen:
		return true
	default:
		return false
	}
}

// ContestDuration is the length of a contest window.
type ContestDuration string

const (
	DurationOneDay  ContestDuration = "1D"
	DurationOneWeek ContestDuration = "1W"
)

// Window returns the wall-clock length of the contest window.
func (d ContestDuration) Window() (time.Duration, error) {
	switch d {
	case DurationOneDay:
		return 24 * time.Hour, nil
	case DurationOneWeek:
		return 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown contest duration %q", string(d))
	}
}

// ContestState is the derived lifecycle state of a contest.
type ContestState string

const (
	// ContestAwaiting means the contest has one basket and waits for an opponent.
	ContestAwaiting ContestState = "awaiting"
	// ContestInProgress means both baskets joined and the window has not closed.
	ContestInProgress ContestState = "in_progress"
	// ContestEligible means the window closed but no winner has been assigned.
	ContestEligible ContestState = "eligible"
	// ContestResolved means a winner has been assigned. Terminal.
	ContestResolved ContestState = "resolved"
)

// Contest is a timed head-to-head performance comparison between two baskets.
// StartTime and EndTime are nil until a second basket joins; WinnerUserID is
// nil until the resolution batch assigns a winner, exactly once.
type Contest struct {
	ID       string
	Stake    Stake
	Duration ContestDuration
	Baskets  []Basket // 0, 1 or 2 entries

	StartTime    *time.Time
	EndTime      *time.Time
	WinnerUserID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// State derives the lifecycle state at the given instant.
func (c *Contest) State(now time.Time) ContestState {
	switch {
	case c.WinnerUserID != nil:
		return ContestResolved
	case len(c.Baskets) < 2 || c.EndTime == nil:
		return ContestAwaiting
	case now.Before(*c.EndTime):
		return ContestInProgress
	default:
		return ContestEligible
	}
}

// HasBasketOwnedBy reports whether one of the contest's baskets belongs to
// the given user.
func (c *Contest) HasBasketOwnedBy(userID string) bool {
	for _, b := range c.Baskets {
		if b.UserID == userID {
			return true
		}
	}
	return false
}
