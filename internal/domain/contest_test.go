package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbols(t *testing.T) {
	got, err := NormalizeSymbols([]string{" nvda ", "aapl", "Msft"})
	require.NoError(t, err)
	assert.Equal(t, [BasketSize]string{"AAPL", "MSFT", "NVDA"}, got)

	_, err = NormalizeSymbols([]string{"AAPL", "MSFT"})
	assert.ErrorContains(t, err, "exactly 3 symbols")

	_, err = NormalizeSymbols([]string{"AAPL", "MSFT", "aapl"})
	assert.ErrorContains(t, err, "duplicate symbol AAPL")

	_, err = NormalizeSymbols([]string{"AAPL", "MSFT", "  "})
	assert.ErrorContains(t, err, "must not be empty")
}

func TestSymbolKey(t *testing.T) {
	assert.Equal(t, "AAPL,MSFT,NVDA", SymbolKey([BasketSize]string{"AAPL", "MSFT", "NVDA"}))
}

func TestStakeValid(t *testing.T) {
	assert.True(t, StakeFive.Valid())
	assert.True(t, StakeTen.Valid())
	assert.True(t, StakeFifteen.Valid())
	assert.False(t, Stake(0).Valid())
	assert.False(t, Stake(20).Valid())
}

func TestDurationWindow(t *testing.T) {
	w, err := DurationOneDay.Window()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, w)

	w, err = DurationOneWeek.Window()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, w)

	_, err = ContestDuration("1M").Window()
	assert.Error(t, err)
}

func TestContestState(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour)
	end := now.Add(23 * time.Hour)
	winner := "bob"

	c := Contest{ID: "c1", Baskets: []Basket{{ID: "b1", UserID: "alice"}}}
	assert.Equal(t, ContestAwaiting, c.State(now))

	c.Baskets = append(c.Baskets, Basket{ID: "b2", UserID: "bob"})
	c.StartTime, c.EndTime = &start, &end
	assert.Equal(t, ContestInProgress, c.State(now))
	assert.Equal(t, ContestEligible, c.State(end))
	assert.Equal(t, ContestEligible, c.State(end.Add(time.Hour)))

	c.WinnerUserID = &winner
	assert.Equal(t, ContestResolved, c.State(now))
}

func TestHasBasketOwnedBy(t *testing.T) {
	c := Contest{Baskets: []Basket{{ID: "b1", UserID: "alice"}}}
	assert.True(t, c.HasBasketOwnedBy("alice"))
	assert.False(t, c.HasBasketOwnedBy("bob"))
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	in := time.Date(2024, 3, 8, 22, 30, 0, 0, loc) // 03:30 UTC next day
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), Day(in))

	midnight := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight, Day(midnight))
}
