package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tgdn/stockspec-backend/internal/domain"
)

// ContestStore implements domain.ContestStore using PostgreSQL.
type ContestStore struct {
	pool *pgxpool.Pool
}

// NewContestStore creates a new ContestStore backed by the given connection pool.
func NewContestStore(pool *pgxpool.Pool) *ContestStore {
	return &ContestStore{pool: pool}
}

const contestCols = `id, stake, duration, basket_id_1, basket_id_2,
	start_time, end_time, winner_user_id, created_at, updated_at`

// contestRow is the raw scan target before basket rows are attached.
type contestRow struct {
	contest   domain.Contest
	basketID1 *string
	basketID2 *string
}

func scanContestRow(row pgx.Row) (contestRow, error) {
	var cr contestRow
	var stake int
	var dur string
	err := row.Scan(
		&cr.contest.ID, &stake, &dur,
		&cr.basketID1, &cr.basketID2,
		&cr.contest.StartTime, &cr.contest.EndTime, &cr.contest.WinnerUserID,
		&cr.contest.CreatedAt, &cr.contest.UpdatedAt,
	)
	if err != nil {
		return contestRow{}, err
	}
	cr.contest.Stake = domain.Stake(stake)
	cr.contest.Duration = domain.ContestDuration(dur)
	return cr, nil
}

// Create inserts a new contest with its first basket attached. Start and end
// times stay null: they are fixed by AttachBasket when an opponent joins.
func (s *ContestStore) Create(ctx context.Context, c domain.Contest) error {
	if len(c.Baskets) != 1 {
		return fmt.Errorf("postgres: contest %s must be created with exactly one basket, got %d", c.ID, len(c.Baskets))
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO contests (id, stake, duration, basket_id_1, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		c.ID, int(c.Stake), string(c.Duration), c.Baskets[0].ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: create contest %s: %w", c.ID, err)
	}
	return nil
}

// GetByID retrieves a contest with its baskets loaded.
func (s *ContestStore) GetByID(ctx context.Context, id string) (domain.Contest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contestCols+` FROM contests WHERE id = $1`, id)
	cr, err := scanContestRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contest{}, domain.ErrNotFound
		}
		return domain.Contest{}, fmt.Errorf("postgres: get contest %s: %w", id, err)
	}

	contests, err := s.attachBaskets(ctx, []contestRow{cr})
	if err != nil {
		return domain.Contest{}, err
	}
	return contests[0], nil
}

// AttachBasket links the opponent basket and fixes the contest window. It
// refuses contests that are already full or resolved.
func (s *ContestStore) AttachBasket(ctx context.Context, contestID, basketID string, start, end time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE contests SET
			basket_id_2 = $2,
			start_time  = $3,
			end_time    = $4,
			updated_at  = NOW()
		WHERE id = $1
		  AND basket_id_2 IS NULL
		  AND winner_user_id IS NULL`,
		contestID, basketID, start, end,
	)
	if err != nil {
		return fmt.Errorf("postgres: attach basket to contest %s: %w", contestID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing contest from one that is already full.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM contests WHERE id = $1)`, contestID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: attach basket check %s: %w", contestID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrContestFull
	}
	return nil
}

// ListEligible returns contests with two baskets, end_time <= now and no
// winner, oldest deadline first.
func (s *ContestStore) ListEligible(ctx context.Context, now time.Time) ([]domain.Contest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+contestCols+`
		FROM contests
		WHERE basket_id_2 IS NOT NULL
		  AND end_time IS NOT NULL
		  AND end_time <= $1
		  AND winner_user_id IS NULL
		ORDER BY end_time ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list eligible contests: %w", err)
	}
	return s.collectContests(ctx, rows, "list eligible contests")
}

// SetWinner assigns the winning user exactly once; a second attempt returns
// domain.ErrContestResolved.
func (s *ContestStore) SetWinner(ctx context.Context, contestID, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE contests SET
			winner_user_id = $2,
			updated_at     = NOW()
		WHERE id = $1 AND winner_user_id IS NULL`,
		contestID, userID,
	)
	if err != nil {
		return fmt.Errorf("postgres: set winner for contest %s: %w", contestID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM contests WHERE id = $1)`, contestID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: set winner check %s: %w", contestID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrContestResolved
	}
	return nil
}

// ListAwaiting returns contests still waiting for an opponent, newest first.
func (s *ContestStore) ListAwaiting(ctx context.Context, opts domain.ListOpts) ([]domain.Contest, error) {
	query := `
		SELECT ` + contestCols + `
		FROM contests
		WHERE basket_id_2 IS NULL
		ORDER BY created_at DESC` + limitOffset(opts)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list awaiting contests: %w", err)
	}
	return s.collectContests(ctx, rows, "list awaiting contests")
}

// ListOngoing returns the user's started but unresolved contests.
func (s *ContestStore) ListOngoing(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Contest, error) {
	query := `
		SELECT ` + contestCols + `
		FROM contests c
		WHERE c.basket_id_2 IS NOT NULL
		  AND c.winner_user_id IS NULL
		  AND EXISTS (
			SELECT 1 FROM baskets b
			WHERE b.id IN (c.basket_id_1, c.basket_id_2) AND b.user_id = $1
		  )
		ORDER BY c.end_time ASC` + limitOffset(opts)

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ongoing contests: %w", err)
	}
	return s.collectContests(ctx, rows, "list ongoing contests")
}

// ListFinished returns the user's resolved contests, most recent first.
func (s *ContestStore) ListFinished(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Contest, error) {
	query := `
		SELECT ` + contestCols + `
		FROM contests c
		WHERE c.winner_user_id IS NOT NULL
		  AND EXISTS (
			SELECT 1 FROM baskets b
			WHERE b.id IN (c.basket_id_1, c.basket_id_2) AND b.user_id = $1
		  )
		ORDER BY c.updated_at DESC` + limitOffset(opts)

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list finished contests: %w", err)
	}
	return s.collectContests(ctx, rows, "list finished contests")
}

// limitOffset renders pagination clauses. Limit/Offset are small trusted
// integers from the call surface, never user strings.
func limitOffset(opts domain.ListOpts) string {
	out := ""
	if opts.Limit > 0 {
		out += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		out += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}
	return out
}

// collectContests drains a contest query and loads each contest's baskets.
func (s *ContestStore) collectContests(ctx context.Context, rows pgx.Rows, op string) ([]domain.Contest, error) {
	defer rows.Close()

	var crs []contestRow
	for rows.Next() {
		cr, err := scanContestRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s scan: %w", op, err)
		}
		crs = append(crs, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}

	return s.attachBaskets(ctx, crs)
}

// attachBaskets resolves basket references into full basket records, keeping
// creation order (basket 1 before basket 2).
func (s *ContestStore) attachBaskets(ctx context.Context, crs []contestRow) ([]domain.Contest, error) {
	// Collect the distinct basket IDs across all rows.
	ids := make([]string, 0, len(crs)*2)
	seen := make(map[string]bool, len(crs)*2)
	for _, cr := range crs {
		for _, id := range []*string{cr.basketID1, cr.basketID2} {
			if id != nil && !seen[*id] {
				seen[*id] = true
				ids = append(ids, *id)
			}
		}
	}

	baskets := make(map[string]domain.Basket, len(ids))
	if len(ids) > 0 {
		rows, err := s.pool.Query(ctx,
			`SELECT `+basketCols+` FROM baskets WHERE id = ANY($1)`, ids)
		if err != nil {
			return nil, fmt.Errorf("postgres: load contest baskets: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			b, err := scanBasket(rows)
			if err != nil {
				return nil, fmt.Errorf("postgres: scan contest basket: %w", err)
			}
			baskets[b.ID] = b
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("postgres: load contest baskets rows: %w", err)
		}
	}

	contests := make([]domain.Contest, 0, len(crs))
	for _, cr := range crs {
		c := cr.contest
		for _, id := range []*string{cr.basketID1, cr.basketID2} {
			if id == nil {
				continue
			}
			b, ok := baskets[*id]
			if !ok {
				return nil, fmt.Errorf("postgres: contest %s references missing basket %s", c.ID, *id)
			}
			c.Baskets = append(c.Baskets, b)
		}
		contests = append(contests, c)
	}
	return contests, nil
}

// Compile-time interface check.
var _ domain.ContestStore = (*ContestStore)(nil)
