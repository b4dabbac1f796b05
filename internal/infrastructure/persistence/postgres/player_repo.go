package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PlayerRepository implements player.Repository for PostgreSQL.
type PlayerRepository struct {
	conn *Connection
}

// NewPlayerRepository creates a new PlayerRepository.
func NewPlayerRepository(conn *Connection) *PlayerRepository {
	return &PlayerRepository{conn: conn}
}

// Create inserts a new account.
func (r *PlayerRepository) Create(ctx context.Context, a *player.Account) error {
	query := `
		INSERT INTO users (id, xp, level, current_streak, longest_streak, streak_shields,
			last_solve_day, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.conn.Exec(ctx, query,
		a.ID, int64(a.XP), int(a.Level), a.CurrentStreak, a.LongestStreak, a.StreakShields,
		a.LastSolveDay, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("player", "Create", shared.ErrConflict, "user already exists")
		}
		return storeErr("player", "Create", err)
	}
	return nil
}

// GetByID returns an account by ID.
func (r *PlayerRepository) GetByID(ctx context.Context, id string) (*player.Account, error) {
	query := `
		SELECT id, xp, level, current_streak, longest_streak, streak_shields,
		       last_solve_day, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var (
		a       player.Account
		xp      int64
		level   int
		lastDay *time.Time
	)
	err := r.conn.QueryRow(ctx, query, id).Scan(
		&a.ID, &xp, &level, &a.CurrentStreak, &a.LongestStreak, &a.StreakShields,
		&lastDay, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, storeErr("player", "GetByID", err)
	}
	a.XP = player.XP(xp)
	a.Level = player.Level(level)
	a.LastSolveDay = civil(lastDay)
	return &a, nil
}

// Exists reports whether the account exists.
func (r *PlayerRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, storeErr("player", "Exists", err)
	}
	return exists, nil
}

// IncrementXP adds amount to the cached total. The old level is read in the
// same statement so the caller can detect a level-up.
func (r *PlayerRepository) IncrementXP(ctx context.Context, id string, amount player.XP) (player.XP, player.Level, error) {
	query := `
		UPDATE users u
		SET xp = u.xp + $2, updated_at = NOW()
		FROM (SELECT id, level FROM users WHERE id = $1 FOR UPDATE) prev
		WHERE u.id = prev.id
		RETURNING u.xp, prev.level
	`
	var (
		total int64
		level int
	)
	err := r.conn.QueryRow(ctx, query, id, int64(amount)).Scan(&total, &level)
	if err != nil {
		if IsNoRows(err) {
			return 0, 0, shared.ErrUserNotFound
		}
		return 0, 0, storeErr("player", "IncrementXP", err)
	}
	return player.XP(total), player.Level(level), nil
}

// SetLevel stores the recomputed level.
func (r *PlayerRepository) SetLevel(ctx context.Context, id string, level player.Level) error {
	tag, err := r.conn.Exec(ctx, `UPDATE users SET level = $2, updated_at = NOW() WHERE id = $1`, id, int(level))
	if err != nil {
		return storeErr("player", "SetLevel", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// CompareAndSwapStreak writes the streak only if last_solve_day is unchanged.
func (r *PlayerRepository) CompareAndSwapStreak(ctx context.Context, id string, expectedLast *time.Time, s player.StreakState) (bool, error) {
	query := `
		UPDATE users
		SET current_streak = $3, longest_streak = $4, streak_shields = $5,
		    last_solve_day = $6, updated_at = NOW()
		WHERE id = $1 AND last_solve_day IS NOT DISTINCT FROM $2
	`
	tag, err := r.conn.Exec(ctx, query, id, expectedLast, s.Current, s.Longest, s.Shields, s.LastSolveDay)
	if err != nil {
		return false, storeErr("player", "CompareAndSwapStreak", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements player.LedgerRepository for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// Insert records a grant unless (user_id, dedup_key) already exists.
func (r *LedgerRepository) Insert(ctx context.Context, g *player.Grant) (bool, error) {
	query := `
		INSERT INTO xp_grants (id, user_id, amount, reason, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, dedup_key) DO NOTHING
	`
	tag, err := r.conn.Exec(ctx, query, g.ID, g.UserID, int64(g.Amount), g.Reason, g.DedupKey, g.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.ErrUserNotFound
		}
		return false, storeErr("ledger", "Insert", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByDedupKey returns the grant stored under a key.
func (r *LedgerRepository) GetByDedupKey(ctx context.Context, userID, key string) (*player.Grant, error) {
	query := `
		SELECT id, user_id, amount, reason, dedup_key, created_at
		FROM xp_grants
		WHERE user_id = $1 AND dedup_key = $2
	`
	g, err := scanGrant(r.conn.QueryRow(ctx, query, userID, key))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("ledger", "GetByDedupKey", shared.ErrNotFound, "grant not found")
		}
		return nil, storeErr("ledger", "GetByDedupKey", err)
	}
	return g, nil
}

// ListByUser returns the newest grants first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*player.Grant, error) {
	query := `
		SELECT id, user_id, amount, reason, dedup_key, created_at
		FROM xp_grants
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	rows, err := r.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, storeErr("ledger", "ListByUser", err)
	}
	defer rows.Close()

	var grants []*player.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, storeErr("ledger", "ListByUser", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("ledger", "ListByUser", err)
	}
	return grants, nil
}

// SumByUser sums every grant of a user.
func (r *LedgerRepository) SumByUser(ctx context.Context, userID string) (player.XP, error) {
	var sum int64
	err := r.conn.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM xp_grants WHERE user_id = $1`, userID).Scan(&sum)
	if err != nil {
		return 0, storeErr("ledger", "SumByUser", err)
	}
	return player.XP(sum), nil
}

func scanGrant(row pgx.Row) (*player.Grant, error) {
	var (
		g      player.Grant
		amount int64
	)
	if err := row.Scan(&g.ID, &g.UserID, &amount, &g.Reason, &g.DedupKey, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.Amount = player.XP(amount)
	return &g, nil
}

// civil normalizes a DATE column into a civil date at UTC midnight.
func civil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
