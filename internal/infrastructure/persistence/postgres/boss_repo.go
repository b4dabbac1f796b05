package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOSS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BossRepository implements boss.Repository for PostgreSQL.
type BossRepository struct {
	conn *Connection
}

// NewBossRepository creates a new BossRepository.
func NewBossRepository(conn *Connection) *BossRepository {
	return &BossRepository{conn: conn}
}

// GetByID returns a boss battle.
func (r *BossRepository) GetByID(ctx context.Context, id string) (*boss.Battle, error) {
	query := `
		SELECT id, title, problem_ref, starts_at, ends_at, xp_first, xp_top5, xp_others, solve_count
		FROM boss_battles WHERE id = $1
	`
	var b boss.Battle
	err := r.conn.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.Title, &b.ProblemRef, &b.StartsAt, &b.EndsAt,
		&b.Rewards.First, &b.Rewards.Top5, &b.Rewards.Others, &b.SolveCount,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrBossNotFound
		}
		return nil, storeErr("boss", "GetByID", err)
	}
	return &b, nil
}

// RecordSolve claims the next rank and inserts the solve with it.
//
// The counter row lock taken by UPDATE ... RETURNING serializes concurrent
// submitters, so ranks come out as 1..N in commit order. Both statements must
// share one transaction: when the insert hits the (boss_id, user_id) unique
// constraint the caller's rollback also undoes the counter bump, leaving no gap.
func (r *BossRepository) RecordSolve(ctx context.Context, s *boss.Solve) error {
	return r.conn.WithinTx(ctx, func(ctx context.Context) error {
		var rank int
		err := r.conn.QueryRow(ctx,
			`UPDATE boss_battles SET solve_count = solve_count + 1 WHERE id = $1 RETURNING solve_count`,
			s.BossID,
		).Scan(&rank)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrBossNotFound
			}
			return storeErr("boss", "RecordSolve", err)
		}

		query := `
			INSERT INTO boss_solves (id, boss_id, user_id, solve_rank, submission_id, solved_at, xp_awarded)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err = r.conn.Exec(ctx, query, s.ID, s.BossID, s.UserID, rank, s.SubmissionID, s.SolvedAt, s.XPAwarded)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrBossAlreadySolve
			}
			if IsForeignKeyViolation(err) {
				return shared.ErrUserNotFound
			}
			return storeErr("boss", "RecordSolve", err)
		}

		s.Rank = rank
		return nil
	})
}

// SetAwarded stores the XP credited for a solve.
func (r *BossRepository) SetAwarded(ctx context.Context, solveID string, xp int64) error {
	if _, err := r.conn.Exec(ctx, `UPDATE boss_solves SET xp_awarded = $2 WHERE id = $1`, solveID, xp); err != nil {
		return storeErr("boss", "SetAwarded", err)
	}
	return nil
}

// ListSolves returns solves by ascending rank.
func (r *BossRepository) ListSolves(ctx context.Context, bossID string, limit int) ([]*boss.Solve, error) {
	query := `
		SELECT id, boss_id, user_id, solve_rank, submission_id, solved_at, xp_awarded
		FROM boss_solves
		WHERE boss_id = $1
		ORDER BY solve_rank
		LIMIT $2
	`
	rows, err := r.conn.Query(ctx, query, bossID, limit)
	if err != nil {
		return nil, storeErr("boss", "ListSolves", err)
	}
	defer rows.Close()

	solves, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*boss.Solve, error) {
		var s boss.Solve
		err := row.Scan(&s.ID, &s.BossID, &s.UserID, &s.Rank, &s.SubmissionID, &s.SolvedAt, &s.XPAwarded)
		return &s, err
	})
	if err != nil {
		return nil, storeErr("boss", "ListSolves", err)
	}
	return solves, nil
}
