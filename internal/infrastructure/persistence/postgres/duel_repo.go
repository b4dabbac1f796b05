package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DUEL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// DuelRepository implements duel.Repository for PostgreSQL.
type DuelRepository struct {
	conn *Connection
}

// NewDuelRepository creates a new DuelRepository.
func NewDuelRepository(conn *Connection) *DuelRepository {
	return &DuelRepository{conn: conn}
}

const duelColumns = `
	id, challenger_id, challenged_id, problem_ref, time_limit_minutes, status,
	COALESCE(winner_id, ''), created_at, started_at, expires_at, finished_at
`

// Create inserts a pending duel.
func (r *DuelRepository) Create(ctx context.Context, d *duel.Duel) error {
	query := `
		INSERT INTO duels (id, challenger_id, challenged_id, problem_ref, time_limit_minutes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.conn.Exec(ctx, query,
		d.ID, d.ChallengerID, d.ChallengedID, d.ProblemRef, d.TimeLimitMinutes, string(d.Status), d.CreatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		if IsUniqueViolation(err) && ViolatedConstraint(err) == "idx_duels_open_pair" {
			return shared.ErrDuelAlreadyOpen
		}
		return storeErr("duel", "Create", err)
	}
	return nil
}

// GetByID returns a duel.
func (r *DuelRepository) GetByID(ctx context.Context, id string) (*duel.Duel, error) {
	d, err := scanDuel(r.conn.QueryRow(ctx, `SELECT `+duelColumns+` FROM duels WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrDuelNotFound
		}
		return nil, storeErr("duel", "GetByID", err)
	}
	return d, nil
}

// HasOpenBetween checks for a pending or active duel in either direction.
func (r *DuelRepository) HasOpenBetween(ctx context.Context, a, b string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM duels
			WHERE LEAST(challenger_id, challenged_id) = LEAST($1::text, $2::text)
			  AND GREATEST(challenger_id, challenged_id) = GREATEST($1::text, $2::text)
			  AND status IN ('pending', 'active')
		)
	`
	var exists bool
	if err := r.conn.QueryRow(ctx, query, a, b).Scan(&exists); err != nil {
		return false, storeErr("duel", "HasOpenBetween", err)
	}
	return exists, nil
}

// Transition applies the new state only if the stored status equals from.
func (r *DuelRepository) Transition(ctx context.Context, d *duel.Duel, from duel.Status) (bool, error) {
	query := `
		UPDATE duels
		SET status = $3, started_at = $4, expires_at = $5, finished_at = $6, winner_id = NULLIF($7, '')
		WHERE id = $1 AND status = $2
	`
	tag, err := r.conn.Exec(ctx, query,
		d.ID, string(from), string(d.Status), d.StartedAt, d.ExpiresAt, d.FinishedAt, d.WinnerID,
	)
	if err != nil {
		return false, storeErr("duel", "Transition", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListActiveDue returns active duels whose deadline is at or before the given instant.
func (r *DuelRepository) ListActiveDue(ctx context.Context, before time.Time, limit int) ([]*duel.Duel, error) {
	query := `SELECT ` + duelColumns + `
		FROM duels
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at, id
		LIMIT $2
	`
	rows, err := r.conn.Query(ctx, query, before, limit)
	if err != nil {
		return nil, storeErr("duel", "ListActiveDue", err)
	}
	defer rows.Close()

	var out []*duel.Duel
	for rows.Next() {
		d, err := scanDuel(rows)
		if err != nil {
			return nil, storeErr("duel", "ListActiveDue", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("duel", "ListActiveDue", err)
	}
	return out, nil
}

func scanDuel(row pgx.Row) (*duel.Duel, error) {
	var (
		d      duel.Duel
		status string
	)
	err := row.Scan(
		&d.ID, &d.ChallengerID, &d.ChallengedID, &d.ProblemRef, &d.TimeLimitMinutes, &status,
		&d.WinnerID, &d.CreatedAt, &d.StartedAt, &d.ExpiresAt, &d.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = duel.Status(status)
	return &d, nil
}
