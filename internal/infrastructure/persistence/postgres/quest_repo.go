package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUEST REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// QuestRepository implements quest.Repository and quest.ProgressRepository.
type QuestRepository struct {
	conn *Connection
}

// NewQuestRepository creates a new QuestRepository.
func NewQuestRepository(conn *Connection) *QuestRepository {
	return &QuestRepository{conn: conn}
}

// GetByID returns a quest.
func (r *QuestRepository) GetByID(ctx context.Context, id string) (*quest.Quest, error) {
	query := `
		SELECT id, title, condition_type, target_count, xp_reward, week_start
		FROM quests WHERE id = $1
	`
	q, err := scanQuest(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuestNotFound
		}
		return nil, storeErr("quest", "GetByID", err)
	}
	return q, nil
}

// ListByWeek returns the quests of one week ordered by ID.
func (r *QuestRepository) ListByWeek(ctx context.Context, weekStart time.Time) ([]*quest.Quest, error) {
	query := `
		SELECT id, title, condition_type, target_count, xp_reward, week_start
		FROM quests WHERE week_start = $1
		ORDER BY id
	`
	rows, err := r.conn.Query(ctx, query, weekStart)
	if err != nil {
		return nil, storeErr("quest", "ListByWeek", err)
	}
	defer rows.Close()

	var out []*quest.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, storeErr("quest", "ListByWeek", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("quest", "ListByWeek", err)
	}
	return out, nil
}

// LockUser takes the user row lock. NO KEY UPDATE leaves foreign key checks
// from other tables unblocked.
func (r *QuestRepository) LockUser(ctx context.Context, userID string) error {
	var one int
	err := r.conn.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR NO KEY UPDATE`, userID).Scan(&one)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrUserNotFound
		}
		return storeErr("quest", "LockUser", err)
	}
	return nil
}

// Get returns progress, or an empty row when the user has not started.
// The row is created first so that FOR UPDATE always has something to lock:
// two first increments would otherwise both read zero.
func (r *QuestRepository) Get(ctx context.Context, userID, questID string) (*quest.Progress, error) {
	insert := `
		INSERT INTO user_quest_progress (user_id, quest_id, progress, completed)
		VALUES ($1, $2, 0, FALSE)
		ON CONFLICT (user_id, quest_id) DO NOTHING
	`
	if _, err := r.conn.Exec(ctx, insert, userID, questID); err != nil {
		if IsForeignKeyViolation(err) {
			if ViolatedConstraint(err) == "user_quest_progress_quest_id_fkey" {
				return nil, shared.ErrQuestNotFound
			}
			return nil, shared.ErrUserNotFound
		}
		return nil, storeErr("quest", "GetProgress", err)
	}

	query := `
		SELECT user_id, quest_id, progress, completed, completed_at
		FROM user_quest_progress
		WHERE user_id = $1 AND quest_id = $2
		FOR UPDATE
	`
	p, err := scanProgress(r.conn.QueryRow(ctx, query, userID, questID))
	if err != nil {
		if IsNoRows(err) {
			return quest.NewProgress(userID, questID), nil
		}
		return nil, storeErr("quest", "GetProgress", err)
	}
	return p, nil
}

// Save upserts progress only while the stored row is not completed.
// Two concurrent completions race on the same row lock; the loser matches
// zero rows and reports false.
func (r *QuestRepository) Save(ctx context.Context, p *quest.Progress) (bool, error) {
	query := `
		INSERT INTO user_quest_progress (user_id, quest_id, progress, completed, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, quest_id) DO UPDATE
		SET progress = EXCLUDED.progress,
		    completed = EXCLUDED.completed,
		    completed_at = EXCLUDED.completed_at
		WHERE user_quest_progress.completed = FALSE
	`
	tag, err := r.conn.Exec(ctx, query, p.UserID, p.QuestID, p.Progress, p.Completed, p.CompletedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.ErrUserNotFound
		}
		return false, storeErr("quest", "SaveProgress", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns progress rows keyed by quest ID.
func (r *QuestRepository) ListByUser(ctx context.Context, userID string, questIDs []string) (map[string]*quest.Progress, error) {
	out := make(map[string]*quest.Progress, len(questIDs))
	if len(questIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT user_id, quest_id, progress, completed, completed_at
		FROM user_quest_progress
		WHERE user_id = $1 AND quest_id = ANY($2)
	`
	rows, err := r.conn.Query(ctx, query, userID, questIDs)
	if err != nil {
		return nil, storeErr("quest", "ListProgress", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, storeErr("quest", "ListProgress", err)
		}
		out[p.QuestID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("quest", "ListProgress", err)
	}
	return out, nil
}

func scanQuest(row pgx.Row) (*quest.Quest, error) {
	var (
		q    quest.Quest
		cond string
		week time.Time
	)
	if err := row.Scan(&q.ID, &q.Title, &cond, &q.TargetCount, &q.XPReward, &week); err != nil {
		return nil, err
	}
	q.Condition = quest.ConditionType(cond)
	q.WeekStart = *civil(&week)
	return &q, nil
}

func scanProgress(row pgx.Row) (*quest.Progress, error) {
	var p quest.Progress
	if err := row.Scan(&p.UserID, &p.QuestID, &p.Progress, &p.Completed, &p.CompletedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
