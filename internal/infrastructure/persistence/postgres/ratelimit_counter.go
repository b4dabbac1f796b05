package postgres

import (
	"context"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/ratelimit"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// RateLimitCounter implements ratelimit.Counter by counting rows of the
// table each action writes to.
type RateLimitCounter struct {
	conn *Connection
}

// NewRateLimitCounter creates a new RateLimitCounter.
func NewRateLimitCounter(conn *Connection) *RateLimitCounter {
	return &RateLimitCounter{conn: conn}
}

var countQueries = map[ratelimit.ActionKind]string{
	ratelimit.ActionDuelChallenge:  `SELECT COUNT(*) FROM duels WHERE challenger_id = $1 AND created_at >= $2`,
	ratelimit.ActionAttendanceMark: `SELECT COUNT(*) FROM attendance_records WHERE user_id = $1 AND marked_at >= $2`,
}

// CountSince counts actions of the given kind at or after since.
func (c *RateLimitCounter) CountSince(ctx context.Context, userID string, kind ratelimit.ActionKind, since time.Time) (int, error) {
	query, ok := countQueries[kind]
	if !ok {
		return 0, shared.ErrUnknownAction
	}
	var n int
	if err := c.conn.QueryRow(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, storeErr("ratelimit", "CountSince", err)
	}
	return n, nil
}
