// Package ratelimit - дневные квоты действий пользователя.
//
// Квота не резервирует слот: это проверка "сколько уже сделано с начала
// гражданского дня". Счётчик читает строки той таблицы, в которую пишет
// само действие, поэтому отдельного состояния нет.
package ratelimit

import (
	"context"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ActionKind - вид ограничиваемого действия.
type ActionKind string

const (
	// ActionDuelChallenge - вызовы на дуэль, отправленные пользователем.
	ActionDuelChallenge ActionKind = "duel_challenge"

	// ActionAttendanceMark - отметки посещаемости.
	ActionAttendanceMark ActionKind = "attendance_mark"
)

// IsValid проверяет, что вид действия известен.
func (k ActionKind) IsValid() bool {
	return k == ActionDuelChallenge || k == ActionAttendanceMark
}

// Decision - результат проверки квоты.
type Decision struct {
	Allowed   bool
	Used      int
	Limit     int
	Remaining int

	// ResetAt - момент следующей границы дня.
	ResetAt time.Time
}

// Decide сравнивает использованное с лимитом.
func Decide(used, limit int, resetAt time.Time) Decision {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Err возвращает ErrDailyLimitReached, если действие запрещено.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return shared.ErrDailyLimitReached
}

// Counter считает действия пользователя начиная с момента since.
type Counter interface {
	CountSince(ctx context.Context, userID string, kind ActionKind, since time.Time) (int, error)
}
