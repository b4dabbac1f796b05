// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/ratelimit"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK RATE LIMIT QUERY
// Сколько действий вида kind пользователь уже сделал с начала гражданского
// дня. Это проверка, а не резервирование: слот не занимается.
// ══════════════════════════════════════════════════════════════════════════════

// CheckRateLimitQuery содержит параметры проверки.
type CheckRateLimitQuery struct {
	UserID     string
	Action     ratelimit.ActionKind
	DailyLimit int
}

// Validate проверяет корректность параметров запроса.
func (q CheckRateLimitQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	if !q.Action.IsValid() {
		return shared.ErrUnknownAction
	}
	if q.DailyLimit <= 0 {
		return shared.ErrInvalidLimit
	}
	return nil
}

// CheckRateLimitHandler обрабатывает запрос.
type CheckRateLimitHandler struct {
	counter  ratelimit.Counter
	calendar *timeutil.Calendar
}

// NewCheckRateLimitHandler создаёт обработчик.
func NewCheckRateLimitHandler(counter ratelimit.Counter, calendar *timeutil.Calendar) *CheckRateLimitHandler {
	return &CheckRateLimitHandler{counter: counter, calendar: calendar}
}

// Handle выполняет запрос.
func (h *CheckRateLimitHandler) Handle(ctx context.Context, q CheckRateLimitQuery) (ratelimit.Decision, error) {
	if err := q.Validate(); err != nil {
		return ratelimit.Decision{}, err
	}

	now := h.calendar.Now()
	used, err := h.counter.CountSince(ctx, q.UserID, q.Action, h.calendar.StartOfDay(now))
	if err != nil {
		return ratelimit.Decision{}, err
	}
	return ratelimit.Decide(used, q.DailyLimit, h.calendar.NextDayBoundary(now)), nil
}
