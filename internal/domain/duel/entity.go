// Package duel содержит дуэли один на один и их конечный автомат:
//
//	pending -> active | declined
//	active  -> completed | expired
//
// Все переходы монотонны; хранилище применяет их как compare-and-swap по
// предыдущему статусу.
package duel

import (
	"strings"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status - статус дуэли.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusDeclined  Status = "declined"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusDeclined},
	StatusActive:  {StatusCompleted, StatusExpired},
}

// CanTransitionTo проверяет допустимость перехода.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsOpen - дуэль ещё не завершена.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusActive
}

// IsTerminal - из статуса нет переходов.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ══════════════════════════════════════════════════════════════════════════════
// LIMITS
// ══════════════════════════════════════════════════════════════════════════════

// Limits - ограничения на длительность дуэли.
type Limits struct {
	MinMinutes int
	MaxMinutes int
}

// DefaultLimits: от 10 минут до 3 часов.
func DefaultLimits() Limits {
	return Limits{MinMinutes: 10, MaxMinutes: 180}
}

// Validate проверяет лимит времени в минутах.
func (l Limits) Validate(minutes int) error {
	if minutes < l.MinMinutes || minutes > l.MaxMinutes {
		return shared.ErrInvalidTimeLimit
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DUEL
// ══════════════════════════════════════════════════════════════════════════════

// Duel - дуэль двух пользователей на одной задаче.
type Duel struct {
	ID               string
	ChallengerID     string
	ChallengedID     string
	ProblemRef       string
	TimeLimitMinutes int
	Status           Status
	CreatedAt        time.Time
	StartedAt        *time.Time
	ExpiresAt        *time.Time
	WinnerID         string
	FinishedAt       *time.Time
}

// NewDuelParams - параметры вызова на дуэль.
type NewDuelParams struct {
	ID               string
	ChallengerID     string
	ChallengedID     string
	ProblemRef       string
	TimeLimitMinutes int
	Now              time.Time
}

// NewDuel создаёт дуэль в статусе pending.
func NewDuel(p NewDuelParams, limits Limits) (*Duel, error) {
	if strings.TrimSpace(p.ChallengerID) == "" || strings.TrimSpace(p.ChallengedID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	if p.ChallengerID == p.ChallengedID {
		return nil, shared.ErrSelfDuel
	}
	if err := limits.Validate(p.TimeLimitMinutes); err != nil {
		return nil, err
	}
	return &Duel{
		ID:               p.ID,
		ChallengerID:     p.ChallengerID,
		ChallengedID:     p.ChallengedID,
		ProblemRef:       p.ProblemRef,
		TimeLimitMinutes: p.TimeLimitMinutes,
		Status:           StatusPending,
		CreatedAt:        p.Now,
	}, nil
}

// TimeLimit возвращает длительность дуэли.
func (d *Duel) TimeLimit() time.Duration {
	return time.Duration(d.TimeLimitMinutes) * time.Minute
}

// IsParticipant проверяет участие пользователя.
func (d *Duel) IsParticipant(userID string) bool {
	return userID == d.ChallengerID || userID == d.ChallengedID
}

// Window возвращает окно решения [started_at, expires_at].
func (d *Duel) Window() (shared.TimeRange, bool) {
	if d.StartedAt == nil || d.ExpiresAt == nil {
		return shared.TimeRange{}, false
	}
	return shared.TimeRange{From: *d.StartedAt, To: *d.ExpiresAt}, true
}

// GrantKey - ключ начисления победителю.
func (d *Duel) GrantKey() string {
	return "duel_" + d.ID
}

func (d *Duel) transition(to Status) error {
	if !d.Status.CanTransitionTo(to) {
		return shared.ErrInvalidTransition
	}
	d.Status = to
	return nil
}

// Accept запускает дуэль. Принять может только вызванный пользователь.
func (d *Duel) Accept(actorID string, now time.Time) error {
	if actorID != d.ChallengedID {
		return shared.ErrNotChallenged
	}
	if err := d.transition(StatusActive); err != nil {
		return err
	}
	started := now
	expires := now.Add(d.TimeLimit())
	d.StartedAt = &started
	d.ExpiresAt = &expires
	return nil
}

// Decline отклоняет вызов.
func (d *Duel) Decline(actorID string, now time.Time) error {
	if actorID != d.ChallengedID {
		return shared.ErrNotChallenged
	}
	if err := d.transition(StatusDeclined); err != nil {
		return err
	}
	finished := now
	d.FinishedAt = &finished
	return nil
}

// Expire закрывает активную дуэль после дедлайна без победителя.
func (d *Duel) Expire(now time.Time) error {
	if d.Status != StatusActive {
		return shared.ErrInvalidTransition
	}
	if d.ExpiresAt == nil || !now.After(*d.ExpiresAt) {
		return shared.ErrDuelNotExpired
	}
	if err := d.transition(StatusExpired); err != nil {
		return err
	}
	finished := now
	d.FinishedAt = &finished
	return nil
}

// Complete фиксирует победителя.
func (d *Duel) Complete(winnerID string, now time.Time) error {
	if !d.IsParticipant(winnerID) {
		return shared.ErrInvalidTransition
	}
	if err := d.transition(StatusCompleted); err != nil {
		return err
	}
	d.WinnerID = winnerID
	finished := now
	d.FinishedAt = &finished
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WINNER SELECTION
// ══════════════════════════════════════════════════════════════════════════════

// Attempt - принятое решение участника по задаче дуэли.
type Attempt struct {
	UserID     string
	Accepted   bool
	AcceptedAt time.Time
}

// DecideWinner выбирает участника с самым ранним принятым решением внутри
// окна дуэли. При точном совпадении времени побеждает вызвавший.
func (d *Duel) DecideWinner(attempts ...Attempt) (string, bool) {
	window, ok := d.Window()
	if !ok {
		return "", false
	}

	var (
		winner string
		best   time.Time
	)
	for _, a := range attempts {
		if !a.Accepted || !d.IsParticipant(a.UserID) || !window.Contains(a.AcceptedAt) {
			continue
		}
		switch {
		case winner == "",
			a.AcceptedAt.Before(best),
			a.AcceptedAt.Equal(best) && a.UserID == d.ChallengerID:
			winner, best = a.UserID, a.AcceptedAt
		}
	}
	return winner, winner != ""
}
