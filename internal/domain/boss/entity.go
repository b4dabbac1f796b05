// Package boss содержит "битвы с боссом": задачу с окном времени, в которой
// решившие получают места 1..N строго по порядку фиксации решения.
package boss

import (
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// Rewards - XP по местам.
type Rewards struct {
	// First - за первое место.
	First int64
	// Top5 - за места 2-5.
	Top5 int64
	// Others - за места с 6-го.
	Others int64
}

// Battle - битва с боссом.
type Battle struct {
	ID         string
	Title      string
	ProblemRef string
	StartsAt   time.Time
	EndsAt     time.Time
	Rewards    Rewards

	// SolveCount - счётчик выданных мест.
	SolveCount int
}

// Window возвращает окно битвы.
func (b *Battle) Window() shared.TimeRange {
	return shared.TimeRange{From: b.StartsAt, To: b.EndsAt}
}

// IsOpen проверяет, что now лежит в [starts_at, ends_at].
func (b *Battle) IsOpen(now time.Time) bool {
	return b.Window().Contains(now)
}

// RewardFor возвращает XP за место.
func (b *Battle) RewardFor(rank shared.Rank) int64 {
	switch {
	case rank.IsTop(1):
		return b.Rewards.First
	case rank.IsTop(5):
		return b.Rewards.Top5
	case rank.IsValid():
		return b.Rewards.Others
	}
	return 0
}

// GrantKey - ключ начисления за битву.
func (b *Battle) GrantKey() string {
	return "boss_" + b.ID
}

// Proof - подтверждение решения, которое проверяет оракул.
type Proof struct {
	// SubmissionID - необязательный ID посылки на платформе.
	SubmissionID string
}

// Solve - зафиксированное решение с местом.
type Solve struct {
	ID           string
	BossID       string
	UserID       string
	Rank         int
	SubmissionID string
	SolvedAt     time.Time
	XPAwarded    int64
}

// Standing - строка таблицы результатов.
type Standing struct {
	UserID string
	Rank   int
}
