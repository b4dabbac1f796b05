// Package quest содержит еженедельные задания и прогресс пользователей по ним.
package quest

import (
	"fmt"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONDITION
// ══════════════════════════════════════════════════════════════════════════════

// ConditionType - действие, которое продвигает задание.
type ConditionType string

const (
	ConditionSolve     ConditionType = "solve"
	ConditionDuelWin   ConditionType = "duel_win"
	ConditionBossSolve ConditionType = "boss_solve"
	ConditionStreakDay ConditionType = "streak_day"
)

// IsValid проверяет, что тип условия известен.
func (c ConditionType) IsValid() bool {
	switch c {
	case ConditionSolve, ConditionDuelWin, ConditionBossSolve, ConditionStreakDay:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEST
// ══════════════════════════════════════════════════════════════════════════════

// Quest - задание недели. Создаётся администратором, движок только читает.
type Quest struct {
	ID          string
	Title       string
	Condition   ConditionType
	TargetCount int
	XPReward    int64

	// WeekStart - понедельник недели (гражданская дата).
	WeekStart time.Time
}

// GrantKey - ключ начисления за выполнение задания.
func (q *Quest) GrantKey() string {
	return "quest_" + q.ID
}

// WeeklyBonusKey - ключ бонуса за все задания недели.
func WeeklyBonusKey(weekStart time.Time) string {
	return fmt.Sprintf("quest_all_%s", weekStart.Format("2006-01-02"))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress - прогресс пользователя по одному заданию.
type Progress struct {
	UserID      string
	QuestID     string
	Progress    int
	Completed   bool
	CompletedAt *time.Time
}

// NewProgress создаёт пустой прогресс.
func NewProgress(userID, questID string) *Progress {
	return &Progress{UserID: userID, QuestID: questID}
}

// Advance выставляет новый прогресс. nil означает "+1".
// Возвращает true, если задание выполнено этим вызовом.
func (p *Progress) Advance(value *int, target int, now time.Time) (bool, error) {
	if p.Completed {
		return false, shared.ErrQuestAlreadyCompleted
	}

	next := p.Progress + 1
	if value != nil {
		if *value < 0 {
			return false, shared.ErrNegativeProgress
		}
		next = *value
	}

	p.Progress = next
	if next >= target {
		p.Completed = true
		at := now
		p.CompletedAt = &at
		return true, nil
	}
	return false, nil
}

// Remaining возвращает, сколько шагов осталось.
func (p *Progress) Remaining(target int) int {
	if p.Completed || p.Progress >= target {
		return 0
	}
	return target - p.Progress
}

// WeeklyView - задание недели вместе с прогрессом пользователя.
type WeeklyView struct {
	Quest    *Quest
	Progress *Progress
}

// AllCompleted проверяет, что каждое задание из списка выполнено.
// Пустой список не считается выполненным.
func AllCompleted(quests []*Quest, progress map[string]*Progress) bool {
	if len(quests) == 0 {
		return false
	}
	for _, q := range quests {
		p, ok := progress[q.ID]
		if !ok || !p.Completed {
			return false
		}
	}
	return true
}
