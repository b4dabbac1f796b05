package player

import (
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP & LEVEL
// ══════════════════════════════════════════════════════════════════════════════

// XP - очки опыта. Всегда неотрицательны.
type XP int64

// Int64 возвращает значение как int64.
func (x XP) Int64() int64 {
	return int64(x)
}

// Level - уровень игрока, начиная с 1.
type Level int

// Int возвращает значение как int.
func (l Level) Int() int {
	return int(l)
}

// DefaultLevelThresholds - нижние границы XP для уровней 1..N.
var DefaultLevelThresholds = []int64{
	0, 100, 250, 500, 1000, 1750, 2750, 4000, 5500, 7500,
	10000, 13000, 16500, 20500, 25000, 30000, 36000, 43000, 51000, 60000,
}

// LevelTable - возрастающая таблица порогов XP.
// Уровень n достигается при XP >= thresholds[n-1].
type LevelTable struct {
	thresholds []XP
}

// NewLevelTable проверяет и создаёт таблицу. Первый порог обязан быть 0,
// остальные строго возрастают.
func NewLevelTable(thresholds []int64) (LevelTable, error) {
	if len(thresholds) == 0 || thresholds[0] != 0 {
		return LevelTable{}, shared.ErrInvalidLevelStep
	}
	out := make([]XP, len(thresholds))
	for i, t := range thresholds {
		if i > 0 && t <= thresholds[i-1] {
			return LevelTable{}, shared.ErrInvalidLevelStep
		}
		out[i] = XP(t)
	}
	return LevelTable{thresholds: out}, nil
}

// DefaultLevelTable возвращает встроенную таблицу.
func DefaultLevelTable() LevelTable {
	t, _ := NewLevelTable(DefaultLevelThresholds)
	return t
}

// LevelFor вычисляет уровень для суммы XP.
func (t LevelTable) LevelFor(xp XP) Level {
	if len(t.thresholds) == 0 {
		return 1
	}
	// Количество порогов, которые xp уже преодолел.
	n := sort.Search(len(t.thresholds), func(i int) bool { return t.thresholds[i] > xp })
	if n == 0 {
		return 1
	}
	return Level(n)
}

// Floor возвращает минимальный XP для уровня.
func (t LevelTable) Floor(level Level) XP {
	if level <= 1 || len(t.thresholds) == 0 {
		return 0
	}
	if int(level) > len(t.thresholds) {
		return t.thresholds[len(t.thresholds)-1]
	}
	return t.thresholds[level-1]
}

// MaxLevel возвращает последний уровень таблицы.
func (t LevelTable) MaxLevel() Level {
	if len(t.thresholds) == 0 {
		return 1
	}
	return Level(len(t.thresholds))
}

// ToNextLevel возвращает, сколько XP осталось до следующего уровня.
// Ноль означает максимальный уровень.
func (t LevelTable) ToNextLevel(xp XP) XP {
	level := t.LevelFor(xp)
	if level >= t.MaxLevel() {
		return 0
	}
	return t.thresholds[level] - xp
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT
// ══════════════════════════════════════════════════════════════════════════════

// Account - игровое состояние пользователя.
type Account struct {
	// ID - идентификатор, выданный провайдером идентичности.
	ID string

	// XP - накопленный опыт.
	XP XP

	// Level - кэш уровня, всегда равен LevelTable.LevelFor(XP).
	Level Level

	// CurrentStreak - текущая серия дней.
	CurrentStreak int

	// LongestStreak - лучшая серия дней.
	LongestStreak int

	// StreakShields - количество щитов.
	StreakShields int

	// LastSolveDay - гражданская дата последнего засчитанного решения.
	LastSolveDay *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount создаёт аккаунт с нулевым прогрессом.
func NewAccount(id string, now time.Time) (*Account, error) {
	uid, err := shared.NewUserID(id)
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:        uid.String(),
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Streak возвращает состояние серии аккаунта.
func (a *Account) Streak() StreakState {
	return StreakState{
		Current:      a.CurrentStreak,
		Longest:      a.LongestStreak,
		Shields:      a.StreakShields,
		LastSolveDay: a.LastSolveDay,
	}
}

// ApplyStreak записывает новое состояние серии.
func (a *Account) ApplyStreak(s StreakState) {
	a.CurrentStreak = s.Current
	a.LongestStreak = s.Longest
	a.StreakShields = s.Shields
	a.LastSolveDay = s.LastSolveDay
}

// ══════════════════════════════════════════════════════════════════════════════
// GRANT
// ══════════════════════════════════════════════════════════════════════════════

// Grant - неизменяемая запись начисления XP.
type Grant struct {
	ID        string
	UserID    string
	Amount    XP
	Reason    string
	DedupKey  string
	CreatedAt time.Time
}

// NewGrantParams - параметры для создания начисления.
type NewGrantParams struct {
	ID       string
	UserID   string
	Amount   int64
	Reason   string
	DedupKey string
	Now      time.Time
}

// NewGrant проверяет параметры и создаёт начисление.
func NewGrant(p NewGrantParams) (*Grant, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	if p.Amount <= 0 {
		return nil, shared.ErrNonPositiveXP
	}
	key := strings.TrimSpace(p.DedupKey)
	if key == "" {
		return nil, shared.ErrEmptyDedupKey
	}
	return &Grant{
		ID:        p.ID,
		UserID:    p.UserID,
		Amount:    XP(p.Amount),
		Reason:    p.Reason,
		DedupKey:  key,
		CreatedAt: p.Now,
	}, nil
}

// Стандартные причины начислений.
const (
	ReasonProblemSolved = "problem_solved"
	ReasonQuest         = "quest_completed"
	ReasonWeeklyBonus   = "weekly_quests_bonus"
	ReasonDuelWin       = "duel_win"
	ReasonBossSolve     = "boss_solve"
	ReasonManual        = "manual"
)
