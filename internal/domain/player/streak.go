package player

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// STREAK STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// StreakState - состояние серии дней.
type StreakState struct {
	Current      int
	Longest      int
	Shields      int
	LastSolveDay *time.Time
}

// StreakPolicy - правила выдачи щитов.
type StreakPolicy struct {
	// ShieldEveryDays - щит выдаётся на каждый N-й день непрерывной серии.
	// 0 отключает выдачу.
	ShieldEveryDays int

	// MaxShields - максимум щитов на руках.
	MaxShields int
}

// DefaultStreakPolicy: щит каждые 7 дней, не более 3.
func DefaultStreakPolicy() StreakPolicy {
	return StreakPolicy{ShieldEveryDays: 7, MaxShields: 3}
}

// StreakOutcome - результат применения решения к серии.
type StreakOutcome struct {
	State StreakState

	// Changed - false, если сегодня уже было решение.
	Changed bool

	// ShieldsUsed - сколько щитов закрыли пропуск.
	ShieldsUsed int

	// ShieldEarned - выдан новый щит.
	ShieldEarned bool

	// Reset - серия была прервана и началась заново.
	Reset bool

	// Missed - сколько дней пропущено перед сегодняшним решением.
	Missed int
}

// Advance применяет "решение сегодня" к серии. today - гражданская дата.
//
//   - то же число: без изменений;
//   - вчера: серия +1;
//   - пропущено k дней и щитов >= k: щиты списываются, серия +1;
//   - иначе серия = 1, щиты не трогаются.
func (p StreakPolicy) Advance(s StreakState, today time.Time) StreakOutcome {
	out := StreakOutcome{State: s}

	if s.LastSolveDay != nil {
		gap := int(today.Sub(*s.LastSolveDay).Hours() / 24)
		if gap <= 0 {
			return out
		}
		switch missed := gap - 1; {
		case missed == 0:
			out.State.Current++
		case s.Shields >= missed:
			out.State.Shields -= missed
			out.State.Current++
			out.ShieldsUsed = missed
			out.Missed = missed
		default:
			out.State.Current = 1
			out.Reset = true
			out.Missed = missed
		}
	} else {
		out.State.Current = 1
	}

	if out.State.Current > out.State.Longest {
		out.State.Longest = out.State.Current
	}

	if p.ShieldEveryDays > 0 && out.State.Current%p.ShieldEveryDays == 0 && out.State.Shields < p.MaxShields {
		out.State.Shields++
		out.ShieldEarned = true
	}

	day := today
	out.State.LastSolveDay = &day
	out.Changed = true
	return out
}
