package attendance

import (
	"math"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// RiskLevel - уровень риска по посещаемости.
type RiskLevel string

const (
	RiskSafe    RiskLevel = "safe"
	RiskWarning RiskLevel = "warning"
	RiskDanger  RiskLevel = "danger"
)

const (
	// DefaultThreshold - минимальная допустимая доля посещений.
	DefaultThreshold = 0.76
	// DefaultWarningCeiling - выше этой доли риск считается низким.
	DefaultWarningCeiling = 0.80

	eps = 1e-9
)

// Calculator - чистый расчёт по счётчикам и настройкам курса.
type Calculator struct {
	Threshold      float64
	WarningCeiling float64
}

// NewCalculator создаёт калькулятор с проверкой порогов.
func NewCalculator(threshold, warningCeiling float64) (Calculator, error) {
	if threshold <= 0 || threshold >= 1 || warningCeiling < threshold || warningCeiling > 1 {
		return Calculator{}, shared.ErrInvalidThreshold
	}
	return Calculator{Threshold: threshold, WarningCeiling: warningCeiling}, nil
}

// DefaultCalculator использует порог 0.76 и границу предупреждения 0.80.
func DefaultCalculator() Calculator {
	return Calculator{Threshold: DefaultThreshold, WarningCeiling: DefaultWarningCeiling}
}

// Insights - результат расчёта. Проценты округлены до одного знака.
type Insights struct {
	CourseID               string    `json:"course_id"`
	Attended               int       `json:"attended"`
	Total                  int       `json:"total"`
	Percentage             float64   `json:"percentage"`
	RiskLevel              RiskLevel `json:"risk_level"`
	Skippable              int       `json:"skippable"`
	ClassesNeededToRecover int       `json:"classes_needed_to_recover"`
	RemainingClasses       int       `json:"remaining_classes"`
	ProjectedEndPercentage float64   `json:"projected_end_percentage"`
	SafeToSkipToday        bool      `json:"safe_to_skip_today"`
}

// Counts - счётчики по курсу. Recent* - за последние RecentWindowDays дней,
// по ним оценивается темп до конца семестра.
type Counts struct {
	Attended       int
	Total          int
	RecentAttended int
	RecentTotal    int
}

// RecentWindowDays - окно для оценки текущего темпа посещений.
const RecentWindowDays = 14

// CountRecords считает Counts по отметкам относительно today.
func CountRecords(records []*Record, today time.Time) Counts {
	var c Counts
	c.Attended, c.Total = Tally(records)
	since := today.AddDate(0, 0, -RecentWindowDays)
	recent := make([]*Record, 0, len(records))
	for _, r := range records {
		if r.Date.After(since) {
			recent = append(recent, r)
		}
	}
	c.RecentAttended, c.RecentTotal = Tally(recent)
	return c
}

// Compute считает показатели. course может быть nil - тогда проекция
// совпадает с текущим процентом.
func (c Calculator) Compute(counts Counts, course *Course, today time.Time) Insights {
	t := c.Threshold
	attended, total := counts.Attended, counts.Total
	ratio := 1.0
	if total > 0 {
		ratio = float64(attended) / float64(total)
	}

	out := Insights{
		Attended:   attended,
		Total:      total,
		Percentage: roundPercent(ratio),
	}
	if course != nil {
		out.CourseID = course.ID
	}

	// Сколько занятий можно пропустить, оставаясь не ниже порога.
	skippable := math.Floor((float64(attended)-t*float64(total))/t + eps)
	if skippable > 0 {
		out.Skippable = int(skippable)
	}

	switch {
	case ratio+eps < t:
		out.RiskLevel = RiskDanger
		out.ClassesNeededToRecover = int(math.Ceil((t*float64(total)-float64(attended))/(1-t) - eps))
	case ratio+eps < c.WarningCeiling:
		out.RiskLevel = RiskWarning
	default:
		out.RiskLevel = RiskSafe
	}

	out.SafeToSkipToday = float64(attended)/float64(total+1)+eps >= t

	projected := ratio
	if course != nil {
		remaining := course.RemainingClasses(today)
		out.RemainingClasses = remaining
		rate := ratio
		if counts.RecentTotal > 0 {
			rate = float64(counts.RecentAttended) / float64(counts.RecentTotal)
		}
		if denom := total + remaining; denom > 0 {
			projected = (float64(attended) + rate*float64(remaining)) / float64(denom)
		}
	}
	out.ProjectedEndPercentage = roundPercent(projected)

	return out
}

func roundPercent(ratio float64) float64 {
	return math.Round(ratio*1000) / 10
}
