package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCompute_AtThreshold(t *testing.T) {
	in := DefaultCalculator().Compute(Counts{Attended: 19, Total: 25}, nil, date(2026, 10, 14))

	assert.Equal(t, 76.0, in.Percentage)
	assert.Equal(t, 0, in.Skippable)
	assert.Equal(t, 0, in.ClassesNeededToRecover)
	assert.NotEqual(t, RiskDanger, in.RiskLevel)
	// Exactly at the threshold sits in the warning band [0.76, 0.80).
	assert.Equal(t, RiskWarning, in.RiskLevel)
	assert.False(t, in.SafeToSkipToday)
}

func TestCompute_Danger(t *testing.T) {
	in := DefaultCalculator().Compute(Counts{Attended: 14, Total: 25}, nil, date(2026, 10, 14))

	assert.Equal(t, 56.0, in.Percentage)
	assert.Equal(t, RiskDanger, in.RiskLevel)
	// ceil((19 - 14) / 0.24) = 21
	assert.Equal(t, 21, in.ClassesNeededToRecover)
	assert.Equal(t, 0, in.Skippable)
}

func TestCompute_RecoverCountIsEnough(t *testing.T) {
	calc := DefaultCalculator()
	for total := 1; total <= 60; total++ {
		for attended := 0; attended <= total; attended++ {
			in := calc.Compute(Counts{Attended: attended, Total: total}, nil, time.Time{})
			if in.RiskLevel != RiskDanger {
				continue
			}
			n := in.ClassesNeededToRecover
			require.Positive(t, n)
			after := float64(attended+n) / float64(total+n)
			assert.GreaterOrEqual(t, after+1e-9, 0.76, "%d/%d", attended, total)
			if n > 1 {
				before := float64(attended+n-1) / float64(total+n-1)
				assert.Less(t, before+1e-9, 0.76, "%d/%d not minimal", attended, total)
			}
		}
	}
}

func TestCompute_SafeAndSkippable(t *testing.T) {
	in := DefaultCalculator().Compute(Counts{Attended: 24, Total: 25}, nil, date(2026, 10, 14))

	assert.Equal(t, 96.0, in.Percentage)
	assert.Equal(t, RiskSafe, in.RiskLevel)
	// floor((24 - 19) / 0.76) = 6
	assert.Equal(t, 6, in.Skippable)
	assert.True(t, in.SafeToSkipToday)
}

func TestCompute_NoClassesYet(t *testing.T) {
	in := DefaultCalculator().Compute(Counts{}, nil, date(2026, 10, 14))
	assert.Equal(t, 100.0, in.Percentage)
	assert.Equal(t, RiskSafe, in.RiskLevel)
	assert.False(t, in.SafeToSkipToday)
}

func TestCompute_ProjectionUsesRecentRate(t *testing.T) {
	course := &Course{
		ID:             "algo",
		WeeklySchedule: [7]int{1, 0, 1, 0, 1, 0, 0}, // Mon, Wed, Fri
		SemesterEnd:    date(2026, 10, 25),
	}
	today := date(2026, 10, 14) // Wednesday

	// Thu 15 .. Sun 25: Fri 16, Mon 19, Wed 21, Fri 23 -> 4 classes.
	assert.Equal(t, 4, course.RemainingClasses(today))

	counts := Counts{Attended: 16, Total: 20, RecentAttended: 2, RecentTotal: 4}
	in := DefaultCalculator().Compute(counts, course, today)

	assert.Equal(t, 4, in.RemainingClasses)
	// (16 + 0.5*4) / 24 = 75.0
	assert.Equal(t, 75.0, in.ProjectedEndPercentage)
	assert.Equal(t, "algo", in.CourseID)
}

func TestCountRecords(t *testing.T) {
	today := date(2026, 10, 14)
	records := []*Record{
		{Date: date(2026, 9, 1), Status: StatusAttended},
		{Date: date(2026, 9, 2), Status: StatusBunked},
		{Date: date(2026, 10, 10), Status: StatusAttended},
		{Date: date(2026, 10, 12), Status: StatusBunked},
		{Date: date(2026, 10, 13), Status: StatusCancelled},
	}
	c := CountRecords(records, today)
	assert.Equal(t, Counts{Attended: 2, Total: 4, RecentAttended: 1, RecentTotal: 2}, c)
}

func TestNewRecord_Validates(t *testing.T) {
	today := date(2026, 10, 14)
	base := NewRecordParams{UserID: "u1", CourseID: "c1", Date: today, Slot: 1, Status: StatusAttended, Today: today}

	_, err := NewRecord(base)
	assert.NoError(t, err)

	for _, st := range []Status{"attended", "bunked", "cancelled"} {
		ok := base
		ok.Status = st
		_, err = NewRecord(ok)
		assert.NoError(t, err, st)
	}

	bad := base
	bad.Status = "present"
	_, err = NewRecord(bad)
	assert.True(t, shared.IsInvalidInput(err))

	bad = base
	bad.Status = "late"
	_, err = NewRecord(bad)
	assert.True(t, shared.IsInvalidInput(err))

	bad = base
	bad.Date = today.AddDate(0, 0, 1)
	_, err = NewRecord(bad)
	assert.ErrorIs(t, err, shared.ErrMarkInFuture)

	bad = base
	bad.Slot = 0
	_, err = NewRecord(bad)
	assert.ErrorIs(t, err, shared.ErrInvalidSlot)
}

func TestNewCalculator(t *testing.T) {
	_, err := NewCalculator(1.2, 1.3)
	assert.True(t, shared.IsInvalidInput(err))

	c, err := NewCalculator(0.75, 0.85)
	require.NoError(t, err)
	assert.Equal(t, 0.75, c.Threshold)
}
