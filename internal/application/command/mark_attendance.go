package command

import (
	"context"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/attendance"
	"github.com/alem-hub/arena-engine/internal/domain/ratelimit"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK ATTENDANCE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// MarkAttendanceCommand records presence for one class slot. Marking the
// same slot again overwrites the status.
type MarkAttendanceCommand struct {
	UserID   string
	CourseID string

	// Date is a civil date; only its year, month and day are used.
	Date   time.Time
	Slot   int
	Status attendance.Status
}

// MarkAttendanceResult contains the stored record.
type MarkAttendanceResult struct {
	Record *attendance.Record
	Quota  ratelimit.Decision
}

// AttendanceConfig holds attendance tunables.
type AttendanceConfig struct {
	// DailyMarkLimit caps marks per civil day.
	DailyMarkLimit int
}

// DefaultAttendanceConfig returns default configuration.
func DefaultAttendanceConfig() AttendanceConfig {
	return AttendanceConfig{DailyMarkLimit: 20}
}

// MarkAttendanceHandler handles MarkAttendanceCommand.
type MarkAttendanceHandler struct {
	records  attendance.Repository
	courses  attendance.CourseRepository
	counter  ratelimit.Counter
	calendar *timeutil.Calendar
	config   AttendanceConfig
	log      *logger.Logger
}

// NewMarkAttendanceHandler creates a new MarkAttendanceHandler.
func NewMarkAttendanceHandler(
	records attendance.Repository,
	courses attendance.CourseRepository,
	counter ratelimit.Counter,
	calendar *timeutil.Calendar,
	config AttendanceConfig,
	log *logger.Logger,
) *MarkAttendanceHandler {
	return &MarkAttendanceHandler{
		records:  records,
		courses:  courses,
		counter:  counter,
		calendar: calendar,
		config:   config,
		log:      log.With(logger.Component("command"), logger.Operation("mark_attendance")),
	}
}

// Handle executes the command.
func (h *MarkAttendanceHandler) Handle(ctx context.Context, cmd MarkAttendanceCommand) (*MarkAttendanceResult, error) {
	now := h.calendar.Now()
	rec, err := attendance.NewRecord(attendance.NewRecordParams{
		UserID:   cmd.UserID,
		CourseID: cmd.CourseID,
		Date:     timeutil.Date(cmd.Date.Year(), cmd.Date.Month(), cmd.Date.Day()),
		Slot:     cmd.Slot,
		Status:   cmd.Status,
		Today:    h.calendar.CivilDate(now),
		Now:      now,
	})
	if err != nil {
		return nil, err
	}

	if _, err := h.courses.GetByID(ctx, cmd.CourseID); err != nil {
		return nil, err
	}

	used, err := h.counter.CountSince(ctx, cmd.UserID, ratelimit.ActionAttendanceMark, h.calendar.StartOfDay(now))
	if err != nil {
		return nil, err
	}
	quota := ratelimit.Decide(used, h.config.DailyMarkLimit, h.calendar.NextDayBoundary(now))
	if err := quota.Err(); err != nil {
		logOutcome(h.log, "mark rejected", err, logger.UserID(cmd.UserID))
		return nil, err
	}

	if err := h.records.Upsert(ctx, rec); err != nil {
		logOutcome(h.log, "mark failed", err, logger.UserID(cmd.UserID), logger.String("course_id", cmd.CourseID))
		return nil, err
	}

	h.log.Debug("attendance marked",
		logger.UserID(rec.UserID),
		logger.String("course_id", rec.CourseID),
		logger.String("date", timeutil.FormatCivil(rec.Date)),
		logger.String("status", string(rec.Status)),
	)
	return &MarkAttendanceResult{
		Record: rec,
		Quota:  ratelimit.Decide(used+1, quota.Limit, quota.ResetAt),
	}, nil
}
