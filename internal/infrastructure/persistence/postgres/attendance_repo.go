package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/arena-engine/internal/domain/attendance"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements attendance.Repository and
// attendance.CourseRepository for PostgreSQL.
type AttendanceRepository struct {
	conn *Connection
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(conn *Connection) *AttendanceRepository {
	return &AttendanceRepository{conn: conn}
}

// Upsert writes a record; re-marking the same slot overwrites status and marked_at.
func (r *AttendanceRepository) Upsert(ctx context.Context, rec *attendance.Record) error {
	query := `
		INSERT INTO attendance_records (user_id, course_id, date, slot, status, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, course_id, date, slot) DO UPDATE
		SET status = EXCLUDED.status, marked_at = EXCLUDED.marked_at
	`
	_, err := r.conn.Exec(ctx, query, rec.UserID, rec.CourseID, rec.Date, rec.Slot, string(rec.Status), rec.MarkedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			if ViolatedConstraint(err) == "attendance_records_course_id_fkey" {
				return shared.ErrCourseNotFound
			}
			return shared.ErrUserNotFound
		}
		return storeErr("attendance", "Upsert", err)
	}
	return nil
}

// ListByUserCourse returns records ordered by date and slot.
func (r *AttendanceRepository) ListByUserCourse(ctx context.Context, userID, courseID string) ([]*attendance.Record, error) {
	query := `
		SELECT user_id, course_id, date, slot, status, marked_at
		FROM attendance_records
		WHERE user_id = $1 AND course_id = $2
		ORDER BY date, slot
	`
	rows, err := r.conn.Query(ctx, query, userID, courseID)
	if err != nil {
		return nil, storeErr("attendance", "ListByUserCourse", err)
	}
	defer rows.Close()

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*attendance.Record, error) {
		var (
			rec    attendance.Record
			date   time.Time
			status string
		)
		if err := row.Scan(&rec.UserID, &rec.CourseID, &date, &rec.Slot, &status, &rec.MarkedAt); err != nil {
			return nil, err
		}
		rec.Date = *civil(&date)
		rec.Status = attendance.Status(status)
		return &rec, nil
	})
	if err != nil {
		return nil, storeErr("attendance", "ListByUserCourse", err)
	}
	return records, nil
}

// CourseIDsByUser returns the courses a user has marked, ordered by ID.
func (r *AttendanceRepository) CourseIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT DISTINCT course_id FROM attendance_records WHERE user_id = $1 ORDER BY course_id`, userID)
	if err != nil {
		return nil, storeErr("attendance", "CourseIDsByUser", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeErr("attendance", "CourseIDsByUser", err)
	}
	return ids, nil
}

// GetByID returns a course configuration.
func (r *AttendanceRepository) GetByID(ctx context.Context, id string) (*attendance.Course, error) {
	var (
		c        attendance.Course
		schedule []int32
		end      *time.Time
	)
	err := r.conn.QueryRow(ctx,
		`SELECT id, name, weekly_schedule, semester_end FROM courses WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &schedule, &end)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, storeErr("attendance", "GetCourse", err)
	}
	for i := 0; i < len(schedule) && i < len(c.WeeklySchedule); i++ {
		c.WeeklySchedule[i] = int(schedule[i])
	}
	if end != nil {
		c.SemesterEnd = *civil(end)
	}
	return &c, nil
}
