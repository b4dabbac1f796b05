// Package attendance содержит отметки посещаемости и расчёт рисков по курсу.
package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Status - статус отметки.
type Status string

const (
	StatusAttended Status = "attended"
	StatusBunked   Status = "bunked"

	// StatusCancelled - занятие отменено и не входит в total.
	StatusCancelled Status = "cancelled"
)

// IsValid проверяет статус.
func (s Status) IsValid() bool {
	return s == StatusAttended || s == StatusBunked || s == StatusCancelled
}

// Record - отметка за одно занятие. Уникальна по (user, course, date, slot);
// повторная отметка перезаписывает статус.
type Record struct {
	UserID   string
	CourseID string
	Date     time.Time
	Slot     int
	Status   Status
	MarkedAt time.Time
}

// NewRecordParams - параметры отметки.
type NewRecordParams struct {
	UserID   string
	CourseID string
	Date     time.Time
	Slot     int
	Status   Status
	Today    time.Time
	Now      time.Time
}

// NewRecord проверяет параметры отметки.
func NewRecord(p NewRecordParams) (*Record, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	if !p.Status.IsValid() {
		return nil, shared.ErrInvalidStatus
	}
	if p.Slot <= 0 {
		return nil, shared.ErrInvalidSlot
	}
	if p.Date.After(p.Today) {
		return nil, shared.ErrMarkInFuture
	}
	return &Record{
		UserID:   p.UserID,
		CourseID: p.CourseID,
		Date:     p.Date,
		Slot:     p.Slot,
		Status:   p.Status,
		MarkedAt: p.Now,
	}, nil
}

// Tally считает посещённые и учитываемые занятия.
func Tally(records []*Record) (attended, total int) {
	for _, r := range records {
		switch r.Status {
		case StatusAttended:
			attended++
			total++
		case StatusBunked:
			total++
		}
	}
	return attended, total
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE
// ══════════════════════════════════════════════════════════════════════════════

// Course - настройки курса (только чтение).
type Course struct {
	ID   string
	Name string

	// WeeklySchedule - число занятий по дням недели, индекс 0 = понедельник.
	WeeklySchedule [7]int

	// SemesterEnd - последний учебный день (гражданская дата).
	SemesterEnd time.Time
}

// ClassesOn возвращает число занятий в указанную дату.
func (c *Course) ClassesOn(date time.Time) int {
	idx := (int(date.Weekday()) + 6) % 7
	return c.WeeklySchedule[idx]
}

// RemainingClasses считает занятия с завтрашнего дня по SemesterEnd включительно.
func (c *Course) RemainingClasses(today time.Time) int {
	if c.SemesterEnd.IsZero() {
		return 0
	}
	n := 0
	for d := today.AddDate(0, 0, 1); !d.After(c.SemesterEnd); d = d.AddDate(0, 0, 1) {
		n += c.ClassesOn(d)
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище отметок.
type Repository interface {
	// Upsert записывает отметку, перезаписывая статус при повторе.
	Upsert(ctx context.Context, r *Record) error

	// ListByUserCourse возвращает отметки по курсу, по дате и слоту.
	ListByUserCourse(ctx context.Context, userID, courseID string) ([]*Record, error)

	// CourseIDsByUser возвращает курсы, по которым есть отметки.
	CourseIDsByUser(ctx context.Context, userID string) ([]string, error)
}

// CourseRepository - справочник курсов.
type CourseRepository interface {
	// GetByID возвращает курс. ErrCourseNotFound, если его нет.
	GetByID(ctx context.Context, id string) (*Course, error)
}
