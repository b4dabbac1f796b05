package query

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/alem-hub/arena-engine/internal/domain/attendance"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE INSIGHTS QUERY
// Риски посещаемости по курсу: процент, сколько можно пропустить, сколько
// нужно отходить подряд, прогноз на конец семестра.
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceInsightsQuery содержит параметры запроса. Пустой CourseID -
// расчёт по всем курсам, где у пользователя есть отметки.
type AttendanceInsightsQuery struct {
	UserID   string
	CourseID string
}

// Validate проверяет корректность параметров запроса.
func (q AttendanceInsightsQuery) Validate() error {
	_, err := shared.NewUserID(q.UserID)
	return err
}

// AttendanceInsightsHandler обрабатывает запрос.
type AttendanceInsightsHandler struct {
	records    attendance.Repository
	courses    attendance.CourseRepository
	calculator attendance.Calculator
	calendar   *timeutil.Calendar

	// courseCache - настройки курсов меняются редко, держим их в LRU.
	courseCache *lru.Cache
}

// NewAttendanceInsightsHandler создаёт обработчик. cacheSize <= 0 отключает кэш курсов.
func NewAttendanceInsightsHandler(
	records attendance.Repository,
	courses attendance.CourseRepository,
	calculator attendance.Calculator,
	calendar *timeutil.Calendar,
	cacheSize int,
) (*AttendanceInsightsHandler, error) {
	h := &AttendanceInsightsHandler{
		records:    records,
		courses:    courses,
		calculator: calculator,
		calendar:   calendar,
	}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, fmt.Errorf("attendance insights: course cache: %w", err)
		}
		h.courseCache = cache
	}
	return h, nil
}

// Handle считает показатели по одному курсу.
func (h *AttendanceInsightsHandler) Handle(ctx context.Context, q AttendanceInsightsQuery) (*attendance.Insights, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	course, err := h.course(ctx, q.CourseID)
	if err != nil {
		return nil, err
	}
	return h.compute(ctx, q.UserID, course)
}

// HandleAll считает показатели по всем курсам пользователя, в порядке,
// который вернуло хранилище.
func (h *AttendanceInsightsHandler) HandleAll(ctx context.Context, q AttendanceInsightsQuery) ([]*attendance.Insights, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ids, err := h.records.CourseIDsByUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	out := make([]*attendance.Insights, 0, len(ids))
	for _, id := range ids {
		course, err := h.course(ctx, id)
		if err != nil {
			return nil, err
		}
		insights, err := h.compute(ctx, q.UserID, course)
		if err != nil {
			return nil, err
		}
		out = append(out, insights)
	}
	return out, nil
}

func (h *AttendanceInsightsHandler) compute(ctx context.Context, userID string, course *attendance.Course) (*attendance.Insights, error) {
	records, err := h.records.ListByUserCourse(ctx, userID, course.ID)
	if err != nil {
		return nil, err
	}
	today := h.calendar.Today()
	insights := h.calculator.Compute(attendance.CountRecords(records, today), course, today)
	return &insights, nil
}

func (h *AttendanceInsightsHandler) course(ctx context.Context, id string) (*attendance.Course, error) {
	if id == "" {
		return nil, shared.ErrCourseNotFound
	}
	if h.courseCache != nil {
		if v, ok := h.courseCache.Get(id); ok {
			return v.(*attendance.Course), nil
		}
	}

	course, err := h.courses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.courseCache != nil {
		h.courseCache.Add(id, course)
	}
	return course, nil
}
