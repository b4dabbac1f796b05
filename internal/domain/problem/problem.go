// Package problem описывает внешние данные о задачах: каталог с рейтингами
// и оракул решений. Оба источника заполняются парсером платформ, движок
// их только читает.
package problem

import (
	"context"
	"sort"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// DefaultRating - рейтинг пользователя без истории решений.
const DefaultRating shared.Rating = 1200

// Problem - задача каталога.
type Problem struct {
	// Ref - идентификатор вида "platform:id", например "cf:1800A".
	Ref    string
	Name   string
	Rating shared.Rating
	Tags   []string
}

// Filter - условия выборки кандидатов.
type Filter struct {
	MinRating shared.Rating
	MaxRating shared.Rating
	Tag       string

	// ExcludeSolvedBy - исключить задачи, решённые любым из пользователей.
	ExcludeSolvedBy []string
}

// Catalog - каталог задач.
type Catalog interface {
	// RecentRating - средний рейтинг последних решённых задач пользователя.
	// DefaultRating, если решений нет.
	RecentRating(ctx context.Context, userID string) (shared.Rating, error)

	// Candidates возвращает задачи, подходящие под фильтр.
	Candidates(ctx context.Context, f Filter) ([]Problem, error)
}

// Verdict - ответ оракула о решении задачи пользователем.
type Verdict struct {
	Accepted     bool
	AcceptedAt   time.Time
	SubmissionID string
}

// Oracle - проверка "пользователь X решил задачу P в момент T".
// Недоступность источника возвращается как ErrUnavailable.
type Oracle interface {
	// Accepted возвращает самое раннее принятое решение не раньше since.
	// Accepted=false, если такого нет.
	Accepted(ctx context.Context, userID, ref string, since time.Time) (Verdict, error)
}

// RatingWindow возвращает фильтр вокруг среднего рейтинга двух игроков,
// округлённого до сотни.
func RatingWindow(a, b shared.Rating, window int) (center shared.Rating, f Filter) {
	center = shared.AverageRating(a, b).RoundToHundred()
	return center, Filter{
		MinRating: center - shared.Rating(window),
		MaxRating: center + shared.Rating(window),
	}
}

// Nearest выбирает задачу с рейтингом ближе всего к target; при равенстве
// побеждает меньший Ref. Результат не зависит от порядка кандидатов.
func Nearest(candidates []Problem, target shared.Rating) (Problem, bool) {
	if len(candidates) == 0 {
		return Problem{}, false
	}
	sorted := make([]Problem, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := sorted[i].Rating.Distance(target), sorted[j].Rating.Distance(target)
		if di != dj {
			return di < dj
		}
		return sorted[i].Ref < sorted[j].Ref
	})
	return sorted[0], true
}

// Matches проверяет задачу по рейтингу и тегу фильтра.
func (f Filter) Matches(p Problem) bool {
	if p.Rating < f.MinRating || p.Rating > f.MaxRating {
		return false
	}
	if f.Tag == "" {
		return true
	}
	for _, t := range p.Tags {
		if t == f.Tag {
			return true
		}
	}
	return false
}
