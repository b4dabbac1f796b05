// Package memory is an in-process store implementing every repository the
// engine needs. It backs unit tests and local runs without PostgreSQL.
//
// A single mutex guards all tables. WithinTx holds it for the whole callback
// and restores a snapshot when the callback fails, which gives the same
// atomicity and uniqueness guarantees the SQL adapter gets from PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/attendance"
	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

type pairKey struct{ a, b string }

type attendanceKey struct {
	user, course string
	date         time.Time
	slot         int
}

type userSolve struct {
	ref          string
	submissionID string
	acceptedAt   time.Time
}

type tables struct {
	accounts   map[string]player.Account
	grants     map[string][]player.Grant
	grantKeys  map[pairKey]int
	quests     map[string]quest.Quest
	progress   map[pairKey]quest.Progress
	duels      map[string]duel.Duel
	bosses     map[string]boss.Battle
	solves     map[string][]boss.Solve
	attendance map[attendanceKey]attendance.Record
	courses    map[string]attendance.Course
	problems   map[string]problem.Problem
	userSolves map[string][]userSolve
}

func newTables() *tables {
	return &tables{
		accounts:   make(map[string]player.Account),
		grants:     make(map[string][]player.Grant),
		grantKeys:  make(map[pairKey]int),
		quests:     make(map[string]quest.Quest),
		progress:   make(map[pairKey]quest.Progress),
		duels:      make(map[string]duel.Duel),
		bosses:     make(map[string]boss.Battle),
		solves:     make(map[string][]boss.Solve),
		attendance: make(map[attendanceKey]attendance.Record),
		courses:    make(map[string]attendance.Course),
		problems:   make(map[string]problem.Problem),
		userSolves: make(map[string][]userSolve),
	}
}

// clone copies every table. Values are stored by value and pointer fields
// inside them are never mutated in place, so a shallow copy per entry is enough.
func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.accounts {
		c.accounts[k] = v
	}
	for k, v := range t.grants {
		c.grants[k] = append([]player.Grant(nil), v...)
	}
	for k, v := range t.grantKeys {
		c.grantKeys[k] = v
	}
	for k, v := range t.quests {
		c.quests[k] = v
	}
	for k, v := range t.progress {
		c.progress[k] = v
	}
	for k, v := range t.duels {
		c.duels[k] = v
	}
	for k, v := range t.bosses {
		c.bosses[k] = v
	}
	for k, v := range t.solves {
		c.solves[k] = append([]boss.Solve(nil), v...)
	}
	for k, v := range t.attendance {
		c.attendance[k] = v
	}
	for k, v := range t.courses {
		c.courses[k] = v
	}
	for k, v := range t.problems {
		c.problems[k] = v
	}
	for k, v := range t.userSolves {
		c.userSolves[k] = append([]userSolve(nil), v...)
	}
	return c
}

// Store holds all tables.
type Store struct {
	mu   sync.Mutex
	data *tables

	// RecentSolves is how many latest solves form a user's recent rating.
	RecentSolves int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newTables(), RecentSolves: 10}
}

type txKey struct{}

// WithinTx implements shared.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// do runs f under the store lock unless ctx already holds it.
func (s *Store) do(ctx context.Context, f func(t *tables) error) error {
	if inTx(ctx) {
		return f(s.data)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s.data)
}

// ══════════════════════════════════════════════════════════════════════════════
// SEEDING
// Reference data the engine only reads: quests, bosses, courses and the
// problem catalog filled by the platform scraper.
// ══════════════════════════════════════════════════════════════════════════════

// AddQuest stores a quest.
func (s *Store) AddQuest(q quest.Quest) {
	_ = s.do(context.Background(), func(t *tables) error {
		t.quests[q.ID] = q
		return nil
	})
}

// AddBoss stores a boss battle.
func (s *Store) AddBoss(b boss.Battle) {
	_ = s.do(context.Background(), func(t *tables) error {
		t.bosses[b.ID] = b
		return nil
	})
}

// AddCourse stores a course configuration.
func (s *Store) AddCourse(c attendance.Course) {
	_ = s.do(context.Background(), func(t *tables) error {
		t.courses[c.ID] = c
		return nil
	})
}

// AddProblem stores a catalog problem.
func (s *Store) AddProblem(p problem.Problem) {
	_ = s.do(context.Background(), func(t *tables) error {
		t.problems[p.Ref] = p
		return nil
	})
}

// AddUserSolve records an accepted submission as the scraper would.
func (s *Store) AddUserSolve(userID, ref, submissionID string, acceptedAt time.Time) {
	_ = s.do(context.Background(), func(t *tables) error {
		list := append(t.userSolves[userID], userSolve{ref: ref, submissionID: submissionID, acceptedAt: acceptedAt})
		sort.SliceStable(list, func(i, j int) bool { return list[i].acceptedAt.Before(list[j].acceptedAt) })
		t.userSolves[userID] = list
		return nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY VIEWS
// ══════════════════════════════════════════════════════════════════════════════

// Players returns the player.Repository view.
func (s *Store) Players() *PlayerRepository { return &PlayerRepository{s: s} }

// Ledger returns the player.LedgerRepository view.
func (s *Store) Ledger() *LedgerRepository { return &LedgerRepository{s: s} }

// Quests returns the quest.Repository and quest.ProgressRepository view.
func (s *Store) Quests() *QuestRepository { return &QuestRepository{s: s} }

// Duels returns the duel.Repository view.
func (s *Store) Duels() *DuelRepository { return &DuelRepository{s: s} }

// Bosses returns the boss.Repository view.
func (s *Store) Bosses() *BossRepository { return &BossRepository{s: s} }

// Attendance returns the attendance.Repository and attendance.CourseRepository view.
func (s *Store) Attendance() *AttendanceRepository { return &AttendanceRepository{s: s} }

// Counter returns the ratelimit.Counter view.
func (s *Store) Counter() *RateLimitCounter { return &RateLimitCounter{s: s} }

// Catalog returns the problem.Catalog and problem.Oracle view.
func (s *Store) Catalog() *Catalog { return &Catalog{s: s} }

var _ shared.Transactor = (*Store)(nil)
