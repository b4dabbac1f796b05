package memory

import (
	"context"
	"sort"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/attendance"
	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/ratelimit"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func civilPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := civil(*t)
	return &d
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return civil(*a).Equal(civil(*b))
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAYERS & LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// PlayerRepository implements player.Repository.
type PlayerRepository struct{ s *Store }

// Create inserts an account.
func (r *PlayerRepository) Create(ctx context.Context, a *player.Account) error {
	return r.s.do(ctx, func(t *tables) error {
		if _, ok := t.accounts[a.ID]; ok {
			return shared.NewDomainError("player", "Create", shared.ErrConflict, "user already exists")
		}
		acc := *a
		acc.LastSolveDay = civilPtr(a.LastSolveDay)
		t.accounts[a.ID] = acc
		return nil
	})
}

// GetByID returns a copy of the account.
func (r *PlayerRepository) GetByID(ctx context.Context, id string) (*player.Account, error) {
	var out *player.Account
	err := r.s.do(ctx, func(t *tables) error {
		acc, ok := t.accounts[id]
		if !ok {
			return shared.ErrUserNotFound
		}
		out = &acc
		return nil
	})
	return out, err
}

// Exists reports whether the account exists.
func (r *PlayerRepository) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.s.do(ctx, func(t *tables) error {
		_, ok = t.accounts[id]
		return nil
	})
	return ok, err
}

// IncrementXP adds amount and returns the new total with the cached level.
func (r *PlayerRepository) IncrementXP(ctx context.Context, id string, amount player.XP) (player.XP, player.Level, error) {
	var (
		total player.XP
		prev  player.Level
	)
	err := r.s.do(ctx, func(t *tables) error {
		acc, ok := t.accounts[id]
		if !ok {
			return shared.ErrUserNotFound
		}
		prev = acc.Level
		acc.XP += amount
		acc.UpdatedAt = time.Now()
		t.accounts[id] = acc
		total = acc.XP
		return nil
	})
	return total, prev, err
}

// SetLevel stores the recomputed level.
func (r *PlayerRepository) SetLevel(ctx context.Context, id string, level player.Level) error {
	return r.s.do(ctx, func(t *tables) error {
		acc, ok := t.accounts[id]
		if !ok {
			return shared.ErrUserNotFound
		}
		acc.Level = level
		t.accounts[id] = acc
		return nil
	})
}

// CompareAndSwapStreak writes the streak only if last_solve_day is unchanged.
func (r *PlayerRepository) CompareAndSwapStreak(ctx context.Context, id string, expectedLast *time.Time, st player.StreakState) (bool, error) {
	var swapped bool
	err := r.s.do(ctx, func(t *tables) error {
		acc, ok := t.accounts[id]
		if !ok {
			return shared.ErrUserNotFound
		}
		if !sameDay(acc.LastSolveDay, expectedLast) {
			return nil
		}
		st.LastSolveDay = civilPtr(st.LastSolveDay)
		acc.ApplyStreak(st)
		acc.UpdatedAt = time.Now()
		t.accounts[id] = acc
		swapped = true
		return nil
	})
	return swapped, err
}

// LedgerRepository implements player.LedgerRepository.
type LedgerRepository struct{ s *Store }

// Insert appends a grant unless (user, key) exists.
func (r *LedgerRepository) Insert(ctx context.Context, g *player.Grant) (bool, error) {
	var inserted bool
	err := r.s.do(ctx, func(t *tables) error {
		if _, ok := t.accounts[g.UserID]; !ok {
			return shared.ErrUserNotFound
		}
		key := pairKey{g.UserID, g.DedupKey}
		if _, ok := t.grantKeys[key]; ok {
			return nil
		}
		t.grantKeys[key] = len(t.grants[g.UserID])
		t.grants[g.UserID] = append(t.grants[g.UserID], *g)
		inserted = true
		return nil
	})
	return inserted, err
}

// GetByDedupKey returns the grant stored under a key.
func (r *LedgerRepository) GetByDedupKey(ctx context.Context, userID, key string) (*player.Grant, error) {
	var out *player.Grant
	err := r.s.do(ctx, func(t *tables) error {
		idx, ok := t.grantKeys[pairKey{userID, key}]
		if !ok {
			return shared.NewDomainError("ledger", "GetByDedupKey", shared.ErrNotFound, "grant not found")
		}
		g := t.grants[userID][idx]
		out = &g
		return nil
	})
	return out, err
}

// ListByUser returns the newest grants first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*player.Grant, error) {
	var out []*player.Grant
	err := r.s.do(ctx, func(t *tables) error {
		list := t.grants[userID]
		for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
			g := list[i]
			out = append(out, &g)
		}
		return nil
	})
	return out, err
}

// SumByUser sums every grant of a user.
func (r *LedgerRepository) SumByUser(ctx context.Context, userID string) (player.XP, error) {
	var sum player.XP
	err := r.s.do(ctx, func(t *tables) error {
		for _, g := range t.grants[userID] {
			sum += g.Amount
		}
		return nil
	})
	return sum, err
}

// ══════════════════════════════════════════════════════════════════════════════
// QUESTS
// ══════════════════════════════════════════════════════════════════════════════

// QuestRepository implements quest.Repository and quest.ProgressRepository.
type QuestRepository struct{ s *Store }

// GetByID returns a quest.
func (r *QuestRepository) GetByID(ctx context.Context, id string) (*quest.Quest, error) {
	var out *quest.Quest
	err := r.s.do(ctx, func(t *tables) error {
		q, ok := t.quests[id]
		if !ok {
			return shared.ErrQuestNotFound
		}
		out = &q
		return nil
	})
	return out, err
}

// ListByWeek returns the quests of one week ordered by ID.
func (r *QuestRepository) ListByWeek(ctx context.Context, weekStart time.Time) ([]*quest.Quest, error) {
	var out []*quest.Quest
	err := r.s.do(ctx, func(t *tables) error {
		for _, q := range t.quests {
			if civil(q.WeekStart).Equal(civil(weekStart)) {
				q := q
				out = append(out, &q)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// LockUser only checks the user: transactions already hold the store lock.
func (r *QuestRepository) LockUser(ctx context.Context, userID string) error {
	return r.s.do(ctx, func(t *tables) error {
		if _, ok := t.accounts[userID]; !ok {
			return shared.ErrUserNotFound
		}
		return nil
	})
}

// Get returns progress, or an empty row.
func (r *QuestRepository) Get(ctx context.Context, userID, questID string) (*quest.Progress, error) {
	out := quest.NewProgress(userID, questID)
	err := r.s.do(ctx, func(t *tables) error {
		if p, ok := t.progress[pairKey{userID, questID}]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

// Save upserts progress while the stored row is not completed.
func (r *QuestRepository) Save(ctx context.Context, p *quest.Progress) (bool, error) {
	var saved bool
	err := r.s.do(ctx, func(t *tables) error {
		if _, ok := t.accounts[p.UserID]; !ok {
			return shared.ErrUserNotFound
		}
		key := pairKey{p.UserID, p.QuestID}
		if cur, ok := t.progress[key]; ok && cur.Completed {
			return nil
		}
		t.progress[key] = *p
		saved = true
		return nil
	})
	return saved, err
}

// ListByUser returns progress rows keyed by quest ID.
func (r *QuestRepository) ListByUser(ctx context.Context, userID string, questIDs []string) (map[string]*quest.Progress, error) {
	out := make(map[string]*quest.Progress, len(questIDs))
	err := r.s.do(ctx, func(t *tables) error {
		for _, id := range questIDs {
			if p, ok := t.progress[pairKey{userID, id}]; ok {
				p := p
				out[id] = &p
			}
		}
		return nil
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// DUELS
// ══════════════════════════════════════════════════════════════════════════════

// DuelRepository implements duel.Repository.
type DuelRepository struct{ s *Store }

// Create inserts a pending duel.
func (r *DuelRepository) Create(ctx context.Context, d *duel.Duel) error {
	return r.s.do(ctx, func(t *tables) error {
		for _, id := range []string{d.ChallengerID, d.ChallengedID} {
			if _, ok := t.accounts[id]; !ok {
				return shared.ErrUserNotFound
			}
		}
		if _, ok := t.duels[d.ID]; ok {
			return shared.NewDomainError("duel", "Create", shared.ErrConflict, "duel id already used")
		}
		if d.Status.IsOpen() {
			for _, other := range t.duels {
				if other.Status.IsOpen() && other.IsParticipant(d.ChallengerID) && other.IsParticipant(d.ChallengedID) {
					return shared.ErrDuelAlreadyOpen
				}
			}
		}
		t.duels[d.ID] = *d
		return nil
	})
}

// GetByID returns a duel.
func (r *DuelRepository) GetByID(ctx context.Context, id string) (*duel.Duel, error) {
	var out *duel.Duel
	err := r.s.do(ctx, func(t *tables) error {
		d, ok := t.duels[id]
		if !ok {
			return shared.ErrDuelNotFound
		}
		out = &d
		return nil
	})
	return out, err
}

// HasOpenBetween checks for a pending or active duel in either direction.
func (r *DuelRepository) HasOpenBetween(ctx context.Context, a, b string) (bool, error) {
	var found bool
	err := r.s.do(ctx, func(t *tables) error {
		for _, d := range t.duels {
			if d.Status.IsOpen() && d.IsParticipant(a) && d.IsParticipant(b) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// Transition applies the new state only if the stored status equals from.
func (r *DuelRepository) Transition(ctx context.Context, d *duel.Duel, from duel.Status) (bool, error) {
	var ok bool
	err := r.s.do(ctx, func(t *tables) error {
		cur, exists := t.duels[d.ID]
		if !exists {
			return shared.ErrDuelNotFound
		}
		if cur.Status != from {
			return nil
		}
		t.duels[d.ID] = *d
		ok = true
		return nil
	})
	return ok, err
}

// ListActiveDue returns active duels with expires_at <= before, oldest first.
func (r *DuelRepository) ListActiveDue(ctx context.Context, before time.Time, limit int) ([]*duel.Duel, error) {
	var out []*duel.Duel
	err := r.s.do(ctx, func(t *tables) error {
		for _, d := range t.duels {
			if d.Status == duel.StatusActive && d.ExpiresAt != nil && !d.ExpiresAt.After(before) {
				d := d
				out = append(out, &d)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(*out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// BOSS BATTLES
// ══════════════════════════════════════════════════════════════════════════════

// BossRepository implements boss.Repository.
type BossRepository struct{ s *Store }

// GetByID returns a boss battle.
func (r *BossRepository) GetByID(ctx context.Context, id string) (*boss.Battle, error) {
	var out *boss.Battle
	err := r.s.do(ctx, func(t *tables) error {
		b, ok := t.bosses[id]
		if !ok {
			return shared.ErrBossNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

// RecordSolve claims the next rank and stores the solve under the store lock.
func (r *BossRepository) RecordSolve(ctx context.Context, s *boss.Solve) error {
	return r.s.do(ctx, func(t *tables) error {
		b, ok := t.bosses[s.BossID]
		if !ok {
			return shared.ErrBossNotFound
		}
		if _, ok := t.accounts[s.UserID]; !ok {
			return shared.ErrUserNotFound
		}
		for _, existing := range t.solves[s.BossID] {
			if existing.UserID == s.UserID {
				return shared.ErrBossAlreadySolve
			}
		}
		b.SolveCount++
		t.bosses[s.BossID] = b
		s.Rank = b.SolveCount
		t.solves[s.BossID] = append(t.solves[s.BossID], *s)
		return nil
	})
}

// SetAwarded stores the XP credited for a solve.
func (r *BossRepository) SetAwarded(ctx context.Context, solveID string, xp int64) error {
	return r.s.do(ctx, func(t *tables) error {
		for bossID, list := range t.solves {
			for i := range list {
				if list[i].ID == solveID {
					list[i].XPAwarded = xp
					t.solves[bossID] = list
					return nil
				}
			}
		}
		return nil
	})
}

// ListSolves returns solves by ascending rank.
func (r *BossRepository) ListSolves(ctx context.Context, bossID string, limit int) ([]*boss.Solve, error) {
	var out []*boss.Solve
	err := r.s.do(ctx, func(t *tables) error {
		for _, s := range t.solves[bossID] {
			s := s
			out = append(out, &s)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements attendance.Repository and attendance.CourseRepository.
type AttendanceRepository struct{ s *Store }

// Upsert writes a record, overwriting the same slot.
func (r *AttendanceRepository) Upsert(ctx context.Context, rec *attendance.Record) error {
	return r.s.do(ctx, func(t *tables) error {
		if _, ok := t.accounts[rec.UserID]; !ok {
			return shared.ErrUserNotFound
		}
		if _, ok := t.courses[rec.CourseID]; !ok {
			return shared.ErrCourseNotFound
		}
		stored := *rec
		stored.Date = civil(rec.Date)
		t.attendance[attendanceKey{rec.UserID, rec.CourseID, stored.Date, rec.Slot}] = stored
		return nil
	})
}

// ListByUserCourse returns records ordered by date and slot.
func (r *AttendanceRepository) ListByUserCourse(ctx context.Context, userID, courseID string) ([]*attendance.Record, error) {
	var out []*attendance.Record
	err := r.s.do(ctx, func(t *tables) error {
		for k, rec := range t.attendance {
			if k.user == userID && k.course == courseID {
				rec := rec
				out = append(out, &rec)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Slot < out[j].Slot
	})
	return out, err
}

// CourseIDsByUser returns the courses a user has marked, ordered by ID.
func (r *AttendanceRepository) CourseIDsByUser(ctx context.Context, userID string) ([]string, error) {
	seen := make(map[string]struct{})
	err := r.s.do(ctx, func(t *tables) error {
		for k := range t.attendance {
			if k.user == userID {
				seen[k.course] = struct{}{}
			}
		}
		return nil
	})
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, err
}

// GetByID returns a course configuration.
func (r *AttendanceRepository) GetByID(ctx context.Context, id string) (*attendance.Course, error) {
	var out *attendance.Course
	err := r.s.do(ctx, func(t *tables) error {
		c, ok := t.courses[id]
		if !ok {
			return shared.ErrCourseNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMIT COUNTER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitCounter implements ratelimit.Counter over the acting tables.
type RateLimitCounter struct{ s *Store }

// CountSince counts actions of the given kind at or after since.
func (c *RateLimitCounter) CountSince(ctx context.Context, userID string, kind ratelimit.ActionKind, since time.Time) (int, error) {
	var n int
	err := c.s.do(ctx, func(t *tables) error {
		switch kind {
		case ratelimit.ActionDuelChallenge:
			for _, d := range t.duels {
				if d.ChallengerID == userID && !d.CreatedAt.Before(since) {
					n++
				}
			}
		case ratelimit.ActionAttendanceMark:
			for k, rec := range t.attendance {
				if k.user == userID && !rec.MarkedAt.Before(since) {
					n++
				}
			}
		default:
			return shared.ErrUnknownAction
		}
		return nil
	})
	return n, err
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBLEM CATALOG & ORACLE
// ══════════════════════════════════════════════════════════════════════════════

// Catalog implements problem.Catalog and problem.Oracle over seeded data.
type Catalog struct{ s *Store }

// RecentRating averages the ratings of the latest solved problems.
func (c *Catalog) RecentRating(ctx context.Context, userID string) (shared.Rating, error) {
	rating := problem.DefaultRating
	err := c.s.do(ctx, func(t *tables) error {
		list := t.userSolves[userID]
		sum, n := 0, 0
		for i := len(list) - 1; i >= 0 && n < c.s.RecentSolves; i-- {
			p, ok := t.problems[list[i].ref]
			if !ok {
				continue
			}
			sum += int(p.Rating)
			n++
		}
		if n > 0 {
			rating = shared.Rating((sum + n/2) / n)
		}
		return nil
	})
	return rating, err
}

// Candidates returns matching problems ordered by rating then ref.
func (c *Catalog) Candidates(ctx context.Context, f problem.Filter) ([]problem.Problem, error) {
	var out []problem.Problem
	err := c.s.do(ctx, func(t *tables) error {
		solved := make(map[string]bool)
		for _, u := range f.ExcludeSolvedBy {
			for _, us := range t.userSolves[u] {
				solved[us.ref] = true
			}
		}
		for _, p := range t.problems {
			if f.Matches(p) && !solved[p.Ref] {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating < out[j].Rating
		}
		return out[i].Ref < out[j].Ref
	})
	return out, err
}

// Accepted returns the earliest accepted submission at or after since.
func (c *Catalog) Accepted(ctx context.Context, userID, ref string, since time.Time) (problem.Verdict, error) {
	var v problem.Verdict
	err := c.s.do(ctx, func(t *tables) error {
		for _, us := range t.userSolves[userID] {
			if us.ref == ref && !us.acceptedAt.Before(since) {
				v = problem.Verdict{Accepted: true, AcceptedAt: us.acceptedAt, SubmissionID: us.submissionID}
				return nil
			}
		}
		return nil
	})
	return v, err
}

var (
	_ player.Repository           = (*PlayerRepository)(nil)
	_ player.LedgerRepository     = (*LedgerRepository)(nil)
	_ quest.Repository            = (*QuestRepository)(nil)
	_ quest.ProgressRepository    = (*QuestRepository)(nil)
	_ duel.Repository             = (*DuelRepository)(nil)
	_ boss.Repository             = (*BossRepository)(nil)
	_ attendance.Repository       = (*AttendanceRepository)(nil)
	_ attendance.CourseRepository = (*AttendanceRepository)(nil)
	_ ratelimit.Counter           = (*RateLimitCounter)(nil)
	_ problem.Catalog             = (*Catalog)(nil)
	_ problem.Oracle              = (*Catalog)(nil)
)
