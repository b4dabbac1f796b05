package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/ratelimit"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

var t0 = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func newAccount(t *testing.T, s *Store, id string) {
	t.Helper()
	acc, err := player.NewAccount(id, t0)
	require.NoError(t, err)
	require.NoError(t, s.Players().Create(context.Background(), acc))
}

func TestWithinTx_RestoresSnapshotOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newAccount(t, s, "alice")

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		_, _, err := s.Players().IncrementXP(ctx, "alice", 100)
		require.NoError(t, err)
		g, err := player.NewGrant(player.NewGrantParams{ID: "g1", UserID: "alice", Amount: 100, DedupKey: "k", Now: t0})
		require.NoError(t, err)
		_, err = s.Ledger().Insert(ctx, g)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	acc, err := s.Players().GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, player.XP(0), acc.XP)

	sum, err := s.Ledger().SumByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, player.XP(0), sum)
}

func TestLedgerInsert_Idempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newAccount(t, s, "alice")

	g, err := player.NewGrant(player.NewGrantParams{ID: "g1", UserID: "alice", Amount: 10, DedupKey: "solve_1", Now: t0})
	require.NoError(t, err)

	ok, err := s.Ledger().Insert(ctx, g)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Ledger().Insert(ctx, g)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Ledger().Insert(ctx, &player.Grant{ID: "g2", UserID: "ghost", Amount: 1, DedupKey: "x"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCompareAndSwapStreak(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newAccount(t, s, "alice")

	day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	ok, err := s.Players().CompareAndSwapStreak(ctx, "alice", nil, player.StreakState{Current: 1, Longest: 1, LastSolveDay: &day})
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale expectation loses.
	ok, err = s.Players().CompareAndSwapStreak(ctx, "alice", nil, player.StreakState{Current: 5, Longest: 5, LastSolveDay: &day})
	require.NoError(t, err)
	assert.False(t, ok)

	acc, err := s.Players().GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, acc.CurrentStreak)
}

func TestBossRecordSolve_ConcurrentRanks(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	s.AddBoss(boss.Battle{ID: "b1", StartsAt: t0, EndsAt: t0.Add(time.Hour)})

	const n = 40
	for i := 0; i < n; i++ {
		newAccount(t, s, fmt.Sprintf("u%02d", i))
	}

	var wg sync.WaitGroup
	ranks := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			solve := &boss.Solve{ID: fmt.Sprintf("s%02d", i), BossID: "b1", UserID: fmt.Sprintf("u%02d", i), SolvedAt: t0}
			assert.NoError(t, s.Bosses().RecordSolve(ctx, solve))
			ranks[i] = solve.Rank
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, r := range ranks {
		assert.False(t, seen[r], "rank %d assigned twice", r)
		seen[r] = true
		assert.True(t, r >= 1 && r <= n)
	}

	err := s.Bosses().RecordSolve(ctx, &boss.Solve{ID: "dup", BossID: "b1", UserID: "u00", SolvedAt: t0})
	assert.ErrorIs(t, err, shared.ErrConflict)

	b, err := s.Bosses().GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, n, b.SolveCount)
}

func TestDuelTransition_CompareAndSwap(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newAccount(t, s, "alice")
	newAccount(t, s, "bob")

	d, err := duel.NewDuel(duel.NewDuelParams{ID: "d1", ChallengerID: "alice", ChallengedID: "bob", ProblemRef: "cf:1A", TimeLimitMinutes: 30, Now: t0}, duel.DefaultLimits())
	require.NoError(t, err)
	require.NoError(t, s.Duels().Create(ctx, d))

	open, err := s.Duels().HasOpenBetween(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, open)

	accepted := *d
	require.NoError(t, accepted.Accept("bob", t0))
	declined := *d
	require.NoError(t, declined.Decline("bob", t0))

	ok, err := s.Duels().Transition(ctx, &accepted, duel.StatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Duels().Transition(ctx, &declined, duel.StatusPending)
	require.NoError(t, err)
	assert.False(t, ok)

	due, err := s.Duels().ListActiveDue(ctx, t0.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "d1", due[0].ID)
}

func TestDuelCreate_OneOpenDuelPerPair(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newAccount(t, s, "alice")
	newAccount(t, s, "bob")

	// Crossing challenges: alice→bob and bob→alice at the same time.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := duel.NewDuel(duel.NewDuelParams{ID: fmt.Sprintf("x%d", i), ChallengerID: pair[0], ChallengedID: pair[1], ProblemRef: "x", TimeLimitMinutes: 30, Now: t0}, duel.DefaultLimits())
			require.NoError(t, err)
			err = s.Duels().Create(ctx, d)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], shared.ErrDuelAlreadyOpen)

	// A finished duel frees the pair.
	var open *duel.Duel
	for _, id := range []string{"x0", "x1"} {
		if d, err := s.Duels().GetByID(ctx, id); err == nil {
			open = d
		}
	}
	require.NotNil(t, open)
	declined := *open
	require.NoError(t, declined.Decline(open.ChallengedID, t0))
	ok, err := s.Duels().Transition(ctx, &declined, duel.StatusPending)
	require.NoError(t, err)
	require.True(t, ok)

	next, err := duel.NewDuel(duel.NewDuelParams{ID: "x2", ChallengerID: "alice", ChallengedID: "bob", ProblemRef: "x", TimeLimitMinutes: 30, Now: t0}, duel.DefaultLimits())
	require.NoError(t, err)
	assert.NoError(t, s.Duels().Create(ctx, next))
}

func TestCounter_CountsSinceBoundary(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		newAccount(t, s, id)
	}

	opponents := []string{"bob", "carol", "dave"}
	for i, at := range []time.Time{t0.Add(-24 * time.Hour), t0, t0.Add(time.Minute)} {
		d, err := duel.NewDuel(duel.NewDuelParams{ID: fmt.Sprintf("d%d", i), ChallengerID: "alice", ChallengedID: opponents[i], ProblemRef: "x", TimeLimitMinutes: 30, Now: at}, duel.DefaultLimits())
		require.NoError(t, err)
		require.NoError(t, s.Duels().Create(ctx, d))
	}

	n, err := s.Counter().CountSince(ctx, "alice", ratelimit.ActionDuelChallenge, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Counter().CountSince(ctx, "alice", "teleport", t0)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCatalog_RecentRatingAndOracle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	r, err := s.Catalog().RecentRating(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, problem.DefaultRating, r)

	s.AddProblem(problem.Problem{Ref: "cf:1A", Rating: 1000})
	s.AddProblem(problem.Problem{Ref: "cf:2B", Rating: 1500})
	s.AddProblem(problem.Problem{Ref: "cf:3C", Rating: 1300})
	s.AddUserSolve("alice", "cf:1A", "s1", t0)
	s.AddUserSolve("alice", "cf:2B", "s2", t0.Add(time.Hour))

	r, err = s.Catalog().RecentRating(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, shared.Rating(1250), r)

	cands, err := s.Catalog().Candidates(ctx, problem.Filter{MinRating: 900, MaxRating: 1600, ExcludeSolvedBy: []string{"alice"}})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "cf:3C", cands[0].Ref)

	v, err := s.Catalog().Accepted(ctx, "alice", "cf:2B", t0)
	require.NoError(t, err)
	assert.True(t, v.Accepted)
	assert.Equal(t, "s2", v.SubmissionID)

	v, err = s.Catalog().Accepted(ctx, "alice", "cf:1A", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, v.Accepted)
}
