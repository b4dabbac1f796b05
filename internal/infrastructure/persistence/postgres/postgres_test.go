package postgres

import (
	"context"
	"fmt"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// openTestDB connects to TEST_DATABASE_URL, applies migrations and returns a
// cleanup func. Tests are skipped when the variable is not set.
func openTestDB(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	conn, err := NewConnectionFromURL(ctx, url)
	require.NoError(t, err)
	require.NoError(t, NewMigrator(conn).Migrate(ctx))

	_, err = conn.Exec(ctx, `TRUNCATE users, quests, boss_battles, courses, problems, user_solves CASCADE`)
	require.NoError(t, err)

	t.Cleanup(conn.Close)
	return conn
}

func seedUsers(t *testing.T, conn *Connection, n int) []string {
	t.Helper()
	repo := NewPlayerRepository(conn)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%03d", i)
		acc, err := player.NewAccount(ids[i], time.Now())
		require.NoError(t, err)
		require.NoError(t, repo.Create(context.Background(), acc))
	}
	return ids
}

func TestBossRecordSolve_ConcurrentRanksAreContiguous(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	users := seedUsers(t, conn, 50)

	now := time.Now()
	_, err := conn.Exec(ctx, `
		INSERT INTO boss_battles (id, title, problem_ref, starts_at, ends_at, xp_first, xp_top5, xp_others)
		VALUES ('b1', 'Dragon', 'cf:1A', $1, $2, 500, 200, 50)`,
		now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	repo := NewBossRepository(conn)

	var g errgroup.Group
	for _, u := range users {
		u := u
		g.Go(func() error {
			return repo.RecordSolve(ctx, &boss.Solve{
				ID: uuid.NewString(), BossID: "b1", UserID: u, SolvedAt: time.Now(),
			})
		})
	}
	require.NoError(t, g.Wait())

	// Duplicate submission must not consume a rank.
	err = repo.RecordSolve(ctx, &boss.Solve{ID: uuid.NewString(), BossID: "b1", UserID: users[0], SolvedAt: time.Now()})
	assert.ErrorIs(t, err, shared.ErrConflict)

	solves, err := repo.ListSolves(ctx, "b1", 100)
	require.NoError(t, err)
	require.Len(t, solves, 50)

	ranks := make([]int, len(solves))
	for i, s := range solves {
		ranks[i] = s.Rank
	}
	sort.Ints(ranks)
	for i, r := range ranks {
		assert.Equal(t, i+1, r)
	}

	b, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 50, b.SolveCount)
}

func TestLedgerInsert_DedupKeyIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	users := seedUsers(t, conn, 1)
	ledger := NewLedgerRepository(conn)

	g, err := player.NewGrant(player.NewGrantParams{
		ID: uuid.NewString(), UserID: users[0], Amount: 40, Reason: player.ReasonManual, DedupKey: "k1", Now: time.Now(),
	})
	require.NoError(t, err)

	inserted, err := ledger.Insert(ctx, g)
	require.NoError(t, err)
	assert.True(t, inserted)

	g.ID = uuid.NewString()
	inserted, err = ledger.Insert(ctx, g)
	require.NoError(t, err)
	assert.False(t, inserted)

	sum, err := ledger.SumByUser(ctx, users[0])
	require.NoError(t, err)
	assert.Equal(t, player.XP(40), sum)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	users := seedUsers(t, conn, 1)
	players := NewPlayerRepository(conn)

	err := conn.WithinTx(ctx, func(ctx context.Context) error {
		if _, _, err := players.IncrementXP(ctx, users[0], 100); err != nil {
			return err
		}
		return shared.ErrQuestAlreadyCompleted
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	acc, err := players.GetByID(ctx, users[0])
	require.NoError(t, err)
	assert.Equal(t, player.XP(0), acc.XP)
}

func TestQuestSave_SecondCompletionLoses(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	users := seedUsers(t, conn, 1)

	_, err := conn.Exec(ctx, `
		INSERT INTO quests (id, title, condition_type, target_count, xp_reward, week_start)
		VALUES ('q1', 'Solve 3', 'solve', 3, 50, '2026-10-12')`)
	require.NoError(t, err)

	repo := NewQuestRepository(conn)
	now := time.Now()
	done := &quest.Progress{UserID: users[0], QuestID: "q1", Progress: 3, Completed: true, CompletedAt: &now}

	ok, err := repo.Save(ctx, done)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Save(ctx, done)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuestGet_ConcurrentFirstIncrementsAreNotLost(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	users := seedUsers(t, conn, 1)

	_, err := conn.Exec(ctx, `
		INSERT INTO quests (id, title, condition_type, target_count, xp_reward, week_start)
		VALUES ('q1', 'Solve many', 'solve', 100, 50, '2026-10-12')`)
	require.NoError(t, err)

	repo := NewQuestRepository(conn)
	const n = 20
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return conn.WithinTx(ctx, func(ctx context.Context) error {
				p, err := repo.Get(ctx, users[0], "q1")
				if err != nil {
					return err
				}
				if _, err := p.Advance(nil, 100, time.Now()); err != nil {
					return err
				}
				_, err = repo.Save(ctx, p)
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	got, err := repo.ListByUser(ctx, users[0], []string{"q1"})
	require.NoError(t, err)
	assert.Equal(t, n, got["q1"].Progress)
}

func TestQuestLockUser_LastTwoCompletionsSeeEachOther(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	users := seedUsers(t, conn, 1)

	_, err := conn.Exec(ctx, `
		INSERT INTO quests (id, title, condition_type, target_count, xp_reward, week_start)
		VALUES ('q1', 'One', 'solve', 1, 50, '2026-10-12'), ('q2', 'Two', 'solve', 1, 50, '2026-10-12')`)
	require.NoError(t, err)

	repo := NewQuestRepository(conn)
	sawAll := make([]bool, 2)
	var g errgroup.Group
	for i, id := range []string{"q1", "q2"} {
		g.Go(func() error {
			return conn.WithinTx(ctx, func(ctx context.Context) error {
				if err := repo.LockUser(ctx, users[0]); err != nil {
					return err
				}
				p, err := repo.Get(ctx, users[0], id)
				if err != nil {
					return err
				}
				if _, err := p.Advance(nil, 1, time.Now()); err != nil {
					return err
				}
				if _, err := repo.Save(ctx, p); err != nil {
					return err
				}
				progress, err := repo.ListByUser(ctx, users[0], []string{"q1", "q2"})
				if err != nil {
					return err
				}
				sawAll[i] = progress["q1"] != nil && progress["q1"].Completed &&
					progress["q2"] != nil && progress["q2"].Completed
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	// Exactly the later transaction sees both quests completed.
	assert.ElementsMatch(t, []bool{true, false}, sawAll)

	assert.ErrorIs(t, repo.LockUser(ctx, "ghost"), shared.ErrUserNotFound)
}

func TestMigrator_RollbackAndReapply(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	m := NewMigrator(conn)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, len(GetMigrations()))
	for _, mig := range status {
		assert.True(t, mig.IsApplied, mig.Name)
	}

	require.NoError(t, m.Rollback(ctx))
	status, err = m.Status(ctx)
	require.NoError(t, err)
	last := status[len(status)-1]
	assert.False(t, last.IsApplied)
	assert.True(t, status[0].IsApplied)

	require.NoError(t, m.Migrate(ctx))
	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status[len(status)-1].IsApplied)
}

func TestDuelCreate_CrossingChallengesOpenOneDuel(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	users := seedUsers(t, conn, 2)
	repo := NewDuelRepository(conn)

	results := make([]error, 2)
	var g errgroup.Group
	for i, pair := range [][2]string{{users[0], users[1]}, {users[1], users[0]}} {
		g.Go(func() error {
			d, err := duel.NewDuel(duel.NewDuelParams{
				ID: uuid.NewString(), ChallengerID: pair[0], ChallengedID: pair[1],
				ProblemRef: "cf:1A", TimeLimitMinutes: 30, Now: time.Now(),
			}, duel.DefaultLimits())
			if err != nil {
				return err
			}
			results[i] = conn.WithinTx(ctx, func(ctx context.Context) error {
				open, err := repo.HasOpenBetween(ctx, pair[0], pair[1])
				if err != nil {
					return err
				}
				if open {
					return shared.ErrDuelAlreadyOpen
				}
				return repo.Create(ctx, d)
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrDuelAlreadyOpen)
	}
	assert.Equal(t, 1, ok)
}
