package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/domain/notification"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	// godotenv never overrides a variable that exists, even when empty.
	for _, key := range []string{"DATABASE_URL", "DB_HOST", "DB_USER", "LOG_LEVEL", "RULES_FILE", "APP_ENV", "APP_TIMEZONE", "SCHEDULER_SETTLE_INTERVAL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Asia/Kolkata", cfg.App.Timezone)
	assert.NotNil(t, cfg.App.Location)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.UsesMemoryStore())
	assert.Equal(t, time.Minute, cfg.Scheduler.SettleDuelsInterval)

	rules, err := cfg.Rules.EngineRules()
	require.NoError(t, err)
	assert.Equal(t, int64(200), rules.Quest.WeeklyBonusXP)
	assert.Equal(t, 5, rules.Duel.DailyChallengeLimit)
	assert.InDelta(t, 0.76, rules.Calculator.Threshold, 1e-9)
}

func TestLoad_ReadsEnvFileWithoutOverridingEnvironment(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DB_HOST=db.local\nDB_USER=arena\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://arena:@db.local:5432/postgres?sslmode=require", cfg.Database.URL)
	assert.Equal(t, "warn", cfg.Observability.LogLevel)
}

func TestLoad_ProductionNeedsDatabase(t *testing.T) {
	isolate(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL is required in production")
}

func TestLoad_RejectsUnknownTimezone(t *testing.T) {
	isolate(t)
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.ErrorContains(t, err, "APP_TIMEZONE")
}

func TestLoadRules_OverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	doc := `
level_thresholds: [0, 50, 150]
duels:
  win_xp: 75
attendance:
  threshold: 0.75
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 50, 150}, rules.LevelThresholds)
	assert.Equal(t, int64(75), rules.Duels.WinXP)
	// Не указанные в файле поля сохраняют значения по умолчанию.
	assert.Equal(t, 5, rules.Duels.DailyChallengeLimit)
	assert.InDelta(t, 0.80, rules.Attendance.WarningCeiling, 1e-9)

	er, err := rules.EngineRules()
	require.NoError(t, err)
	assert.Equal(t, 3, er.Levels.MaxLevel().Int())
	assert.Equal(t, int64(75), er.Duel.WinXP)
}

func TestRulesConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RulesConfig)
		want   string
	}{
		{"thresholds", func(r *RulesConfig) { r.LevelThresholds = []int64{10, 20} }, "level_thresholds"},
		{"threshold", func(r *RulesConfig) { r.Attendance.Threshold = 1.5 }, "attendance"},
		{"minutes", func(r *RulesConfig) { r.Duels.MinMinutes = 0 }, "min_minutes"},
		{"limit", func(r *RulesConfig) { r.Duels.DailyChallengeLimit = 0 }, "daily_challenge_limit"},
		{"xp", func(r *RulesConfig) { r.Duels.WinXP = -1 }, "negative"},
		{"marks", func(r *RulesConfig) { r.Attendance.DailyMarkLimit = 0 }, "daily_mark_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRulesConfig()
			tt.mutate(&r)
			_, err := r.EngineRules()
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadRules_BadFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("duels: [not, a, map]"), 0o600))
	_, err = LoadRules(path)
	assert.Error(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// FEATURE FLAGS
// ══════════════════════════════════════════════════════════════════════════════

func TestFeatureFlags_EnvOverrides(t *testing.T) {
	t.Setenv("FEATURE_NOTIFY_STREAK", "false")
	t.Setenv("FEATURE_NOTIFY_QUEST", "0")

	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled(FeatureNotifyStreak))
	assert.False(t, ff.IsEnabled(FeatureNotifyQuest))
	assert.True(t, ff.IsEnabled(FeatureNotifyDuel))
	assert.False(t, ff.IsEnabled("unknown.feature"))

	all := ff.GetAllFeatures()
	assert.False(t, all[FeatureNotifyStreak].Enabled)
	assert.Equal(t, 0, all[FeatureNotifyQuest].RolloutPercent)

	// Copies: mutating the snapshot leaves the flags alone.
	f := all[FeatureNotifyDuel]
	f.Enabled = false
	all[FeatureNotifyDuel] = f
	assert.True(t, ff.IsEnabled(FeatureNotifyDuel))
}

func TestFeatureFlags_RolloutIsStablePerUser(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureNotifyLevelUp, 50))

	enabled := 0
	for i := 0; i < 1000; i++ {
		id := "user-" + strconv.Itoa(i)
		first := ff.IsEnabledFor(FeatureNotifyLevelUp, id)
		assert.Equal(t, first, ff.IsEnabledFor(FeatureNotifyLevelUp, id))
		if first {
			enabled++
		}
	}
	assert.InDelta(t, 500, enabled, 100)

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureNotifyLevelUp, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
}

func TestFeatureFlags_AllowNotification(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureNotifyDuel))
	ff.SetUserOverride("bob", FeatureNotifyDuel, true)

	alice := &notification.Notification{UserID: "alice", Type: notification.TypeDuelChallenge}
	bob := &notification.Notification{UserID: "bob", Type: notification.TypeDuelResult}
	boss := &notification.Notification{UserID: "alice", Type: notification.TypeBossSolved}

	assert.False(t, ff.AllowNotification(alice))
	assert.True(t, ff.AllowNotification(bob))
	assert.True(t, ff.AllowNotification(boss))

	ff.ClearUserOverrides("bob")
	assert.False(t, ff.AllowNotification(bob))
}
