package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PLAYERS & XP LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: users and the append-only XP ledger
-- Version: 001

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    xp BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    streak_shields INTEGER NOT NULL DEFAULT 0,
    last_solve_day DATE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp CHECK (xp >= 0),
    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_shields CHECK (streak_shields >= 0),
    CONSTRAINT valid_streak CHECK (current_streak >= 0 AND longest_streak >= current_streak)
);

-- One row per credited XP change. (user_id, dedup_key) makes grants idempotent.
CREATE TABLE IF NOT EXISTS xp_grants (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    amount BIGINT NOT NULL,
    reason VARCHAR(64) NOT NULL,
    dedup_key VARCHAR(200) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_amount CHECK (amount > 0),
    CONSTRAINT unique_grant_per_key UNIQUE (user_id, dedup_key)
);

CREATE INDEX IF NOT EXISTS idx_xp_grants_user_created ON xp_grants(user_id, created_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS xp_grants;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: QUESTS, DUELS, BOSS BATTLES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: competition tables
-- Version: 002

CREATE TABLE IF NOT EXISTS quests (
    id TEXT PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    condition_type VARCHAR(32) NOT NULL,
    target_count INTEGER NOT NULL,
    xp_reward BIGINT NOT NULL,
    week_start DATE NOT NULL,

    CONSTRAINT valid_condition CHECK (condition_type IN ('solve', 'duel_win', 'boss_solve', 'streak_day')),
    CONSTRAINT positive_target CHECK (target_count > 0),
    CONSTRAINT non_negative_reward CHECK (xp_reward >= 0)
);

CREATE INDEX IF NOT EXISTS idx_quests_week ON quests(week_start);

CREATE TABLE IF NOT EXISTS user_quest_progress (
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    quest_id TEXT NOT NULL REFERENCES quests(id) ON DELETE CASCADE,
    progress INTEGER NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,

    PRIMARY KEY (user_id, quest_id),
    CONSTRAINT non_negative_progress CHECK (progress >= 0)
);

CREATE TABLE IF NOT EXISTS duels (
    id UUID PRIMARY KEY,
    challenger_id TEXT NOT NULL REFERENCES users(id),
    challenged_id TEXT NOT NULL REFERENCES users(id),
    problem_ref VARCHAR(100) NOT NULL,
    time_limit_minutes INTEGER NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    winner_id TEXT REFERENCES users(id),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    started_at TIMESTAMP WITH TIME ZONE,
    expires_at TIMESTAMP WITH TIME ZONE,
    finished_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_duel_status CHECK (status IN ('pending', 'active', 'declined', 'completed', 'expired')),
    CONSTRAINT distinct_players CHECK (challenger_id <> challenged_id)
);

CREATE INDEX IF NOT EXISTS idx_duels_challenger_created ON duels(challenger_id, created_at);
CREATE INDEX IF NOT EXISTS idx_duels_active_expiry ON duels(expires_at) WHERE status = 'active';
CREATE UNIQUE INDEX IF NOT EXISTS idx_duels_open_pair ON duels(LEAST(challenger_id, challenged_id), GREATEST(challenger_id, challenged_id))
    WHERE status IN ('pending', 'active');

CREATE TABLE IF NOT EXISTS boss_battles (
    id TEXT PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    problem_ref VARCHAR(100) NOT NULL,
    starts_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ends_at TIMESTAMP WITH TIME ZONE NOT NULL,
    xp_first BIGINT NOT NULL,
    xp_top5 BIGINT NOT NULL,
    xp_others BIGINT NOT NULL,
    -- Rank counter. Incremented with UPDATE ... RETURNING so the row lock
    -- serializes concurrent submitters.
    solve_count INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_window CHECK (ends_at >= starts_at)
);

CREATE TABLE IF NOT EXISTS boss_solves (
    id UUID PRIMARY KEY,
    boss_id TEXT NOT NULL REFERENCES boss_battles(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id),
    solve_rank INTEGER NOT NULL,
    submission_id VARCHAR(100) NOT NULL DEFAULT '',
    solved_at TIMESTAMP WITH TIME ZONE NOT NULL,
    xp_awarded BIGINT NOT NULL DEFAULT 0,

    CONSTRAINT one_solve_per_user UNIQUE (boss_id, user_id),
    CONSTRAINT one_user_per_rank UNIQUE (boss_id, solve_rank),
    CONSTRAINT positive_rank CHECK (solve_rank > 0)
);
`

const migration002Down = `
DROP TABLE IF EXISTS boss_solves;
DROP TABLE IF EXISTS boss_battles;
DROP TABLE IF EXISTS duels;
DROP TABLE IF EXISTS user_quest_progress;
DROP TABLE IF EXISTS quests;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ATTENDANCE & PROBLEM CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: attendance and the read-only problem catalog
-- Version: 003

CREATE TABLE IF NOT EXISTS courses (
    id TEXT PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    -- Classes per weekday, index 1 = Monday.
    weekly_schedule INTEGER[] NOT NULL DEFAULT '{0,0,0,0,0,0,0}',
    semester_end DATE,

    CONSTRAINT week_has_seven_days CHECK (array_length(weekly_schedule, 1) = 7)
);

CREATE TABLE IF NOT EXISTS attendance_records (
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    date DATE NOT NULL,
    slot INTEGER NOT NULL,
    status VARCHAR(16) NOT NULL,
    marked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, course_id, date, slot),
    CONSTRAINT valid_attendance_status CHECK (status IN ('attended', 'bunked', 'cancelled'))
);

CREATE INDEX IF NOT EXISTS idx_attendance_user_marked ON attendance_records(user_id, marked_at);

-- Filled by the platform scraper.
CREATE TABLE IF NOT EXISTS problems (
    ref VARCHAR(100) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    rating INTEGER NOT NULL,
    tags TEXT[] NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_problems_rating ON problems(rating);

CREATE TABLE IF NOT EXISTS user_solves (
    user_id TEXT NOT NULL,
    problem_ref VARCHAR(100) NOT NULL REFERENCES problems(ref) ON DELETE CASCADE,
    submission_id VARCHAR(100) NOT NULL,
    accepted_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (user_id, problem_ref, submission_id)
);

CREATE INDEX IF NOT EXISTS idx_user_solves_user_time ON user_solves(user_id, accepted_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS user_solves;
DROP TABLE IF EXISTS problems;
DROP TABLE IF EXISTS attendance_records;
DROP TABLE IF EXISTS courses;
`
