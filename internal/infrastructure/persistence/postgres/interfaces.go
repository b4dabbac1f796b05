package postgres

import (
	"github.com/alem-hub/arena-engine/internal/domain/attendance"
	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/ratelimit"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

var (
	_ shared.Transactor           = (*Connection)(nil)
	_ player.Repository           = (*PlayerRepository)(nil)
	_ player.LedgerRepository     = (*LedgerRepository)(nil)
	_ quest.Repository            = (*QuestRepository)(nil)
	_ quest.ProgressRepository    = (*QuestRepository)(nil)
	_ duel.Repository             = (*DuelRepository)(nil)
	_ boss.Repository             = (*BossRepository)(nil)
	_ attendance.Repository       = (*AttendanceRepository)(nil)
	_ attendance.CourseRepository = (*AttendanceRepository)(nil)
	_ ratelimit.Counter           = (*RateLimitCounter)(nil)
	_ problem.Catalog             = (*CatalogRepository)(nil)
	_ problem.Oracle              = (*CatalogRepository)(nil)
)
