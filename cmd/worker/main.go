// Package main - точка входа фонового процесса движка соревнований.
//
// Worker собирает движок поверх PostgreSQL (или in-memory хранилища для
// разработки), доставляет уведомления через Redis pub/sub и по расписанию
// закрывает дуэли, у которых истёк срок.
//
// Управление схемой БД без запуска движка:
//
//	worker migrate up|down|status
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/alem-hub/arena-engine/config"
	"github.com/alem-hub/arena-engine/internal/application/engine"
	"github.com/alem-hub/arena-engine/internal/domain/notification"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/internal/infrastructure/health"
	"github.com/alem-hub/arena-engine/internal/infrastructure/messaging"
	"github.com/alem-hub/arena-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/arena-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/arena-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/arena-engine/internal/infrastructure/scheduler"
	"github.com/alem-hub/arena-engine/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/arena-engine/pkg/circuitbreaker"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/retry"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = migrate(ctx, os.Args[2:])
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: !cfg.IsProduction(),
	})
	defer log.Sync()

	log.Info("starting arena worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.Bool("memory_store", cfg.UsesMemoryStore()),
	)

	logFeatures(log, cfg.Features)

	rules, err := cfg.Rules.EngineRules()
	if err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	deps, storeChecks, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var notifier notification.Notifier = messaging.NewLogNotifier(log)
	probes := health.NewChecker(cfg.App.Version, 5*time.Second)
	for name, check := range storeChecks {
		probes.AddCheck(name, check)
	}

	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, caching and pub/sub disabled", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()
			deps.Standings = redis.NewBossStandings(cache)
			deps.Quests = redis.NewCachedQuestRepository(deps.Quests, cache, cfg.Redis.QuestCacheTTL)

			breaker := circuitbreaker.NotifierBreaker(shared.IsRetryable, func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
			notifier = messaging.NewBreakerNotifier(messaging.NewRedisNotifier(cache), breaker)
			probes.AddCheck("redis", health.PingCheck(cache))
			probes.AddCheck("notifier", func(context.Context) error {
				if st := breaker.State(); st == circuitbreaker.StateOpen {
					return fmt.Errorf("circuit %s", st)
				}
				return nil
			})
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. СОБЫТИЯ И УВЕДОМЛЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	dispatchCfg := messaging.DefaultDispatcherConfig(notifier)
	dispatchCfg.Logger = log
	dispatchCfg.Filter = cfg.Features.AllowNotification
	dispatchCfg.RetryOptions = retry.Notifier(shared.IsRetryable)
	dispatcher := messaging.NewDispatcher(dispatchCfg)
	if cfg.Observability.LogLevel == "debug" {
		dispatcher.Use(messaging.LoggingMiddleware(log))
	}
	if err := dispatcher.Attach(bus); err != nil {
		return fmt.Errorf("attach dispatcher: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ДВИЖОК
	// ─────────────────────────────────────────────────────────────────────────
	deps.Publisher = bus
	deps.Logger = log
	deps.Calendar = timeutil.NewCalendar(cfg.App.Location)

	eng, err := engine.New(deps, rules)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = newScheduler(cfg, eng, probes, log)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	log.Info("arena worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("shutdown signal received", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Error("scheduler stop failed", logger.Err(err))
		}
	}
	bus.Drain()

	log.Info("shutdown completed")
	return nil
}

// migrate runs a schema command against DATABASE_URL and exits.
func migrate(ctx context.Context, args []string) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.UsesMemoryStore() {
		return fmt.Errorf("migrate: DATABASE_URL is not set")
	}

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	m := postgres.NewMigrator(conn)
	switch cmd {
	case "up":
		return m.Migrate(ctx)
	case "down":
		return m.Rollback(ctx)
	case "status":
		migrations, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, mig := range migrations {
			applied := "pending"
			if mig.IsApplied {
				applied = mig.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%03d  %-32s %s\n", mig.Version, mig.Name, applied)
		}
		return nil
	default:
		return fmt.Errorf("migrate: unknown command %q (want up, down or status)", cmd)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// ══════════════════════════════════════════════════════════════════════════════

// openStore returns engine dependencies backed by PostgreSQL, or by the
// in-memory store when no database is configured.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (engine.Deps, map[string]health.CheckFunc, func(), error) {
	if cfg.UsesMemoryStore() {
		log.Warn("DATABASE_URL is empty, using in-memory store")
		s := memory.NewStore()
		return engine.Deps{
			Tx:         s,
			Players:    s.Players(),
			Ledger:     s.Ledger(),
			Quests:     s.Quests(),
			Progress:   s.Quests(),
			Duels:      s.Duels(),
			Bosses:     s.Bosses(),
			Attendance: s.Attendance(),
			Courses:    s.Attendance(),
			Counter:    s.Counter(),
			Catalog:    s.Catalog(),
			Oracle:     s.Catalog(),
		}, nil, func() {}, nil
	}

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return engine.Deps{}, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closeFn := func() {
		log.Info("closing database connection")
		conn.Close()
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			closeFn()
			return engine.Deps{}, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	catalogCfg := postgres.DefaultCatalogConfig()
	catalogCfg.RatingCacheSize = cfg.Database.RatingCacheSize
	catalogCfg.RatingCacheTTL = cfg.Database.RatingCacheTTL
	catalog, err := postgres.NewCatalogRepository(conn, catalogCfg)
	if err != nil {
		closeFn()
		return engine.Deps{}, nil, nil, fmt.Errorf("catalog repository: %w", err)
	}

	quests := postgres.NewQuestRepository(conn)
	attendance := postgres.NewAttendanceRepository(conn)
	return engine.Deps{
		Tx:         conn,
		Players:    postgres.NewPlayerRepository(conn),
		Ledger:     postgres.NewLedgerRepository(conn),
		Quests:     quests,
		Progress:   quests,
		Duels:      postgres.NewDuelRepository(conn),
		Bosses:     postgres.NewBossRepository(conn),
		Attendance: attendance,
		Courses:    attendance,
		Counter:    postgres.NewRateLimitCounter(conn),
		Catalog:    catalog,
		Oracle:     catalog,
	}, map[string]health.CheckFunc{"postgres": health.PingCheck(conn)}, closeFn, nil
}

// logFeatures reports every flag that is not fully on.
func logFeatures(log *logger.Logger, ff *config.FeatureFlags) {
	features := ff.GetAllFeatures()
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := features[name]
		if f.Enabled && f.RolloutPercent >= 100 {
			continue
		}
		log.Info("feature restricted",
			logger.String("feature", name),
			logger.Bool("enabled", f.Enabled),
			logger.Int("rollout_percent", f.RolloutPercent),
		)
	}
}

func newScheduler(cfg *config.Config, eng *engine.Engine, probes *health.Checker, log *logger.Logger) (*scheduler.Scheduler, error) {
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	schedCfg.StopTimeout = cfg.App.ShutdownTimeout

	sched, err := scheduler.NewScheduler(schedCfg)
	if err != nil {
		return nil, err
	}
	sched.OnJobError(func(name string, err error) {
		log.Warn("scheduled job failed", logger.String("job", name), logger.Err(err))
	})

	if cfg.Features.IsEnabled(config.FeatureJobSettleDuels) {
		settleCfg := jobs.DefaultSettleDuelsConfig()
		settleCfg.BatchSize = cfg.Scheduler.SettleBatchSize
		settleCfg.Concurrency = cfg.Scheduler.SettleConcurrency
		settleCfg.Timeout = cfg.Scheduler.JobTimeout

		job := jobs.NewSettleDuelsJob(eng, log, settleCfg)
		if err := sched.Register(job, scheduler.NewIntervalSchedule(cfg.Scheduler.SettleDuelsInterval)); err != nil {
			return nil, fmt.Errorf("register settle_duels: %w", err)
		}
	}

	if cfg.Scheduler.HealthCheckInterval > 0 {
		job := jobs.NewHealthCheckJob(probes, log)
		if err := sched.Register(job, scheduler.NewIntervalSchedule(cfg.Scheduler.HealthCheckInterval)); err != nil {
			return nil, fmt.Errorf("register health_check: %w", err)
		}
	}
	return sched, nil
}
