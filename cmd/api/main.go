package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/queue-service/internal/api/http"
	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/persistence"
	"github.com/spec-kit/queue-service/internal/queue"
	"github.com/spec-kit/queue-service/internal/realtime"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.Configured() {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		tokenRepo   repository.TokenRepository
		deptRepo    repository.DepartmentRepository
		counterRepo repository.CounterRepository
		historyRepo repository.TokenHistoryRepository
	)
	if pg.Configured() {
		tokenRepo = repository.NewTokenRepository(pg.Pool)
		deptRepo = repository.NewDepartmentRepository(pg.Pool)
		counterRepo = repository.NewCounterRepository(pg.Pool)
		historyRepo = repository.NewTokenHistoryRepository(pg.Pool)
	} else {
		store := repository.NewMemoryStore()
		tokenRepo = store.Tokens()
		deptRepo = store.Departments()
		counterRepo = store.Counters()
		historyRepo = store.History()
	}

	policy := queue.Policy{Aging: queue.DefaultAging(cfg.Queue.AgingMinutesPerPoint)}
	engine := queue.NewEngine(policy)
	coordinator := queue.NewCoordinator(engine, cfg.Queue.CallMaxAttempts)
	estimator := queue.NewEstimator(engine, policy, cfg.Queue.DefaultAvgServiceMinutes)

	var sequencer queue.Sequencer
	if redis.Configured() {
		sequencer = queue.NewRedisSequencer(redis.Client)
	} else {
		sequencer = queue.NewMemorySequencer()
	}

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	publisher := realtime.NewPubNubPublisher(cfg.PubNub, logger)

	var scheduler *worker.Scheduler
	workerEnabled := cfg.Worker.Enabled && redis.Configured()
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if workerEnabled {
		scheduler = worker.NewScheduler(redisOpt)
		defer scheduler.Close()
	}

	tokenService := service.NewTokenService(service.TokenDependencies{
		Engine:      engine,
		Coordinator: coordinator,
		Estimator:   estimator,
		Sequencer:   sequencer,
		TokenRepo:   tokenRepo,
		DeptRepo:    deptRepo,
		CounterRepo: counterRepo,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Scheduler:   schedulerOrNil(scheduler),
		Stats:       service.LogStatsSink{Logger: logger},
		Logger:      logger,
		NoShowGrace: cfg.Queue.NoShowGrace(),
	})
	departmentService := service.NewDepartmentService(deptRepo, counterRepo, engine, logger)
	notificationService := service.NewNotificationService(dispatcher, publisher, logger)
	notificationService.RegisterHandlers()

	if err := tokenService.Rebuild(ctx); err != nil {
		logger.Fatal("failed to rebuild queue state", zap.Error(err))
	}

	if workerEnabled {
		w := worker.NewWorker(tokenService, tokenRepo, deptRepo, cfg.Queue.StatsWindow, logger)
		go func() {
			if err := worker.Run(redisOpt, cfg.Worker, w, logger); err != nil {
				logger.Error("worker stopped", zap.Error(err))
			}
		}()
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tokens:      handlers.NewTokensHandler(tokenService),
		Departments: handlers.NewDepartmentsHandler(departmentService, tokenService),
		Counters:    handlers.NewCountersHandler(departmentService, tokenService),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// schedulerOrNil avoids storing a typed nil in the NoShowScheduler interface.
func schedulerOrNil(s *worker.Scheduler) service.NoShowScheduler {
	if s == nil {
		return nil
	}
	return s
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
