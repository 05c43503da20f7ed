package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/queue"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
)

const (
	TypeNoShowCheck  = "token:no_show_check"
	TypeStatsRefresh = "stats:refresh"
)

// NoShowCheckPayload identifies the token to check after the grace period.
type NoShowCheckPayload struct {
	TokenNumber string `json:"token_number"`
}

// Scheduler enqueues deferred tasks. Implements service.NoShowScheduler.
type Scheduler struct {
	client *asynq.Client
}

var _ service.NoShowScheduler = (*Scheduler)(nil)

// NewScheduler creates a task client over the shared Redis instance.
func NewScheduler(redisOpt asynq.RedisClientOpt) *Scheduler {
	return &Scheduler{client: asynq.NewClient(redisOpt)}
}

// ScheduleNoShowCheck defers a no-show check until the grace period elapses.
func (s *Scheduler) ScheduleNoShowCheck(ctx context.Context, tokenNumber string, grace time.Duration) error {
	payload, err := json.Marshal(NoShowCheckPayload{TokenNumber: tokenNumber})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeNoShowCheck, payload)
	_, err = s.client.EnqueueContext(ctx, task, asynq.ProcessIn(grace))
	return err
}

// Close releases the underlying client.
func (s *Scheduler) Close() error {
	return s.client.Close()
}

// Worker processes background tasks: no-show checks for called tokens and the
// periodic refresh of department service time averages.
type Worker struct {
	tokens      *service.TokenService
	tokenRepo   repository.TokenRepository
	departments repository.DepartmentRepository
	statsWindow int
	logger      *zap.Logger
}

// NewWorker builds the task handlers.
func NewWorker(tokens *service.TokenService, tokenRepo repository.TokenRepository, departments repository.DepartmentRepository, statsWindow int, logger *zap.Logger) *Worker {
	return &Worker{
		tokens:      tokens,
		tokenRepo:   tokenRepo,
		departments: departments,
		statsWindow: statsWindow,
		logger:      logger,
	}
}

// HandleNoShowCheck marks a token no-show if it is still in CALLED when the grace
// period expires. A token that moved on is left alone.
func (w *Worker) HandleNoShowCheck(ctx context.Context, t *asynq.Task) error {
	var payload NoShowCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	token, err := w.tokens.GetToken(ctx, payload.TokenNumber)
	if err != nil {
		if errors.Is(err, queue.ErrTokenNotFound) {
			return nil
		}
		return err
	}
	if token.Status != domain.TokenStatusCalled {
		return nil
	}

	if _, err := w.tokens.MarkNoShow(ctx, payload.TokenNumber); err != nil {
		// The customer arrived between the status check and the transition.
		if errors.Is(err, queue.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	w.logger.Info("token marked no-show", zap.String("token_number", payload.TokenNumber))
	return nil
}

// HandleStatsRefresh recomputes each active department's rolling average service
// time from recent completions. The estimator reads the stored value.
func (w *Worker) HandleStatsRefresh(ctx context.Context, t *asynq.Task) error {
	if w.tokenRepo == nil || w.departments == nil {
		return nil
	}
	depts, err := w.departments.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, dept := range depts {
		avg, err := w.tokenRepo.AvgServiceMinutes(ctx, dept.ID, w.statsWindow)
		if err != nil {
			w.logger.Warn("stats refresh failed for department",
				zap.String("department_id", dept.ID), zap.Error(err))
			continue
		}
		if avg <= 0 {
			continue
		}
		if err := w.departments.UpdateAvgServiceTime(ctx, dept.ID, avg); err != nil {
			w.logger.Warn("failed to store service time average",
				zap.String("department_id", dept.ID), zap.Error(err))
		}
	}
	return nil
}

// Run starts the asynq server and the periodic stats scheduler. Blocks until the
// server stops.
func Run(redisOpt asynq.RedisClientOpt, cfg config.WorkerConfig, w *Worker, logger *zap.Logger) error {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Logger:      asynqLogger{logger: logger},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNoShowCheck, w.HandleNoShowCheck)
	mux.HandleFunc(TypeStatsRefresh, w.HandleStatsRefresh)

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register(cfg.StatsRefreshCron, asynq.NewTask(TypeStatsRefresh, nil)); err != nil {
		return err
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("stats scheduler stopped", zap.Error(err))
		}
	}()

	return srv.Run(mux)
}

// asynqLogger adapts zap to asynq's logger interface.
type asynqLogger struct {
	logger *zap.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Sugar().Debug(args...) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Sugar().Info(args...) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Sugar().Warn(args...) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Sugar().Error(args...) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Sugar().Fatal(args...) }
