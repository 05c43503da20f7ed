package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/queue"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

// NoShowScheduler schedules a deferred no-show check for a called token. The queue
// core has no wall-clock scheduling of its own; the background worker implements this.
type NoShowScheduler interface {
	ScheduleNoShowCheck(ctx context.Context, tokenNumber string, grace time.Duration) error
}

// StatsSink receives completion figures for external reporting aggregation.
type StatsSink interface {
	RecordCompletion(ctx context.Context, departmentID string, waitMinutes, serviceMinutes int)
}

// LogStatsSink logs completion figures. Stands in when no aggregation backend is wired;
// the background worker folds stored completions into department averages either way.
type LogStatsSink struct {
	Logger *zap.Logger
}

func (s LogStatsSink) RecordCompletion(ctx context.Context, departmentID string, waitMinutes, serviceMinutes int) {
	s.Logger.Info("service completed",
		zap.String("department_id", departmentID),
		zap.Int("wait_minutes", waitMinutes),
		zap.Int("service_minutes", serviceMinutes))
}

// TokenService coordinates the token queue lifecycle: issuance, calling, service,
// completion, cancellation and transfer. Ordering truth lives in the in-memory
// engine; the repositories provide durability and the cross-instance compare-and-set
// on status transitions.
type TokenService struct {
	engine      *queue.Engine
	coordinator *queue.Coordinator
	estimator   *queue.Estimator
	sequencer   queue.Sequencer
	tokens      repository.TokenRepository
	departments repository.DepartmentRepository
	counters    repository.CounterRepository
	history     repository.TokenHistoryRepository
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	scheduler   NoShowScheduler
	stats       StatsSink
	logger      *zap.Logger
	noShowGrace time.Duration
	clock       func() time.Time

	mu     sync.Mutex
	active map[string]string        // customerID|businessDate -> tokenNumber
	byNum  map[string]*domain.Token // cache of non-terminal tokens
}

// TokenDependencies bundles collaborators for the token service.
type TokenDependencies struct {
	Engine      *queue.Engine
	Coordinator *queue.Coordinator
	Estimator   *queue.Estimator
	Sequencer   queue.Sequencer
	TokenRepo   repository.TokenRepository
	DeptRepo    repository.DepartmentRepository
	CounterRepo repository.CounterRepository
	HistoryRepo repository.TokenHistoryRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Scheduler   NoShowScheduler
	Stats       StatsSink
	Logger      *zap.Logger
	NoShowGrace time.Duration
}

// NewTokenService constructs the service.
func NewTokenService(deps TokenDependencies) *TokenService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		engine:      deps.Engine,
		coordinator: deps.Coordinator,
		estimator:   deps.Estimator,
		sequencer:   deps.Sequencer,
		tokens:      deps.TokenRepo,
		departments: deps.DeptRepo,
		counters:    deps.CounterRepo,
		history:     deps.HistoryRepo,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		scheduler:   deps.Scheduler,
		stats:       deps.Stats,
		logger:      logger,
		noShowGrace: deps.NoShowGrace,
		clock:       time.Now,
		active:      make(map[string]string),
		byNum:       make(map[string]*domain.Token),
	}
}

// WithClock overrides the time source for tests.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	s.clock = clock
	return s
}

// Rebuild restores in-memory queue state from the token store at startup: waiting
// sets per active department, sequence counters and the active-token index.
func (s *TokenService) Rebuild(ctx context.Context) error {
	if s.tokens == nil || s.departments == nil {
		return nil
	}
	depts, err := s.departments.ListActive(ctx)
	if err != nil {
		return err
	}
	memSeq, _ := s.sequencer.(*queue.MemorySequencer)
	for _, dept := range depts {
		waiting, err := s.tokens.ListWaitingByDepartment(ctx, dept.ID)
		if err != nil {
			return err
		}
		s.engine.Rebuild(dept.ID, waiting)

		s.mu.Lock()
		for _, token := range waiting {
			s.active[activeKey(token.CustomerID, token.BusinessDate)] = token.TokenNumber
			s.byNum[token.TokenNumber] = token
		}
		s.mu.Unlock()

		if memSeq != nil {
			date := queue.BusinessDate(s.clock())
			last, err := s.tokens.MaxSequence(ctx, dept.ID, date)
			if err != nil {
				return err
			}
			memSeq.Seed(dept.ID, date, last)
		}
		s.logger.Info("queue rebuilt",
			zap.String("department_id", dept.ID),
			zap.Int("waiting", len(waiting)))
	}
	return nil
}

// IssueToken creates a token in WAITING state: it reserves the next sequence number,
// enqueues per the department's queue type and persists the result.
func (s *TokenService) IssueToken(ctx context.Context, customerID, departmentID string, priority int) (*domain.Token, error) {
	if priority < domain.MinPriority || priority > domain.MaxPriority {
		return nil, queue.ErrInvalidPriority
	}
	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if !dept.IsActive {
		return nil, apperrors.NewValidationError("department inactive", nil)
	}

	now := s.clock()
	if !dept.OpenAt(now) {
		return nil, queue.ErrDepartmentClosed
	}
	businessDate := queue.BusinessDate(now)

	if err := s.claimActiveSlot(ctx, customerID, businessDate); err != nil {
		return nil, err
	}

	seq, err := s.sequencer.Next(ctx, dept, businessDate)
	if err != nil {
		s.releaseActiveSlot(customerID, businessDate, "")
		return nil, err
	}

	token := &domain.Token{
		ID:            uuid.NewString(),
		TokenNumber:   queue.FormatTokenNumber(dept.Code, businessDate, seq),
		DisplayNumber: queue.FormatDisplayNumber(dept.Code, seq),
		CustomerID:    customerID,
		DepartmentID:  departmentID,
		Priority:      priority,
		Status:        domain.TokenStatusWaiting,
		BusinessDate:  businessDate,
		IssuedAt:      now,
	}

	if err := s.engine.Enqueue(dept.QueueType, token); err != nil {
		s.releaseActiveSlot(customerID, businessDate, "")
		return nil, err
	}

	if s.tokens != nil {
		if err := s.tokens.Create(ctx, token); err != nil {
			_, _ = s.engine.Remove(departmentID, token.TokenNumber)
			s.releaseActiveSlot(customerID, businessDate, "")
			return nil, err
		}
	}

	s.mu.Lock()
	s.active[activeKey(customerID, businessDate)] = token.TokenNumber
	s.byNum[token.TokenNumber] = token
	s.mu.Unlock()

	s.recordChange(ctx, token.TokenNumber, domain.ChangeTypeStatus, nil, map[string]any{
		"status":   domain.TokenStatusWaiting,
		"position": token.Position(),
	})
	s.metrics.RecordQueueOp(departmentID, "issued")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTokenIssued,
		TokenNumber:  token.TokenNumber,
		DepartmentID: departmentID,
		Payload: events.TokenIssuedPayload{
			DisplayNumber: token.DisplayNumber,
			CustomerID:    customerID,
			Priority:      priority,
			QueuePosition: token.Position(),
			EstimatedWait: s.estimator.Estimate(dept, priority),
		},
	})
	return token, nil
}

// CallNext picks, reserves and calls the next eligible token for the counter. The
// reservation extends to the token store so concurrent instances cannot call the
// same token; lost races retry up to the coordinator's bound.
func (s *TokenService) CallNext(ctx context.Context, counterID string) (*domain.Token, error) {
	counter, err := s.counters.GetByID(ctx, counterID)
	if err != nil {
		return nil, err
	}

	var reserve queue.ReserveFunc
	if s.tokens != nil {
		reserve = func(ctx context.Context, t *domain.Token, counter *domain.Counter) error {
			err := s.tokens.Reserve(ctx, t, counter)
			if errors.Is(err, queue.ErrTokenNotFound) {
				// Issuance persists the row just after enqueueing, so a miss here
				// is a not-yet-visible row, not a missing token. Retry.
				return queue.ErrConcurrencyConflict
			}
			return err
		}
	}
	token, err := s.coordinator.RequestNext(ctx, counter, reserve)
	if err != nil {
		return nil, err
	}

	if s.scheduler != nil && s.noShowGrace > 0 {
		if err := s.scheduler.ScheduleNoShowCheck(ctx, token.TokenNumber, s.noShowGrace); err != nil {
			s.logger.Warn("failed to schedule no-show check",
				zap.String("token_number", token.TokenNumber), zap.Error(err))
		}
	}

	// Report against the counter's department: a concurrent transfer may already be
	// rewriting the token's own department field.
	s.recordChange(ctx, token.TokenNumber, domain.ChangeTypeStatus,
		map[string]any{"status": domain.TokenStatusWaiting},
		map[string]any{"status": domain.TokenStatusCalled, "counter_id": counterID})
	s.metrics.RecordQueueOp(counter.DepartmentID, "called")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTokenCalled,
		TokenNumber:  token.TokenNumber,
		DepartmentID: counter.DepartmentID,
		Payload: events.TokenCalledPayload{
			DisplayNumber: token.DisplayNumber,
			CounterID:     counterID,
		},
	})
	return token, nil
}

// StartService transitions a called token into service and fixes its wait time.
func (s *TokenService) StartService(ctx context.Context, tokenNumber, staffID string) (*domain.Token, error) {
	token, err := s.getToken(ctx, tokenNumber)
	if err != nil {
		return nil, err
	}

	restore := *token
	if err := queue.StartService(token, s.clock()); err != nil {
		return nil, err
	}
	if err := s.persistTransition(ctx, token, domain.TokenStatusCalled); err != nil {
		*token = restore
		return nil, err
	}

	s.recordChange(ctx, tokenNumber, domain.ChangeTypeStatus,
		map[string]any{"status": domain.TokenStatusCalled},
		map[string]any{"status": domain.TokenStatusInService, "staff_id": staffID})
	s.publishEvent(ctx, events.Event{
		Type:         events.EventServiceStarted,
		TokenNumber:  tokenNumber,
		DepartmentID: token.DepartmentID,
		Payload: events.ServiceStartedPayload{
			CounterID:       derefOr(token.CounterID, ""),
			StaffID:         staffID,
			WaitTimeMinutes: derefOr(token.WaitTimeMinutes, 0),
		},
	})
	return token, nil
}

// CompleteService finishes a token in service, frees its counter and reports the
// completion to the statistics sink.
func (s *TokenService) CompleteService(ctx context.Context, tokenNumber, notes string, rating *int) (*domain.Token, error) {
	token, err := s.getToken(ctx, tokenNumber)
	if err != nil {
		return nil, err
	}

	restore := *token
	counterID := token.CounterID
	if err := queue.Complete(token, notes, rating, s.clock()); err != nil {
		return nil, err
	}
	if err := s.persistTransition(ctx, token, domain.TokenStatusInService); err != nil {
		*token = restore
		return nil, err
	}

	s.freeCounter(ctx, counterID)
	s.retire(token)

	waitMin := derefOr(token.WaitTimeMinutes, 0)
	serviceMin := derefOr(token.ServiceTimeMinutes, 0)
	if s.stats != nil {
		s.stats.RecordCompletion(ctx, token.DepartmentID, waitMin, serviceMin)
	}
	s.recordChange(ctx, tokenNumber, domain.ChangeTypeStatus,
		map[string]any{"status": domain.TokenStatusInService},
		map[string]any{"status": domain.TokenStatusCompleted})
	s.metrics.RecordQueueOp(token.DepartmentID, "completed")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTokenCompleted,
		TokenNumber:  tokenNumber,
		DepartmentID: token.DepartmentID,
		Payload: events.TokenCompletedPayload{
			CounterID:          derefOr(counterID, ""),
			WaitTimeMinutes:    waitMin,
			ServiceTimeMinutes: serviceMin,
			Rating:             rating,
		},
	})
	return token, nil
}

// CancelToken aborts a waiting or called token. The status change and the removal
// from the waiting set happen under the department lock as one unit, so a concurrent
// call-next can never pick up a half-cancelled token.
func (s *TokenService) CancelToken(ctx context.Context, tokenNumber, reason string) (*domain.Token, error) {
	token, err := s.getToken(ctx, tokenNumber)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var restore domain.Token
	wasWaiting, position, err := s.engine.Transition(token.DepartmentID, token, func(t *domain.Token) error {
		restore = *t
		return queue.Cancel(t, reason, now)
	})
	if err != nil {
		return nil, err
	}
	fromStatus := restore.Status
	counterID := restore.CounterID

	if err := s.persistTransition(ctx, token, fromStatus); err != nil {
		*token = restore
		if wasWaiting {
			s.engine.Unclaim(token.DepartmentID, token, position)
		}
		return nil, err
	}

	if fromStatus == domain.TokenStatusCalled {
		s.freeCounter(ctx, counterID)
	}
	s.retire(token)

	s.recordChange(ctx, tokenNumber, domain.ChangeTypeStatus,
		map[string]any{"status": fromStatus},
		map[string]any{"status": domain.TokenStatusCancelled, "reason": reason})
	s.metrics.RecordQueueOp(token.DepartmentID, "cancelled")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTokenCancelled,
		TokenNumber:  tokenNumber,
		DepartmentID: token.DepartmentID,
		Payload: events.TokenCancelledPayload{
			Reason:     reason,
			FromStatus: fromStatus,
		},
	})
	return token, nil
}

// MarkNoShow records that a customer did not appear within the grace period. Driven
// by the background worker, never by an internal timer.
func (s *TokenService) MarkNoShow(ctx context.Context, tokenNumber string) (*domain.Token, error) {
	token, err := s.getToken(ctx, tokenNumber)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var restore domain.Token
	wasWaiting, position, err := s.engine.Transition(token.DepartmentID, token, func(t *domain.Token) error {
		restore = *t
		return queue.MarkNoShow(t, now)
	})
	if err != nil {
		return nil, err
	}
	fromStatus := restore.Status
	counterID := restore.CounterID

	if err := s.persistTransition(ctx, token, fromStatus); err != nil {
		*token = restore
		if wasWaiting {
			s.engine.Unclaim(token.DepartmentID, token, position)
		}
		return nil, err
	}

	if fromStatus == domain.TokenStatusCalled {
		s.freeCounter(ctx, counterID)
	}
	s.retire(token)

	s.recordChange(ctx, tokenNumber, domain.ChangeTypeStatus,
		map[string]any{"status": fromStatus},
		map[string]any{"status": domain.TokenStatusNoShow})
	s.metrics.RecordQueueOp(token.DepartmentID, "no_show")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTokenNoShow,
		TokenNumber:  tokenNumber,
		DepartmentID: token.DepartmentID,
		Payload:      events.TokenNoShowPayload{FromStatus: fromStatus},
	})
	return token, nil
}

// TransferToken moves a non-terminal token to another department, re-enqueueing it
// there under the destination's policy with a fresh position.
func (s *TokenService) TransferToken(ctx context.Context, tokenNumber, newDepartmentID string, newCounterID *string, reason string) (*domain.Token, error) {
	token, err := s.getToken(ctx, tokenNumber)
	if err != nil {
		return nil, err
	}
	dest, err := s.departments.GetByID(ctx, newDepartmentID)
	if err != nil {
		return nil, err
	}
	if !dest.IsActive {
		return nil, apperrors.NewValidationError("destination department inactive", nil)
	}

	fromDept := token.DepartmentID
	now := s.clock()
	var restore domain.Token
	wasWaiting, position, err := s.engine.Transition(fromDept, token, func(t *domain.Token) error {
		restore = *t
		return queue.Transfer(t, newDepartmentID, newCounterID, reason, now)
	})
	if err != nil {
		return nil, err
	}
	fromStatus := restore.Status
	counterID := restore.CounterID

	if err := s.engine.Enqueue(dest.QueueType, token); err != nil {
		*token = restore
		if wasWaiting {
			s.engine.Unclaim(fromDept, token, position)
		}
		return nil, err
	}
	if err := s.persistTransition(ctx, token, fromStatus); err != nil {
		// Restore and leave the destination queue in the same unit, so the rolled
		// back token is never claimable there.
		s.engine.Transition(newDepartmentID, token, func(t *domain.Token) error {
			*t = restore
			return nil
		})
		if wasWaiting {
			s.engine.Unclaim(fromDept, token, position)
		}
		return nil, err
	}

	if fromStatus == domain.TokenStatusCalled || fromStatus == domain.TokenStatusInService {
		s.freeCounter(ctx, counterID)
	}

	// The hop itself is stamped TRANSFERRED in the audit trail; the live token is
	// back to WAITING in the destination queue.
	s.recordChange(ctx, tokenNumber, domain.ChangeTypeTransfer,
		map[string]any{"department_id": fromDept, "status": fromStatus},
		map[string]any{
			"status":        domain.TokenStatusTransferred,
			"department_id": newDepartmentID,
			"position":      token.Position(),
			"reason":        reason,
		})
	s.metrics.RecordQueueOp(fromDept, "transferred")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTokenTransferred,
		TokenNumber:  tokenNumber,
		DepartmentID: newDepartmentID,
		Payload: events.TokenTransferredPayload{
			FromDepartmentID: fromDept,
			ToDepartmentID:   newDepartmentID,
			Reason:           reason,
			NewQueuePosition: token.Position(),
		},
	})
	return token, nil
}

// EstimateWait returns the advisory wait estimate in minutes for a prospective token.
func (s *TokenService) EstimateWait(ctx context.Context, departmentID string, priority int) (int, error) {
	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		return 0, err
	}
	return s.estimator.Estimate(dept, priority), nil
}

// ReorderQueue applies an administrative explicit ordering to a department's waiting
// set and persists the new positions.
func (s *TokenService) ReorderQueue(ctx context.Context, departmentID string, order []string) error {
	reordered, err := s.engine.Reorder(departmentID, order)
	if err != nil {
		return err
	}
	var firstErr error
	for _, token := range reordered {
		if s.tokens != nil {
			err := s.tokens.UpdateWithStatusCheck(ctx, token, domain.TokenStatusWaiting)
			if errors.Is(err, queue.ErrConcurrencyConflict) || errors.Is(err, queue.ErrTokenNotFound) {
				// The token left the waiting set since the reorder; the stored
				// state wins.
				continue
			}
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}
		s.recordChange(ctx, token.TokenNumber, domain.ChangeTypePosition,
			nil, map[string]any{"position": token.Position()})
	}
	return firstErr
}

// ListQueue returns the department's waiting tokens in queue order.
func (s *TokenService) ListQueue(departmentID string) []*domain.Token {
	return s.engine.Snapshot(departmentID)
}

// GetToken fetches a token by canonical number.
func (s *TokenService) GetToken(ctx context.Context, tokenNumber string) (*domain.Token, error) {
	return s.getToken(ctx, tokenNumber)
}

// GetHistory lists a token's audit trail.
func (s *TokenService) GetHistory(ctx context.Context, tokenNumber string) ([]domain.TokenHistory, error) {
	if s.history == nil {
		return []domain.TokenHistory{}, nil
	}
	return s.history.ListByToken(ctx, tokenNumber)
}

func (s *TokenService) getToken(ctx context.Context, tokenNumber string) (*domain.Token, error) {
	s.mu.Lock()
	token, ok := s.byNum[tokenNumber]
	s.mu.Unlock()
	if ok {
		return token, nil
	}
	if s.tokens == nil {
		return nil, queue.ErrTokenNotFound
	}
	token, err := s.tokens.GetByNumber(ctx, tokenNumber)
	if err != nil {
		return nil, err
	}
	if token.Status.IsActive() {
		s.mu.Lock()
		s.byNum[tokenNumber] = token
		s.mu.Unlock()
	}
	return token, nil
}

// claimActiveSlot enforces one active token per customer per business date. The
// in-memory index catches races inside this instance; the partial unique index in
// the store backs it across instances.
func (s *TokenService) claimActiveSlot(ctx context.Context, customerID, businessDate string) error {
	s.mu.Lock()
	if _, exists := s.active[activeKey(customerID, businessDate)]; exists {
		s.mu.Unlock()
		return queue.ErrDuplicateActiveToken
	}
	// Reserve the slot before the store check so a concurrent issuance for the same
	// customer fails fast instead of double-issuing.
	s.active[activeKey(customerID, businessDate)] = ""
	s.mu.Unlock()

	if s.tokens != nil {
		has, err := s.tokens.HasActiveToken(ctx, customerID, businessDate)
		if err != nil {
			s.releaseActiveSlot(customerID, businessDate, "")
			return err
		}
		if has {
			s.releaseActiveSlot(customerID, businessDate, "")
			return queue.ErrDuplicateActiveToken
		}
	}
	return nil
}

func (s *TokenService) releaseActiveSlot(customerID, businessDate, expected string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := activeKey(customerID, businessDate)
	if current, ok := s.active[key]; ok && current == expected {
		delete(s.active, key)
	}
}

// retire drops a terminal token from the active indexes.
func (s *TokenService) retire(token *domain.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byNum, token.TokenNumber)
	key := activeKey(token.CustomerID, token.BusinessDate)
	if s.active[key] == token.TokenNumber {
		delete(s.active, key)
	}
}

// persistTransition writes the token with a compare-and-set on the previous status,
// so a stale in-memory view can never overwrite a newer stored state.
func (s *TokenService) persistTransition(ctx context.Context, token *domain.Token, expected domain.TokenStatus) error {
	if s.tokens == nil {
		return nil
	}
	return s.tokens.UpdateWithStatusCheck(ctx, token, expected)
}

func (s *TokenService) freeCounter(ctx context.Context, counterID *string) {
	if counterID == nil {
		return
	}
	if s.counters == nil {
		return
	}
	if err := s.counters.ClearToken(ctx, *counterID); err != nil {
		s.logger.Warn("failed to clear counter", zap.String("counter_id", *counterID), zap.Error(err))
	}
}

func (s *TokenService) recordChange(ctx context.Context, tokenNumber string, changeType domain.TokenChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TokenHistory{
		TokenNumber: tokenNumber,
		ChangeType:  changeType,
		OldValue:    oldValue,
		NewValue:    newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record history", zap.String("token_number", tokenNumber), zap.Error(err))
	}
}

func (s *TokenService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func activeKey(customerID, businessDate string) string {
	return customerID + "|" + businessDate
}

func derefOr[T any](ptr *T, fallback T) T {
	if ptr == nil {
		return fallback
	}
	return *ptr
}
