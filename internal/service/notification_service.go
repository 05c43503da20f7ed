package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/realtime"
)

// NotificationService fans queue events out to the realtime display channels.
// Department channels drive waiting room screens; token channels notify the
// customer the token belongs to.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  realtime.Publisher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, publisher realtime.Publisher, logger *zap.Logger) *NotificationService {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to queue events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTokenIssued, n.handleTokenIssued)
	n.dispatcher.Subscribe(events.EventTokenCalled, n.handleTokenCalled)
	n.dispatcher.Subscribe(events.EventTokenCompleted, n.handleDepartmentUpdate)
	n.dispatcher.Subscribe(events.EventTokenCancelled, n.handleDepartmentUpdate)
	n.dispatcher.Subscribe(events.EventTokenNoShow, n.handleDepartmentUpdate)
	n.dispatcher.Subscribe(events.EventTokenTransferred, n.handleTokenTransferred)
}

func (n *NotificationService) handleTokenIssued(ctx context.Context, event events.Event) error {
	n.logger.Info("token issued",
		zap.String("token_number", event.TokenNumber),
		zap.String("department_id", event.DepartmentID))
	n.publishToken(ctx, event)
	return nil
}

// handleTokenCalled drives the "now serving" display update.
func (n *NotificationService) handleTokenCalled(ctx context.Context, event events.Event) error {
	n.logger.Info("token called",
		zap.String("token_number", event.TokenNumber),
		zap.String("department_id", event.DepartmentID))
	n.publishDepartment(ctx, event)
	n.publishToken(ctx, event)
	return nil
}

func (n *NotificationService) handleTokenTransferred(ctx context.Context, event events.Event) error {
	n.logger.Info("token transferred",
		zap.String("token_number", event.TokenNumber),
		zap.String("department_id", event.DepartmentID))
	n.publishDepartment(ctx, event)
	n.publishToken(ctx, event)
	return nil
}

func (n *NotificationService) handleDepartmentUpdate(ctx context.Context, event events.Event) error {
	n.publishDepartment(ctx, event)
	return nil
}

func (n *NotificationService) publishDepartment(ctx context.Context, event events.Event) {
	if err := n.publisher.PublishDepartment(ctx, event.DepartmentID, event); err != nil {
		n.logger.Warn("department publish failed",
			zap.String("department_id", event.DepartmentID), zap.Error(err))
	}
}

func (n *NotificationService) publishToken(ctx context.Context, event events.Event) {
	if err := n.publisher.PublishToken(ctx, event.TokenNumber, event); err != nil {
		n.logger.Warn("token publish failed",
			zap.String("token_number", event.TokenNumber), zap.Error(err))
	}
}
