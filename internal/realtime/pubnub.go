package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	pubnubgo "github.com/pubnub/go/v7"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
)

// Publisher pushes queue updates to customer-facing display channels. Department
// channels carry "now serving" updates for waiting room screens; token channels
// carry personal updates for a single customer.
type Publisher interface {
	PublishDepartment(ctx context.Context, departmentID string, message any) error
	PublishToken(ctx context.Context, tokenNumber string, message any) error
}

var _ Publisher = (*pubNubPublisher)(nil)

type pubNubPublisher struct {
	pn     *pubnubgo.PubNub
	logger *zap.Logger
}

// NewPubNubPublisher builds a PubNub-backed publisher. Returns a no-op publisher
// when keys are not configured so callers never need a nil check.
func NewPubNubPublisher(cfg config.PubNubConfig, logger *zap.Logger) Publisher {
	if cfg.PublishKey == "" || cfg.SubscribeKey == "" {
		logger.Info("pubnub keys not configured, realtime publishing disabled")
		return NopPublisher{}
	}

	pnCfg := pubnubgo.NewConfigWithUserId(pubnubgo.UserId(cfg.UserID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey

	return &pubNubPublisher{
		pn:     pubnubgo.NewPubNub(pnCfg),
		logger: logger,
	}
}

func (p *pubNubPublisher) PublishDepartment(ctx context.Context, departmentID string, message any) error {
	return p.publish(ctx, fmt.Sprintf("department-%s", departmentID), message)
}

func (p *pubNubPublisher) PublishToken(ctx context.Context, tokenNumber string, message any) error {
	return p.publish(ctx, fmt.Sprintf("token-%s", tokenNumber), message)
}

func (p *pubNubPublisher) publish(ctx context.Context, channel string, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	_, _, err = p.pn.PublishWithContext(ctx).
		Channel(channel).
		Message(string(payload)).
		Execute()
	if err != nil {
		return err
	}
	p.logger.Debug("published realtime update", zap.String("channel", channel))
	return nil
}

// NopPublisher discards all updates.
type NopPublisher struct{}

func (NopPublisher) PublishDepartment(ctx context.Context, departmentID string, message any) error {
	return nil
}

func (NopPublisher) PublishToken(ctx context.Context, tokenNumber string, message any) error {
	return nil
}
