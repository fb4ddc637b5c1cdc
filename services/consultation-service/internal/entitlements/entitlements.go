// Package entitlements answers whether a requester may book, from a local
// projection of billing subscription events.
package entitlements

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/gurubook/libs/kafkax"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventSubscriptionActivated = "billing.subscription.activated.v1"
	EventSubscriptionCanceled  = "billing.subscription.canceled.v1"
)

// Topics lists the billing topics the projection consumes.
var Topics = []string{EventSubscriptionActivated, EventSubscriptionCanceled}

type Store interface {
	HasActiveEntitlement(ctx context.Context, userID string, tiers []string) (bool, error)
	UpsertEntitlement(ctx context.Context, userID, tier string, active bool, at time.Time) error
}

// Checker allows everyone when no tiers are required.
type Checker struct {
	store         Store
	requiredTiers []string
}

func NewChecker(store Store, requiredTiers []string) *Checker {
	var tiers []string
	for _, t := range requiredTiers {
		if t = strings.TrimSpace(t); t != "" {
			tiers = append(tiers, t)
		}
	}
	return &Checker{store: store, requiredTiers: tiers}
}

func (c *Checker) CheckEntitlement(ctx context.Context, userID string) (bool, error) {
	if len(c.requiredTiers) == 0 {
		return true, nil
	}
	return c.store.HasActiveEntitlement(ctx, userID, c.requiredTiers)
}

type subscriptionEvent struct {
	UserID      string `json:"user_id"`
	BusinessID  string `json:"business_id"`
	Tier        string `json:"tier"`
	ActivatedAt string `json:"activated_at"`
	CanceledAt  string `json:"canceled_at"`
}

// Projector applies subscription events to the entitlement table.
type Projector struct {
	store  Store
	logger *zap.Logger
}

func NewProjector(store Store, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{store: store, logger: logger}
}

// Handle has the consumer.Handler signature.
func (p *Projector) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	var evt subscriptionEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		p.logger.Warn("malformed subscription event dropped", zap.String("event_id", meta.EventID), zap.Error(err))
		return nil
	}
	userID := evt.UserID
	if userID == "" {
		userID = evt.BusinessID
	}
	if userID == "" {
		p.logger.Warn("subscription event without subject dropped", zap.String("event_id", meta.EventID))
		return nil
	}

	var (
		active bool
		raw    string
	)
	switch meta.EventType {
	case EventSubscriptionActivated:
		active, raw = true, evt.ActivatedAt
	case EventSubscriptionCanceled:
		active, raw = false, evt.CanceledAt
	default:
		return nil
	}
	at := msg.Time
	if raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("%w: %s timestamp: %v", model.ErrInvalidInput, meta.EventType, err)
		}
		at = parsed
	}
	if at.IsZero() {
		at = time.Now()
	}

	if err := p.store.UpsertEntitlement(ctx, userID, evt.Tier, active, at.UTC()); err != nil {
		return fmt.Errorf("upsert entitlement: %w", err)
	}
	p.logger.Info("entitlement updated",
		zap.String("user_id", userID),
		zap.String("tier", evt.Tier),
		zap.Bool("active", active),
	)
	return nil
}
