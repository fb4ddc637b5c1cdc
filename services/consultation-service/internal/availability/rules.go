package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/actor"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/clock"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
)

type RuleStore interface {
	GetGuru(ctx context.Context, guruID string) (model.Guru, error)
	ListRules(ctx context.Context, guruID string) ([]model.AvailabilityRule, error)
	GetRule(ctx context.Context, ruleID string) (model.AvailabilityRule, error)
	CreateRule(ctx context.Context, rule model.AvailabilityRule) error
	UpdateRule(ctx context.Context, rule model.AvailabilityRule) error
	DeleteRule(ctx context.Context, ruleID string) error
}

// Rules manages availability rules on behalf of gurus and admins.
type Rules struct {
	store RuleStore
	clock clock.Clock
}

func NewRules(store RuleStore, clk clock.Clock) *Rules {
	return &Rules{store: store, clock: clk}
}

func authorize(a actor.Actor, guruID string) error {
	if a.Has(actor.RoleAdmin) {
		return nil
	}
	if a.Has(actor.RoleGuru) && a.UserID == guruID {
		return nil
	}
	return fmt.Errorf("rules of guru %s: %w", guruID, model.ErrForbidden)
}

func (r *Rules) List(ctx context.Context, guruID string) ([]model.AvailabilityRule, error) {
	return r.store.ListRules(ctx, guruID)
}

func (r *Rules) Create(ctx context.Context, a actor.Actor, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	if err := authorize(a, rule.GuruID); err != nil {
		return model.AvailabilityRule{}, err
	}
	if err := rule.Validate(); err != nil {
		return model.AvailabilityRule{}, err
	}
	if _, err := r.store.GetGuru(ctx, rule.GuruID); err != nil {
		return model.AvailabilityRule{}, err
	}
	now := r.clock.Now()
	rule.ID = uuid.NewString()
	rule.Origin = model.OriginGuru
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := r.store.CreateRule(ctx, rule); err != nil {
		return model.AvailabilityRule{}, err
	}
	return rule, nil
}

// Update replaces the window of an existing rule. The owning guru cannot change.
func (r *Rules) Update(ctx context.Context, a actor.Actor, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	existing, err := r.store.GetRule(ctx, rule.ID)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	if err := authorize(a, existing.GuruID); err != nil {
		return model.AvailabilityRule{}, err
	}
	rule.GuruID = existing.GuruID
	rule.CreatedAt = existing.CreatedAt
	rule.Origin = model.OriginGuru
	rule.Pinned = interval.Interval{}
	if err := rule.Validate(); err != nil {
		return model.AvailabilityRule{}, err
	}
	rule.UpdatedAt = r.clock.Now()
	if err := r.store.UpdateRule(ctx, rule); err != nil {
		return model.AvailabilityRule{}, err
	}
	return rule, nil
}

func (r *Rules) Delete(ctx context.Context, a actor.Actor, ruleID string) error {
	existing, err := r.store.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if err := authorize(a, existing.GuruID); err != nil {
		return err
	}
	return r.store.DeleteRule(ctx, ruleID)
}

// RuleWriter is the transactional surface used to reopen a freed interval.
type RuleWriter interface {
	ListRules(ctx context.Context, guruID string) ([]model.AvailabilityRule, error)
	InsertRule(ctx context.Context, rule model.AvailabilityRule) error
}

// Reopen makes iv bookable again by adding exception windows on the guru's
// local dates, pinned to the exact UTC instants freed. A date still governed by
// recurring rules first gets those rules copied as exceptions, since any
// exception replaces them for that date.
func Reopen(ctx context.Context, w RuleWriter, guruID string, iv interval.Interval, loc *time.Location, now time.Time) error {
	rules, err := w.ListRules(ctx, guruID)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	for _, span := range interval.SplitLocal(iv, loc) {
		if !HasExceptions(rules, span.Date) {
			for _, rec := range RecurringFor(rules, span.Date) {
				copied := model.AvailabilityRule{
					ID:        uuid.NewString(),
					GuruID:    guruID,
					Kind:      model.RuleException,
					Date:      span.Date,
					Start:     rec.Start,
					End:       rec.End,
					Available: rec.Available,
					Origin:    model.OriginMaterialized,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := copied.Validate(); err != nil {
					return fmt.Errorf("materialize rule: %w", err)
				}
				if err := w.InsertRule(ctx, copied); err != nil {
					return fmt.Errorf("materialize rule: %w", err)
				}
				rules = append(rules, copied)
			}
		}
		reopened := model.AvailabilityRule{
			ID:        uuid.NewString(),
			GuruID:    guruID,
			Kind:      model.RuleException,
			Date:      span.Date,
			Start:     span.Start,
			End:       span.End,
			Available: true,
			Origin:    model.OriginReopened,
			Pinned:    span.UTC,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := reopened.Validate(); err != nil {
			return fmt.Errorf("reopen window: %w", err)
		}
		if err := w.InsertRule(ctx, reopened); err != nil {
			return fmt.Errorf("reopen window: %w", err)
		}
		rules = append(rules, reopened)
	}
	return nil
}
