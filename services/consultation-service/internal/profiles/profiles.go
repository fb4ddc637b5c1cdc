// Package profiles keeps the local copy of guru profiles up to date from
// profile events.
package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/gurubook/libs/kafkax"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventGuruProfileUpdated = "identity.guru.profile.updated.v1"

type Store interface {
	UpsertGuru(ctx context.Context, g model.Guru) error
}

type profileEvent struct {
	GuruID        string `json:"guru_id"`
	Email         string `json:"email"`
	Timezone      string `json:"timezone"`
	PricePer30Min int64  `json:"price_per_30_min"`
	Currency      string `json:"currency"`
	UpdatedAt     string `json:"updated_at"`
}

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

// Handle stores the profile carried by msg. Profiles that cannot be served
// (bad zone, negative price) are dropped with a warning instead of poisoning
// availability for that guru.
func (p *Projector) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	log := p.logger.With(zap.String("event_id", meta.EventID))

	var evt profileEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Warn("malformed profile event dropped", zap.Error(err))
		return nil
	}
	g := model.Guru{
		ID:            strings.TrimSpace(evt.GuruID),
		Email:         strings.TrimSpace(evt.Email),
		Timezone:      strings.TrimSpace(evt.Timezone),
		PricePer30Min: evt.PricePer30Min,
		Currency:      strings.ToLower(strings.TrimSpace(evt.Currency)),
		UpdatedAt:     msg.Time,
	}
	if g.ID == "" || g.PricePer30Min < 0 {
		log.Warn("invalid profile event dropped", zap.String("guru_id", g.ID))
		return nil
	}
	if _, err := interval.LoadLocation(g.Timezone); err != nil {
		log.Warn("profile with unknown timezone dropped", zap.String("guru_id", g.ID), zap.String("timezone", g.Timezone))
		return nil
	}
	if evt.UpdatedAt != "" {
		at, err := time.Parse(time.RFC3339, evt.UpdatedAt)
		if err != nil {
			return fmt.Errorf("%w: updated_at: %v", model.ErrInvalidInput, err)
		}
		g.UpdatedAt = at
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	g.UpdatedAt = g.UpdatedAt.UTC()

	if err := p.store.UpsertGuru(ctx, g); err != nil {
		return fmt.Errorf("upsert guru %s: %w", g.ID, err)
	}
	log.Info("guru profile updated", zap.String("guru_id", g.ID), zap.Int64("price_per_30_min", g.PricePer30Min))
	return nil
}
