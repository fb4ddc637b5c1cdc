// Package booking drives a consultation booking from creation through
// confirmation, cancellation, expiry and completion.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/actor"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/availability"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/clock"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/holds"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/meeting"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/metrics"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/notify"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/reminders"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultPendingTTL = 15 * time.Minute
	DefaultSweepBatch = 200
	DefaultListLimit  = 50
	MaxListLimit      = 200
)

// Entitlements decides whether a requester may book at all.
type Entitlements interface {
	CheckEntitlement(ctx context.Context, userID string) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, kind string, msg notify.Message) bool
}

type Config struct {
	PendingTTL time.Duration
	SweepBatch int
}

type Deps struct {
	Store        storage.Store
	Resolver     *availability.Resolver
	Payments     *payments.Reconciler
	Holds        holds.Holder
	Reminders    *reminders.Scheduler
	Meetings     meeting.Allocator
	Entitlements Entitlements
	Notifier     Notifier
	Clock        clock.Clock
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

type Service struct {
	Deps
	cfg Config
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = DefaultSweepBatch
	}
	if d.Holds == nil {
		d.Holds = holds.Noop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{Deps: d, cfg: cfg}
}

type CreateRequest struct {
	GuruID              string
	RequesterID         string
	RequesterEmail      string
	Interval            interval.Interval
	CommunicationMethod string
	Notes               string
	IdempotencyKey      string
}

func (r CreateRequest) validate() error {
	switch {
	case strings.TrimSpace(r.GuruID) == "":
		return fmt.Errorf("%w: guru_id required", model.ErrInvalidInput)
	case strings.TrimSpace(r.RequesterID) == "":
		return fmt.Errorf("%w: requester required", model.ErrInvalidInput)
	case r.Interval.Empty():
		return fmt.Errorf("%w: end must be after start", model.ErrInvalidInput)
	}
	return nil
}

// Create books req.Interval with the guru. Free bookings are confirmed
// immediately; paid ones wait in pending_payment until checkout is verified.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Booking, error) {
	if err := req.validate(); err != nil {
		return model.Booking{}, err
	}
	if s.Entitlements != nil {
		ok, err := s.Entitlements.CheckEntitlement(ctx, req.RequesterID)
		if err != nil {
			return model.Booking{}, fmt.Errorf("check entitlement: %w", err)
		}
		if !ok {
			return model.Booking{}, fmt.Errorf("requester %s not entitled: %w", req.RequesterID, model.ErrForbidden)
		}
	}
	guru, err := s.Store.GetGuru(ctx, req.GuruID)
	if err != nil {
		return model.Booking{}, err
	}
	if req.IdempotencyKey != "" {
		id, ok, err := s.Store.FindIdempotentBooking(ctx, req.RequesterID, req.IdempotencyKey)
		if err != nil {
			return model.Booking{}, err
		}
		if ok {
			return s.Store.GetBooking(ctx, id)
		}
	}

	covered, err := s.Resolver.Covers(ctx, req.GuruID, req.Interval)
	if err != nil {
		return model.Booking{}, err
	}
	if !covered {
		s.Metrics.IncSlotConflict("create")
		return model.Booking{}, fmt.Errorf("interval %s not offered: %w", req.Interval, model.ErrSlotTaken)
	}

	now := s.Clock.Now()
	b := model.Booking{
		ID:                  uuid.NewString(),
		GuruID:              guru.ID,
		RequesterID:         req.RequesterID,
		RequesterEmail:      req.RequesterEmail,
		Start:               req.Interval.Start,
		End:                 req.Interval.End,
		Price:               model.Price(req.Interval.Duration(), guru.PricePer30Min),
		Currency:            guru.Currency,
		CommunicationMethod: req.CommunicationMethod,
		Notes:               req.Notes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if b.Price == 0 {
		return s.createFree(ctx, req, b, guru)
	}
	return s.createPending(ctx, req, b)
}

// claimKey registers the idempotency key inside tx. It returns the id of the
// booking an earlier request created, if any.
func claimKey(ctx context.Context, tx storage.Tx, req CreateRequest) (string, error) {
	if req.IdempotencyKey == "" {
		return "", nil
	}
	return tx.ClaimIdempotencyKey(ctx, req.RequesterID, req.IdempotencyKey)
}

func bindKey(ctx context.Context, tx storage.Tx, req CreateRequest, bookingID string) error {
	if req.IdempotencyKey == "" {
		return nil
	}
	return tx.SetIdempotencyKeyBooking(ctx, req.RequesterID, req.IdempotencyKey, bookingID)
}

func (s *Service) createFree(ctx context.Context, req CreateRequest, b model.Booking, guru model.Guru) (model.Booking, error) {
	b.Status = model.StatusConfirmed
	b.PaymentStatus = model.PaymentPaid
	b.MeetingLocator = s.Meetings.Allocate(b.ID)

	var replayID string
	err := s.Store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		if replayID, err = claimKey(ctx, tx, req); err != nil || replayID != "" {
			return err
		}
		if err := tx.LockGuru(ctx, b.GuruID); err != nil {
			return err
		}
		overlap, err := tx.HasOccupyingOverlap(ctx, b.GuruID, b.Interval(), "")
		if err != nil {
			return err
		}
		if overlap {
			return fmt.Errorf("interval %s: %w", b.Interval(), model.ErrSlotTaken)
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		if err := s.Reminders.Schedule(ctx, tx, b); err != nil {
			return err
		}
		evt, err := outbox.BookingEvent(outbox.EventBookingConfirmed, b)
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, evt); err != nil {
			return err
		}
		return bindKey(ctx, tx, req, b.ID)
	})
	if errors.Is(err, model.ErrSlotTaken) {
		s.Metrics.IncSlotConflict("commit")
	}
	if err != nil {
		return model.Booking{}, err
	}
	if replayID != "" {
		return s.Store.GetBooking(ctx, replayID)
	}

	s.Metrics.IncBookingCreated(string(b.Status))
	s.Logger.Info("booking confirmed",
		zap.String("booking_id", b.ID),
		zap.String("guru_id", b.GuruID),
		zap.Time("start", b.Start),
	)
	for _, msg := range notify.ConfirmedMessages(b, guru.Email) {
		s.notify(ctx, notify.KindConfirmed, msg)
	}
	return b, nil
}

func (s *Service) createPending(ctx context.Context, req CreateRequest, b model.Booking) (model.Booking, error) {
	expires := b.CreatedAt.Add(s.cfg.PendingTTL)
	b.Status = model.StatusPendingPayment
	b.PaymentStatus = model.PaymentUnpaid
	b.ExpiresAt = &expires

	held := true
	if err := s.Holds.Acquire(ctx, b.GuruID, b.Interval(), b.ID, s.cfg.PendingTTL); err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			s.Metrics.IncSlotConflict("hold")
			return model.Booking{}, err
		}
		// Without holds, the confirm-time overlap check still protects the slot.
		s.Logger.Warn("slot hold unavailable", zap.String("booking_id", b.ID), zap.Error(err))
		held = false
	}
	release := func() {
		if !held {
			return
		}
		if err := s.Holds.Release(context.WithoutCancel(ctx), b.GuruID, b.Interval(), b.ID); err != nil {
			s.Logger.Warn("release hold failed", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}

	var replayID string
	err := s.Store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		if replayID, err = claimKey(ctx, tx, req); err != nil || replayID != "" {
			return err
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		evt, err := outbox.BookingEvent(outbox.EventBookingCreated, b)
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, evt); err != nil {
			return err
		}
		return bindKey(ctx, tx, req, b.ID)
	})
	if err != nil {
		release()
		return model.Booking{}, err
	}
	if replayID != "" {
		release()
		return s.Store.GetBooking(ctx, replayID)
	}

	s.Metrics.IncBookingCreated(string(b.Status))
	s.Logger.Info("booking pending payment",
		zap.String("booking_id", b.ID),
		zap.String("guru_id", b.GuruID),
		zap.Int64("price", b.Price),
		zap.Time("expires_at", expires),
	)
	return b, nil
}

func (s *Service) notify(ctx context.Context, kind string, msg notify.Message) {
	if s.Notifier != nil {
		s.Notifier.Notify(ctx, kind, msg)
	}
}

// Get returns a booking visible to a: its requester, its guru or an admin.
func (s *Service) Get(ctx context.Context, bookingID string, a actor.Actor) (model.Booking, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if a.Has(actor.RoleAdmin) || a.UserID == b.RequesterID || a.UserID == b.GuruID {
		return b, nil
	}
	return model.Booking{}, fmt.Errorf("booking %s: %w", bookingID, model.ErrForbidden)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func (s *Service) ListForRequester(ctx context.Context, requesterID string, limit int) ([]model.Booking, error) {
	return s.Store.ListBookingsByRequester(ctx, requesterID, clampLimit(limit))
}

func (s *Service) ListForGuru(ctx context.Context, guruID string, limit int) ([]model.Booking, error) {
	return s.Store.ListBookingsByGuru(ctx, guruID, clampLimit(limit))
}
