package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/availability"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/notify"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/payments"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage"
	"go.uber.org/zap"
)

type CancelResult struct {
	Status      model.BookingStatus
	WasRefunded bool
}

// Cancel withdraws a future booking on behalf of its requester. A captured
// payment is refunded before the booking changes state, and a confirmed
// booking's interval becomes bookable again.
func (s *Service) Cancel(ctx context.Context, bookingID, requesterID string) (CancelResult, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return CancelResult{}, err
	}
	if b.RequesterID != requesterID {
		return CancelResult{}, fmt.Errorf("booking %s: %w", bookingID, model.ErrForbidden)
	}
	if b.Status != model.StatusConfirmed && b.Status != model.StatusPendingPayment {
		return CancelResult{}, fmt.Errorf("cancel %s booking: %w", b.Status, model.ErrInvalidTransition)
	}
	now := s.Clock.Now()
	if !b.Start.After(now) {
		return CancelResult{}, fmt.Errorf("booking %s already started: %w", bookingID, model.ErrTooLate)
	}

	guru, err := s.Store.GetGuru(ctx, b.GuruID)
	if err != nil {
		return CancelResult{}, err
	}
	loc, err := availability.GuruLocation(guru)
	if err != nil {
		return CancelResult{}, err
	}

	// A refunded payment status on a live booking means an earlier cancel
	// refunded and then failed to commit; Refund reports it again without
	// calling the gateway.
	alreadyRefunded := b.PaymentStatus == model.PaymentRefunded
	refunded := false
	if b.Price > 0 && (b.PaymentStatus == model.PaymentPaid || alreadyRefunded || b.Status == model.StatusPendingPayment) {
		refunded, err = payments.RetryOnce(ctx, func(ctx context.Context) (bool, error) {
			return s.Payments.Refund(ctx, b.ID)
		})
		if err != nil {
			s.Metrics.IncRefund("cancel", "error")
			return CancelResult{}, fmt.Errorf("refund booking %s: %w", bookingID, err)
		}
		if refunded && !alreadyRefunded {
			s.Metrics.IncRefund("cancel", "refunded")
		}
	}

	var cancelled model.Booking
	err = s.Store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != b.Status {
			if cur.Status == model.StatusConfirmed || cur.Status == model.StatusPendingPayment {
				return fmt.Errorf("booking %s changed to %s, retry: %w", bookingID, cur.Status, model.ErrInvalidState)
			}
			return fmt.Errorf("cancel %s booking: %w", cur.Status, model.ErrInvalidTransition)
		}

		cur.Status = model.StatusCancelled
		if refunded {
			cur.Status = model.StatusCancelledRefunded
			cur.PaymentStatus = model.PaymentRefunded
		}
		cur.CancelledAt = &now
		cur.ExpiresAt = nil
		cur.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, cur); err != nil {
			return err
		}
		if err := tx.DeleteUnsentReminders(ctx, bookingID); err != nil {
			return err
		}
		if b.Status == model.StatusPendingPayment {
			if err := tx.ExpirePendingPayments(ctx, bookingID, now); err != nil {
				return err
			}
		} else if err := availability.Reopen(ctx, tx, cur.GuruID, cur.Interval(), loc, now); err != nil {
			return err
		}
		evt, err := outbox.BookingEvent(outbox.EventBookingCancelled, cur)
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, evt); err != nil {
			return err
		}
		cancelled = cur
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}

	if b.Status == model.StatusPendingPayment {
		if err := s.Holds.Release(ctx, b.GuruID, b.Interval(), b.ID); err != nil {
			s.Logger.Warn("release hold failed", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
	s.Metrics.IncBookingCancelled(string(cancelled.Status))
	s.Logger.Info("booking cancelled",
		zap.String("booking_id", bookingID),
		zap.String("status", string(cancelled.Status)),
		zap.Bool("refunded", refunded),
	)
	for _, msg := range notify.CancelledMessages(cancelled, guru.Email, refunded) {
		s.notify(ctx, notify.KindCancelled, msg)
	}
	return CancelResult{Status: cancelled.Status, WasRefunded: refunded}, nil
}

// ExpirePending moves pending bookings past their deadline to expired. A
// payment captured for such a booking is refunded once the booking can no
// longer be confirmed.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	started := time.Now()
	now := s.Clock.Now()
	due, err := s.Store.ListExpiredPending(ctx, now, s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired bookings: %w", err)
	}

	expired := 0
	for _, b := range due {
		ok, err := s.expireOne(ctx, b.ID, now)
		if err != nil {
			s.Logger.Error("expire booking failed", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		expired++
		if err := s.Holds.Release(ctx, b.GuruID, b.Interval(), b.ID); err != nil {
			s.Logger.Warn("release hold failed", zap.String("booking_id", b.ID), zap.Error(err))
		}

		refunded, err := payments.RetryOnce(ctx, func(ctx context.Context) (bool, error) {
			return s.Payments.Refund(ctx, b.ID)
		})
		switch {
		case err != nil:
			s.Metrics.IncRefund("expiry", "error")
			s.Logger.Error("refund of expired booking failed", zap.String("booking_id", b.ID), zap.Error(err))
		case refunded:
			s.Metrics.IncRefund("expiry", "refunded")
		}
	}
	s.Metrics.ObserveSweep("expire", started, expired)
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, bookingID string, now time.Time) (bool, error) {
	changed := false
	err := s.Store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusPendingPayment || cur.ExpiresAt == nil || cur.ExpiresAt.After(now) {
			return nil
		}
		cur.Status = model.StatusExpired
		cur.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, cur); err != nil {
			return err
		}
		if err := tx.ExpirePendingPayments(ctx, bookingID, now); err != nil {
			return err
		}
		evt, err := outbox.BookingEvent(outbox.EventBookingExpired, cur)
		if err != nil {
			return err
		}
		changed = true
		return tx.InsertEvent(ctx, evt)
	})
	return changed, err
}

// CompleteFinished stores completed for confirmed bookings whose end passed.
func (s *Service) CompleteFinished(ctx context.Context) (int, error) {
	started := time.Now()
	now := s.Clock.Now()
	due, err := s.Store.ListFinishedConfirmed(ctx, now, s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list finished bookings: %w", err)
	}

	completed := 0
	for _, b := range due {
		changed := false
		err := s.Store.InTx(ctx, func(tx storage.Tx) error {
			cur, err := tx.GetBookingForUpdate(ctx, b.ID)
			if err != nil {
				return err
			}
			if cur.Status != model.StatusConfirmed || cur.End.After(now) {
				return nil
			}
			cur.Status = model.StatusCompleted
			cur.UpdatedAt = now
			if err := tx.UpdateBooking(ctx, cur); err != nil {
				return err
			}
			evt, err := outbox.BookingEvent(outbox.EventBookingCompleted, cur)
			if err != nil {
				return err
			}
			changed = true
			return tx.InsertEvent(ctx, evt)
		})
		if err != nil {
			s.Logger.Error("complete booking failed", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		if changed {
			completed++
		}
	}
	s.Metrics.ObserveSweep("complete", started, completed)
	return completed, nil
}
