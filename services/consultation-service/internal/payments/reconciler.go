package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/clock"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/holds"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/meeting"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/metrics"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/notify"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/reminders"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage"
	"go.uber.org/zap"
)

const DefaultGatewayTimeout = 10 * time.Second

type Checkout struct {
	SessionID string
	URL       string
}

type Notifier interface {
	Notify(ctx context.Context, kind string, msg notify.Message) bool
}

type Config struct {
	GatewayTimeout time.Duration
	SuccessURL     string
	CancelURL      string
}

type Deps struct {
	Store     storage.Store
	Gateway   Gateway
	Holds     holds.Holder
	Reminders *reminders.Scheduler
	Meetings  meeting.Allocator
	Notifier  Notifier
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type Reconciler struct {
	Deps
	cfg Config
}

func NewReconciler(d Deps, cfg Config) *Reconciler {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = DefaultGatewayTimeout
	}
	if d.Holds == nil {
		d.Holds = holds.Noop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Reconciler{Deps: d, cfg: cfg}
}

// call runs one gateway call under the gateway timeout. An expired deadline
// is reported as model.ErrGatewayUnavailable.
func call[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return v, unavailable(op, err)
	}
	return v, err
}

// CreateCheckout opens (or reuses) the hosted checkout of a pending booking.
func (r *Reconciler) CreateCheckout(ctx context.Context, bookingID, requesterID string) (Checkout, error) {
	b, err := r.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return Checkout{}, err
	}
	now := r.Clock.Now()
	if b.RequesterID != requesterID {
		return Checkout{}, fmt.Errorf("booking %s belongs to another requester: %w", bookingID, model.ErrInvalidState)
	}
	if b.Status != model.StatusPendingPayment || (b.ExpiresAt != nil && !b.ExpiresAt.After(now)) {
		return Checkout{}, fmt.Errorf("booking %s is %s: %w", bookingID, b.Status, model.ErrInvalidState)
	}

	if p, err := r.Store.GetLatestPayment(ctx, bookingID); err == nil {
		switch p.Status {
		case model.PaymentStatePending:
			return Checkout{SessionID: p.CheckoutSessionID, URL: p.CheckoutURL}, nil
		case model.PaymentStateCompleted, model.PaymentStateRefunded:
			return Checkout{}, fmt.Errorf("booking %s already paid: %w", bookingID, model.ErrInvalidState)
		}
	} else if !errors.Is(err, model.ErrNotFound) {
		return Checkout{}, err
	}

	sess, err := RetryOnce(ctx, func(ctx context.Context) (Session, error) {
		return call(ctx, r.cfg.GatewayTimeout, "create checkout", func(ctx context.Context) (Session, error) {
			return r.Gateway.CreateCheckout(ctx, CheckoutRequest{
				BookingID:      b.ID,
				Description:    fmt.Sprintf("Consultation %s", b.Start.UTC().Format("2006-01-02 15:04 MST")),
				CustomerEmail:  b.RequesterEmail,
				Amount:         b.Price,
				Currency:       b.Currency,
				SuccessURL:     r.cfg.SuccessURL,
				CancelURL:      r.cfg.CancelURL,
				IdempotencyKey: "checkout:" + b.ID,
			})
		})
	})
	if err != nil {
		return Checkout{}, err
	}

	if existing, err := r.Store.GetPaymentBySession(ctx, sess.ID); err == nil {
		return Checkout{SessionID: existing.CheckoutSessionID, URL: existing.CheckoutURL}, nil
	}
	err = r.Store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusPendingPayment {
			return fmt.Errorf("booking %s is %s: %w", bookingID, cur.Status, model.ErrInvalidState)
		}
		return tx.InsertPayment(ctx, model.Payment{
			ID:                uuid.NewString(),
			BookingID:         bookingID,
			Amount:            b.Price,
			Currency:          b.Currency,
			Provider:          r.Gateway.Provider(),
			CheckoutSessionID: sess.ID,
			CheckoutURL:       sess.URL,
			Status:            model.PaymentStatePending,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	})
	if err != nil {
		return Checkout{}, err
	}
	r.Logger.Info("checkout created", zap.String("booking_id", bookingID), zap.String("session_id", sess.ID))
	return Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

// Verify confirms the booking paid through sessionID and returns its id.
func (r *Reconciler) Verify(ctx context.Context, sessionID string) (string, error) {
	pay, err := r.Store.GetPaymentBySession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if pay.Status == model.PaymentStateCompleted || pay.Status == model.PaymentStateRefunded {
		return r.settled(ctx, pay)
	}

	status, err := RetryOnce(ctx, func(ctx context.Context) (SessionStatus, error) {
		return call(ctx, r.cfg.GatewayTimeout, "retrieve session", func(ctx context.Context) (SessionStatus, error) {
			return r.Gateway.RetrieveSession(ctx, sessionID)
		})
	})
	if err != nil {
		return "", err
	}
	if !status.Paid {
		return "", fmt.Errorf("session %s: %w", sessionID, model.ErrNotPaid)
	}

	var (
		confirmed model.Booking
		outcome   error
		raced     bool
	)
	now := r.Clock.Now()
	err = r.Store.InTx(ctx, func(tx storage.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, pay.BookingID)
		if err != nil {
			return err
		}
		p, err := tx.GetPaymentForUpdate(ctx, pay.ID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatePending && p.Status != model.PaymentStateExpired {
			raced = true
			return nil
		}
		if err := tx.LockGuru(ctx, b.GuruID); err != nil {
			return err
		}

		p.Status = model.PaymentStateCompleted
		p.ExternalRef = status.PaymentRef
		p.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}

		if b.Status != model.StatusPendingPayment {
			outcome = fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, model.ErrInvalidState)
			return nil
		}
		overlap, err := tx.HasOccupyingOverlap(ctx, b.GuruID, b.Interval(), b.ID)
		if err != nil {
			return err
		}
		if overlap {
			outcome = fmt.Errorf("booking %s: %w", b.ID, model.ErrSlotTaken)
			return nil
		}

		b.Status = model.StatusConfirmed
		b.PaymentStatus = model.PaymentPaid
		b.MeetingLocator = r.Meetings.Allocate(b.ID)
		b.ExpiresAt = nil
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if err := r.Reminders.Schedule(ctx, tx, b); err != nil {
			return err
		}
		evt, err := outbox.BookingEvent(outbox.EventBookingConfirmed, b)
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, evt); err != nil {
			return err
		}
		confirmed = b
		return nil
	})
	if errors.Is(err, model.ErrSlotTaken) {
		// The exclusion constraint fired; the capture must still be recorded.
		if capErr := r.recordCapture(ctx, pay.ID, status.PaymentRef, now); capErr != nil {
			return "", capErr
		}
		outcome, err = fmt.Errorf("booking %s: %w", pay.BookingID, model.ErrSlotTaken), nil
	}
	if err != nil {
		return "", err
	}
	if raced {
		cur, err := r.Store.GetPaymentBySession(ctx, sessionID)
		if err != nil {
			return "", err
		}
		return r.settled(ctx, cur)
	}
	if outcome != nil {
		r.Metrics.IncSlotConflict("verify")
		r.Logger.Warn("captured payment cannot confirm booking",
			zap.String("booking_id", pay.BookingID),
			zap.String("session_id", sessionID),
			zap.Error(outcome),
		)
		r.refundCaptured(ctx, pay.BookingID)
		r.releaseHold(ctx, pay.BookingID)
		return "", outcome
	}

	r.Metrics.IncPaymentVerified()
	r.Logger.Info("booking confirmed", zap.String("booking_id", confirmed.ID), zap.String("session_id", sessionID))
	r.releaseHold(ctx, confirmed.ID)
	r.notifyConfirmed(ctx, confirmed)
	return confirmed.ID, nil
}

// settled answers a verification of a session whose payment is no longer
// pending.
func (r *Reconciler) settled(ctx context.Context, pay model.Payment) (string, error) {
	b, err := r.Store.GetBooking(ctx, pay.BookingID)
	if err != nil {
		return "", err
	}
	if pay.Status == model.PaymentStateCompleted && b.Status.Occupies() {
		return b.ID, nil
	}
	if pay.Status == model.PaymentStateCompleted {
		r.refundCaptured(ctx, b.ID)
	}
	return "", fmt.Errorf("payment %s is %s, booking %s: %w", pay.ID, pay.Status, b.Status, model.ErrInvalidState)
}

func (r *Reconciler) recordCapture(ctx context.Context, paymentID, ref string, now time.Time) error {
	return r.Store.InTx(ctx, func(tx storage.Tx) error {
		p, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatePending && p.Status != model.PaymentStateExpired {
			return nil
		}
		p.Status = model.PaymentStateCompleted
		p.ExternalRef = ref
		p.UpdatedAt = now
		return tx.UpdatePayment(ctx, p)
	})
}

// refundCaptured returns money for a payment that could not buy its slot.
// Failures are logged; the expiry sweep retries them.
func (r *Reconciler) refundCaptured(ctx context.Context, bookingID string) {
	ctx = context.WithoutCancel(ctx)
	ok, err := RetryOnce(ctx, func(ctx context.Context) (bool, error) {
		return r.Refund(ctx, bookingID)
	})
	switch {
	case err != nil:
		r.Metrics.IncRefund("auto", "error")
		r.Logger.Error("automatic refund failed", zap.String("booking_id", bookingID), zap.Error(err))
	case ok:
		r.Metrics.IncRefund("auto", "refunded")
	}
}

func (r *Reconciler) releaseHold(ctx context.Context, bookingID string) {
	b, err := r.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return
	}
	if err := r.Holds.Release(ctx, b.GuruID, b.Interval(), b.ID); err != nil {
		r.Logger.Warn("release hold failed", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

func (r *Reconciler) notifyConfirmed(ctx context.Context, b model.Booking) {
	if r.Notifier == nil {
		return
	}
	guruEmail := ""
	if g, err := r.Store.GetGuru(ctx, b.GuruID); err == nil {
		guruEmail = g.Email
	}
	for _, msg := range notify.ConfirmedMessages(b, guruEmail) {
		r.Notifier.Notify(ctx, notify.KindConfirmed, msg)
	}
}

// Refund returns the captured payment of a booking. It reports false when the
// booking has no captured payment and true when the money is (or already was)
// returned.
func (r *Reconciler) Refund(ctx context.Context, bookingID string) (bool, error) {
	pay, err := r.Store.GetLatestPayment(ctx, bookingID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch pay.Status {
	case model.PaymentStateRefunded:
		return true, nil
	case model.PaymentStateCompleted:
	default:
		return false, nil
	}

	ok, err := call(ctx, r.cfg.GatewayTimeout, "refund", func(ctx context.Context) (bool, error) {
		return r.Gateway.Refund(ctx, pay.ExternalRef, "refund:"+pay.ID)
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("refund of payment %s declined: %w", pay.ID, model.ErrGatewayUnavailable)
	}

	now := r.Clock.Now()
	err = r.Store.InTx(ctx, func(tx storage.Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		p, err := tx.GetPaymentForUpdate(ctx, pay.ID)
		if err != nil {
			return err
		}
		if p.Status == model.PaymentStateRefunded {
			return nil
		}
		p.Status = model.PaymentStateRefunded
		p.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		b.PaymentStatus = model.PaymentRefunded
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		evt, err := outbox.BookingEvent(outbox.EventPaymentRefunded, b)
		if err != nil {
			return err
		}
		return tx.InsertEvent(ctx, evt)
	})
	if err != nil {
		return false, err
	}
	r.Logger.Info("payment refunded", zap.String("booking_id", bookingID), zap.String("payment_id", pay.ID))
	return true, nil
}
