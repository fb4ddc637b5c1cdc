package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage"
	"go.uber.org/zap"
)

// HandleWebhook processes one provider delivery. Replayed deliveries are
// ignored; a delivery that fails transiently is forgotten so the provider's
// retry is processed again.
func (r *Reconciler) HandleWebhook(ctx context.Context, parser WebhookParser, payload []byte, signature string) error {
	evt, err := parser.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	provider := r.Gateway.Provider()
	fresh, err := r.Store.RecordProviderEvent(ctx, provider, evt.ID, evt.Type, evt.Payload)
	if err != nil {
		return fmt.Errorf("record provider event: %w", err)
	}
	if !fresh {
		r.Logger.Info("provider event duplicate ignored", zap.String("provider", provider), zap.String("event_id", evt.ID))
		return nil
	}

	if err := r.applyWebhook(ctx, evt); err != nil {
		if forgetErr := r.Store.ForgetProviderEvent(context.WithoutCancel(ctx), provider, evt.ID); forgetErr != nil {
			r.Logger.Error("forget provider event", zap.String("event_id", evt.ID), zap.Error(forgetErr))
		}
		return err
	}
	return nil
}

func (r *Reconciler) applyWebhook(ctx context.Context, evt WebhookEvent) error {
	log := r.Logger.With(zap.String("event_id", evt.ID), zap.String("event_type", evt.Type), zap.String("session_id", evt.SessionID))
	switch evt.Type {
	case WebhookCheckoutCompleted:
		bookingID, err := r.Verify(ctx, evt.SessionID)
		switch {
		case err == nil:
			log.Info("webhook confirmed booking", zap.String("booking_id", bookingID))
			return nil
		case errors.Is(err, model.ErrNotFound),
			errors.Is(err, model.ErrSlotTaken),
			errors.Is(err, model.ErrInvalidState),
			errors.Is(err, model.ErrNotPaid):
			log.Warn("webhook checkout not applied", zap.Error(err))
			return nil
		default:
			return err
		}
	case WebhookCheckoutExpired:
		return r.expireSession(ctx, evt.SessionID)
	default:
		log.Debug("webhook event ignored")
		return nil
	}
}

func (r *Reconciler) expireSession(ctx context.Context, sessionID string) error {
	pay, err := r.Store.GetPaymentBySession(ctx, sessionID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if pay.Status != model.PaymentStatePending {
		return nil
	}
	return r.Store.InTx(ctx, func(tx storage.Tx) error {
		p, err := tx.GetPaymentForUpdate(ctx, pay.ID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatePending {
			return nil
		}
		p.Status = model.PaymentStateExpired
		p.UpdatedAt = r.Clock.Now()
		return tx.UpdatePayment(ctx, p)
	})
}
