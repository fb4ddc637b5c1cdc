package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
)

const paymentColumns = `id::text, booking_id::text, amount, currency, provider, checkout_session_id, checkout_url, external_ref, status, created_at, updated_at`

func scanPayment(row scanner) (model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.Amount, &p.Currency, &p.Provider, &p.CheckoutSessionID,
		&p.CheckoutURL, &p.ExternalRef, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (p *Postgres) GetPaymentBySession(ctx context.Context, sessionID string) (model.Payment, error) {
	pay, err := scanPayment(p.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE checkout_session_id = $1`, sessionID))
	if err != nil {
		return model.Payment{}, notFound(err, "payment")
	}
	return pay, nil
}

func (p *Postgres) GetLatestPayment(ctx context.Context, bookingID string) (model.Payment, error) {
	pay, err := scanPayment(p.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1
		ORDER BY (status IN ('completed', 'refunded')) DESC, created_at DESC
		LIMIT 1
	`, bookingID))
	if err != nil {
		return model.Payment{}, notFound(err, "payment")
	}
	return pay, nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p model.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments
			(id, booking_id, amount, currency, provider, checkout_session_id, checkout_url, external_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.BookingID, p.Amount, p.Currency, p.Provider, p.CheckoutSessionID, p.CheckoutURL, p.ExternalRef, p.Status, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("payment session %s: %w", p.CheckoutSessionID, model.ErrInvalidState)
	}
	return err
}

func (t *pgTx) GetPaymentForUpdate(ctx context.Context, paymentID string) (model.Payment, error) {
	pay, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID))
	if err != nil {
		return model.Payment{}, notFound(err, "payment")
	}
	return pay, nil
}

func (t *pgTx) UpdatePayment(ctx context.Context, p model.Payment) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET status = $2, external_ref = $3, updated_at = $4
		WHERE id = $1
	`, p.ID, p.Status, p.ExternalRef, p.UpdatedAt)
	return err
}

func (t *pgTx) ExpirePendingPayments(ctx context.Context, bookingID string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET status = 'expired', updated_at = $2
		WHERE booking_id = $1 AND status = 'pending'
	`, bookingID, at)
	return err
}
