package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
)

func bookingColumns(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	return p + "id::text, " + p + "guru_id, " + p + "requester_id, " + p + "requester_email, " +
		p + "start_time, " + p + "end_time, " + p + "status, " + p + "payment_status, " +
		p + "price, " + p + "currency, " + p + "communication_method, " + p + "meeting_locator, " +
		p + "notes, " + p + "expires_at, " + p + "cancelled_at, " + p + "created_at, " + p + "updated_at"
}

func bookingDest(b *model.Booking) []any {
	return []any{
		&b.ID, &b.GuruID, &b.RequesterID, &b.RequesterEmail,
		&b.Start, &b.End, &b.Status, &b.PaymentStatus,
		&b.Price, &b.Currency, &b.CommunicationMethod, &b.MeetingLocator,
		&b.Notes, &b.ExpiresAt, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt,
	}
}

func scanBooking(row scanner) (model.Booking, error) {
	var b model.Booking
	if err := row.Scan(bookingDest(&b)...); err != nil {
		return model.Booking{}, err
	}
	normalizeBooking(&b)
	return b, nil
}

func normalizeBooking(b *model.Booking) {
	b.Start = b.Start.UTC()
	b.End = b.End.UTC()
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := scanBooking(p.pool.QueryRow(ctx, `SELECT `+bookingColumns("")+` FROM bookings WHERE id = $1`, bookingID))
	if err != nil {
		return model.Booking{}, notFound(err, "booking")
	}
	return b, nil
}

func (p *Postgres) ListOccupyingBookings(ctx context.Context, guruID string, span interval.Interval) ([]model.Booking, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+bookingColumns("")+`
		FROM bookings
		WHERE guru_id = $1
			AND status IN ('confirmed', 'completed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, guruID, span.Start, span.End)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) ListBookingsByRequester(ctx context.Context, requesterID string, limit int) ([]model.Booking, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+bookingColumns("")+`
		FROM bookings
		WHERE requester_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, requesterID, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) ListBookingsByGuru(ctx context.Context, guruID string, limit int) ([]model.Booking, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+bookingColumns("")+`
		FROM bookings
		WHERE guru_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, guruID, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+bookingColumns("")+`
		FROM bookings
		WHERE status = 'pending_payment' AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) ListFinishedConfirmed(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+bookingColumns("")+`
		FROM bookings
		WHERE status = 'confirmed' AND end_time <= $1
		ORDER BY end_time ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) FindIdempotentBooking(ctx context.Context, scope, key string) (string, bool, error) {
	var bookingID *string
	err := p.pool.QueryRow(ctx, `
		SELECT booking_id::text FROM booking_idempotency_keys
		WHERE scope = $1 AND idempotency_key = $2
	`, scope, key).Scan(&bookingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if bookingID == nil {
		return "", false, nil
	}
	return *bookingID, true, nil
}

func (t *pgTx) GetBookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns("")+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID))
	if err != nil {
		return model.Booking{}, notFound(err, "booking")
	}
	return b, nil
}

func (t *pgTx) HasOccupyingOverlap(ctx context.Context, guruID string, iv interval.Interval, excludeID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE guru_id = $1
				AND status IN ('confirmed', 'completed')
				AND start_time < $3
				AND end_time > $2
				AND ($4 = '' OR id::text <> $4)
		)
	`, guruID, iv.Start, iv.End, excludeID).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertBooking(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings
			(id, guru_id, requester_id, requester_email, start_time, end_time, status, payment_status,
			 price, currency, communication_method, meeting_locator, notes, expires_at, cancelled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, b.ID, b.GuruID, b.RequesterID, b.RequesterEmail, b.Start, b.End, b.Status, b.PaymentStatus,
		b.Price, b.Currency, b.CommunicationMethod, b.MeetingLocator, b.Notes, b.ExpiresAt, b.CancelledAt, b.CreatedAt, b.UpdatedAt)
	if IsConflict(err) {
		return model.ErrSlotTaken
	}
	return err
}

func (t *pgTx) UpdateBooking(ctx context.Context, b model.Booking) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			payment_status = $3,
			meeting_locator = $4,
			expires_at = $5,
			cancelled_at = $6,
			updated_at = $7
		WHERE id = $1
	`, b.ID, b.Status, b.PaymentStatus, b.MeetingLocator, b.ExpiresAt, b.CancelledAt, b.UpdatedAt)
	if IsConflict(err) {
		return model.ErrSlotTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking: %w", model.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ClaimIdempotencyKey(ctx context.Context, scope, key string) (string, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (scope, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (scope, idempotency_key) DO NOTHING
	`, scope, key)
	if err != nil {
		return "", err
	}
	var bookingID *string
	err = t.tx.QueryRow(ctx, `
		SELECT booking_id::text FROM booking_idempotency_keys
		WHERE scope = $1 AND idempotency_key = $2
		FOR UPDATE
	`, scope, key).Scan(&bookingID)
	if err != nil {
		return "", err
	}
	if bookingID == nil {
		return "", nil
	}
	return *bookingID, nil
}

func (t *pgTx) SetIdempotencyKeyBooking(ctx context.Context, scope, key, bookingID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3, updated_at = now()
		WHERE scope = $1 AND idempotency_key = $2
	`, scope, key, bookingID)
	return err
}
