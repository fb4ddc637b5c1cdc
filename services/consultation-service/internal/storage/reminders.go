package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
)

func (t *pgTx) InsertReminder(ctx context.Context, r model.Reminder) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reminders (booking_id, kind, scheduled_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (booking_id, kind) DO NOTHING
	`, r.BookingID, r.Kind, r.ScheduledAt)
	return err
}

func (t *pgTx) DeleteUnsentReminders(ctx context.Context, bookingID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM reminders WHERE booking_id = $1 AND NOT sent`, bookingID)
	return err
}

func (t *pgTx) ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]model.DueReminder, error) {
	rows, err := t.tx.Query(ctx, `
		WITH due AS (
			SELECT r.id
			FROM reminders r
			JOIN bookings b ON b.id = r.booking_id
			WHERE NOT r.sent
				AND r.scheduled_at <= $1
				AND b.status = 'confirmed'
			ORDER BY r.scheduled_at
			LIMIT $2
			FOR UPDATE OF r SKIP LOCKED
		)
		UPDATE reminders r
		SET sent = true, sent_at = $1
		FROM due, bookings b
		LEFT JOIN guru_profiles g ON g.id = b.guru_id
		WHERE r.id = due.id AND b.id = r.booking_id
		RETURNING r.id, r.kind, r.scheduled_at, r.sent_at, COALESCE(g.email, ''), `+bookingColumns("b")+`
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DueReminder
	for rows.Next() {
		var d model.DueReminder
		dest := append([]any{&d.ID, &d.Kind, &d.ScheduledAt, &d.SentAt, &d.GuruEmail}, bookingDest(&d.Booking)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		normalizeBooking(&d.Booking)
		d.BookingID = d.Booking.ID
		d.Sent = true
		out = append(out, d)
	}
	return out, rows.Err()
}
