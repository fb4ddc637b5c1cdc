package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/gurubook/libs/db"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/outbox"
)

type Postgres struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var (
	_ Store = (*Postgres)(nil)
	_ Tx    = (*pgTx)(nil)
)

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool, outbox: outbox.NewRepository()}
}

// IsConflict reports an exclusion constraint violation, which is how the
// bookings table rejects overlapping occupying rows.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return err
}

func (p *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, outbox: p.outbox}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return model.ErrSlotTaken
		}
		return err
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) LockGuru(ctx context.Context, guruID string) error {
	var id string
	err := t.tx.QueryRow(ctx, `SELECT id FROM guru_profiles WHERE id = $1 FOR UPDATE`, guruID).Scan(&id)
	return notFound(err, "guru")
}

func (t *pgTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (p *Postgres) GetGuru(ctx context.Context, guruID string) (model.Guru, error) {
	var g model.Guru
	err := p.pool.QueryRow(ctx, `
		SELECT id, email, timezone, price_per_30_min, currency, updated_at
		FROM guru_profiles
		WHERE id = $1
	`, guruID).Scan(&g.ID, &g.Email, &g.Timezone, &g.PricePer30Min, &g.Currency, &g.UpdatedAt)
	if err != nil {
		return model.Guru{}, notFound(err, "guru")
	}
	return g, nil
}

// UpsertGuru maintains the profile projection fed by profile events.
func (p *Postgres) UpsertGuru(ctx context.Context, g model.Guru) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO guru_profiles (id, email, timezone, price_per_30_min, currency, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
			timezone = EXCLUDED.timezone,
			price_per_30_min = EXCLUDED.price_per_30_min,
			currency = EXCLUDED.currency,
			updated_at = EXCLUDED.updated_at
		WHERE guru_profiles.updated_at <= EXCLUDED.updated_at
	`, g.ID, g.Email, g.Timezone, g.PricePer30Min, g.Currency, g.UpdatedAt)
	return err
}

func (p *Postgres) RecordProviderEvent(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO provider_events (provider, event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID, eventType, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) ForgetProviderEvent(ctx context.Context, provider, eventID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM provider_events WHERE provider = $1 AND event_id = $2`, provider, eventID)
	return err
}

func (p *Postgres) HasActiveEntitlement(ctx context.Context, userID string, tiers []string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_entitlements
			WHERE user_id = $1 AND active AND tier = ANY($2)
		)
	`, userID, tiers).Scan(&ok)
	return ok, err
}

func (p *Postgres) UpsertEntitlement(ctx context.Context, userID, tier string, active bool, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO user_entitlements (user_id, tier, active, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET tier = EXCLUDED.tier,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		WHERE user_entitlements.updated_at <= EXCLUDED.updated_at
	`, userID, tier, active, at)
	return err
}
