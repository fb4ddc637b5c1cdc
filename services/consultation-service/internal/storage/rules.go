package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
)

const ruleColumns = `id::text, guru_id, kind, day_of_week, rule_date, start_minute, end_minute, available, origin, start_at, end_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (model.AvailabilityRule, error) {
	var (
		r          model.AvailabilityRule
		dow        *int16
		date       *time.Time
		start, end int16
		startAt    *time.Time
		endAt      *time.Time
	)
	if err := row.Scan(&r.ID, &r.GuruID, &r.Kind, &dow, &date, &start, &end, &r.Available, &r.Origin, &startAt, &endAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.AvailabilityRule{}, err
	}
	if dow != nil {
		r.DayOfWeek = time.Weekday(*dow)
	}
	if date != nil {
		r.Date = interval.DateOf(*date)
	}
	r.Start = interval.LocalTime(start)
	r.End = interval.LocalTime(end)
	if startAt != nil && endAt != nil {
		r.Pinned = interval.New(*startAt, *endAt)
	}
	return r, nil
}

func collectRules(rows pgx.Rows) ([]model.AvailabilityRule, error) {
	defer rows.Close()
	var rules []model.AvailabilityRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ruleArgs maps the kind-specific fields onto nullable columns.
func ruleArgs(r model.AvailabilityRule) (dow *int16, date *time.Time) {
	switch r.Kind {
	case model.RuleRecurring:
		d := int16(r.DayOfWeek)
		dow = &d
	case model.RuleException:
		t := r.Date.Time()
		date = &t
	}
	return dow, date
}

func pinnedArgs(r model.AvailabilityRule) (startAt, endAt *time.Time) {
	if !r.IsPinned() {
		return nil, nil
	}
	return &r.Pinned.Start, &r.Pinned.End
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listRules(ctx context.Context, q querier, guruID string) ([]model.AvailabilityRule, error) {
	rows, err := q.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE guru_id = $1
		ORDER BY kind, day_of_week NULLS LAST, rule_date NULLS LAST, start_minute
	`, guruID)
	if err != nil {
		return nil, err
	}
	return collectRules(rows)
}

func (p *Postgres) ListRules(ctx context.Context, guruID string) ([]model.AvailabilityRule, error) {
	return listRules(ctx, p.pool, guruID)
}

func (t *pgTx) ListRules(ctx context.Context, guruID string) ([]model.AvailabilityRule, error) {
	return listRules(ctx, t.tx, guruID)
}

func (p *Postgres) GetRule(ctx context.Context, ruleID string) (model.AvailabilityRule, error) {
	r, err := scanRule(p.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM availability_rules WHERE id = $1`, ruleID))
	if err != nil {
		return model.AvailabilityRule{}, notFound(err, "rule")
	}
	return r, nil
}

const insertRuleSQL = `
	INSERT INTO availability_rules
		(id, guru_id, kind, day_of_week, rule_date, start_minute, end_minute, available, origin, start_at, end_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

func (p *Postgres) CreateRule(ctx context.Context, r model.AvailabilityRule) error {
	dow, date := ruleArgs(r)
	startAt, endAt := pinnedArgs(r)
	_, err := p.pool.Exec(ctx, insertRuleSQL, r.ID, r.GuruID, r.Kind, dow, date, int16(r.Start), int16(r.End), r.Available, r.Origin, startAt, endAt, r.CreatedAt, r.UpdatedAt)
	return err
}

func (t *pgTx) InsertRule(ctx context.Context, r model.AvailabilityRule) error {
	dow, date := ruleArgs(r)
	startAt, endAt := pinnedArgs(r)
	_, err := t.tx.Exec(ctx, insertRuleSQL, r.ID, r.GuruID, r.Kind, dow, date, int16(r.Start), int16(r.End), r.Available, r.Origin, startAt, endAt, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *Postgres) UpdateRule(ctx context.Context, r model.AvailabilityRule) error {
	dow, date := ruleArgs(r)
	startAt, endAt := pinnedArgs(r)
	tag, err := p.pool.Exec(ctx, `
		UPDATE availability_rules
		SET kind = $2,
			day_of_week = $3,
			rule_date = $4,
			start_minute = $5,
			end_minute = $6,
			available = $7,
			origin = $8,
			start_at = $9,
			end_at = $10,
			updated_at = $11
		WHERE id = $1
	`, r.ID, r.Kind, dow, date, int16(r.Start), int16(r.End), r.Available, r.Origin, startAt, endAt, r.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule: %w", model.ErrNotFound)
	}
	return nil
}

func (p *Postgres) DeleteRule(ctx context.Context, ruleID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, ruleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule: %w", model.ErrNotFound)
	}
	return nil
}
