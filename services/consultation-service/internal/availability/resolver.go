// Package availability turns a guru's rules into bookable UTC slots and lets
// gurus manage those rules.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/clock"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/holds"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"go.uber.org/zap"
)

const DefaultMaxRangeDays = 62

// Reader is the slice of the store resolution needs.
type Reader interface {
	GetGuru(ctx context.Context, guruID string) (model.Guru, error)
	ListRules(ctx context.Context, guruID string) ([]model.AvailabilityRule, error)
	ListOccupyingBookings(ctx context.Context, guruID string, span interval.Interval) ([]model.Booking, error)
}

type Resolver struct {
	store        Reader
	holds        holds.Holder
	clock        clock.Clock
	logger       *zap.Logger
	maxRangeDays int
}

type Option func(*Resolver)

func WithMaxRangeDays(days int) Option {
	return func(r *Resolver) {
		if days > 0 {
			r.maxRangeDays = days
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewResolver(store Reader, h holds.Holder, clk clock.Clock, opts ...Option) *Resolver {
	if h == nil {
		h = holds.Noop{}
	}
	r := &Resolver{
		store:        store,
		holds:        h,
		clock:        clk,
		logger:       zap.NewNop(),
		maxRangeDays: DefaultMaxRangeDays,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GuruLocation loads the guru's time zone. A malformed zone is a
// configuration error.
func GuruLocation(g model.Guru) (*time.Location, error) {
	loc, err := interval.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("guru %s timezone %q: %w", g.ID, g.Timezone, model.ErrConfiguration)
	}
	return loc, nil
}

// Resolve returns the free slots of guruID on the guru-local dates from..to,
// inclusive, ascending. An unknown guru has no slots.
func (r *Resolver) Resolve(ctx context.Context, guruID string, from, to interval.Date) ([]interval.Interval, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("to %s before from %s: %w", to, from, model.ErrInvalidInput)
	}
	if days := from.DaysUntil(to) + 1; days > r.maxRangeDays {
		return nil, fmt.Errorf("range of %d days exceeds %d: %w", days, r.maxRangeDays, model.ErrInvalidInput)
	}

	guru, err := r.store.GetGuru(ctx, guruID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guru: %w", err)
	}
	loc, err := GuruLocation(guru)
	if err != nil {
		return nil, err
	}
	rules, err := r.store.ListRules(ctx, guruID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	var candidates []interval.Interval
	now := r.clock.Now()
	for d := from; !d.After(to); d = d.AddDays(1) {
		for _, s := range DaySlots(rules, d, loc) {
			if s.Start.After(now) {
				candidates = append(candidates, s)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	interval.Sort(candidates)
	candidates = dedupe(candidates)

	span := interval.New(candidates[0].Start, candidates[len(candidates)-1].End)
	bookings, err := r.store.ListOccupyingBookings(ctx, guruID, span)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	busy := make([]interval.Interval, 0, len(bookings))
	for _, b := range bookings {
		busy = append(busy, b.Interval())
	}

	free := candidates[:0]
	for _, s := range candidates {
		if !interval.OverlapsAny(s, busy) {
			free = append(free, s)
		}
	}

	held, err := r.holds.Held(ctx, guruID, free)
	if err != nil {
		// Holds only narrow the offer; the confirm-time check stays authoritative.
		r.logger.Warn("slot holds unavailable", zap.String("guru_id", guruID), zap.Error(err))
		return free, nil
	}
	if len(held) == 0 {
		return free, nil
	}
	out := make([]interval.Interval, 0, len(free))
	for _, s := range free {
		if !interval.OverlapsAny(s, held) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Covers reports whether iv is exactly tiled by contiguous free slots
// starting at iv.Start.
func (r *Resolver) Covers(ctx context.Context, guruID string, iv interval.Interval) (bool, error) {
	if iv.Empty() {
		return false, nil
	}
	guru, err := r.store.GetGuru(ctx, guruID)
	if err != nil {
		return false, fmt.Errorf("load guru: %w", err)
	}
	loc, err := GuruLocation(guru)
	if err != nil {
		return false, err
	}
	from, _ := interval.FromUTC(iv.Start, loc)
	to, _ := interval.FromUTC(iv.End.Add(-time.Nanosecond), loc)

	slots, err := r.Resolve(ctx, guruID, from, to)
	if err != nil {
		return false, err
	}
	cursor := iv.Start
	for _, s := range slots {
		if s.Start.Equal(cursor) && !s.End.After(iv.End) {
			cursor = s.End
		}
	}
	return cursor.Equal(iv.End), nil
}

func dedupe(sorted []interval.Interval) []interval.Interval {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, s)
	}
	return out
}
