package model

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
)

type RuleKind string

const (
	RuleRecurring RuleKind = "recurring"
	RuleException RuleKind = "exception"
)

// RuleOrigin records who produced a rule.
type RuleOrigin string

const (
	OriginGuru RuleOrigin = "guru"
	// OriginMaterialized rules copy a date's recurring windows so that a
	// reopening exception does not hide them.
	OriginMaterialized RuleOrigin = "materialized"
	OriginReopened     RuleOrigin = "reopened"
)

type AvailabilityRule struct {
	ID        string
	GuruID    string
	Kind      RuleKind
	DayOfWeek time.Weekday  // recurring only
	Date      interval.Date // exception only, guru-local
	Start     interval.LocalTime
	End       interval.LocalTime
	Available bool
	Origin    RuleOrigin
	// Pinned, when set, is the exact UTC window of an exception. Start and End
	// then only describe it in local time. Reopened windows are pinned because
	// wall-clock times repeated by a backward DST shift name two instants.
	Pinned    interval.Interval
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r AvailabilityRule) IsPinned() bool {
	return !r.Pinned.Start.IsZero() || !r.Pinned.End.IsZero()
}

// Window returns the UTC window the rule covers on date.
func (r AvailabilityRule) Window(date interval.Date, loc *time.Location) interval.Interval {
	if r.IsPinned() {
		return r.Pinned
	}
	return interval.LocalWindow(date, r.Start, r.End, loc)
}

func (r AvailabilityRule) Validate() error {
	if r.GuruID == "" {
		return fmt.Errorf("%w: guru id required", ErrInvalidInput)
	}
	if !r.Start.Valid() || !r.End.Valid() || r.Start >= r.End {
		return fmt.Errorf("%w: start must be before end", ErrInvalidInput)
	}
	switch r.Kind {
	case RuleRecurring:
		if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
			return fmt.Errorf("%w: day_of_week must be 0-6", ErrInvalidInput)
		}
	case RuleException:
		if r.Date.IsZero() {
			return fmt.Errorf("%w: date required for exception", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown rule kind %q", ErrInvalidInput, r.Kind)
	}
	if r.IsPinned() {
		if r.Kind != RuleException {
			return fmt.Errorf("%w: only exceptions can be pinned", ErrInvalidInput)
		}
		if r.Pinned.Empty() {
			return fmt.Errorf("%w: pinned window must not be empty", ErrInvalidInput)
		}
	}
	return nil
}
