package availability

import (
	"time"

	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/interval"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
)

// SlotLength is the unit every offered slot has.
const SlotLength = model.SlotMinutes * time.Minute

// rulesFor picks the rule set governing date: its exceptions when it has any,
// otherwise the recurring rules of its weekday.
func rulesFor(rules []model.AvailabilityRule, date interval.Date) []model.AvailabilityRule {
	var exceptions, recurring []model.AvailabilityRule
	weekday := date.Weekday()
	for _, r := range rules {
		switch r.Kind {
		case model.RuleException:
			if r.Date == date {
				exceptions = append(exceptions, r)
			}
		case model.RuleRecurring:
			if r.DayOfWeek == weekday {
				recurring = append(recurring, r)
			}
		}
	}
	if len(exceptions) > 0 {
		return exceptions
	}
	return recurring
}

// HasExceptions reports whether date is governed by exception rules.
func HasExceptions(rules []model.AvailabilityRule, date interval.Date) bool {
	for _, r := range rules {
		if r.Kind == model.RuleException && r.Date == date {
			return true
		}
	}
	return false
}

// RecurringFor returns the recurring rules of date's weekday.
func RecurringFor(rules []model.AvailabilityRule, date interval.Date) []model.AvailabilityRule {
	var out []model.AvailabilityRule
	for _, r := range rules {
		if r.Kind == model.RuleRecurring && r.DayOfWeek == date.Weekday() {
			out = append(out, r)
		}
	}
	return out
}

// Windows converts the rules governing date into UTC windows: merged available
// windows and merged blackouts.
func Windows(rules []model.AvailabilityRule, date interval.Date, loc *time.Location) (available, blackout []interval.Interval) {
	for _, r := range rulesFor(rules, date) {
		w := r.Window(date, loc)
		if r.Available {
			available = append(available, w)
		} else {
			blackout = append(blackout, w)
		}
	}
	return interval.Merge(available), interval.Merge(blackout)
}

// DaySlots returns the 30-minute slots date offers according to rules alone.
func DaySlots(rules []model.AvailabilityRule, date interval.Date, loc *time.Location) []interval.Interval {
	available, blackout := Windows(rules, date, loc)
	var out []interval.Interval
	for _, w := range available {
		for _, s := range interval.Slice(w, SlotLength) {
			if !interval.OverlapsAny(s, blackout) {
				out = append(out, s)
			}
		}
	}
	return out
}
