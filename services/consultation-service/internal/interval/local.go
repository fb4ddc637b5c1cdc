package interval

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTimezone = errors.New("invalid timezone")

// MinutesPerDay is the largest LocalTime value; it stands for the end of the day.
const MinutesPerDay = 24 * 60

// Date is a calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.midnightUTC().AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

func (d Date) Before(o Date) bool { return d.midnightUTC().Before(o.midnightUTC()) }
func (d Date) After(o Date) bool  { return d.midnightUTC().After(o.midnightUTC()) }
func (d Date) IsZero() bool       { return d == Date{} }

// DaysUntil counts calendar days from d to o (negative when o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.midnightUTC().Sub(d.midnightUTC()).Hours() / 24)
}

// Time returns midnight UTC of d, the representation used for DATE columns.
func (d Date) Time() time.Time {
	return d.midnightUTC()
}

func (d Date) String() string {
	return d.midnightUTC().Format(dateLayout)
}

// LocalTime is a wall-clock time of day in minutes since local midnight.
// MinutesPerDay (24:00) is allowed as an end-of-day bound.
type LocalTime int

func NewLocalTime(hour, minute int) LocalTime {
	return LocalTime(hour*60 + minute)
}

// ParseLocalTime accepts "HH:MM" with 00:00 <= value <= 24:00.
func ParseLocalTime(s string) (LocalTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse local time %q: %w", s, err)
	}
	lt := NewLocalTime(h, m)
	if h < 0 || m < 0 || m > 59 || !lt.Valid() {
		return 0, fmt.Errorf("local time %q out of range", s)
	}
	return lt, nil
}

func (t LocalTime) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

func (t LocalTime) Hour() int   { return int(t) / 60 }
func (t LocalTime) Minute() int { return int(t) % 60 }

func (t LocalTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// LoadLocation resolves an IANA zone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

// ToUTC converts a local date and wall-clock time in loc to a UTC instant.
// The instant is built from wall-clock fields, so DST offsets of that day apply;
// a wall time skipped by a forward transition resolves to the later offset.
func ToUTC(d Date, t LocalTime, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, loc).UTC()
}

// FromUTC returns the local date and time of day of instant in loc.
func FromUTC(instant time.Time, loc *time.Location) (Date, LocalTime) {
	local := instant.In(loc)
	return DateOf(local), NewLocalTime(local.Hour(), local.Minute())
}

// LocalWindow converts a local [start, end) window on d to a UTC interval.
func LocalWindow(d Date, start, end LocalTime, loc *time.Location) Interval {
	return Interval{Start: ToUTC(d, start, loc), End: ToUTC(d, end, loc)}
}

// LocalSpan is a window on a single local day with a single UTC offset.
type LocalSpan struct {
	Date  Date
	Start LocalTime
	End   LocalTime
	// UTC is the exact range the span covers.
	UTC Interval
}

// SplitLocal expresses iv as local windows in loc, cut at local midnights and
// at offset changes so every span has Start < End. A span reaching the next
// local midnight ends at 24:00. Inside an hour repeated by a backward shift
// the local fields are ambiguous; UTC is not.
func SplitLocal(iv Interval, loc *time.Location) []LocalSpan {
	if iv.Empty() {
		return nil
	}
	var out []LocalSpan
	cursor := iv.Start
	for cursor.Before(iv.End) {
		day, start := FromUTC(cursor, loc)
		end := iv.End
		if midnight := ToUTC(day.AddDays(1), 0, loc); midnight.Before(end) {
			end = midnight
		}
		if _, zoneEnd := cursor.In(loc).ZoneBounds(); !zoneEnd.IsZero() && zoneEnd.Before(end) {
			end = zoneEnd.UTC()
		}
		endLocal := start + LocalTime(end.Sub(cursor)/time.Minute)
		if endLocal > MinutesPerDay {
			endLocal = MinutesPerDay
		}
		out = append(out, LocalSpan{Date: day, Start: start, End: endLocal, UTC: New(cursor, end)})
		cursor = end
	}
	return out
}
