package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus_Mons")
	assert.ErrorIs(t, err, ErrInvalidTimezone)
}

func TestToUTCAcrossSpringForward(t *testing.T) {
	ny, err := LoadLocation("America/New_York")
	require.NoError(t, err)

	before := ToUTC(Date{2024, time.March, 4}, NewLocalTime(9, 0), ny)
	after := ToUTC(Date{2024, time.March, 11}, NewLocalTime(9, 0), ny)
	assert.Equal(t, "2024-03-04T14:00:00Z", before.Format(time.RFC3339))
	assert.Equal(t, "2024-03-11T13:00:00Z", after.Format(time.RFC3339))

	// The transition night: 01:00 EST to 04:00 EDT is two real hours.
	w := LocalWindow(Date{2024, time.March, 10}, NewLocalTime(1, 0), NewLocalTime(4, 0), ny)
	assert.Equal(t, 2*time.Hour, w.Duration())
}

func TestEndOfDayBound(t *testing.T) {
	ny, err := LoadLocation("America/New_York")
	require.NoError(t, err)
	end := ToUTC(Date{2025, time.January, 6}, MinutesPerDay, ny)
	assert.Equal(t, "2025-01-07T05:00:00Z", end.Format(time.RFC3339))
}

func TestParseLocalTime(t *testing.T) {
	lt, err := ParseLocalTime("09:30")
	require.NoError(t, err)
	assert.Equal(t, NewLocalTime(9, 30), lt)
	assert.Equal(t, "09:30", lt.String())

	end, err := ParseLocalTime("24:00")
	require.NoError(t, err)
	assert.Equal(t, LocalTime(MinutesPerDay), end)

	for _, bad := range []string{"24:30", "9", "10:75", "-1:00"} {
		_, err := ParseLocalTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestDateArithmetic(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, time.Wednesday, d.Weekday())
	assert.Equal(t, 2, d.DaysUntil(d.AddDays(2)))
	assert.True(t, d.Before(d.AddDays(1)))
}

func TestSplitLocalRoundTrip(t *testing.T) {
	tokyo, err := LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 23:30-00:30 Tokyo time on 2025-01-06/07.
	iv := New(time.Date(2025, 1, 6, 14, 30, 0, 0, time.UTC), time.Date(2025, 1, 6, 15, 30, 0, 0, time.UTC))
	spans := SplitLocal(iv, tokyo)
	require.Len(t, spans, 2)
	midnight := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, LocalSpan{Date: Date{2025, time.January, 6}, Start: NewLocalTime(23, 30), End: MinutesPerDay, UTC: New(iv.Start, midnight)}, spans[0])
	assert.Equal(t, LocalSpan{Date: Date{2025, time.January, 7}, Start: 0, End: NewLocalTime(0, 30), UTC: New(midnight, iv.End)}, spans[1])

	var rebuilt []Interval
	for _, s := range spans {
		rebuilt = append(rebuilt, LocalWindow(s.Date, s.Start, s.End, tokyo))
	}
	merged := Merge(rebuilt)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Equal(iv))
}

func TestSplitLocalSingleDay(t *testing.T) {
	ny, err := LoadLocation("America/New_York")
	require.NoError(t, err)
	iv := New(time.Date(2025, 7, 7, 13, 0, 0, 0, time.UTC), time.Date(2025, 7, 7, 13, 30, 0, 0, time.UTC))
	spans := SplitLocal(iv, ny)
	require.Len(t, spans, 1)
	assert.Equal(t, LocalSpan{Date: Date{2025, time.July, 7}, Start: NewLocalTime(9, 0), End: NewLocalTime(9, 30), UTC: iv}, spans[0])
}

func TestSplitLocalInRepeatedHour(t *testing.T) {
	ny, err := LoadLocation("America/New_York")
	require.NoError(t, err)

	// Clocks go back from 02:00 EDT to 01:00 EST at 06:00Z on 2025-11-02.
	first := New(time.Date(2025, 11, 2, 5, 30, 0, 0, time.UTC), time.Date(2025, 11, 2, 6, 0, 0, 0, time.UTC))
	spans := SplitLocal(first, ny)
	require.Len(t, spans, 1)
	assert.Equal(t, NewLocalTime(1, 30), spans[0].Start)
	assert.Equal(t, NewLocalTime(2, 0), spans[0].End)
	assert.True(t, spans[0].UTC.Equal(first))

	second := New(time.Date(2025, 11, 2, 6, 0, 0, 0, time.UTC), time.Date(2025, 11, 2, 6, 30, 0, 0, time.UTC))
	spans = SplitLocal(second, ny)
	require.Len(t, spans, 1)
	assert.Equal(t, NewLocalTime(1, 0), spans[0].Start)
	assert.Equal(t, NewLocalTime(1, 30), spans[0].End)
	assert.True(t, spans[0].UTC.Equal(second))

	across := New(time.Date(2025, 11, 2, 5, 30, 0, 0, time.UTC), time.Date(2025, 11, 2, 6, 30, 0, 0, time.UTC))
	spans = SplitLocal(across, ny)
	require.Len(t, spans, 2)
	for _, sp := range spans {
		assert.Less(t, sp.Start, sp.End)
	}
	assert.True(t, spans[0].UTC.Equal(first))
	assert.True(t, spans[1].UTC.Equal(second))
}

func TestSplitLocalAcrossSkippedHour(t *testing.T) {
	ny, err := LoadLocation("America/New_York")
	require.NoError(t, err)

	// 01:30 EST to 03:30 EDT on 2025-03-09; 02:00-03:00 does not exist.
	iv := New(time.Date(2025, 3, 9, 6, 30, 0, 0, time.UTC), time.Date(2025, 3, 9, 7, 30, 0, 0, time.UTC))
	spans := SplitLocal(iv, ny)
	require.Len(t, spans, 2)
	assert.Equal(t, NewLocalTime(1, 30), spans[0].Start)
	assert.Equal(t, NewLocalTime(2, 0), spans[0].End)
	assert.Equal(t, NewLocalTime(3, 0), spans[1].Start)
	assert.Equal(t, NewLocalTime(3, 30), spans[1].End)
	assert.True(t, Merge([]Interval{spans[0].UTC, spans[1].UTC})[0].Equal(iv))
}
