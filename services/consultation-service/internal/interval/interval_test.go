package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}

func TestOverlapsHalfOpen(t *testing.T) {
	a := New(at(t, "2025-01-06T09:00:00Z"), at(t, "2025-01-06T10:00:00Z"))
	cases := []struct {
		name string
		b    Interval
		want bool
	}{
		{"touching after", New(at(t, "2025-01-06T10:00:00Z"), at(t, "2025-01-06T10:30:00Z")), false},
		{"touching before", New(at(t, "2025-01-06T08:30:00Z"), at(t, "2025-01-06T09:00:00Z")), false},
		{"inside", New(at(t, "2025-01-06T09:15:00Z"), at(t, "2025-01-06T09:45:00Z")), true},
		{"straddling end", New(at(t, "2025-01-06T09:59:00Z"), at(t, "2025-01-06T11:00:00Z")), true},
		{"zero length inside", New(at(t, "2025-01-06T09:30:00Z"), at(t, "2025-01-06T09:30:00Z")), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, a.Overlaps(tc.b))
			assert.Equal(t, tc.want, tc.b.Overlaps(a))
		})
	}
}

func TestNewNormalizesToUTC(t *testing.T) {
	ny, err := LoadLocation("America/New_York")
	require.NoError(t, err)
	iv := New(time.Date(2025, 1, 6, 9, 0, 0, 0, ny), time.Date(2025, 1, 6, 10, 0, 0, 0, ny))
	assert.Equal(t, time.UTC, iv.Start.Location())
	assert.Equal(t, "2025-01-06T14:00:00Z/2025-01-06T15:00:00Z", iv.String())
}

func TestSliceDropsPartialTrailingSlot(t *testing.T) {
	w := New(at(t, "2025-01-06T09:00:00Z"), at(t, "2025-01-06T10:45:00Z"))
	slots := Slice(w, 30*time.Minute)
	require.Len(t, slots, 3)
	assert.Equal(t, at(t, "2025-01-06T10:00:00Z"), slots[2].Start)
	assert.Equal(t, at(t, "2025-01-06T10:30:00Z"), slots[2].End)
	assert.Nil(t, Slice(w, 0))
}

func TestMergeJoinsOverlappingAndTouching(t *testing.T) {
	merged := Merge([]Interval{
		New(at(t, "2025-01-06T13:00:00Z"), at(t, "2025-01-06T14:00:00Z")),
		New(at(t, "2025-01-06T09:00:00Z"), at(t, "2025-01-06T10:00:00Z")),
		New(at(t, "2025-01-06T09:30:00Z"), at(t, "2025-01-06T11:00:00Z")),
		New(at(t, "2025-01-06T11:00:00Z"), at(t, "2025-01-06T11:30:00Z")),
	})
	require.Len(t, merged, 2)
	assert.Equal(t, "2025-01-06T09:00:00Z/2025-01-06T11:30:00Z", merged[0].String())
	assert.Equal(t, "2025-01-06T13:00:00Z/2025-01-06T14:00:00Z", merged[1].String())
}

func TestContains(t *testing.T) {
	outer := New(at(t, "2025-01-06T09:00:00Z"), at(t, "2025-01-06T11:00:00Z"))
	assert.True(t, outer.Contains(New(at(t, "2025-01-06T09:00:00Z"), at(t, "2025-01-06T11:00:00Z"))))
	assert.False(t, outer.Contains(New(at(t, "2025-01-06T10:30:00Z"), at(t, "2025-01-06T11:30:00Z"))))
}
