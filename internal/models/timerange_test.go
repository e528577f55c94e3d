package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeRangeOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b TimeRange
		want bool
	}{
		{"partial overlap", TimeRange{Start: 480, End: 600}, TimeRange{Start: 540, End: 660}, true},
		{"contained", TimeRange{Start: 480, End: 600}, TimeRange{Start: 500, End: 560}, true},
		{"identical", TimeRange{Start: 480, End: 600}, TimeRange{Start: 480, End: 600}, true},
		{"back to back", TimeRange{Start: 480, End: 600}, TimeRange{Start: 600, End: 660}, false},
		{"disjoint", TimeRange{Start: 480, End: 540}, TimeRange{Start: 600, End: 660}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Overlaps(tc.b))
			assert.Equal(t, tc.want, tc.b.Overlaps(tc.a), "overlap must be symmetric")
		})
	}
}

func TestParseClock(t *testing.T) {
	minute, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, 510, minute)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
	_, err = ParseClock("bogus")
	assert.Error(t, err)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "07:00", FormatClock(420))
	assert.Equal(t, "13:05", FormatClock(785))
}

func TestParseWeekday(t *testing.T) {
	assert.Equal(t, Monday, ParseWeekday(" mon "))
	assert.Equal(t, Weekday(""), ParseWeekday("FUNDAY"))
	assert.Equal(t, 6, Saturday.Index())
}
