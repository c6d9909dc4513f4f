package rental

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestEndDate_InclusiveEndpoints(t *testing.T) {
	// A 1-day rental starts and ends on the same day.
	assert.Equal(t, d("2025-03-01"), EndDate(d("2025-03-01"), 1))
	assert.Equal(t, d("2025-03-05"), EndDate(d("2025-03-01"), 5))
	// Month boundary.
	assert.Equal(t, d("2025-03-02"), EndDate(d("2025-02-26"), 5))
}

func TestBuffered_ExtendsEndOnly(t *testing.T) {
	assert.Equal(t, d("2025-01-11"), Buffered(d("2025-01-10"), 1))
	assert.Equal(t, d("2025-01-10"), Buffered(d("2025-01-10"), 0))
	assert.Equal(t, d("2025-01-13"), Buffered(d("2025-01-10"), 3))
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     string
		want                           bool
	}{
		{"disjoint before", "2025-01-01", "2025-01-05", "2025-01-06", "2025-01-10", false},
		{"disjoint after", "2025-01-06", "2025-01-10", "2025-01-01", "2025-01-05", false},
		{"touching endpoints overlap", "2025-01-01", "2025-01-05", "2025-01-05", "2025-01-10", true},
		{"contained", "2025-01-01", "2025-01-10", "2025-01-03", "2025-01-04", true},
		{"identical", "2025-01-01", "2025-01-10", "2025-01-01", "2025-01-10", true},
		{"single day vs single day", "2025-01-05", "2025-01-05", "2025-01-05", "2025-01-05", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(d(tc.aStart), d(tc.aEnd), d(tc.bStart), d(tc.bEnd)))
		})
	}
}

// Booked through 2025-01-10 with buffer 1 occupies through 2025-01-11: a
// request starting on the 11th collides, the 12th is free.
func TestBufferBoundary(t *testing.T) {
	blockEnd := Buffered(d("2025-01-10"), 1)
	assert.True(t, Overlaps(d("2025-01-01"), blockEnd, d("2025-01-11"), d("2025-01-15")))
	assert.False(t, Overlaps(d("2025-01-01"), blockEnd, d("2025-01-12"), d("2025-01-15")))
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, d("2025-03-01"), got)

	_, err = ParseDate("01/03/2025")
	assert.Error(t, err)
}

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2025, 3, 1, 23, 45, 0, 0, loc) // 18:15 UTC
	assert.Equal(t, d("2025-03-01"), DateOnly(ts))
}
