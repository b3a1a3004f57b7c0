package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickFormatRoundTrip(t *testing.T) {
	ts := time.Date(2017, 8, 25, 8, 34, 0, 0, time.UTC)
	s := FormatTick(ts)
	assert.Equal(t, "08-25-2017_08:34:00", s)

	parsed, err := ParseTick(s)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts))
}

func TestRoundNearestHour(t *testing.T) {
	base := time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, base, RoundNearestHour(base.Add(14*time.Minute)))
	assert.Equal(t, base.Add(time.Hour), RoundNearestHour(base.Add(30*time.Minute)))
	assert.Equal(t, base.Add(time.Hour), RoundNearestHour(base.Add(59*time.Minute)))
}

func TestReportingInterval(t *testing.T) {
	day := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		hour int
		want int
	}{
		{0, 0}, {3, 0}, {7, 0},
		{8, 8}, {12, 8}, {15, 8},
		{16, 16}, {20, 16}, {23, 16},
	}
	for _, c := range cases {
		got := ReportingInterval(day.Add(time.Duration(c.hour) * time.Hour))
		assert.Equal(t, c.want, got.Hour(), "hour %d", c.hour)
		assert.Equal(t, 0, got.Minute())
		assert.Equal(t, day.Day(), got.Day())
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())
}
