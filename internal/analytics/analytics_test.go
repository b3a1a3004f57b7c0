package analytics

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pingSeries fabricates one ping per 8-hour interval at a fixed point for
// every interval in [from, to).
func pingSeries(device int64, lon, lat float64, from, to time.Time, perInterval int) []Ping {
	var pings []Ping
	for t := from; t.Before(to); t = t.Add(8 * time.Hour) {
		for i := 0; i < perInterval; i++ {
			pings = append(pings, Ping{DeviceID: device, Time: t, Lon: lon, Lat: lat})
		}
	}
	return pings
}

func TestPartition(t *testing.T) {
	crisis := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)
	pings := []Ping{
		{DeviceID: 1, Time: crisis.Add(-time.Hour)},
		{DeviceID: 1, Time: crisis},
		{DeviceID: 1, Time: crisis.Add(time.Hour)},
	}
	baseline, crisisPings := Partition(pings, crisis, nil)
	assert.Len(t, baseline, 1)
	assert.Len(t, crisisPings, 2)
}

func TestTileKeyer(t *testing.T) {
	key, center, ok := TileKeyer{}.Key(-82.842, 8.4052)
	require.True(t, ok)
	assert.Len(t, key, 14)
	assert.InDelta(t, -82.842, center[0], 0.02)
	assert.InDelta(t, 8.4052, center[1], 0.02)
}

func TestAdminKeyer(t *testing.T) {
	keyer := AdminKeyer{Areas: []AdminArea{
		{Key: "PAN.1_1", Polygon: orb.Polygon{{{-83, 8}, {-82, 8}, {-82, 9}, {-83, 9}, {-83, 8}}}},
	}}

	key, _, ok := keyer.Key(-82.5, 8.5)
	require.True(t, ok)
	assert.Equal(t, "PAN.1_1", key)

	_, _, ok = keyer.Key(0, 0)
	assert.False(t, ok)
}

func TestBuildDensity_ZScoreAgainstStableBaseline(t *testing.T) {
	// Two weeks of baseline with a constant count c, then one crisis
	// interval with c+k: z = k / MinStd because the baseline never moves.
	start := time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC) // a Monday
	crisis := start.AddDate(0, 0, 14)

	const c = 5
	var pings []Ping
	for d := 0; d < 14; d++ {
		day := start.AddDate(0, 0, d)
		for i := 0; i < c; i++ {
			pings = append(pings, Ping{DeviceID: int64(i), Time: day, Lon: -82.842, Lat: 8.4052})
		}
	}
	// Crisis: same weekday/hour as the baseline Mondays, count c+3.
	crisisTick := crisis // midnight Monday
	for i := 0; i < c+3; i++ {
		pings = append(pings, Ping{DeviceID: int64(i), Time: crisisTick, Lon: -82.842, Lat: 8.4052})
	}

	rows := BuildDensity(pings, crisis, TileKeyer{}, nil)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, float64(c), r.NBaseline)
	assert.Equal(t, float64(c+3), r.NCrisis)
	assert.Equal(t, 3.0, r.NDifference)
	assert.InDelta(t, 3.0/MinStd, r.ZScore, 1e-9)
	assert.InDelta(t, 3.0*100/(c+Epsilon), r.PercentChange, 1e-9)
	assert.Equal(t, 1.0, r.DensityCrisis)
	assert.Equal(t, 1.0, r.DensityBaseline)
}

func TestBuildDensity_EmptyCrisisYieldsEmptyDataset(t *testing.T) {
	start := time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
	pings := pingSeries(1, 0, 0, start, start.AddDate(0, 0, 3), 2)

	rows := BuildDensity(pings, start.AddDate(0, 1, 0), TileKeyer{}, nil)
	assert.Empty(t, rows)
}

func TestBuildDensity_SortedOutput(t *testing.T) {
	start := time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
	crisis := start.AddDate(0, 0, 7)

	var pings []Ping
	// Two locations, baseline and crisis on matching weekdays.
	for d := 0; d < 14; d++ {
		day := start.AddDate(0, 0, d)
		pings = append(pings,
			Ping{DeviceID: 1, Time: day, Lon: -82.842, Lat: 8.4052},
			Ping{DeviceID: 2, Time: day, Lon: -82.45, Lat: 8.77},
		)
	}

	rows := BuildDensity(pings, crisis, TileKeyer{}, nil)
	require.NotEmpty(t, rows)
	for i := 1; i < len(rows); i++ {
		if rows[i-1].DateTime.Equal(rows[i].DateTime) {
			assert.Less(t, rows[i-1].Key, rows[i].Key)
		} else {
			assert.True(t, rows[i-1].DateTime.Before(rows[i].DateTime))
		}
	}
}

func TestBuildMobility_CountsTransitions(t *testing.T) {
	start := time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
	crisis := start.AddDate(0, 0, 7)

	// One device commutes between two distant tiles every interval, for
	// one baseline week and one crisis week.
	a := orb.Point{-82.842, 8.4052}
	b := orb.Point{-82.45, 8.77}
	var pings []Ping
	for d := 0; d < 14; d++ {
		day := start.AddDate(0, 0, d)
		pings = append(pings,
			Ping{DeviceID: 1, Time: day, Lon: a[0], Lat: a[1]},
			Ping{DeviceID: 1, Time: day.Add(8 * time.Hour), Lon: b[0], Lat: b[1]},
			Ping{DeviceID: 1, Time: day.Add(16 * time.Hour), Lon: a[0], Lat: a[1]},
		)
	}

	rows := BuildMobility(pings, crisis, TileKeyer{}, nil)
	require.NotEmpty(t, rows)

	for _, r := range rows {
		assert.NotEmpty(t, r.StartKey)
		assert.NotEmpty(t, r.EndKey)
		if r.StartKey != r.EndKey {
			assert.Greater(t, r.LengthKM, 10.0, "distinct tiles are tens of km apart here")
		}
		assert.False(t, r.DateTime.Before(crisis))
	}
}

func TestBuildMobility_TransitionsDoNotCrossDevices(t *testing.T) {
	start := time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
	crisis := start

	// Two devices at two far-apart points, pinging simultaneously. No
	// cross-device transition may appear.
	var pings []Ping
	for d := 0; d < 7; d++ {
		day := start.AddDate(0, 0, d)
		pings = append(pings,
			Ping{DeviceID: 1, Time: day, Lon: 0, Lat: 0},
			Ping{DeviceID: 2, Time: day, Lon: 10, Lat: 10},
		)
	}
	counts, _ := countTransitions(pings, TileKeyer{})
	for od := range counts {
		assert.Equal(t, od.start, od.end, "each device stays put, so only self-flows exist")
	}
}
