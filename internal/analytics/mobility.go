package analytics

import (
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/mobility.report/internal/errlog"
	"github.com/banshee-data/mobility.report/internal/geo"
)

// MobilityRow is one origin-destination comparison between baseline and
// crisis movement counts.
type MobilityRow struct {
	StartLatitude  float64
	StartLongitude float64
	EndLatitude    float64
	EndLongitude   float64
	LengthKM       float64
	StartKey       string
	EndKey         string
	DateTime       time.Time
	NBaseline      float64
	NCrisis        float64
	NDifference    float64
	PercentChange  float64
	ZScore         float64
}

// odKey identifies one origin-destination pair.
type odKey struct {
	start string
	end   string
}

// BuildMobility produces the origin-destination dataset. A movement is a
// device's transition between the keys of two consecutive pings;
// transitions staying inside one key are kept, matching the density
// dataset's self-flows.
func BuildMobility(pings []Ping, crisisAt time.Time, keyer GeoKeyer, sink *errlog.Sink) []MobilityRow {
	baseline, crisis := Partition(pings, crisisAt, sink)

	baseCounts, _ := countTransitions(baseline, keyer)
	crisisCounts, centers := countTransitions(crisis, keyer)

	// Rekey to strings for the shared baseline computation.
	stats := computeBaseline(flattenOD(baseCounts))

	var rows []MobilityRow
	for od, byInterval := range crisisCounts {
		for iv, n := range byInterval {
			bs, ok := stats[baselineKey{geo: od.start + "|" + od.end, hour: iv.Hour(), weekday: iv.Weekday()}]
			if !ok {
				continue
			}
			sc, ec := centers[od.start], centers[od.end]
			diff := n - bs.mean
			rows = append(rows, MobilityRow{
				StartLatitude:  sc[1],
				StartLongitude: sc[0],
				EndLatitude:    ec[1],
				EndLongitude:   ec[0],
				LengthKM:       geo.Haversine(sc, ec) / 1000,
				StartKey:       od.start,
				EndKey:         od.end,
				DateTime:       iv,
				NBaseline:      bs.mean,
				NCrisis:        n,
				NDifference:    diff,
				PercentChange:  diff * 100 / (bs.mean + Epsilon),
				ZScore:         diff / bs.std,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].DateTime.Equal(rows[j].DateTime) {
			return rows[i].DateTime.Before(rows[j].DateTime)
		}
		if rows[i].StartKey != rows[j].StartKey {
			return rows[i].StartKey < rows[j].StartKey
		}
		return rows[i].EndKey < rows[j].EndKey
	})
	return rows
}

// countTransitions counts per-interval transitions between consecutive
// pings of each device.
func countTransitions(pings []Ping, keyer GeoKeyer) (map[odKey]map[time.Time]float64, map[string]orb.Point) {
	ordered := sortPings(pings)
	counts := make(map[odKey]map[time.Time]float64)
	centers := make(map[string]orb.Point)

	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if prev.DeviceID != cur.DeviceID {
			continue
		}
		sk, sc, ok1 := keyer.Key(prev.Lon, prev.Lat)
		ek, ec, ok2 := keyer.Key(cur.Lon, cur.Lat)
		if !ok1 || !ok2 {
			continue
		}
		centers[sk] = sc
		centers[ek] = ec

		od := odKey{start: sk, end: ek}
		iv := interval(cur.Time)
		if counts[od] == nil {
			counts[od] = make(map[time.Time]float64)
		}
		counts[od][iv]++
	}
	return counts, centers
}

func flattenOD(counts map[odKey]map[time.Time]float64) map[string]map[time.Time]float64 {
	out := make(map[string]map[time.Time]float64, len(counts))
	for od, byInterval := range counts {
		out[od.start+"|"+od.end] = byInterval
	}
	return out
}
