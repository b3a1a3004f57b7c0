package analytics

import (
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/mobility.report/internal/errlog"
)

// DensityRow is one (key, interval) comparison between baseline and
// crisis device counts.
type DensityRow struct {
	Latitude        float64
	Longitude       float64
	Key             string
	DateTime        time.Time
	NBaseline       float64
	NCrisis         float64
	NDifference     float64
	DensityBaseline float64
	DensityCrisis   float64
	PercentChange   float64
	ZScore          float64
}

// BuildDensity produces the population-density dataset: for every
// geographic key and crisis interval, the crisis count against the
// baseline mean for the same hour bin and weekday.
func BuildDensity(pings []Ping, crisisAt time.Time, keyer GeoKeyer, sink *errlog.Sink) []DensityRow {
	baseline, crisis := Partition(pings, crisisAt, sink)

	baseCounts, _ := countByKeyInterval(baseline, keyer)
	crisisCounts, centers := countByKeyInterval(crisis, keyer)
	stats := computeBaseline(baseCounts)

	var rows []DensityRow
	for key, byInterval := range crisisCounts {
		for iv, n := range byInterval {
			bs, ok := stats[baselineKey{geo: key, hour: iv.Hour(), weekday: iv.Weekday()}]
			if !ok {
				continue
			}
			c := centers[key]
			diff := n - bs.mean
			rows = append(rows, DensityRow{
				Latitude:      c[1],
				Longitude:     c[0],
				Key:           key,
				DateTime:      iv,
				NBaseline:     bs.mean,
				NCrisis:       n,
				NDifference:   diff,
				PercentChange: diff * 100 / (bs.mean + Epsilon),
				ZScore:        diff / bs.std,
			})
		}
	}

	var sumBase, sumCrisis float64
	for _, r := range rows {
		sumBase += r.NBaseline
		sumCrisis += r.NCrisis
	}
	for i := range rows {
		if sumBase > 0 {
			rows[i].DensityBaseline = rows[i].NBaseline / sumBase
		}
		if sumCrisis > 0 {
			rows[i].DensityCrisis = rows[i].NCrisis / sumCrisis
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].DateTime.Equal(rows[j].DateTime) {
			return rows[i].DateTime.Before(rows[j].DateTime)
		}
		return rows[i].Key < rows[j].Key
	})
	return rows
}

// countByKeyInterval counts pings per (key, reporting interval) and
// remembers each key's representative center.
func countByKeyInterval(pings []Ping, keyer GeoKeyer) (map[string]map[time.Time]float64, map[string]orb.Point) {
	counts := make(map[string]map[time.Time]float64)
	centers := make(map[string]orb.Point)
	for _, p := range pings {
		key, center, ok := keyer.Key(p.Lon, p.Lat)
		if !ok {
			continue
		}
		iv := interval(p.Time)
		if counts[key] == nil {
			counts[key] = make(map[time.Time]float64)
			centers[key] = center
		}
		counts[key][iv]++
	}
	return counts, centers
}
