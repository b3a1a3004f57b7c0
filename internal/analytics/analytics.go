// Package analytics rolls simulated position pings into crisis-analytics
// tables: population density and origin-destination mobility per
// geographic key and 8-hour reporting interval, each split into a
// pre-crisis baseline and a crisis period and compared via z-scores.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mobility.report/internal/errlog"
	"github.com/banshee-data/mobility.report/internal/geo"
	"github.com/banshee-data/mobility.report/internal/quadkey"
	"github.com/banshee-data/mobility.report/internal/timeutil"
)

const (
	// Epsilon keeps percent-change finite when a baseline count is zero.
	Epsilon = 1.0

	// MinStd floors the baseline standard deviation so a perfectly
	// stable baseline still yields finite z-scores.
	MinStd = 0.1
)

// Ping is one simulated position report.
type Ping struct {
	DeviceID int64
	Time     time.Time
	Lon      float64
	Lat      float64
}

// GeoKeyer maps a coordinate to an aggregation key and that key's
// representative point.
type GeoKeyer interface {
	Key(lon, lat float64) (key string, center orb.Point, ok bool)
}

// TileKeyer aggregates by Bing tile quadkey at the standard level.
type TileKeyer struct{}

// Key returns the quadkey containing the coordinate and the tile center.
func (TileKeyer) Key(lon, lat float64) (string, orb.Point, bool) {
	t := quadkey.Encode(lat, lon)
	return t.Key, orb.Point{t.Lon, t.Lat}, true
}

// AdminArea is one administrative polygon with its key.
type AdminArea struct {
	Key     string
	Polygon orb.Polygon
}

// AdminKeyer aggregates by administrative area; coordinates outside every
// area are dropped.
type AdminKeyer struct {
	Areas []AdminArea
}

// Key returns the containing area's key and centroid.
func (a AdminKeyer) Key(lon, lat float64) (string, orb.Point, bool) {
	p := orb.Point{lon, lat}
	for _, area := range a.Areas {
		if planar.PolygonContains(area.Polygon, p) {
			return area.Key, geo.RingCentroid(area.Polygon[0]), true
		}
	}
	return "", orb.Point{}, false
}

// baselineStats aggregates a baseline group's per-interval counts into a
// mean and floored standard deviation.
type baselineStats struct {
	mean float64
	std  float64
}

// baselineKey is the join key for baseline statistics: the geographic
// key plus the interval's hour bin and weekday, so Tuesday mornings are
// compared with Tuesday mornings.
type baselineKey struct {
	geo     string
	hour    int
	weekday time.Weekday
}

func computeBaseline(counts map[string]map[time.Time]float64) map[baselineKey]baselineStats {
	grouped := make(map[baselineKey][]float64)
	for key, byInterval := range counts {
		for interval, n := range byInterval {
			bk := baselineKey{geo: key, hour: interval.Hour(), weekday: interval.Weekday()}
			grouped[bk] = append(grouped[bk], n)
		}
	}
	out := make(map[baselineKey]baselineStats, len(grouped))
	for bk, values := range grouped {
		mean := stat.Mean(values, nil)
		std := MinStd
		if len(values) > 1 {
			if s := stat.StdDev(values, nil); s > MinStd {
				std = s
			}
		}
		out[bk] = baselineStats{mean: mean, std: std}
	}
	return out
}

// Partition splits pings at the crisis datetime. Empty partitions are
// reported as warnings, not errors: the affected dataset simply comes out
// empty.
func Partition(pings []Ping, crisisAt time.Time, sink *errlog.Sink) (baseline, crisis []Ping) {
	for _, p := range pings {
		if p.Time.Before(crisisAt) {
			baseline = append(baseline, p)
		} else {
			crisis = append(crisis, p)
		}
	}
	if len(baseline) == 0 && sink != nil {
		sink.Warning("analytics", "no records before the crisis datetime; baseline is empty")
	}
	if len(crisis) == 0 && sink != nil {
		sink.Warning("analytics", "no records after the crisis datetime; crisis dataset is empty")
	}
	return baseline, crisis
}

// sortPings orders by device then time, the order transition extraction
// requires.
func sortPings(pings []Ping) []Ping {
	out := make([]Ping, len(pings))
	copy(out, pings)
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// DatasetID formats the identifier embedded in output filenames.
func DatasetID(disasterName string) string {
	return fmt.Sprintf("disaster-name=%s", disasterName)
}

// interval snaps a ping time to its reporting interval.
func interval(t time.Time) time.Time { return timeutil.ReportingInterval(t) }
