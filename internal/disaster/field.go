// Package disaster models a spatially localized disaster as a timeline of
// 2-D scalar fields. A field answers two questions at any point: how hard
// the disaster hits there (intensity) and which way the point lies from
// the epicenter (bearing).
package disaster

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/mobility.report/internal/geo"
)

// Field is one snapshot of the disaster in space.
type Field interface {
	// Intensity evaluates the field at a point.
	Intensity(p orb.Point) float64

	// Bearing is the forward azimuth from the field's epicenter to p in
	// degrees [0, 360).
	Bearing(p orb.Point) float64

	// Epicenter returns the field's center (lon, lat).
	Epicenter() orb.Point
}

// Gaussian is a bell-shaped field
//
//	f(p) = A * exp(-(lon-lon0)^2/varLon - (lat-lat0)^2/varLat)
//
// with variances in squared degrees.
type Gaussian struct {
	Mean      orb.Point // (lon, lat)
	VarLat    float64
	VarLon    float64
	Amplitude float64
}

// Intensity evaluates the Gaussian at p.
func (g Gaussian) Intensity(p orb.Point) float64 {
	dx := p[0] - g.Mean[0]
	dy := p[1] - g.Mean[1]
	return g.Amplitude * math.Exp(-dx*dx/g.VarLon-dy*dy/g.VarLat)
}

// Bearing is the azimuth from the mean to p.
func (g Gaussian) Bearing(p orb.Point) float64 { return geo.Bearing(g.Mean, p) }

// Epicenter returns the mean.
func (g Gaussian) Epicenter() orb.Point { return g.Mean }

// UniformDisk is a flat field: full amplitude within RadiusKM of the mean,
// zero outside.
type UniformDisk struct {
	Mean      orb.Point // (lon, lat)
	RadiusKM  float64
	Amplitude float64
}

// Intensity is Amplitude inside the disk, 0 outside.
func (u UniformDisk) Intensity(p orb.Point) float64 {
	if geo.Haversine(u.Mean, p) <= u.RadiusKM*1000 {
		return u.Amplitude
	}
	return 0
}

// Bearing is the azimuth from the mean to p.
func (u UniformDisk) Bearing(p orb.Point) float64 { return geo.Bearing(u.Mean, p) }

// Epicenter returns the mean.
func (u UniformDisk) Epicenter() orb.Point { return u.Mean }
