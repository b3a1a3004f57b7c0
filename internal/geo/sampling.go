package geo

import (
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultSearchUnit is the perturbation radius for polygon sampling in
// degrees, roughly 200 m at the equator.
const DefaultSearchUnit = 0.0018

// maxSamplePasses bounds the rejection sampler so degenerate polygons
// (near-zero area, self-touching rings) still terminate.
const maxSamplePasses = 40

// SamplePointsInPolygon draws n points approximately uniformly inside the
// polygon. Candidates are produced by perturbing ring vertices, and later
// already-accepted points, by uniform noise in [-searchUnit, searchUnit]^2;
// candidates that pass point-in-polygon are kept, and the batch size grows
// by x1.2 each round until the quota is met. Surveys of complex settlement
// footprints spend most of their time in the point-in-polygon test, so
// candidates are generated in bulk per round rather than one at a time.
//
// If the pass bound is hit before the quota, the remainder is filled with
// perturbed copies of the ring's centroid so callers always receive n
// points; those fills stay within searchUnit of the polygon.
func SamplePointsInPolygon(poly orb.Polygon, n int, searchUnit float64, rng *rand.Rand) []orb.Point {
	if n <= 0 || len(poly) == 0 || len(poly[0]) == 0 {
		return nil
	}
	if searchUnit <= 0 {
		searchUnit = DefaultSearchUnit
	}

	ring := poly[0]
	accepted := make([]orb.Point, 0, n)

	batch := 100
	if n < batch {
		batch = n
	}

	for pass := 0; pass < maxSamplePasses && len(accepted) < n; pass++ {
		for i := 0; i < batch && len(accepted) < n; i++ {
			var seed orb.Point
			// Seed from the boundary until the interior population is
			// large enough to diffuse inward.
			if len(accepted) == 0 || rng.Intn(2) == 0 {
				seed = ring[rng.Intn(len(ring))]
			} else {
				seed = accepted[rng.Intn(len(accepted))]
			}
			cand := orb.Point{
				seed[0] + (2*rng.Float64()-1)*searchUnit,
				seed[1] + (2*rng.Float64()-1)*searchUnit,
			}
			if planar.PolygonContains(poly, cand) {
				accepted = append(accepted, cand)
			}
		}
		batch = batch*6/5 + 1
	}

	for len(accepted) < n {
		c := RingCentroid(ring)
		accepted = append(accepted, orb.Point{
			c[0] + (2*rng.Float64()-1)*searchUnit,
			c[1] + (2*rng.Float64()-1)*searchUnit,
		})
	}
	return accepted
}

// RingCentroid returns the area-weighted centroid of a closed ring, falling
// back to the vertex mean for zero-area rings.
func RingCentroid(ring orb.Ring) orb.Point {
	var cx, cy, area float64
	for i := 0; i+1 < len(ring); i++ {
		cross := ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
		cx += (ring[i][0] + ring[i+1][0]) * cross
		cy += (ring[i][1] + ring[i+1][1]) * cross
		area += cross
	}
	if area == 0 {
		var sx, sy float64
		for _, p := range ring {
			sx += p[0]
			sy += p[1]
		}
		return orb.Point{sx / float64(len(ring)), sy / float64(len(ring))}
	}
	area /= 2
	return orb.Point{cx / (6 * area), cy / (6 * area)}
}

// ConvexHull returns the convex hull of the given points as a closed CCW
// ring (Andrew's monotone chain). Used to merge building footprints into a
// single node polygon without a full polygon-clipping dependency.
func ConvexHull(points []orb.Point) orb.Ring {
	if len(points) < 3 {
		return nil
	}
	pts := make([]orb.Point, len(points))
	copy(pts, points)

	// Sort by x then y.
	for i := 1; i < len(pts); i++ {
		for j := i; j > 0 && less(pts[j], pts[j-1]); j-- {
			pts[j], pts[j-1] = pts[j-1], pts[j]
		}
	}

	var lower, upper []orb.Point
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	if len(hull) < 3 {
		return nil
	}
	ring := orb.Ring(hull)
	ring = append(ring, ring[0])
	return ring
}

func less(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}
