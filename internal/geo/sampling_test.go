package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squarePolygon(side float64) orb.Polygon {
	return orb.Polygon{{
		{0, 0}, {side, 0}, {side, side}, {0, side}, {0, 0},
	}}
}

func TestSamplePointsInPolygon_QuotaAndContainment(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	poly := squarePolygon(0.05)
	const searchUnit = 0.0018

	points := SamplePointsInPolygon(poly, 500, searchUnit, rng)
	require.Len(t, points, 500)

	for _, p := range points {
		if planar.PolygonContains(poly, p) {
			continue
		}
		// Centroid fills may land within searchUnit outside.
		assert.LessOrEqual(t, distanceToRing(poly[0], p), searchUnit,
			"point %v outside polygon by more than the search unit", p)
	}
}

func TestSamplePointsInPolygon_DeterministicForSeed(t *testing.T) {
	poly := squarePolygon(0.02)
	a := SamplePointsInPolygon(poly, 100, 0.0018, rand.New(rand.NewSource(9)))
	b := SamplePointsInPolygon(poly, 100, 0.0018, rand.New(rand.NewSource(9)))
	assert.Equal(t, a, b)
}

func TestSamplePointsInPolygon_DegeneratePolygonTerminates(t *testing.T) {
	// A zero-area sliver: rejection almost always fails, the fallback
	// must still deliver the quota.
	poly := orb.Polygon{{{0, 0}, {1, 0}, {0, 0}}}
	rng := rand.New(rand.NewSource(1))
	points := SamplePointsInPolygon(poly, 50, 0.0018, rng)
	assert.Len(t, points, 50)
}

func TestSamplePointsInPolygon_Empty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Nil(t, SamplePointsInPolygon(orb.Polygon{}, 10, 0.0018, rng))
	assert.Nil(t, SamplePointsInPolygon(squarePolygon(1), 0, 0.0018, rng))
}

func TestRingCentroid(t *testing.T) {
	sq := squarePolygon(2)[0]
	c := RingCentroid(sq)
	assert.InDelta(t, 1, c[0], 1e-12)
	assert.InDelta(t, 1, c[1], 1e-12)
}

func TestConvexHull(t *testing.T) {
	pts := []orb.Point{
		{0, 0}, {2, 0}, {2, 2}, {0, 2},
		{1, 1}, {0.5, 0.5}, // interior points must vanish
	}
	hull := ConvexHull(pts)
	require.NotNil(t, hull)
	assert.Equal(t, hull[0], hull[len(hull)-1], "hull ring must close")
	assert.Len(t, hull, 5)

	poly := orb.Polygon{hull}
	assert.True(t, planar.PolygonContains(poly, orb.Point{1, 1}))
	assert.False(t, planar.PolygonContains(poly, orb.Point{3, 1}))
}

func TestConvexHull_TooFewPoints(t *testing.T) {
	assert.Nil(t, ConvexHull([]orb.Point{{0, 0}, {1, 1}}))
}

// distanceToRing is the distance from p to the nearest ring segment.
func distanceToRing(ring orb.Ring, p orb.Point) float64 {
	min := math.Inf(1)
	for i := 0; i+1 < len(ring); i++ {
		if d := pointSegmentDistance(p, ring[i], ring[i+1]); d < min {
			min = d
		}
	}
	return min
}

func pointSegmentDistance(p, a, b orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	if dx == 0 && dy == 0 {
		return math.Hypot(p[0]-a[0], p[1]-a[1])
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p[0]-(a[0]+t*dx), p[1]-(a[1]+t*dy))
}
