package network

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSamples() (*Network, *Samples) {
	nodes := []Node{
		{ID: "A_0", Center: orb.Point{0, 0}, Polygon: triangle(orb.Point{0, 0}), Population: 3000},
		{ID: "B_1", Center: orb.Point{0.02, 0}, Polygon: triangle(orb.Point{0.02, 0}), Population: 1000},
	}
	net, _ := NewNetwork("t", nodes, []EdgeByID{{NodeID1: "A_0", NodeID2: "B_1"}})

	samples := &Samples{
		NodePools: map[string][]orb.Point{
			"A_0": {{0.001, 0.001}, {0.002, 0.002}, {-0.001, 0}},
			"B_1": {{0.021, 0}, {0.019, 0.001}},
		},
		EdgeEndpoints: map[EdgeKey][2]orb.Point{
			{NodeID1: "A_0", NodeID2: "B_1"}: {{0, 0}, {0.02, 0}},
			{NodeID1: "B_1", NodeID2: "A_0"}: {{0.02, 0}, {0, 0}},
		},
	}
	return net, samples
}

func TestNodeSample_DrawsFromPool(t *testing.T) {
	_, samples := testSamples()
	rng := rand.New(rand.NewSource(1))

	pts, err := samples.NodeSample("A_0", 50, rng)
	require.NoError(t, err)
	require.Len(t, pts, 50)

	pool := map[orb.Point]bool{}
	for _, p := range samples.NodePools["A_0"] {
		pool[p] = true
	}
	for _, p := range pts {
		assert.True(t, pool[p], "sampled point %v not from the pool", p)
	}
}

func TestNodeSample_UnknownNode(t *testing.T) {
	_, samples := testSamples()
	_, err := samples.NodeSample("missing", 1, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestEdgeSample_InterpolatesBetweenEndpoints(t *testing.T) {
	_, samples := testSamples()
	rng := rand.New(rand.NewSource(2))

	pts, err := samples.EdgeSample("A_0", "B_1", 200, rng)
	require.NoError(t, err)
	require.Len(t, pts, 200)

	for _, p := range pts {
		assert.GreaterOrEqual(t, p[0], 0.0)
		assert.LessOrEqual(t, p[0], 0.02)
		assert.Equal(t, 0.0, p[1], "points stay on the equatorial segment")
	}

	// Both orientations resolve.
	_, err = samples.EdgeSample("B_1", "A_0", 5, rng)
	assert.NoError(t, err)

	_, err = samples.EdgeSample("A_0", "missing", 1, rng)
	assert.Error(t, err)
}

func TestInitialDevicePositions_WeightedByPopulation(t *testing.T) {
	net, _ := testSamples()
	rng := rand.New(rand.NewSource(7))

	ids := make([]int64, 40000)
	for i := range ids {
		ids[i] = int64(i)
	}
	positions := InitialDevicePositions(net, ids, rng)
	require.Len(t, positions, len(ids))

	counts := map[int]int{}
	a, _ := net.NodeIndex("A_0")
	for i, p := range positions {
		assert.Equal(t, int64(i), p.ID)
		counts[p.Node]++

		center := net.Nodes[p.Node].Center
		assert.LessOrEqual(t, math.Abs(p.Lon-center[0]), CityNoise+1e-12)
		assert.LessOrEqual(t, math.Abs(p.Lat-center[1]), CityNoise+1e-12)
	}

	// A_0 holds 75% of the population.
	frac := float64(counts[a]) / float64(len(ids))
	assert.InDelta(t, 0.75, frac, 0.02)
}
