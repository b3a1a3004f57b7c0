package network

import (
	"fmt"
	"math/rand"

	"github.com/paulmach/orb"
)

// Samples holds the precomputed sampling structures of a network: one pool
// of in-polygon points per node (size at least the node's population) and
// the endpoint pair of every edge in both orientations.
type Samples struct {
	NodePools     map[string][]orb.Point
	EdgeEndpoints map[EdgeKey][2]orb.Point
}

// NodeSample draws n points from the node's pool with replacement.
func (s *Samples) NodeSample(nodeID string, n int, rng *rand.Rand) ([]orb.Point, error) {
	pool, ok := s.NodePools[nodeID]
	if !ok || len(pool) == 0 {
		return nil, fmt.Errorf("network: no sample pool for node %q", nodeID)
	}
	out := make([]orb.Point, n)
	for i := range out {
		out[i] = pool[rng.Intn(len(pool))]
	}
	return out, nil
}

// EdgeSample draws n points on the edge between the two nodes by uniform
// interpolation between its endpoints.
func (s *Samples) EdgeSample(nodeID1, nodeID2 string, n int, rng *rand.Rand) ([]orb.Point, error) {
	ends, ok := s.EdgeEndpoints[EdgeKey{NodeID1: nodeID1, NodeID2: nodeID2}]
	if !ok {
		return nil, fmt.Errorf("network: no edge between %q and %q", nodeID1, nodeID2)
	}
	out := make([]orb.Point, n)
	for i := range out {
		t := rng.Float64()
		out[i] = orb.Point{
			(1-t)*ends[0][0] + t*ends[1][0],
			(1-t)*ends[0][1] + t*ends[1][1],
		}
	}
	return out, nil
}

// DevicePosition is one device's placement at a tick boundary.
type DevicePosition struct {
	ID   int64
	Node int // index into Network.Nodes
	Lon  float64
	Lat  float64

	// Accuracy is reported by real telemetry feeds; no model assigns it
	// yet so it stays zero.
	Accuracy float64
}

// InitialDevicePositions places each device in a population-weighted
// random node, jittered around the node center by CityNoise.
func InitialDevicePositions(net *Network, ids []int64, rng *rand.Rand) []DevicePosition {
	total := float64(net.TotalPopulation())
	cum := make([]float64, len(net.Nodes))
	acc := 0.0
	for i, n := range net.Nodes {
		acc += float64(n.Population) / total
		cum[i] = acc
	}

	out := make([]DevicePosition, len(ids))
	for i, id := range ids {
		u := rng.Float64()
		node := len(cum) - 1
		for j, c := range cum {
			if u <= c {
				node = j
				break
			}
		}
		xi := 2*rng.Float64() - 1
		center := net.Nodes[node].Center
		out[i] = DevicePosition{
			ID:   id,
			Node: node,
			Lon:  center[0] + xi*CityNoise,
			Lat:  center[1] + xi*CityNoise,
		}
	}
	return out
}
