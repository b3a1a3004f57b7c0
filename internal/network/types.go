// Package network builds and holds the population network: places promoted
// to nodes with population and a polygonal footprint, adjacency edges
// between nearby nodes, and the sample pools used to place devices at
// concrete coordinates.
package network

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
)

// Frozen network-construction constants.
const (
	// MinCityRadiusKM is the radius of a node's default footprint disk.
	MinCityRadiusKM = 1.5

	// MinBuildingRadiusKM buffers individual building footprints before
	// they are merged into a node polygon.
	MinBuildingRadiusKM = 0.5

	// MinPopulation is the population assigned to places no raster cell
	// maps to, and the floor for every node.
	MinPopulation = 500

	// MaxAdjacentKMZoomed and MaxAdjacentKMWide bound the great-circle
	// distance between adjacent nodes for zoomed and wide-area networks.
	MaxAdjacentKMZoomed = 8
	MaxAdjacentKMWide   = 45

	// CityNoise and RoadNoise are the positional jitter, in degrees, for
	// devices inside a node and on an edge (roughly 500 m and 200 m at
	// the equator).
	CityNoise = 0.0045
	RoadNoise = 0.0018
)

// Node is a populated place.
type Node struct {
	ID         string
	Center     orb.Point // (lon, lat)
	Polygon    orb.Polygon
	Population int64
}

// Edge is a symmetric adjacency between two nodes, canonicalized so
// A sorts before B.
type Edge struct {
	A         int // index into Network.Nodes
	B         int
	DistanceM float64
	Value     float64
	Geometry  orb.LineString
}

// Network is the immutable product of a build: nodes sorted by id, edges
// in canonical form, and per-node adjacency lists (each including the node
// itself, so a device may stay put).
type Network struct {
	ID        string
	Nodes     []Node
	Edges     []Edge
	Adjacency [][]int

	index map[string]int
}

// NewNetwork assembles a Network from nodes and edges, sorting nodes by id
// and rebuilding edge indices. Edges reference nodes by id pairs here so
// callers do not depend on slice order.
func NewNetwork(id string, nodes []Node, edges []EdgeByID) (*Network, error) {
	sorted := make([]Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	index := make(map[string]int, len(sorted))
	for i, n := range sorted {
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("network: duplicate node id %q", n.ID)
		}
		index[n.ID] = i
	}

	net := &Network{ID: id, Nodes: sorted, index: index}
	for _, e := range edges {
		a, ok := index[e.NodeID1]
		if !ok {
			return nil, fmt.Errorf("network: edge references unknown node %q", e.NodeID1)
		}
		b, ok := index[e.NodeID2]
		if !ok {
			return nil, fmt.Errorf("network: edge references unknown node %q", e.NodeID2)
		}
		if a == b {
			return nil, fmt.Errorf("network: self-loop on node %q", e.NodeID1)
		}
		if sorted[a].ID > sorted[b].ID {
			a, b = b, a
		}
		net.Edges = append(net.Edges, Edge{
			A: a, B: b,
			DistanceM: e.DistanceM,
			Value:     e.Value,
			Geometry:  e.Geometry,
		})
	}

	net.Adjacency = buildAdjacency(len(sorted), net.Edges)
	return net, nil
}

// EdgeByID is an edge expressed with node ids, the form loaders and the
// cache use.
type EdgeByID struct {
	NodeID1   string
	NodeID2   string
	DistanceM float64
	Value     float64
	Geometry  orb.LineString
}

func buildAdjacency(n int, edges []Edge) [][]int {
	adj := make([][]int, n)
	for i := range adj {
		adj[i] = []int{i}
	}
	for _, e := range edges {
		adj[e.A] = append(adj[e.A], e.B)
		adj[e.B] = append(adj[e.B], e.A)
	}
	for i := range adj {
		sort.Ints(adj[i])
	}
	return adj
}

// NodeIndex returns the slice index for a node id.
func (n *Network) NodeIndex(id string) (int, bool) {
	i, ok := n.index[id]
	return i, ok
}

// TotalPopulation sums node populations.
func (n *Network) TotalPopulation() int64 {
	var total int64
	for _, node := range n.Nodes {
		total += node.Population
	}
	return total
}

// EdgeKey is the canonical (ordered) id pair naming an edge.
type EdgeKey struct {
	NodeID1 string
	NodeID2 string
}

// CanonicalEdgeKey orders the pair lexicographically.
func CanonicalEdgeKey(a, b string) EdgeKey {
	if a > b {
		a, b = b, a
	}
	return EdgeKey{NodeID1: a, NodeID2: b}
}
