package network

import (
	"math"
	"sort"

	ctgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"

	"github.com/banshee-data/mobility.report/internal/geo"
)

// RoadWidthKM pads road bounding boxes when deciding whether two road
// lines touch; OSM splits continuous roads into many short features.
const RoadWidthKM = 0.35

// roadGroup is a set of road lines of one highway class that touch each
// other, the unit an edge borrows geometry from.
type roadGroup struct {
	lines  []orb.LineString
	center orb.Point
}

// roadGroupIndex finds the road group nearest a query point.
type roadGroupIndex struct {
	groups []roadGroup
}

func (r *roadGroupIndex) Len() int { return len(r.groups) }

type roadItem struct {
	idx    int
	bounds *ctgeom.Bounds
}

func (r *roadItem) Bounds() *ctgeom.Bounds { return r.bounds }

// groupRoads merges roads of the same highway class whose padded bounding
// boxes intersect, using union-find over R-tree hits.
func groupRoads(roads []Road) *roadGroupIndex {
	if len(roads) == 0 {
		return &roadGroupIndex{}
	}

	pad := RoadWidthKM / geo.DegreeEquivalentKM
	tree := rtree.NewTree(25, 50)
	items := make([]*roadItem, len(roads))
	for i, r := range roads {
		b := lineBound(r.Line)
		items[i] = &roadItem{
			idx: i,
			bounds: &ctgeom.Bounds{
				Min: ctgeom.Point{X: b.Min[0] - pad, Y: b.Min[1] - pad},
				Max: ctgeom.Point{X: b.Max[0] + pad, Y: b.Max[1] + pad},
			},
		}
		tree.Insert(items[i])
	}

	parent := make([]int, len(roads))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra > rb {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for i, item := range items {
		for _, h := range tree.SearchIntersect(item.bounds) {
			other := h.(*roadItem)
			if other.idx == i {
				continue
			}
			if roads[i].Highway != roads[other.idx].Highway {
				continue
			}
			union(i, other.idx)
		}
	}

	byRoot := make(map[int][]int)
	for i := range roads {
		r := find(i)
		byRoot[r] = append(byRoot[r], i)
	}

	idx := &roadGroupIndex{}
	// Deterministic group order: roots ascend because union always keeps
	// the smaller index as root and map iteration is re-sorted here.
	roots := make([]int, 0, len(byRoot))
	for r := range byRoot {
		roots = append(roots, r)
	}
	sort.Ints(roots)
	for _, r := range roots {
		g := roadGroup{}
		var sx, sy float64
		var n int
		for _, i := range byRoot[r] {
			g.lines = append(g.lines, roads[i].Line)
			for _, p := range roads[i].Line {
				sx += p[0]
				sy += p[1]
				n++
			}
		}
		g.center = orb.Point{sx / float64(n), sy / float64(n)}
		idx.groups = append(idx.groups, g)
	}
	return idx
}

// nearestGroup returns the group whose vertex cloud lies closest to p, or
// nil when there are no groups.
func (r *roadGroupIndex) nearestGroup(p orb.Point) *roadGroup {
	if len(r.groups) == 0 {
		return nil
	}
	best := -1
	bestDist := math.Inf(1)
	for i := range r.groups {
		d := groupDistance(&r.groups[i], p)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return &r.groups[best]
}

func groupDistance(g *roadGroup, p orb.Point) float64 {
	min := math.Inf(1)
	for _, line := range g.lines {
		for _, v := range line {
			dx, dy := v[0]-p[0], v[1]-p[1]
			if d := dx*dx + dy*dy; d < min {
				min = d
			}
		}
	}
	return min
}
