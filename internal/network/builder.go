package network

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"

	ctgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/simplify"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/banshee-data/mobility.report/internal/cache"
	"github.com/banshee-data/mobility.report/internal/errlog"
	"github.com/banshee-data/mobility.report/internal/geo"
)

// BuildConfig names the inputs of one network build. Roads and buildings
// are optional; everything else is required.
type BuildConfig struct {
	NetworkID     string
	DensityRaster string
	Places        string
	Roads         string
	Buildings     string
	Bounds        orb.Bound
	MaxAdjacentKM float64
	SearchUnit    float64
	Seed          int64
}

// Builder constructs networks, consulting the cache before doing any work.
type Builder struct {
	cfg   BuildConfig
	store *cache.Store
	sink  *errlog.Sink
}

// NewBuilder returns a builder for the given inputs. store may be nil to
// force a from-scratch build with no persistence.
func NewBuilder(cfg BuildConfig, store *cache.Store, sink *errlog.Sink) *Builder {
	if cfg.MaxAdjacentKM == 0 {
		cfg.MaxAdjacentKM = MaxAdjacentKMZoomed
	}
	if cfg.SearchUnit == 0 {
		cfg.SearchUnit = geo.DefaultSearchUnit
	}
	return &Builder{cfg: cfg, store: store, sink: sink}
}

// Build returns the network and its sample pools, loading each component
// from the cache when present and building (then caching) it otherwise.
func (b *Builder) Build() (*Network, *Samples, error) {
	nodes, err := b.loadOrBuildNodes()
	if err != nil {
		return nil, nil, err
	}
	if len(nodes) == 0 {
		return nil, nil, fmt.Errorf("network %s: no nodes after filtering", b.cfg.NetworkID)
	}

	nodePools, err := b.loadOrBuildNodeSamples(nodes)
	if err != nil {
		return nil, nil, err
	}

	edges, err := b.loadOrBuildEdges(nodes)
	if err != nil {
		return nil, nil, err
	}

	net, err := NewNetwork(b.cfg.NetworkID, nodes, edges)
	if err != nil {
		return nil, nil, err
	}

	edgeSamples, err := b.loadOrBuildEdgeSamples(net)
	if err != nil {
		return nil, nil, err
	}

	samples := &Samples{NodePools: nodePools, EdgeEndpoints: edgeSamples}
	return net, samples, nil
}

func (b *Builder) loadOrBuildNodes() ([]Node, error) {
	if b.store != nil {
		ok, err := b.store.HasNodes(b.cfg.NetworkID)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Printf("network %s: reading nodes from cache (%s)", b.cfg.NetworkID, cache.NodesKey(b.cfg.NetworkID))
			rows, err := b.store.LoadNodes(b.cfg.NetworkID)
			if err != nil {
				return nil, err
			}
			nodes := make([]Node, len(rows))
			for i, r := range rows {
				nodes[i] = Node{
					ID:         r.ID,
					Center:     orb.Point{r.Lon, r.Lat},
					Polygon:    r.Geometry,
					Population: r.Population,
				}
			}
			return nodes, nil
		}
	}

	log.Printf("network %s: no nodes in cache, building from scratch", b.cfg.NetworkID)
	nodes, err := b.buildNodes()
	if err != nil {
		return nil, err
	}
	if b.store != nil {
		rows := make([]cache.NodeRow, len(nodes))
		for i, n := range nodes {
			rows[i] = cache.NodeRow{
				ID:         n.ID,
				Geometry:   n.Polygon,
				Lat:        n.Center[1],
				Lon:        n.Center[0],
				Population: n.Population,
			}
		}
		if err := b.store.SaveNodes(b.cfg.NetworkID, rows); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// buildNodes loads the raw inputs and assembles them into nodes.
func (b *Builder) buildNodes() ([]Node, error) {
	cells, err := LoadDensityRaster(b.cfg.DensityRaster, b.cfg.Bounds, b.sink)
	if err != nil {
		return nil, err
	}
	places, err := LoadPlaces(b.cfg.Places, b.cfg.Bounds, b.sink)
	if err != nil {
		return nil, err
	}
	var buildings []Building
	if b.cfg.Buildings != "" {
		buildings, err = LoadBuildings(b.cfg.Buildings, b.cfg.Bounds, b.sink)
		if err != nil {
			return nil, err
		}
	}
	return BuildNodes(cells, places, buildings)
}

// BuildNodes assigns every raster cell to its nearest place, sums the
// densities into populations, and gives each place a footprint polygon:
// the default disk, or the merged building footprint where buildings
// exist. Place order determines the id suffix, so identical inputs give
// identical nodes.
func BuildNodes(cells []RasterCell, places []Place, buildings []Building) ([]Node, error) {
	if len(places) == 0 {
		return nil, fmt.Errorf("network: no named places inside bounds")
	}

	index := newPlaceIndex(places)

	population := make([]float64, len(places))
	for _, cell := range cells {
		nearest := index.nearest(orb.Point{cell.Lon, cell.Lat})
		population[nearest] += cell.Density
	}

	footprints := buildingFootprints(places, buildings, index)

	nodes := make([]Node, 0, len(places))
	for i, p := range places {
		pop := int64(math.Round(population[i]))
		if pop < 0 {
			return nil, fmt.Errorf("network: negative population for place %q", p.Name)
		}
		if pop < MinPopulation {
			pop = MinPopulation
		}

		poly := defaultFootprint(p.Center)
		if hull, ok := footprints[i]; ok {
			poly = hull
		}

		nodes = append(nodes, Node{
			ID:         fmt.Sprintf("%s_%d", p.Name, i),
			Center:     p.Center,
			Polygon:    poly,
			Population: pop,
		})
	}
	return nodes, nil
}

// defaultFootprint is the minimum node polygon: a disk of MinCityRadiusKM
// around the center, simplified at the radius scale.
func defaultFootprint(center orb.Point) orb.Polygon {
	poly := geo.CirclePolygon(center, MinCityRadiusKM, 24)
	threshold := MinCityRadiusKM / geo.DegreeEquivalentKM / 4
	return simplify.DouglasPeucker(threshold).Simplify(poly.Clone()).(orb.Polygon)
}

// buildingFootprints merges each place's buffered buildings with its
// default disk into a convex footprint. Places with no buildings are
// absent from the result.
func buildingFootprints(places []Place, buildings []Building, index *placeIndex) map[int]orb.Polygon {
	if len(buildings) == 0 {
		return nil
	}

	perPlace := make(map[int][]orb.Point)
	bufferDeg := MinBuildingRadiusKM / geo.DegreeEquivalentKM
	for _, bld := range buildings {
		ring := bld.Polygon[0]
		c := geo.RingCentroid(ring)
		nearest := index.nearest(c)
		// Buffer by pushing each vertex outward from the footprint
		// centroid; the convex hull below absorbs the roughness.
		for _, v := range ring {
			dx, dy := v[0]-c[0], v[1]-c[1]
			l := math.Hypot(dx, dy)
			if l == 0 {
				perPlace[nearest] = append(perPlace[nearest], orb.Point{v[0] + bufferDeg, v[1]})
				continue
			}
			perPlace[nearest] = append(perPlace[nearest],
				orb.Point{v[0] + dx/l*bufferDeg, v[1] + dy/l*bufferDeg})
		}
	}

	out := make(map[int]orb.Polygon, len(perPlace))
	for placeIdx, pts := range perPlace {
		// Keep the default disk inside the hull so the footprint always
		// contains the place center.
		disk := defaultFootprint(places[placeIdx].Center)
		pts = append(pts, disk[0]...)
		hull := geo.ConvexHull(pts)
		if hull == nil {
			continue
		}
		threshold := MinBuildingRadiusKM / geo.DegreeEquivalentKM / 4
		simplified := simplify.DouglasPeucker(threshold).Simplify(orb.Polygon{hull}.Clone()).(orb.Polygon)
		if planar.Area(simplified) <= 0 || !planar.PolygonContains(simplified, places[placeIdx].Center) {
			continue
		}
		out[placeIdx] = simplified
	}
	return out
}

func (b *Builder) loadOrBuildEdges(nodes []Node) ([]EdgeByID, error) {
	if b.store != nil {
		ok, err := b.store.HasEdges(b.cfg.NetworkID)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Printf("network %s: reading edges from cache (%s)", b.cfg.NetworkID, cache.EdgesKey(b.cfg.NetworkID))
			rows, err := b.store.LoadEdges(b.cfg.NetworkID)
			if err != nil {
				return nil, err
			}
			byID := make(map[string]orb.Point, len(nodes))
			for _, n := range nodes {
				byID[n.ID] = n.Center
			}
			edges := make([]EdgeByID, len(rows))
			for i, r := range rows {
				edges[i] = EdgeByID{
					NodeID1:   r.NodeID1,
					NodeID2:   r.NodeID2,
					DistanceM: geo.Haversine(byID[r.NodeID1], byID[r.NodeID2]),
					Value:     r.Value,
					Geometry:  r.Geometry,
				}
			}
			return edges, nil
		}
	}

	log.Printf("network %s: no edges in cache, building from scratch", b.cfg.NetworkID)
	edges, err := b.buildEdges(nodes)
	if err != nil {
		return nil, err
	}
	if b.store != nil {
		rows := make([]cache.EdgeRow, len(edges))
		for i, e := range edges {
			rows[i] = cache.EdgeRow{
				NodeID1:  e.NodeID1,
				NodeID2:  e.NodeID2,
				Value:    e.Value,
				Geometry: e.Geometry,
			}
		}
		if err := b.store.SaveEdges(b.cfg.NetworkID, rows); err != nil {
			return nil, err
		}
	}
	return edges, nil
}

// buildEdges connects every pair of nodes within MaxAdjacentKM. Candidate
// pairs are pruned coarsely on projected axis distances before the exact
// haversine test.
func (b *Builder) buildEdges(nodes []Node) ([]EdgeByID, error) {
	maxM := b.cfg.MaxAdjacentKM * 1000

	type projected struct {
		idx  int
		x, y float64
	}
	proj := make([]projected, len(nodes))
	for i, n := range nodes {
		m := project.WGS84.ToMercator(n.Center)
		proj[i] = projected{idx: i, x: m[0], y: m[1]}
	}
	sort.Slice(proj, func(i, j int) bool { return proj[i].x < proj[j].x })

	var roadGroups *roadGroupIndex
	if b.cfg.Roads != "" {
		roads, err := LoadRoads(b.cfg.Roads, b.cfg.Bounds, b.sink)
		if err != nil {
			return nil, err
		}
		roadGroups = groupRoads(roads)
		log.Printf("network %s: %d road groups", b.cfg.NetworkID, roadGroups.Len())
	}

	seen := make(map[EdgeKey]bool)
	var edges []EdgeByID
	for i, p := range proj {
		for j := i + 1; j < len(proj); j++ {
			q := proj[j]
			if q.x-p.x > maxM {
				break
			}
			if math.Abs(q.y-p.y) > maxM {
				continue
			}
			a, bIdx := nodes[p.idx], nodes[q.idx]
			dist := geo.Haversine(a.Center, bIdx.Center)
			if dist > maxM {
				continue
			}
			key := CanonicalEdgeKey(a.ID, bIdx.ID)
			if seen[key] {
				continue
			}
			seen[key] = true

			first, second := a, bIdx
			if first.ID > second.ID {
				first, second = second, first
			}
			edges = append(edges, EdgeByID{
				NodeID1:   first.ID,
				NodeID2:   second.ID,
				DistanceM: dist,
				Value:     1.0,
				Geometry:  edgeGeometry(first.Center, second.Center, roadGroups),
			})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].NodeID1 != edges[j].NodeID1 {
			return edges[i].NodeID1 < edges[j].NodeID1
		}
		return edges[i].NodeID2 < edges[j].NodeID2
	})

	components := countComponents(nodes, edges)
	log.Printf("network %s: %d edges, %d connected components", b.cfg.NetworkID, len(edges), components)
	if components > 1 && b.sink != nil {
		b.sink.Warningf("network-builder", "network %s has %d connected components", b.cfg.NetworkID, components)
	}
	return edges, nil
}

// edgeGeometry is the straight segment between centers, replaced by the
// nearest road group's polyline trimmed to the chord when roads exist.
func edgeGeometry(a, b orb.Point, roads *roadGroupIndex) orb.LineString {
	straight := orb.LineString{a, b}
	if roads == nil {
		return straight
	}
	group := roads.nearestGroup(midpoint(a, b))
	if group == nil {
		return straight
	}
	best := straight
	bestLen := 0.0
	for _, line := range group.lines {
		trimmed := geo.TrimSegmentToEndpoints(line, a, b)
		if len(trimmed) < 2 {
			continue
		}
		if l := lineLength(trimmed); l > bestLen {
			best = trimmed
			bestLen = l
		}
	}
	return best
}

func midpoint(a, b orb.Point) orb.Point {
	return orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

func lineLength(line orb.LineString) float64 {
	var total float64
	for i := 0; i+1 < len(line); i++ {
		total += geo.Haversine(line[i], line[i+1])
	}
	return total
}

// ComponentCount reports how many connected components a built network's
// edge graph has.
func ComponentCount(net *Network) int {
	edges := make([]EdgeByID, len(net.Edges))
	for i, e := range net.Edges {
		edges[i] = EdgeByID{NodeID1: net.Nodes[e.A].ID, NodeID2: net.Nodes[e.B].ID}
	}
	return countComponents(net.Nodes, edges)
}

// countComponents reports how many connected components the edge graph
// has, for operator visibility; a disconnected network is reported, not
// rejected.
func countComponents(nodes []Node, edges []EdgeByID) int {
	g := simple.NewUndirectedGraph()
	ids := make(map[string]int64, len(nodes))
	for i, n := range nodes {
		ids[n.ID] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}
	for _, e := range edges {
		a, b := ids[e.NodeID1], ids[e.NodeID2]
		if a == b {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(a), T: simple.Node(b)})
	}
	return len(topo.ConnectedComponents(g))
}

func (b *Builder) loadOrBuildNodeSamples(nodes []Node) (map[string][]orb.Point, error) {
	if b.store != nil {
		ok, err := b.store.HasNodeSamples(b.cfg.NetworkID)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Printf("network %s: reading node samples from cache (%s)", b.cfg.NetworkID, cache.NodeSamplesKey(b.cfg.NetworkID))
			rows, err := b.store.LoadNodeSamples(b.cfg.NetworkID)
			if err != nil {
				return nil, err
			}
			pools := make(map[string][]orb.Point)
			for _, r := range rows {
				pools[r.ID] = append(pools[r.ID], orb.Point{r.Lon, r.Lat})
			}
			return pools, nil
		}
	}

	log.Printf("network %s: no node samples in cache, sampling polygons", b.cfg.NetworkID)
	rng := rand.New(rand.NewSource(b.cfg.Seed))
	pools := make(map[string][]orb.Point, len(nodes))
	total := 0
	for _, n := range nodes {
		pool := geo.SamplePointsInPolygon(n.Polygon, int(n.Population), b.cfg.SearchUnit, rng)
		pools[n.ID] = pool
		total += len(pool)
	}
	log.Printf("network %s: sampled %d node points", b.cfg.NetworkID, total)

	if b.store != nil {
		var rows []cache.NodeSampleRow
		for _, n := range nodes { // node order, not map order
			for _, p := range pools[n.ID] {
				rows = append(rows, cache.NodeSampleRow{ID: n.ID, Lon: p[0], Lat: p[1]})
			}
		}
		if err := b.store.SaveNodeSamples(b.cfg.NetworkID, rows); err != nil {
			return nil, err
		}
	}
	return pools, nil
}

func (b *Builder) loadOrBuildEdgeSamples(net *Network) (map[EdgeKey][2]orb.Point, error) {
	if b.store != nil {
		ok, err := b.store.HasEdgeSamples(b.cfg.NetworkID)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Printf("network %s: reading edge samples from cache (%s)", b.cfg.NetworkID, cache.EdgeSamplesKey(b.cfg.NetworkID))
			rows, err := b.store.LoadEdgeSamples(b.cfg.NetworkID)
			if err != nil {
				return nil, err
			}
			out := make(map[EdgeKey][2]orb.Point, len(rows))
			for _, r := range rows {
				out[EdgeKey{NodeID1: r.NodeID1, NodeID2: r.NodeID2}] = [2]orb.Point{
					{r.LonX, r.LatX}, {r.LonY, r.LatY},
				}
			}
			return out, nil
		}
	}

	out := make(map[EdgeKey][2]orb.Point, 2*len(net.Edges))
	var rows []cache.EdgeSampleRow
	for _, e := range net.Edges {
		a, b2 := net.Nodes[e.A], net.Nodes[e.B]
		// Both orientations so lookups by either endpoint succeed.
		out[EdgeKey{NodeID1: a.ID, NodeID2: b2.ID}] = [2]orb.Point{a.Center, b2.Center}
		out[EdgeKey{NodeID1: b2.ID, NodeID2: a.ID}] = [2]orb.Point{b2.Center, a.Center}
		rows = append(rows,
			cache.EdgeSampleRow{NodeID1: a.ID, NodeID2: b2.ID, LonX: a.Center[0], LatX: a.Center[1], LonY: b2.Center[0], LatY: b2.Center[1]},
			cache.EdgeSampleRow{NodeID1: b2.ID, NodeID2: a.ID, LonX: b2.Center[0], LatX: b2.Center[1], LonY: a.Center[0], LatY: a.Center[1]},
		)
	}
	if b.store != nil {
		if err := b.store.SaveEdgeSamples(b.cfg.NetworkID, rows); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// placeIndex answers nearest-place queries with an R-tree over place
// centers, refined by haversine distance. Ties break on the lower index
// so assignment is deterministic.
type placeIndex struct {
	tree   *rtree.Rtree
	places []Place
}

type placeItem struct {
	idx    int
	bounds *ctgeom.Bounds
}

func (p *placeItem) Bounds() *ctgeom.Bounds { return p.bounds }

func newPlaceIndex(places []Place) *placeIndex {
	tree := rtree.NewTree(25, 50)
	for i, p := range places {
		pt := ctgeom.Point{X: p.Center[0], Y: p.Center[1]}
		tree.Insert(&placeItem{idx: i, bounds: pt.Bounds()})
	}
	return &placeIndex{tree: tree, places: places}
}

// nearest finds the place closest to p by haversine distance, searching
// an expanding window until candidates appear.
func (idx *placeIndex) nearest(p orb.Point) int {
	half := 0.05
	var hits []rtree.Spatial
	for len(hits) == 0 {
		box := &ctgeom.Bounds{
			Min: ctgeom.Point{X: p[0] - half, Y: p[1] - half},
			Max: ctgeom.Point{X: p[0] + half, Y: p[1] + half},
		}
		hits = idx.tree.SearchIntersect(box)
		half *= 2
		if half > 360 {
			break
		}
	}

	best := 0
	bestDist := math.Inf(1)
	for _, h := range hits {
		item := h.(*placeItem)
		d := geo.Haversine(p, idx.places[item.idx].Center)
		if d < bestDist || (d == bestDist && item.idx < best) {
			best = item.idx
			bestDist = d
		}
	}
	return best
}
