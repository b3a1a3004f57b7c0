// Package sim runs the mobility loop: every tick it re-evaluates the
// disaster field at each node, recomputes per-node forces, moves each
// device one probabilistic step along the network, and appends a position
// row per device to the tick's output file.
package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/mobility.report/internal/disaster"
	"github.com/banshee-data/mobility.report/internal/errlog"
	"github.com/banshee-data/mobility.report/internal/fsutil"
	"github.com/banshee-data/mobility.report/internal/network"
)

// topNeighbors caps how many of a node's neighbors compete for a resting
// device.
const topNeighbors = 5

// Config parameterizes one simulation run.
type Config struct {
	// ID names the run; results land under ResultsFolder/ID. Empty gets
	// a random id.
	ID string

	Start     time.Time
	End       time.Time
	TickHours float64

	// Coverage is the fraction of the network population that carries a
	// device.
	Coverage float64

	ResultsFolder string
	Seed          int64
}

// Engine is the per-run state. It owns the device arrays; network, sample
// and timeline inputs are read-only.
type Engine struct {
	cfg      Config
	net      *network.Network
	samples  *network.Samples
	timeline *disaster.Timeline
	sink     *errlog.Sink
	fs       fsutil.FileSystem
	rng      *rand.Rand

	// Per-device state, struct-of-arrays, index = device id.
	startNode []int
	endNode   []int
	lon       []float64
	lat       []float64
	posNode   []int // node the device's position was last attributed to

	// Per-node forces, recomputed every tick.
	attract []float64
	repel   []float64
	final   []float64

	disasterOn bool
}

// New assembles an engine. The device count is Coverage times the total
// population, each device placed by the network's initial sample.
func New(cfg Config, net *network.Network, samples *network.Samples, tl *disaster.Timeline, sink *errlog.Sink, fs fsutil.FileSystem) (*Engine, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.TickHours <= 0 {
		return nil, fmt.Errorf("sim: tick hours must be positive, got %v", cfg.TickHours)
	}
	if cfg.Coverage <= 0 || cfg.Coverage > 1 {
		return nil, fmt.Errorf("sim: coverage must be in (0, 1], got %v", cfg.Coverage)
	}
	if !cfg.End.After(cfg.Start) {
		return nil, fmt.Errorf("sim: end %v not after start %v", cfg.End, cfg.Start)
	}
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}

	e := &Engine{
		cfg:      cfg,
		net:      net,
		samples:  samples,
		timeline: tl,
		sink:     sink,
		fs:       fs,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		attract:  make([]float64, len(net.Nodes)),
		repel:    make([]float64, len(net.Nodes)),
		final:    make([]float64, len(net.Nodes)),
	}

	total := int(math.Round(cfg.Coverage * float64(net.TotalPopulation())))
	if total < 1 {
		return nil, fmt.Errorf("sim: coverage %v of population %d yields no devices", cfg.Coverage, net.TotalPopulation())
	}
	ids := make([]int64, total)
	for i := range ids {
		ids[i] = int64(i)
	}
	positions := network.InitialDevicePositions(net, ids, e.rng)

	e.startNode = make([]int, total)
	e.endNode = make([]int, total)
	e.posNode = make([]int, total)
	e.lon = make([]float64, total)
	e.lat = make([]float64, total)
	for i, p := range positions {
		e.startNode[i] = p.Node
		e.endNode[i] = p.Node
		e.posNode[i] = p.Node
		e.lon[i] = p.Lon
		e.lat[i] = p.Lat
	}
	return e, nil
}

// ID returns the run id.
func (e *Engine) ID() string { return e.cfg.ID }

// DeviceCount returns the number of simulated devices.
func (e *Engine) DeviceCount() int { return len(e.lon) }

// NodeOccupancy counts devices currently attributed to each node.
func (e *Engine) NodeOccupancy() []int {
	counts := make([]int, len(e.net.Nodes))
	for _, n := range e.posNode {
		counts[n]++
	}
	return counts
}

// Run executes the loop from Start to End inclusive. Cancellation is
// cooperative: the context is checked at each tick boundary and the
// current tick's file is already flushed when Run returns.
func (e *Engine) Run(ctx context.Context) error {
	outDir := filepath.Join(e.cfg.ResultsFolder, e.cfg.ID)
	if err := e.fs.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("sim: create results folder: %w", err)
	}

	step := time.Duration(e.cfg.TickHours * float64(time.Hour))
	log.Printf("sim %s: %d devices, %d nodes, tick %v", e.cfg.ID, e.DeviceCount(), len(e.net.Nodes), step)

	for t := e.cfg.Start; !t.After(e.cfg.End); t = t.Add(step) {
		select {
		case <-ctx.Done():
			log.Printf("sim %s: cancelled at %v", e.cfg.ID, t)
			return ctx.Err()
		default:
		}
		e.Tick(t, outDir)
	}
	return nil
}

// Tick advances the simulation one step at time t, exporting the tick's
// rows into dir. Exported for tests that drive the loop directly.
func (e *Engine) Tick(t time.Time, dir string) {
	e.updateForces(t)
	e.transition()
	e.samplePositions()
	if dir != "" {
		if err := e.exportTick(t, dir); err != nil {
			// Per-tick I/O failures do not stop the run.
			log.Printf("sim %s: export at %v failed: %v", e.cfg.ID, t, err)
			if e.sink != nil {
				e.sink.Errorf("simulation", "export at %v failed: %v", t, err)
			}
		}
	}
}

// updateForces queries the disaster field at every node center and
// recombines attraction (population share, normalized to max 1) with
// repulsion (field intensity).
func (e *Engine) updateForces(t time.Time) {
	var field disaster.Field
	if e.timeline != nil {
		field = e.timeline.FieldAt(t)
	}
	if field != nil {
		e.disasterOn = true
	}

	for i, n := range e.net.Nodes {
		e.attract[i] = float64(n.Population)
		if field == nil {
			e.repel[i] = 0
			continue
		}
		v := field.Intensity(n.Center)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if e.sink != nil {
				e.sink.Warningf("simulation", "field intensity at node %s is %v, using 0", n.ID, v)
			}
			v = 0
		}
		e.repel[i] = v
	}

	if sum := floats.Sum(e.attract); sum > 0 {
		floats.Scale(1/sum, e.attract)
	}
	if max := floats.Max(e.attract); max > 0 {
		floats.Scale(1/max, e.attract)
	}
	floats.SubTo(e.final, e.attract, e.repel)
}

// transition decides each device's next leg. A resting device picks a new
// destination among its top neighbors; a device in transit either reaches
// its destination or turns back, so it is at rest again afterwards.
func (e *Engine) transition() {
	for d := range e.startNode {
		s, t := e.startNode[d], e.endNode[d]
		if s == t {
			e.endNode[d] = e.chooseDestination(s)
			continue
		}
		if e.rng.Float64() <= e.reachProbability(s, t) {
			e.startNode[d] = t
		} else {
			e.endNode[d] = s
		}
	}
}

// chooseDestination draws the next node from the top-K neighbors of s by
// final force. With a disaster active the forces pass through the
// logistic first, which keeps strongly negative forces from zeroing the
// distribution; at rest in calm conditions the raw forces are used.
func (e *Engine) chooseDestination(s int) int {
	adj := e.net.Adjacency[s]
	k := topNeighbors
	if len(adj) < k {
		k = len(adj)
	}

	top := make([]int, len(adj))
	copy(top, adj)
	sort.SliceStable(top, func(i, j int) bool { return e.final[top[i]] > e.final[top[j]] })
	top = top[:k]

	weights := make([]float64, k)
	for i, v := range top {
		w := e.final[v]
		if e.disasterOn {
			w = logistic(w)
		}
		weights[i] = w
	}

	sum := floats.Sum(weights)
	if sum <= 0 || math.IsNaN(sum) {
		// Degenerate force field: fall back to a uniform draw.
		if e.sink != nil && math.IsNaN(sum) {
			e.sink.Warningf("simulation", "force sum NaN at node %s, choosing uniformly", e.net.Nodes[s].ID)
		}
		return top[e.rng.Intn(k)]
	}

	u := e.rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if u <= acc {
			return top[i]
		}
	}
	return top[k-1]
}

// reachProbability is the chance a device in transit from s reaches t
// this tick. The in-transit rule differs deliberately from the at-rest
// rule: with a disaster active both endpoint forces pass through the
// logistic before normalizing.
func (e *Engine) reachProbability(s, t int) float64 {
	fs, ft := e.final[s], e.final[t]
	if e.disasterOn {
		fs, ft = logistic(fs), logistic(ft)
	}
	den := fs + ft
	if den == 0 || math.IsNaN(den) {
		return 0.5
	}
	return ft / den
}

// samplePositions moves every device toward its destination node: the new
// position is a uniform convex combination of the old position and the
// destination center, plus jitter scaled by whether the device is inside
// a node or out on an edge.
func (e *Engine) samplePositions() {
	for d := range e.lon {
		target := e.endNode[d]
		noise := network.CityNoise
		if e.posNode[d] != target {
			noise = network.RoadNoise
		}
		xi := (2*e.rng.Float64() - 1) * noise
		u := e.rng.Float64()

		center := e.net.Nodes[target].Center
		e.lon[d] = u*e.lon[d] + (1-u)*center[0] + xi
		e.lat[d] = u*e.lat[d] + (1-u)*center[1] + xi
		e.posNode[d] = target
	}
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
