// Command simulate runs a disaster-mobility simulation over a cached
// network and writes one position CSV per tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/mobility.report/internal/cache"
	"github.com/banshee-data/mobility.report/internal/config"
	"github.com/banshee-data/mobility.report/internal/disaster"
	"github.com/banshee-data/mobility.report/internal/errlog"
	"github.com/banshee-data/mobility.report/internal/fsutil"
	"github.com/banshee-data/mobility.report/internal/network"
	"github.com/banshee-data/mobility.report/internal/sim"
)

const timeFlagFormat = "2006-01-02 15:04:05"

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the folder-layout config")
	networkID  = flag.String("network", "", "Cached network id to simulate on")
	simID      = flag.String("id", "", "Simulation id (results folder name); random if empty")

	startStr  = flag.String("start", "", "Simulation start (YYYY-MM-DD HH:MM:SS)")
	endStr    = flag.String("end", "", "Simulation end (YYYY-MM-DD HH:MM:SS)")
	tickHours = flag.Float64("tick-hours", 4, "Simulation step in hours")
	coverage  = flag.Float64("coverage", 0.3, "Fraction of population carrying a device")
	seed      = flag.Int64("seed", 1, "Random seed")

	quakeLat   = flag.Float64("epicenter-lat", 0, "Earthquake epicenter latitude")
	quakeLon   = flag.Float64("epicenter-lon", 0, "Earthquake epicenter longitude")
	quakeStart = flag.String("quake-start", "", "Earthquake start (YYYY-MM-DD HH:MM:SS); empty runs without a disaster")
	quakeEnd   = flag.String("quake-end", "", "Earthquake end (YYYY-MM-DD HH:MM:SS)")
	amplitude  = flag.Float64("amplitude", 7.6, "Initial field amplitude")
	varLat     = flag.Float64("var-lat", 1, "Field variance, latitude (squared degrees)")
	varLon     = flag.Float64("var-lon", 1, "Field variance, longitude (squared degrees)")
	decay      = flag.String("decay", "exponential", "Amplitude decay: linear, exponential or parabolic")
	continuity = flag.String("continuity", "", "Residual-field horizon (YYYY-MM-DD HH:MM:SS)")
	residualR  = flag.Float64("residual-radius-km", 100, "Residual uniform-disk radius")
	residualA  = flag.Float64("residual-amplitude", 1.5, "Residual uniform-disk amplitude")

	fieldPNG = flag.String("render-field", "", "Optional path for an intensity heat-map PNG of the initial field")
)

func main() {
	flag.Parse()

	if *networkID == "" || *startStr == "" || *endStr == "" {
		fmt.Fprintln(os.Stderr, "usage: simulate -network ID -start T -end T [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureFolders(); err != nil {
		log.Fatalf("prepare folders: %v", err)
	}

	start, err := time.Parse(timeFlagFormat, *startStr)
	if err != nil {
		log.Fatalf("parse -start: %v", err)
	}
	end, err := time.Parse(timeFlagFormat, *endStr)
	if err != nil {
		log.Fatalf("parse -end: %v", err)
	}

	sink, err := errlog.New(cfg.ErrorsFolder, cfg.ErrorsFile)
	if err != nil {
		log.Fatalf("open error sink: %v", err)
	}

	store, err := cache.Open(cfg.CacheFolder)
	if err != nil {
		log.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	net, samples, err := loadNetwork(store, sink, *networkID)
	if err != nil {
		log.Fatalf("load network: %v", err)
	}

	var timeline *disaster.Timeline
	if *quakeStart != "" {
		timeline, err = buildTimeline()
		if err != nil {
			log.Fatalf("build disaster: %v", err)
		}
		if *fieldPNG != "" {
			_, field := timeline.Entry(0)
			if err := disaster.RenderField(field, orb.Bound{}, *fieldPNG); err != nil {
				log.Printf("render field: %v", err)
			} else {
				log.Printf("initial field rendered to %s", *fieldPNG)
			}
		}
	}

	engine, err := sim.New(sim.Config{
		ID:            *simID,
		Start:         start,
		End:           end,
		TickHours:     *tickHours,
		Coverage:      *coverage,
		ResultsFolder: cfg.ResultsFolder,
		Seed:          *seed,
	}, net, samples, timeline, sink, fsutil.OSFileSystem{})
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil {
		log.Fatalf("simulation failed: %v", err)
	}
	log.Printf("simulation finished, results under %s", filepath.Join(cfg.ResultsFolder, engine.ID()))
}

// loadNetwork restores a cached network; simulate never builds from raw
// inputs itself.
func loadNetwork(store *cache.Store, sink *errlog.Sink, id string) (*network.Network, *network.Samples, error) {
	ok, err := store.HasNodes(id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("network %q not in cache, run build-network first", id)
	}
	builder := network.NewBuilder(network.BuildConfig{NetworkID: id}, store, sink)
	return builder.Build()
}

func buildTimeline() (*disaster.Timeline, error) {
	qs, err := time.Parse(timeFlagFormat, *quakeStart)
	if err != nil {
		return nil, fmt.Errorf("parse -quake-start: %w", err)
	}
	qe, err := time.Parse(timeFlagFormat, *quakeEnd)
	if err != nil {
		return nil, fmt.Errorf("parse -quake-end: %w", err)
	}

	quake := disaster.Earthquake{
		ID:        "earthquake",
		Epicenter: orb.Point{*quakeLon, *quakeLat},
		Start:     qs,
		End:       qe,
		A0:        *amplitude,
		VarLat:    *varLat,
		VarLon:    *varLon,
		Method:    disaster.DecayMethod(*decay),
		Unit:      disaster.StepHour,
	}
	if *continuity != "" {
		ct, err := time.Parse(timeFlagFormat, *continuity)
		if err != nil {
			return nil, fmt.Errorf("parse -continuity: %w", err)
		}
		quake.Continuity = ct
		quake.Residual = disaster.UniformDisk{
			Mean:      quake.Epicenter,
			RadiusKM:  *residualR,
			Amplitude: *residualA,
		}
	}
	return quake.Generate()
}
