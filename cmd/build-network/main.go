// Command build-network builds a population network from raw geospatial
// inputs and caches it, so later simulations start instantly.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/banshee-data/mobility.report/internal/cache"
	"github.com/banshee-data/mobility.report/internal/config"
	"github.com/banshee-data/mobility.report/internal/errlog"
	"github.com/banshee-data/mobility.report/internal/network"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the folder-layout config")
	networkID  = flag.String("network", "", "Network id (cache key prefix)")
	raster     = flag.String("raster", "", "Population density CSV (X,Y,Z), relative to data_folder")
	places     = flag.String("places", "", "Populated places shapefile, relative to data_folder")
	roads      = flag.String("roads", "", "Optional road lines shapefile, relative to data_folder")
	buildings  = flag.String("buildings", "", "Optional building polygons shapefile, relative to data_folder")
	minLon     = flag.Float64("min-lon", -180, "Bounding box west edge")
	minLat     = flag.Float64("min-lat", -90, "Bounding box south edge")
	maxLon     = flag.Float64("max-lon", 180, "Bounding box east edge")
	maxLat     = flag.Float64("max-lat", 90, "Bounding box north edge")
	wideArea   = flag.Bool("wide-area", false, "Use the wide-area adjacency threshold (45 km instead of 8 km)")
	seed       = flag.Int64("seed", 1, "Sampling seed")

	requireConnected = flag.Bool("require-connected", false, "Exit non-zero if the edge graph is disconnected")
)

func main() {
	flag.Parse()

	if *networkID == "" || *raster == "" || *places == "" {
		fmt.Fprintln(os.Stderr, "usage: build-network -network ID -raster FILE -places FILE [flags]")
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

	sink, err := errlog.New(cfg.ErrorsFolder, cfg.ErrorsFile)
	if err != nil {
		log.Fatalf("open error sink: %v", err)
	}

	store, err := cache.Open(cfg.CacheFolder)
	if err != nil {
		log.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	maxKM := float64(network.MaxAdjacentKMZoomed)
	if *wideArea {
		maxKM = network.MaxAdjacentKMWide
	}

	opt := func(p string) string {
		if p == "" {
			return ""
		}
		return filepath.Join(cfg.DataFolder, p)
	}

	builder := network.NewBuilder(network.BuildConfig{
		NetworkID:     *networkID,
		DensityRaster: filepath.Join(cfg.DataFolder, *raster),
		Places:        filepath.Join(cfg.DataFolder, *places),
		Roads:         opt(*roads),
		Buildings:     opt(*buildings),
		Bounds: orb.Bound{
			Min: orb.Point{*minLon, *minLat},
			Max: orb.Point{*maxLon, *maxLat},
		},
		MaxAdjacentKM: maxKM,
		Seed:          *seed,
	}, store, sink)

	net, samples, err := builder.Build()
	if err != nil {
		log.Fatalf("build network: %v", err)
	}

	components := network.ComponentCount(net)
	log.Printf("network %s: %d nodes, %d edges, %d components, population %d",
		net.ID, len(net.Nodes), len(net.Edges), components, net.TotalPopulation())
	log.Printf("network %s: %d node sample pools, %d edge sample rows",
		net.ID, len(samples.NodePools), len(samples.EdgeEndpoints))

	if *requireConnected && components > 1 {
		log.Fatalf("network %s has %d connected components, expected 1", net.ID, components)
	}
}
