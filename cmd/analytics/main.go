// Command analytics rolls a simulation's per-tick position files into
// baseline/crisis population-density and mobility tables.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/mobility.report/internal/analytics"
	"github.com/banshee-data/mobility.report/internal/config"
	"github.com/banshee-data/mobility.report/internal/errlog"
	"github.com/banshee-data/mobility.report/internal/fsutil"
)

const timeFlagFormat = "2006-01-02 15:04:05"

var (
	configPath   = flag.String("config", config.DefaultConfigPath, "Path to the folder-layout config")
	simID        = flag.String("simulation", "", "Simulation id whose results to process")
	disasterName = flag.String("disaster-name", "", "Disaster name embedded in output filenames")
	crisisStr    = flag.String("crisis", "", "Crisis datetime splitting baseline from crisis (YYYY-MM-DD HH:MM:SS)")
	aggGeometry  = flag.String("agg", "tile", "Aggregation geometry: tile or admin")
	outDir       = flag.String("out", "", "Output folder; defaults to results_folder/{simulation}-analytics")
)

func main() {
	flag.Parse()

	if *simID == "" || *disasterName == "" || *crisisStr == "" {
		fmt.Fprintln(os.Stderr, "usage: analytics -simulation ID -disaster-name NAME -crisis T [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *aggGeometry != "tile" && *aggGeometry != "admin" {
		log.Fatalf("-agg must be tile or admin, got %q", *aggGeometry)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	crisisAt, err := time.Parse(timeFlagFormat, *crisisStr)
	if err != nil {
		log.Fatalf("parse -crisis: %v", err)
	}

	sink, err := errlog.New(cfg.ErrorsFolder, cfg.ErrorsFile)
	if err != nil {
		log.Fatalf("open error sink: %v", err)
	}

	fs := fsutil.OSFileSystem{}
	pings, err := analytics.LoadPings(filepath.Join(cfg.ResultsFolder, *simID), fs, sink)
	if err != nil {
		log.Fatalf("load pings: %v", err)
	}
	log.Printf("loaded %d pings for simulation %s", len(pings), *simID)

	// Admin aggregation needs a boundary layer; only tile mode ships a
	// built-in keyer.
	var keyer analytics.GeoKeyer = analytics.TileKeyer{}
	if *aggGeometry == "admin" {
		log.Fatalf("admin aggregation requires a boundary layer; load one via the analytics package API")
	}

	dir := *outDir
	if dir == "" {
		dir = filepath.Join(cfg.ResultsFolder, *simID+"-analytics")
	}
	datasetID := analytics.DatasetID(*disasterName)

	density := analytics.BuildDensity(pings, crisisAt, keyer, sink)
	densityPath, err := analytics.WriteDensityCSV(density, dir, datasetID, *aggGeometry, fs)
	if err != nil {
		log.Fatalf("write density dataset: %v", err)
	}
	log.Printf("density dataset: %d rows -> %s", len(density), densityPath)

	mobility := analytics.BuildMobility(pings, crisisAt, keyer, sink)
	mobilityPath, err := analytics.WriteMobilityCSV(mobility, dir, datasetID, *aggGeometry, fs)
	if err != nil {
		log.Fatalf("write mobility dataset: %v", err)
	}
	log.Printf("mobility dataset: %d rows -> %s", len(mobility), mobilityPath)
}
