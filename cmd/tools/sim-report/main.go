// Command sim-report renders an HTML report over a simulation's per-tick
// output: device counts, mean per-tick displacement, and the number of
// occupied level-14 tiles over time.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/paulmach/orb"

	"github.com/banshee-data/mobility.report/internal/analytics"
	"github.com/banshee-data/mobility.report/internal/config"
	"github.com/banshee-data/mobility.report/internal/fsutil"
	"github.com/banshee-data/mobility.report/internal/geo"
	"github.com/banshee-data/mobility.report/internal/quadkey"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the folder-layout config")
	simID      = flag.String("simulation", "", "Simulation id whose results to chart")
	out        = flag.String("out", "sim-report.html", "Output HTML file")
)

type tickStats struct {
	t            time.Time
	devices      int
	tiles        int
	meanMovedKM  float64
	totalMovedKM float64
}

func main() {
	flag.Parse()
	if *simID == "" {
		fmt.Fprintln(os.Stderr, "usage: sim-report -simulation ID [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pings, err := analytics.LoadPings(filepath.Join(cfg.ResultsFolder, *simID), fsutil.OSFileSystem{}, nil)
	if err != nil {
		log.Fatalf("load pings: %v", err)
	}

	stats := summarize(pings)
	if len(stats) == 0 {
		log.Fatalf("no ticks found for simulation %s", *simID)
	}

	page := components.NewPage()
	page.AddCharts(
		deviceChart(stats),
		movementChart(stats),
		tileChart(stats),
	)

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("render report: %v", err)
	}
	log.Printf("report for %s (%d ticks) written to %s", *simID, len(stats), *out)
}

func summarize(pings []analytics.Ping) []tickStats {
	byTick := make(map[time.Time][]analytics.Ping)
	for _, p := range pings {
		byTick[p.Time] = append(byTick[p.Time], p)
	}
	ticks := make([]time.Time, 0, len(byTick))
	for t := range byTick {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Before(ticks[j]) })

	prev := make(map[int64]orb.Point)
	stats := make([]tickStats, 0, len(ticks))
	for _, t := range ticks {
		rows := byTick[t]
		s := tickStats{t: t, devices: len(rows)}
		tiles := make(map[string]bool)
		moved := 0
		for _, p := range rows {
			tiles[quadkey.Encode(p.Lat, p.Lon).Key] = true
			cur := orb.Point{p.Lon, p.Lat}
			if last, ok := prev[p.DeviceID]; ok {
				s.totalMovedKM += geo.Haversine(last, cur) / 1000
				moved++
			}
			prev[p.DeviceID] = cur
		}
		s.tiles = len(tiles)
		if moved > 0 {
			s.meanMovedKM = s.totalMovedKM / float64(moved)
		}
		stats = append(stats, s)
	}
	return stats
}

func axis(stats []tickStats) []string {
	x := make([]string, len(stats))
	for i, s := range stats {
		x[i] = s.t.Format("01-02 15:04")
	}
	return x
}

func deviceChart(stats []tickStats) *charts.Line {
	data := make([]opts.LineData, len(stats))
	for i, s := range stats {
		data[i] = opts.LineData{Value: s.devices}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Devices per tick", Subtitle: "constant by construction; dips indicate export failures"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(axis(stats)).AddSeries("devices", data)
	return line
}

func movementChart(stats []tickStats) *charts.Line {
	mean := make([]opts.LineData, len(stats))
	for i, s := range stats {
		mean[i] = opts.LineData{Value: s.meanMovedKM}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Mean displacement per tick (km)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(axis(stats)).AddSeries("mean km", mean)
	return line
}

func tileChart(stats []tickStats) *charts.Line {
	data := make([]opts.LineData, len(stats))
	for i, s := range stats {
		data[i] = opts.LineData{Value: s.tiles}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Occupied level-14 tiles", Subtitle: "spread of the population over space"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(axis(stats)).AddSeries("tiles", data)
	return line
}
