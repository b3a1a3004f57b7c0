package network

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/paulmach/orb"

	"github.com/banshee-data/mobility.report/internal/errlog"
)

// RasterCell is one 1 km cell of the population-density raster.
type RasterCell struct {
	Lon     float64 // X
	Lat     float64 // Y
	Density float64 // Z, persons per km^2
}

// Place is a populated-place point with its name attribute.
type Place struct {
	Name   string
	Center orb.Point
}

// Road is one road line with its highway class.
type Road struct {
	Highway string
	Line    orb.LineString
}

// Building is one building footprint.
type Building struct {
	Polygon orb.Polygon
}

// LoadDensityRaster reads an X,Y,Z CSV of WGS-84 density cells, keeping
// only rows inside bounds. Rows that fail to parse are reported to the
// sink and skipped; an unreadable file or missing column is fatal to the
// load.
func LoadDensityRaster(path string, bounds orb.Bound, sink *errlog.Sink) ([]RasterCell, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("network: open density raster: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("network: read raster header: %w", err)
	}
	xi, yi, zi := -1, -1, -1
	for i, col := range header {
		switch col {
		case "X":
			xi = i
		case "Y":
			yi = i
		case "Z":
			zi = i
		}
	}
	if xi < 0 || yi < 0 || zi < 0 {
		return nil, fmt.Errorf("network: raster %s missing X/Y/Z columns", path)
	}

	var cells []RasterCell
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if sink != nil {
				sink.Errorf("density-raster", "unreadable row in %s: %v", path, err)
			}
			continue
		}
		lon, err1 := strconv.ParseFloat(rec[xi], 64)
		lat, err2 := strconv.ParseFloat(rec[yi], 64)
		z, err3 := strconv.ParseFloat(rec[zi], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			if sink != nil {
				sink.Errorf("density-raster", "unparseable row in %s: %v", path, rec)
			}
			continue
		}
		p := orb.Point{lon, lat}
		if !bounds.Contains(p) {
			continue
		}
		cells = append(cells, RasterCell{Lon: lon, Lat: lat, Density: z})
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("network: raster %s yielded no cells inside bounds", path)
	}
	return cells, nil
}

// LoadPlaces reads the populated-places shapefile, dropping features
// outside bounds or with an empty name.
func LoadPlaces(path string, bounds orb.Bound, sink *errlog.Sink) ([]Place, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("network: open places %s: %w", path, err)
	}
	defer dec.Close()

	var places []Place
	for {
		g, fields, more := dec.DecodeRowFields("name")
		if !more {
			break
		}
		name := fields["name"]
		if name == "" {
			continue
		}
		pt, ok := geomToPoint(g)
		if !ok {
			if sink != nil {
				sink.Warningf("places", "feature %q is not a point, skipped", name)
			}
			continue
		}
		if !bounds.Contains(pt) {
			continue
		}
		places = append(places, Place{Name: name, Center: pt})
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("network: decode places %s: %w", path, err)
	}
	return places, nil
}

// LoadRoads reads the road-lines shapefile. Multi-part lines contribute
// one Road per part so grouping can treat parts independently.
func LoadRoads(path string, bounds orb.Bound, sink *errlog.Sink) ([]Road, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("network: open roads %s: %w", path, err)
	}
	defer dec.Close()

	var roads []Road
	for {
		g, fields, more := dec.DecodeRowFields("highway")
		if !more {
			break
		}
		for _, line := range geomToLineStrings(g) {
			if len(line) < 2 {
				continue
			}
			if !bounds.Intersects(lineBound(line)) {
				continue
			}
			roads = append(roads, Road{Highway: fields["highway"], Line: line})
		}
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("network: decode roads %s: %w", path, err)
	}
	if len(roads) == 0 && sink != nil {
		sink.Warningf("roads", "no road lines inside bounds in %s", path)
	}
	return roads, nil
}

// LoadBuildings reads the building-polygons shapefile.
func LoadBuildings(path string, bounds orb.Bound, sink *errlog.Sink) ([]Building, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("network: open buildings %s: %w", path, err)
	}
	defer dec.Close()

	var buildings []Building
	for {
		g, _, more := dec.DecodeRowFields()
		if !more {
			break
		}
		for _, poly := range geomToPolygons(g) {
			if len(poly) == 0 || len(poly[0]) < 4 {
				continue
			}
			if !bounds.Intersects(ringBound(poly[0])) {
				continue
			}
			buildings = append(buildings, Building{Polygon: poly})
		}
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("network: decode buildings %s: %w", path, err)
	}
	if len(buildings) == 0 && sink != nil {
		sink.Warningf("buildings", "no building polygons inside bounds in %s", path)
	}
	return buildings, nil
}

// Conversions between the shapefile decoder's geometry model and orb.

func geomToPoint(g geom.Geom) (orb.Point, bool) {
	switch v := g.(type) {
	case geom.Point:
		return orb.Point{v.X, v.Y}, true
	case *geom.Point:
		return orb.Point{v.X, v.Y}, true
	case geom.MultiPoint:
		if len(v) > 0 {
			return orb.Point{v[0].X, v[0].Y}, true
		}
	}
	return orb.Point{}, false
}

func geomToLineStrings(g geom.Geom) []orb.LineString {
	switch v := g.(type) {
	case geom.LineString:
		return []orb.LineString{pointsToLine(v)}
	case *geom.LineString:
		return []orb.LineString{pointsToLine(*v)}
	case geom.MultiLineString:
		out := make([]orb.LineString, 0, len(v))
		for _, ls := range v {
			out = append(out, pointsToLine(ls))
		}
		return out
	}
	return nil
}

func geomToPolygons(g geom.Geom) []orb.Polygon {
	switch v := g.(type) {
	case geom.Polygon:
		return []orb.Polygon{ringsToPolygon(v)}
	case *geom.Polygon:
		return []orb.Polygon{ringsToPolygon(*v)}
	case geom.MultiPolygon:
		out := make([]orb.Polygon, 0, len(v))
		for _, p := range v {
			out = append(out, ringsToPolygon(p))
		}
		return out
	}
	return nil
}

func pointsToLine(ls geom.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

func ringsToPolygon(p geom.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		r := make(orb.Ring, len(ring))
		for j, pt := range ring {
			r[j] = orb.Point{pt.X, pt.Y}
		}
		if len(r) > 0 && r[0] != r[len(r)-1] {
			r = append(r, r[0])
		}
		out[i] = r
	}
	return out
}

func lineBound(line orb.LineString) orb.Bound {
	b := orb.Bound{Min: line[0], Max: line[0]}
	for _, p := range line[1:] {
		b = b.Extend(p)
	}
	return b
}

func ringBound(ring orb.Ring) orb.Bound {
	b := orb.Bound{Min: ring[0], Max: ring[0]}
	for _, p := range ring[1:] {
		b = b.Extend(p)
	}
	return b
}
