package analytics

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/mobility.report/internal/errlog"
	"github.com/banshee-data/mobility.report/internal/fsutil"
	"github.com/banshee-data/mobility.report/internal/timeutil"
)

// LoadPings reads every per-tick CSV under dir. Files with a bad header,
// an unparseable date, or that cannot be read are reported to the sink and
// skipped; rows whose id or coordinates do not parse are skipped
// individually. An empty
// final result is an error because nothing downstream can work with it.
func LoadPings(dir string, fs fsutil.FileSystem, sink *errlog.Sink) ([]Ping, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	names, err := fs.List(dir)
	if err != nil {
		return nil, fmt.Errorf("analytics: list %s: %w", dir, err)
	}

	var pings []Ping
	for _, name := range names {
		if filepath.Ext(name) != ".csv" {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := fs.ReadFile(path)
		if err != nil {
			if sink != nil {
				sink.Errorf("analytics", "cannot read %s: %v", path, err)
			}
			continue
		}
		filePings, err := parsePingFile(data)
		if err != nil {
			if sink != nil {
				sink.Errorf("analytics", "incorrect data structure for file %s: %v", path, err)
			}
			continue
		}
		pings = append(pings, filePings...)
	}
	if len(pings) == 0 {
		return nil, fmt.Errorf("analytics: no usable ping data under %s, check the error log", dir)
	}
	return pings, nil
}

func parsePingFile(data []byte) ([]Ping, error) {
	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		cols[name] = i
	}
	for _, required := range []string{"id", "date", "lon", "lat"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var pings []Ping
	for _, rec := range records[1:] {
		ts, err := timeutil.ParseTick(rec[cols["date"]])
		if err != nil {
			return nil, fmt.Errorf("unparseable date %q: %w", rec[cols["date"]], err)
		}
		id, err1 := strconv.ParseInt(rec[cols["id"]], 10, 64)
		lon, err3 := strconv.ParseFloat(rec[cols["lon"]], 64)
		lat, err4 := strconv.ParseFloat(rec[cols["lat"]], 64)
		if err1 != nil || err3 != nil || err4 != nil {
			continue
		}
		pings = append(pings, Ping{DeviceID: id, Time: ts, Lon: lon, Lat: lat})
	}
	if len(pings) == 0 {
		return nil, fmt.Errorf("no parseable rows")
	}
	return pings, nil
}
