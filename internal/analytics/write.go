package analytics

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/mobility.report/internal/fsutil"
)

const outputTimeFormat = "2006-01-02 15:04:05"

// WriteDensityCSV writes the density dataset under dir with the FB tile
// column layout.
func WriteDensityCSV(rows []DensityRow, dir, datasetID, aggGeometry string, fs fsutil.FileSystem) (string, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_density.csv", datasetID, aggGeometry))
	f, err := fs.Create(path)
	if err != nil {
		return "", err
	}

	keyCol := "quadkey"
	if aggGeometry == "admin" {
		keyCol = "GID_2"
	}

	w := csv.NewWriter(f)
	header := []string{
		"latitude", "longitude", keyCol, "date_time",
		"n_baseline", "n_crisis", "n_difference",
		"density_baseline", "density_crisis",
		"percent_change", "z_score", "ds",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return "", err
	}
	for _, r := range rows {
		rec := []string{
			ftoa(r.Latitude), ftoa(r.Longitude), r.Key,
			r.DateTime.Format(outputTimeFormat),
			ftoa(r.NBaseline), ftoa(r.NCrisis), ftoa(r.NDifference),
			ftoa(r.DensityBaseline), ftoa(r.DensityCrisis),
			ftoa(r.PercentChange), ftoa(r.ZScore),
			r.DateTime.Format(time.DateOnly),
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// WriteMobilityCSV writes the origin-destination dataset under dir with
// the FB mobility column layout.
func WriteMobilityCSV(rows []MobilityRow, dir, datasetID, aggGeometry string, fs fsutil.FileSystem) (string, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_mobility.csv", datasetID, aggGeometry))
	f, err := fs.Create(path)
	if err != nil {
		return "", err
	}

	startKey, endKey := "start_quadkey", "end_quadkey"
	if aggGeometry == "admin" {
		startKey, endKey = "start_GID_2", "end_GID_2"
	}

	w := csv.NewWriter(f)
	header := []string{
		"start_latitude", "start_longitude", "end_latitude", "end_longitude",
		"length_km", startKey, endKey, "date_time",
		"n_baseline", "n_crisis", "n_difference",
		"percent_change", "z_score", "ds",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return "", err
	}
	for _, r := range rows {
		rec := []string{
			ftoa(r.StartLatitude), ftoa(r.StartLongitude),
			ftoa(r.EndLatitude), ftoa(r.EndLongitude),
			ftoa(r.LengthKM), r.StartKey, r.EndKey,
			r.DateTime.Format(outputTimeFormat),
			ftoa(r.NBaseline), ftoa(r.NCrisis), ftoa(r.NDifference),
			ftoa(r.PercentChange), ftoa(r.ZScore),
			r.DateTime.Format(time.DateOnly),
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
