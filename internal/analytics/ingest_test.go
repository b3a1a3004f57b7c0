package analytics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mobility.report/internal/errlog"
	"github.com/banshee-data/mobility.report/internal/fsutil"
)

func writeMem(t *testing.T, fs *fsutil.MemoryFileSystem, path, content string) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestLoadPings_ReadsAllTicks(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeMem(t, fs, "results/run/01-01-2020_00:00:00.csv",
		"id,date,lon,lat\n0,01-01-2020_00:00:00,-82.84,8.40\n1,01-01-2020_00:00:00,-82.85,8.41\n")
	writeMem(t, fs, "results/run/01-01-2020_04:00:00.csv",
		"id,date,lon,lat\n0,01-01-2020_04:00:00,-82.83,8.42\n1,01-01-2020_04:00:00,-82.86,8.43\n")

	pings, err := LoadPings("results/run", fs, nil)
	require.NoError(t, err)
	require.Len(t, pings, 4)

	assert.Equal(t, int64(0), pings[0].DeviceID)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), pings[0].Time)
	assert.Equal(t, -82.84, pings[0].Lon)
	assert.Equal(t, 8.40, pings[0].Lat)
}

func TestLoadPings_SkipsBadFilesAndLogsThem(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeMem(t, fs, "results/run/good.csv",
		"id,date,lon,lat\n0,01-01-2020_00:00:00,-82.84,8.40\n")
	writeMem(t, fs, "results/run/bad.csv",
		"device,when,x,y\n0,nope,1,2\n")
	writeMem(t, fs, "results/run/notes.txt", "not a csv")

	dir := t.TempDir()
	sink, err := errlog.New(dir, "errors.csv")
	require.NoError(t, err)

	pings, err := LoadPings("results/run", fs, sink)
	require.NoError(t, err)
	assert.Len(t, pings, 1)

	data, err := fsutil.OSFileSystem{}.ReadFile(sink.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "incorrect data structure")
	assert.Contains(t, string(data), "error")
}

func TestLoadPings_AllBadIsFatal(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeMem(t, fs, "results/run/bad.csv", "x,y\n1,2\n")

	_, err := LoadPings("results/run", fs, nil)
	assert.Error(t, err)
}

func TestLoadPings_SkipsMalformedRows(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeMem(t, fs, "results/run/mixed.csv",
		"id,date,lon,lat\n0,01-01-2020_00:00:00,-82.84,8.40\nbad,01-01-2020_00:00:00,x,y\n")

	pings, err := LoadPings("results/run", fs, nil)
	require.NoError(t, err)
	assert.Len(t, pings, 1)
}

func TestWriteDensityCSV(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rows := []DensityRow{{
		Latitude: 8.4, Longitude: -82.8, Key: "03301122310312",
		DateTime:  time.Date(2020, 1, 8, 8, 0, 0, 0, time.UTC),
		NBaseline: 5, NCrisis: 8, NDifference: 3,
		DensityBaseline: 1, DensityCrisis: 1,
		PercentChange: 50, ZScore: 30,
	}}

	path, err := WriteDensityCSV(rows, "out", DatasetID("drill"), "tile", fs)
	require.NoError(t, err)
	assert.Equal(t, "out/disaster-name=drill_tile_density.csv", path)

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"latitude,longitude,quadkey,date_time,n_baseline,n_crisis,n_difference,density_baseline,density_crisis,percent_change,z_score,ds",
		lines[0])
	assert.Contains(t, lines[1], "03301122310312")
	assert.Contains(t, lines[1], "2020-01-08 08:00:00")
	assert.Contains(t, lines[1], "2020-01-08")
}

func TestWriteMobilityCSV(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rows := []MobilityRow{{
		StartLatitude: 8.4, StartLongitude: -82.8,
		EndLatitude: 8.7, EndLongitude: -82.4,
		LengthKM: 56.2, StartKey: "0330112231", EndKey: "0330112230",
		DateTime:  time.Date(2020, 1, 8, 16, 0, 0, 0, time.UTC),
		NBaseline: 2, NCrisis: 1, NDifference: -1,
		PercentChange: -33.3, ZScore: -10,
	}}

	path, err := WriteMobilityCSV(rows, "out", DatasetID("drill"), "tile", fs)
	require.NoError(t, err)

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"start_latitude,start_longitude,end_latitude,end_longitude,length_km,start_quadkey,end_quadkey,date_time,n_baseline,n_crisis,n_difference,percent_change,z_score,ds",
		lines[0])
}
