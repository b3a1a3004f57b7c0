package errlog

import (
	"encoding/csv"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mobility.report/internal/timeutil"
)

func TestSink_RowFormat(t *testing.T) {
	dir := t.TempDir()
	clock := timeutil.NewFakeClock(time.Date(2023, 6, 12, 9, 30, 5, 0, time.UTC))
	sink, err := NewWithClock(dir, "errors.csv", clock)
	require.NoError(t, err)

	require.NoError(t, sink.Warning("network-builder", "two components"))
	require.NoError(t, sink.Error("density-raster", "missing column Z"))

	f, err := os.Open(sink.Path())
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"06/12/2023, 09:30:05", "network-builder", "warning", "two components"}, rows[0])
	assert.Equal(t, "error", rows[1][2])
	assert.Equal(t, "density-raster", rows[1][1])
}

func TestSink_AppendsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	s1, err := New(dir, "errors.csv")
	require.NoError(t, err)
	require.NoError(t, s1.Error("a", "first"))

	s2, err := New(dir, "errors.csv")
	require.NoError(t, err)
	require.NoError(t, s2.Error("b", "second"))

	data, err := os.ReadFile(s1.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestSink_DefaultFileName(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sink.Path(), DefaultFileName))
}

func TestSink_ConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir, "errors.csv")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sink.Warningf("worker", "message %d", i))
		}()
	}
	wg.Wait()

	f, err := os.Open(sink.Path())
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 20)
}
