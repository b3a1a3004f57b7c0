package sim

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/mobility.report/internal/timeutil"
)

// exportTick appends one row per device, in ascending device id, to the
// tick's CSV file. The filename stem doubles as the date column.
func (e *Engine) exportTick(t time.Time, dir string) error {
	stamp := timeutil.FormatTick(t)
	f, err := e.fs.Create(filepath.Join(dir, stamp+".csv"))
	if err != nil {
		return fmt.Errorf("create tick file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "date", "lon", "lat"}); err != nil {
		f.Close()
		return err
	}
	for d := range e.lon {
		row := []string{
			strconv.Itoa(d),
			stamp,
			strconv.FormatFloat(e.lon[d], 'f', -1, 64),
			strconv.FormatFloat(e.lat[d], 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
