package disaster

import (
	"fmt"

	"github.com/paulmach/orb"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// fieldGrid adapts a Field to plotter.GridXYZ for heat-map rendering.
type fieldGrid struct {
	field  Field
	bounds orb.Bound
	cols   int
	rows   int
}

func (g fieldGrid) Dims() (int, int) { return g.cols, g.rows }

func (g fieldGrid) X(c int) float64 {
	return g.bounds.Min[0] + (g.bounds.Max[0]-g.bounds.Min[0])*float64(c)/float64(g.cols-1)
}

func (g fieldGrid) Y(r int) float64 {
	return g.bounds.Min[1] + (g.bounds.Max[1]-g.bounds.Min[1])*float64(r)/float64(g.rows-1)
}

func (g fieldGrid) Z(c, r int) float64 {
	return g.field.Intensity(orb.Point{g.X(c), g.Y(r)})
}

// RenderField rasterizes the field's intensity over bounds and writes a
// PNG heat map, for eyeballing a disaster before committing to a long
// simulation. A zero bounds renders ±5° around the epicenter.
func RenderField(f Field, bounds orb.Bound, path string) error {
	if bounds.IsZero() || bounds.IsEmpty() {
		c := f.Epicenter()
		bounds = orb.Bound{
			Min: orb.Point{c[0] - 5, c[1] - 5},
			Max: orb.Point{c[0] + 5, c[1] + 5},
		}
	}

	grid := fieldGrid{field: f, bounds: bounds, cols: 100, rows: 100}
	h := plotter.NewHeatMap(grid, moreland.Kindlmann().Palette(255))

	p := plot.New()
	p.Title.Text = "disaster intensity"
	p.X.Label.Text = "lon"
	p.Y.Label.Text = "lat"
	p.Add(h)

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("disaster: save heat map: %w", err)
	}
	return nil
}
