package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Veyza/toy-collision-avoidance/internal/refine"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

// plotHalfWidth widens the plotted window beyond the refinement window so
// the approach and departure legs are visible around the minimum.
const plotHalfWidth = 15

// WriteDistancePlot renders distance vs time around the coarse hit for one
// refined pair as a PNG.
func (w *Writer) WriteDistancePlot(set *trajectory.Set, r refine.Result) error {
	idx, dist, err := pairWindow(set, r, plotHalfWidth)
	if err != nil {
		return err
	}

	sec := set.Grid().Seconds()

	pts := make(plotter.XYs, 0, len(idx))
	for i, k := range idx {
		if !finite(dist[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: sec[k], Y: dist[i]})
	}
	if len(pts) == 0 {
		return fmt.Errorf("pair %s/%s: no finite distances in plot window", r.A, r.B)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s vs %s separation near TCA", r.A, r.B)
	p.X.Label.Text = "Seconds since grid start"
	p.Y.Label.Text = "Distance (km)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("pair %s/%s: building distance line: %w", r.A, r.B, err)
	}
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("DCA %.3f km", r.DCAKm), line)
	p.Legend.Top = true

	path := filepath.Join(w.dir, plotFileName(r, "distance", "png"))
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// WriteRelativeTrajectoryHTML renders the relative position of b with
// respect to a through the encounter window as an interactive 3-D line.
func (w *Writer) WriteRelativeTrajectoryHTML(set *trajectory.Set, r refine.Result) error {
	ta, ok := set.Get(r.A)
	if !ok {
		return fmt.Errorf("object %q not in trajectory set", r.A)
	}
	tb, ok := set.Get(r.B)
	if !ok {
		return fmt.Errorf("object %q not in trajectory set", r.B)
	}

	steps := set.Grid().Len()
	i0 := r.TIndex - plotHalfWidth
	if i0 < 0 {
		i0 = 0
	}
	i1 := r.TIndex + plotHalfWidth
	if i1 > steps-1 {
		i1 = steps - 1
	}

	data := make([]opts.Chart3DData, 0, i1-i0+1)
	for k := i0; k <= i1; k++ {
		sa, sb := ta.Samples[k], tb.Samples[k]
		if !sa.Valid || !sb.Valid {
			continue
		}
		data = append(data, opts.Chart3DData{Value: []interface{}{
			sb.R[0] - sa.R[0],
			sb.R[1] - sa.R[1],
			sb.R[2] - sa.R[2],
		}})
	}
	if len(data) == 0 {
		return fmt.Errorf("pair %s/%s: no valid samples in plot window", r.A, r.B)
	}

	line := charts.NewLine3D()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: fmt.Sprintf("%s relative to %s", r.B, r.A),
			Width:     "900px",
			Height:    "700px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s relative to %s (TEME)", r.B, r.A),
			Subtitle: fmt.Sprintf("TCA %s, DCA %.3f km", r.TCAUTC, r.DCAKm),
		}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "Δx (km)"}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Δy (km)"}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Δz (km)"}),
	)
	line.AddSeries("relative position", data)

	path := filepath.Join(w.dir, plotFileName(r, "relative", "html"))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return f.Close()
}

// plotFileName builds a filesystem-safe artifact name for one pair.
func plotFileName(r refine.Result, kind, ext string) string {
	return fmt.Sprintf("%s__%s_%s.%s", sanitizeName(r.A), sanitizeName(r.B), kind, ext)
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
