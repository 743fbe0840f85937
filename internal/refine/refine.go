// Package refine sharpens a coarse closest-approach estimate for a pair of
// trajectories by upsampling a local time window with linear interpolation.
package refine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/Veyza/toy-collision-avoidance/internal/geometry"
	"github.com/Veyza/toy-collision-avoidance/internal/metrics"
	"github.com/Veyza/toy-collision-avoidance/internal/screening"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

const (
	// DefaultWindow is the half-width, in coarse steps, of the refinement
	// window around the coarse minimum.
	DefaultWindow = 3

	// DefaultUpsample is the factor by which each coarse interval inside
	// the window is subdivided.
	DefaultUpsample = 10
)

// ErrNoValidSamples is returned when a coarse minimum has to be recomputed
// for a pair and no grid step has both samples valid.
var ErrNoValidSamples = errors.New("no mutually valid samples for pair")

// Columns is the refined result table schema, kept stable even for empty
// results.
var Columns = []string{"a", "b", "t_index", "t_idx_refined", "tca_utc", "dca_km", "vrel_kms"}

// Result is a refined closest approach for one candidate pair.
type Result struct {
	A           string
	B           string
	TIndex      int
	TIdxRefined int
	TCAUTC      string
	DCAKm       float64
	VrelKms     float64
}

// Pair refines the closest approach between two trajectories sharing the
// given grid. hint is the coarse minimum index, or negative to recompute it
// from the pair's separations. window is the half-width in coarse steps and
// upsample the subdivision factor (values below 2 are clamped to 2).
//
// A window that clamps down to a single coarse step is a defined degenerate
// case: the coarse sample itself is reported, with no interpolation.
func Pair(a, b *trajectory.Trajectory, grid trajectory.Grid, hint, window, upsample int) (Result, error) {
	if a.Len() != grid.Len() || b.Len() != grid.Len() {
		return Result{}, fmt.Errorf("pair %s/%s: %w", a.Name, b.Name, trajectory.ErrGridMismatch)
	}

	if hint < 0 {
		h, ok := coarseMinIndex(a, b)
		if !ok {
			return Result{}, fmt.Errorf("pair %s/%s: %w", a.Name, b.Name, ErrNoValidSamples)
		}
		hint = h
	}

	steps := grid.Len()
	if hint >= steps {
		return Result{}, fmt.Errorf("pair %s/%s: hint index %d outside grid of %d steps", a.Name, b.Name, hint, steps)
	}

	i0 := max(0, hint-window)
	i1 := min(steps-1, hint+window)

	if i1 <= i0 {
		return coarseFallback(a, b, grid, hint), nil
	}

	if upsample < 2 {
		upsample = 2
	}

	// Refined grid: (window steps − 1) · upsample + 1 points across the
	// same span, expressed in seconds since the window start.
	points := (i1-i0)*upsample + 1
	gridSec := grid.Seconds()
	span := gridSec[i1] - gridSec[i0]
	targets := make([]float64, points)
	for k := range targets {
		targets[k] = gridSec[i0] + span*float64(k)/float64(points-1)
	}

	ra, va, err := interpState(a, gridSec, targets)
	if err != nil {
		return Result{}, fmt.Errorf("interpolating %s: %w", a.Name, err)
	}
	rb, vb, err := interpState(b, gridSec, targets)
	if err != nil {
		return Result{}, fmt.Errorf("interpolating %s: %w", b.Name, err)
	}

	// Minimum relative distance on the refined grid; non-finite values are
	// pushed to +Inf, ties go to the first occurrence.
	j := 0
	dca := math.Inf(1)
	for k := 0; k < points; k++ {
		d := geometry.Norm3(ra[k][0]-rb[k][0], ra[k][1]-rb[k][1], ra[k][2]-rb[k][2])
		if math.IsNaN(d) {
			d = math.Inf(1)
		}
		if d < dca {
			dca = d
			j = k
		}
	}

	vrel := geometry.Norm3(va[j][0]-vb[j][0], va[j][1]-vb[j][1], va[j][2]-vb[j][2])

	t0 := grid[i0]
	spanDur := grid[i1].Sub(grid[i0])
	tca := t0.Add(time.Duration(int64(spanDur) * int64(j) / int64(points-1)))

	return Result{
		A:           a.Name,
		B:           b.Name,
		TIndex:      hint,
		TIdxRefined: j,
		TCAUTC:      tca.UTC().Format(time.RFC3339Nano),
		DCAKm:       dca,
		VrelKms:     vrel,
	}, nil
}

// Candidates refines every screened candidate row against the trajectory
// set. One refined row is produced per candidate, sorted ascending by
// (dca_km, a, b). Distances and speeds are rounded to six decimals.
func Candidates(set *trajectory.Set, cands []screening.Candidate, window, upsample int) ([]Result, error) {
	start := time.Now()
	defer func() { metrics.RecordRefinement(time.Since(start)) }()

	out := make([]Result, 0, len(cands))
	for _, c := range cands {
		a, ok := set.Get(c.A)
		if !ok {
			return nil, fmt.Errorf("candidate references unknown object %q", c.A)
		}
		b, ok := set.Get(c.B)
		if !ok {
			return nil, fmt.Errorf("candidate references unknown object %q", c.B)
		}

		res, err := Pair(a, b, set.Grid(), c.TIndex, window, upsample)
		if err != nil {
			return nil, fmt.Errorf("refining %s/%s: %w", c.A, c.B, err)
		}
		res.DCAKm = screening.Round6(res.DCAKm)
		res.VrelKms = screening.Round6(res.VrelKms)
		out = append(out, res)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DCAKm != out[j].DCAKm {
			return out[i].DCAKm < out[j].DCAKm
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})

	return out, nil
}

// coarseMinIndex rescans a single pair for its coarse minimum step.
func coarseMinIndex(a, b *trajectory.Trajectory) (int, bool) {
	idx := -1
	dmin := math.Inf(1)
	for k := 0; k < a.Len(); k++ {
		d := geometry.StepDistance(a, b, k)
		if d < dmin {
			dmin = d
			idx = k
		}
	}
	return idx, idx >= 0
}

// coarseFallback reports the coarse sample at hint directly. Happens when
// the clamped window collapses to one step; refinement is skipped rather
// than failed.
func coarseFallback(a, b *trajectory.Trajectory, grid trajectory.Grid, hint int) Result {
	sa, sb := a.Samples[hint], b.Samples[hint]

	dca := math.Inf(1)
	vrel := math.Inf(1)
	if sa.Valid && sb.Valid {
		dca = geometry.Norm3(sa.R[0]-sb.R[0], sa.R[1]-sb.R[1], sa.R[2]-sb.R[2])
		vrel = geometry.Norm3(sa.V[0]-sb.V[0], sa.V[1]-sb.V[1], sa.V[2]-sb.V[2])
	}

	return Result{
		A:           a.Name,
		B:           b.Name,
		TIndex:      hint,
		TIdxRefined: hint,
		TCAUTC:      grid[hint].UTC().Format(time.RFC3339Nano),
		DCAKm:       dca,
		VrelKms:     vrel,
	}
}

// interpState interpolates a trajectory's position and velocity components
// onto the target times (seconds on the same scale as gridSec).
func interpState(tr *trajectory.Trajectory, gridSec, targets []float64) ([][3]float64, [][3]float64, error) {
	r := make([][3]float64, len(targets))
	v := make([][3]float64, len(targets))

	for axis := 0; axis < 3; axis++ {
		pos, err := interpComponent(gridSec, componentSeries(tr, axis, false), targets)
		if err != nil {
			return nil, nil, err
		}
		vel, err := interpComponent(gridSec, componentSeries(tr, axis, true), targets)
		if err != nil {
			return nil, nil, err
		}
		for k := range targets {
			r[k][axis] = pos[k]
			v[k][axis] = vel[k]
		}
	}

	return r, v, nil
}

// componentSeries extracts one position or velocity axis across the grid,
// with NaN standing in for invalid samples.
func componentSeries(tr *trajectory.Trajectory, axis int, velocity bool) []float64 {
	out := make([]float64, tr.Len())
	for k, s := range tr.Samples {
		switch {
		case !s.Valid:
			out[k] = math.NaN()
		case velocity:
			out[k] = s.V[axis]
		default:
			out[k] = s.R[axis]
		}
	}
	return out
}

// interpComponent gap-fills invalid values by carry-forward then
// carry-backward, then linearly interpolates onto the targets. The fill
// guarantees no invalid value reaches the interpolation step; a series with
// no valid value at all yields NaN predictions, which the minimum search
// treats as +Inf.
func interpComponent(xs, ys, targets []float64) ([]float64, error) {
	filled, any := fillInvalid(ys)
	out := make([]float64, len(targets))

	if !any {
		for k := range out {
			out[k] = math.NaN()
		}
		return out, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, filled); err != nil {
		return nil, fmt.Errorf("fitting interpolant: %w", err)
	}
	for k, x := range targets {
		out[k] = pl.Predict(x)
	}
	return out, nil
}

// fillInvalid replaces NaNs by the nearest valid neighbor, scanning forward
// then backward. Returns the filled copy and whether any value was valid.
func fillInvalid(ys []float64) ([]float64, bool) {
	out := make([]float64, len(ys))
	copy(out, ys)

	any := false
	for _, y := range out {
		if !math.IsNaN(y) {
			any = true
			break
		}
	}
	if !any {
		return out, false
	}

	for i := 1; i < len(out); i++ {
		if math.IsNaN(out[i]) {
			out[i] = out[i-1]
		}
	}
	for i := len(out) - 2; i >= 0; i-- {
		if math.IsNaN(out[i]) {
			out[i] = out[i+1]
		}
	}
	return out, true
}
