// Package geometry computes coarse pairwise separations between object
// trajectories that share one time grid.
package geometry

import (
	"math"

	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

// PairMin is the coarse-grid minimum separation for one unordered pair.
type PairMin struct {
	A       string
	B       string
	DminKm  float64
	MinStep int
}

// PairwiseMinDistances scans every unordered pair (i<j) in the set and
// returns the minimum Euclidean separation over the coarse grid together
// with the step where it occurs. Steps where either sample is invalid are
// treated as infinitely distant so they never win; pairs with no mutually
// valid step are dropped entirely. Ties go to the lowest step index.
//
// Returns trajectory.ErrNoTrajectories when the set is empty. No ordering
// between pairs is implied; the screener imposes one later.
func PairwiseMinDistances(set *trajectory.Set) ([]PairMin, error) {
	if set == nil || set.Len() == 0 {
		return nil, trajectory.ErrNoTrajectories
	}

	steps := set.Grid().Len()
	out := make([]PairMin, 0, set.Len()*(set.Len()-1)/2)

	for i := 0; i < set.Len(); i++ {
		for j := i + 1; j < set.Len(); j++ {
			a, b := set.At(i), set.At(j)

			dmin := math.Inf(1)
			minStep := -1
			for k := 0; k < steps; k++ {
				d := StepDistance(a, b, k)
				if d < dmin {
					dmin = d
					minStep = k
				}
			}

			// No mutually valid step: nothing useful to report.
			if math.IsInf(dmin, 1) {
				continue
			}

			out = append(out, PairMin{
				A:       a.Name,
				B:       b.Name,
				DminKm:  dmin,
				MinStep: minStep,
			})
		}
	}

	return out, nil
}

// StepDistance returns the separation between two objects at grid step k,
// or +Inf when either sample is invalid or non-finite.
func StepDistance(a, b *trajectory.Trajectory, k int) float64 {
	sa, sb := a.Samples[k], b.Samples[k]
	if !sa.Valid || !sb.Valid {
		return math.Inf(1)
	}
	d := Norm3(sa.R[0]-sb.R[0], sa.R[1]-sb.R[1], sa.R[2]-sb.R[2])
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}

// Norm3 is the Euclidean norm of a 3-vector.
func Norm3(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}
