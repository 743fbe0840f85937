// Package screening filters coarse pairwise minima against a distance
// threshold and produces the candidate table consumed by refinement.
package screening

import (
	"math"
	"sort"
	"time"

	"github.com/Veyza/toy-collision-avoidance/internal/geometry"
	"github.com/Veyza/toy-collision-avoidance/internal/metrics"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

// Columns is the candidate table schema, preserved even when no pair
// survives so downstream consumers can rely on shape.
var Columns = []string{"a", "b", "dmin_km", "t_index", "time_utc"}

// Candidate is one screened pair: coarse minimum below the threshold.
type Candidate struct {
	A       string
	B       string
	DminKm  float64
	TIndex  int
	TimeUTC string
}

// Screen computes pairwise coarse minima for the whole set and keeps pairs
// whose minimum separation is strictly below screenKm. The result is sorted
// ascending by (dmin_km, a, b) so identical inputs always produce identical
// tables. An empty (never nil) slice is returned when nothing survives.
func Screen(set *trajectory.Set, screenKm float64) ([]Candidate, error) {
	pairs, err := geometry.PairwiseMinDistances(set)
	if err != nil {
		return nil, err
	}
	out := Filter(pairs, set.Grid(), screenKm)
	metrics.RecordScreening(len(pairs), len(out))
	return out, nil
}

// Filter applies the threshold to precomputed pairwise minima.
func Filter(pairs []geometry.PairMin, grid trajectory.Grid, screenKm float64) []Candidate {
	out := make([]Candidate, 0, len(pairs))
	for _, p := range pairs {
		if p.DminKm >= screenKm {
			continue
		}
		out = append(out, Candidate{
			A:       p.A,
			B:       p.B,
			DminKm:  Round6(p.DminKm),
			TIndex:  p.MinStep,
			TimeUTC: grid[p.MinStep].UTC().Format(time.RFC3339),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DminKm != out[j].DminKm {
			return out[i].DminKm < out[j].DminKm
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})

	return out
}

// Round6 rounds to six decimal places, the precision carried in the
// candidate and refined tables.
func Round6(x float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return x
	}
	return math.Round(x*1e6) / 1e6
}
