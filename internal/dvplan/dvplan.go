// Package dvplan proposes along-track avoidance burns for refined
// conjunctions. The model is deliberately crude: separation builds
// linearly, Δs ≈ Δv·Δt, with no covariance, eccentricity, or J2 terms.
// It exists for illustrative what-if planning only.
package dvplan

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Veyza/toy-collision-avoidance/internal/refine"
	"github.com/Veyza/toy-collision-avoidance/internal/screening"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

// Columns is the suggestion table schema.
var Columns = []string{
	"a", "b", "actor", "t_plan_utc", "tca_utc", "dt_to_tca_s",
	"target_dca_km", "suggested_dv_mps", "achieved_dca_km", "note",
}

const note = "Δs≈Δv·Δt; toy heuristic (no covariance/a,e,i/J2)."

// Suggestion is one prograde or retrograde burn option for one actor.
type Suggestion struct {
	A              string
	B              string
	Actor          string // "a" or "b": which object maneuvers
	TPlanUTC       string
	TCAUTC         string
	DtToTCASec     float64
	TargetDCAKm    float64
	SuggestedDvMps float64
	AchievedDCAKm  float64
	Note           string
}

// Params bounds the planning heuristic.
type Params struct {
	PlanTime    time.Time // when the burn would execute
	TargetDCAKm float64   // desired along-track separation at TCA
	MaxDvMps    float64   // cap on burn magnitude
}

// ForRefined produces four options per refined pair: prograde and
// retrograde for each actor. Encounters whose TCA is at or before the plan
// time are skipped, since no burn can affect them. Results are sorted by
// (tca_utc, a, b, actor, suggested_dv_mps) for deterministic output.
func ForRefined(refined []refine.Result, p Params) ([]Suggestion, error) {
	out := make([]Suggestion, 0, 4*len(refined))
	for _, r := range refined {
		tca, err := trajectory.ParseISOUTC(r.TCAUTC)
		if err != nil {
			return nil, fmt.Errorf("pair %s/%s: %w", r.A, r.B, err)
		}
		for _, actor := range []string{"a", "b"} {
			out = append(out, suggestForActor(r.A, r.B, tca, actor, p)...)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TCAUTC != out[j].TCAUTC {
			return out[i].TCAUTC < out[j].TCAUTC
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		if out[i].B != out[j].B {
			return out[i].B < out[j].B
		}
		if out[i].Actor != out[j].Actor {
			return out[i].Actor < out[j].Actor
		}
		return out[i].SuggestedDvMps < out[j].SuggestedDvMps
	})

	return out, nil
}

// suggestForActor returns the prograde and retrograde options for one
// actor, or nothing when the encounter is already in the past.
func suggestForActor(a, b string, tca time.Time, actor string, p Params) []Suggestion {
	dt := tca.Sub(p.PlanTime).Seconds()
	if dt <= 0 {
		return nil
	}

	// Δv needed for the target miss distance, capped by capability.
	dvNeeded := (p.TargetDCAKm * 1000.0) / dt
	dvCap := math.Min(math.Abs(dvNeeded), p.MaxDvMps)
	achievedKm := (dvCap * dt) / 1000.0

	out := make([]Suggestion, 0, 2)
	for _, sign := range []float64{+1, -1} {
		out = append(out, Suggestion{
			A:              a,
			B:              b,
			Actor:          actor,
			TPlanUTC:       p.PlanTime.UTC().Format(time.RFC3339),
			TCAUTC:         tca.UTC().Format(time.RFC3339Nano),
			DtToTCASec:     math.Round(dt*1000) / 1000,
			TargetDCAKm:    p.TargetDCAKm,
			SuggestedDvMps: screening.Round6(sign * dvCap),
			AchievedDCAKm:  screening.Round6(achievedKm),
			Note:           note,
		})
	}
	return out
}
