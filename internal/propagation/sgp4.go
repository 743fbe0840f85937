package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Selected for: most community adoption, pure Go (no CGO), battle-tested
// since 2016, explicit TEME output.
//
// Note: Propagate() takes Satellite by value so SGP4 error codes are not
// visible to the caller. We detect propagation failures by checking output
// for NaN/Inf and unreasonable position magnitudes.

// SGP4Propagator wraps the go-satellite library for a single object.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4Propagator creates an SGP4 propagator from TLE lines.
// Returns an error if the TLE cannot be parsed or the SGP4 model fails to
// initialize.
//
// Pre-validates TLE format before passing to the library, because
// go-satellite calls log.Fatal on malformed input (which would kill the
// process).
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

// validateTLELines performs basic format validation on TLE lines.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// SampleAt computes the object's TEME state at the given instant. A failed
// step comes back as an invalid sample rather than an error, so one bad
// step never costs the whole trajectory.
func (p *SGP4Propagator) SampleAt(t time.Time) trajectory.Sample {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if !finiteVector(pos.X, pos.Y, pos.Z) || !finiteVector(vel.X, vel.Y, vel.Z) {
		return trajectory.Sample{}
	}

	// Position magnitude should be between ~6200 km (reentry) and
	// ~50000 km (beyond GEO): anything else is a failed propagation.
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return trajectory.Sample{}
	}

	return trajectory.Sample{
		R:     [3]float64{pos.X, pos.Y, pos.Z},
		V:     [3]float64{vel.X, vel.Y, vel.Z},
		Valid: true,
	}
}

func finiteVector(x, y, z float64) bool {
	for _, v := range []float64{x, y, z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
