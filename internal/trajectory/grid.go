package trajectory

import (
	"fmt"
	"time"
)

// Grid is the shared coarse time grid of a screening run: strictly
// increasing, uniformly spaced UTC instants.
type Grid []time.Time

// NewGrid builds an inclusive [start, end] grid with the given step.
// End must be after start and step must be positive.
func NewGrid(start, end time.Time, step time.Duration) (Grid, error) {
	if step <= 0 {
		return nil, fmt.Errorf("grid step must be positive, got %s", step)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("grid end %s must be after start %s",
			end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	}

	n := int(end.Sub(start)/step) + 1
	grid := make(Grid, 0, n)
	for t := start.UTC(); !t.After(end); t = t.Add(step) {
		grid = append(grid, t)
	}
	return grid, nil
}

// Len returns the number of grid steps.
func (g Grid) Len() int {
	return len(g)
}

// Equal reports whether two grids have identical length and timestamps.
func (g Grid) Equal(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if !g[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Seconds returns each grid timestamp as seconds since the first one.
// Working in relative seconds keeps interpolation numerically stable.
func (g Grid) Seconds() []float64 {
	if len(g) == 0 {
		return nil
	}
	out := make([]float64, len(g))
	t0 := g[0]
	for i, t := range g {
		out[i] = t.Sub(t0).Seconds()
	}
	return out
}

// ParseISOUTC parses an ISO 8601 / RFC 3339 timestamp and normalizes it to
// UTC. Accepts both "2025-08-17T00:00:00Z" and offset forms.
func ParseISOUTC(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t.UTC(), nil
}
