package trajectory

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrGridMismatch is returned when a trajectory does not share the
	// reference time grid of its run (different length or timestamps).
	ErrGridMismatch = errors.New("time grids differ between objects")

	// ErrNoTrajectories is returned when an operation requires at least one
	// trajectory and none were supplied.
	ErrNoTrajectories = errors.New("no trajectories given")
)

// Sample is one propagated state on the coarse grid. Position is in km,
// velocity in km/s (TEME frame). Valid is false when propagation failed at
// this step; invalid samples must never be selected as a minimum.
type Sample struct {
	R     [3]float64
	V     [3]float64
	Valid bool
}

// Trajectory is one object's state time series on the run's shared grid.
type Trajectory struct {
	Name    string
	Samples []Sample
}

// Len returns the number of grid steps.
func (tr *Trajectory) Len() int {
	return len(tr.Samples)
}

// AllInvalid reports whether no step of the trajectory propagated.
func (tr *Trajectory) AllInvalid() bool {
	for _, s := range tr.Samples {
		if s.Valid {
			return false
		}
	}
	return true
}

// Set holds all trajectories of one screening run on a single shared grid.
// The object name to slice index mapping is kept separately so the sample
// data stays dense.
type Set struct {
	grid  Grid
	trajs []Trajectory
	index map[string]int
}

// NewSet creates an empty Set over the given grid.
func NewSet(grid Grid) *Set {
	return &Set{
		grid:  grid,
		index: make(map[string]int),
	}
}

// Add appends a trajectory to the set. The sample count must match the grid
// length; a mismatch returns ErrGridMismatch. Duplicate names are rejected.
func (s *Set) Add(tr Trajectory) error {
	if len(tr.Samples) != s.grid.Len() {
		return fmt.Errorf("%s has %d samples, grid has %d: %w",
			tr.Name, len(tr.Samples), s.grid.Len(), ErrGridMismatch)
	}
	if _, ok := s.index[tr.Name]; ok {
		return fmt.Errorf("duplicate object name %q", tr.Name)
	}
	s.index[tr.Name] = len(s.trajs)
	s.trajs = append(s.trajs, tr)
	return nil
}

// Grid returns the shared time grid.
func (s *Set) Grid() Grid {
	return s.grid
}

// Len returns the number of objects in the set.
func (s *Set) Len() int {
	return len(s.trajs)
}

// At returns the trajectory at slice index i.
func (s *Set) At(i int) *Trajectory {
	return &s.trajs[i]
}

// Get looks a trajectory up by object name.
func (s *Set) Get(name string) (*Trajectory, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return &s.trajs[i], true
}

// Names returns all object names in insertion order.
func (s *Set) Names() []string {
	names := make([]string, len(s.trajs))
	for i := range s.trajs {
		names[i] = s.trajs[i].Name
	}
	return names
}

// SortedNames returns all object names in lexicographic order.
func (s *Set) SortedNames() []string {
	names := s.Names()
	sort.Strings(names)
	return names
}
