package refine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Veyza/toy-collision-avoidance/internal/screening"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

func mkGrid(t *testing.T, steps int, step time.Duration) trajectory.Grid {
	t.Helper()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	grid, err := trajectory.NewGrid(start, start.Add(time.Duration(steps-1)*step), step)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return grid
}

func mkTraj(name string, positions [][3]float64, vel [3]float64) trajectory.Trajectory {
	samples := make([]trajectory.Sample, len(positions))
	for i, r := range positions {
		samples[i] = trajectory.Sample{R: r, V: vel, Valid: true}
	}
	return trajectory.Trajectory{Name: name, Samples: samples}
}

// A stationary at the origin, B approaching from x=5 km at 0.5 km/s,
// sampled every 10 s for 100 s. True TCA is t=10 s with DCA 0 and relative
// speed 0.5 km/s.
func TestPairLinearMotion(t *testing.T) {
	grid := mkGrid(t, 11, 10*time.Second)

	aPos := make([][3]float64, 11)
	bPos := make([][3]float64, 11)
	for k := 0; k < 11; k++ {
		ts := float64(k) * 10.0
		bPos[k] = [3]float64{5.0 - 0.5*ts, 0, 0}
	}
	a := mkTraj("A", aPos, [3]float64{0, 0, 0})
	b := mkTraj("B", bPos, [3]float64{-0.5, 0, 0})

	res, err := Pair(&a, &b, grid, -1, 2, 20)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}

	tca, err := trajectory.ParseISOUTC(res.TCAUTC)
	if err != nil {
		t.Fatalf("parsing TCA %q: %v", res.TCAUTC, err)
	}
	wantTCA := grid[1]
	if d := tca.Sub(wantTCA); d < -time.Second || d > time.Second {
		t.Errorf("TCA = %v, want within 1s of %v", tca, wantTCA)
	}
	if math.Abs(res.DCAKm) > 1e-3 {
		t.Errorf("DCA = %v km, want ~0", res.DCAKm)
	}
	if math.Abs(res.VrelKms-0.5) > 1e-6 {
		t.Errorf("vrel = %v km/s, want 0.5", res.VrelKms)
	}
	t.Logf("tca=%s dca=%.6f vrel=%.6f refined_idx=%d", res.TCAUTC, res.DCAKm, res.VrelKms, res.TIdxRefined)
}

// The coarse grid point is part of the interpolation domain, so refinement
// can only ever find an equal or closer approach.
func TestRefinedNeverWorseThanCoarse(t *testing.T) {
	grid := mkGrid(t, 9, 20*time.Second)

	aPos := make([][3]float64, 9)
	bPos := make([][3]float64, 9)
	for k := 0; k < 9; k++ {
		ts := float64(k) * 20.0
		// B sweeps past A off-axis; minimum falls between grid points.
		bPos[k] = [3]float64{3.0 - 0.031*ts, 1.5, 0}
	}
	a := mkTraj("A", aPos, [3]float64{0, 0, 0})
	b := mkTraj("B", bPos, [3]float64{-0.031, 0, 0})

	// Coarse minimum by direct scan.
	coarse := math.Inf(1)
	hint := -1
	for k := 0; k < 9; k++ {
		d := math.Hypot(bPos[k][0], 1.5)
		if d < coarse {
			coarse = d
			hint = k
		}
	}

	res, err := Pair(&a, &b, grid, hint, 3, 10)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if res.DCAKm > coarse+1e-12 {
		t.Errorf("refined DCA %.9f exceeds coarse DCA %.9f", res.DCAKm, coarse)
	}
	t.Logf("coarse=%.6f refined=%.6f", coarse, res.DCAKm)
}

// A hint past the end of the grid must be rejected, not dereferenced: the
// clamped window would collapse and the fallback would index out of range.
func TestPairHintBeyondGrid(t *testing.T) {
	grid := mkGrid(t, 5, 10*time.Second)
	a := mkTraj("A", make([][3]float64, 5), [3]float64{})
	b := mkTraj("B", make([][3]float64, 5), [3]float64{})

	for _, hint := range []int{5, 100} {
		if _, err := Pair(&a, &b, grid, hint, 3, 10); err == nil {
			t.Errorf("Pair(hint=%d) = nil error, want out-of-range error", hint)
		}
	}
}

func TestPairGridMismatch(t *testing.T) {
	grid := mkGrid(t, 5, 10*time.Second)
	a := mkTraj("A", make([][3]float64, 5), [3]float64{})
	b := mkTraj("B", make([][3]float64, 4), [3]float64{})

	_, err := Pair(&a, &b, grid, 0, 3, 10)
	if !errors.Is(err, trajectory.ErrGridMismatch) {
		t.Fatalf("err = %v, want ErrGridMismatch", err)
	}
}

// Zero half-width collapses the window to a single coarse step: the coarse
// sample is reported directly.
func TestDegenerateWindowFallsBackToCoarse(t *testing.T) {
	grid := mkGrid(t, 5, 10*time.Second)

	aPos := [][3]float64{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	bPos := [][3]float64{{9, 0, 0}, {7, 0, 0}, {4, 0, 0}, {6, 0, 0}, {8, 0, 0}}
	a := mkTraj("A", aPos, [3]float64{0, 0, 0})
	b := mkTraj("B", bPos, [3]float64{0.1, 0.2, 0.2})

	res, err := Pair(&a, &b, grid, 2, 0, 10)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if res.TIdxRefined != 2 || res.TIndex != 2 {
		t.Errorf("indices = (%d, %d), want (2, 2)", res.TIndex, res.TIdxRefined)
	}
	if math.Abs(res.DCAKm-4.0) > 1e-12 {
		t.Errorf("DCA = %v, want coarse 4.0", res.DCAKm)
	}
	if res.TCAUTC != grid[2].Format(time.RFC3339Nano) {
		t.Errorf("TCA = %q, want coarse grid time", res.TCAUTC)
	}
	wantVrel := math.Sqrt(0.1*0.1 + 0.2*0.2 + 0.2*0.2)
	if math.Abs(res.VrelKms-wantVrel) > 1e-12 {
		t.Errorf("vrel = %v, want %v", res.VrelKms, wantVrel)
	}
}

// An invalid sample inside the window is gap-filled before interpolation and
// must not poison the refined estimate.
func TestInvalidSampleGapFilled(t *testing.T) {
	grid := mkGrid(t, 11, 10*time.Second)

	aPos := make([][3]float64, 11)
	bPos := make([][3]float64, 11)
	for k := 0; k < 11; k++ {
		ts := float64(k) * 10.0
		bPos[k] = [3]float64{5.0 - 0.5*ts, 0, 0}
	}
	a := mkTraj("A", aPos, [3]float64{0, 0, 0})
	b := mkTraj("B", bPos, [3]float64{-0.5, 0, 0})
	b.Samples[2].Valid = false

	res, err := Pair(&a, &b, grid, 1, 2, 10)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if math.IsNaN(res.DCAKm) || math.IsInf(res.DCAKm, 0) {
		t.Fatalf("DCA = %v, gap fill failed", res.DCAKm)
	}
	if res.DCAKm > 0.5 {
		t.Errorf("DCA = %v km, expected near-zero despite invalid sample", res.DCAKm)
	}
}

func TestPairAllInvalidWithoutHint(t *testing.T) {
	grid := mkGrid(t, 3, 10*time.Second)
	a := mkTraj("A", make([][3]float64, 3), [3]float64{})
	b := mkTraj("B", make([][3]float64, 3), [3]float64{})
	for i := range b.Samples {
		b.Samples[i].Valid = false
	}

	_, err := Pair(&a, &b, grid, -1, 3, 10)
	if !errors.Is(err, ErrNoValidSamples) {
		t.Fatalf("err = %v, want ErrNoValidSamples", err)
	}
}

// Equal minima on the refined grid resolve to the first occurrence.
func TestRefinedTieBreakFirstOccurrence(t *testing.T) {
	grid := mkGrid(t, 5, 10*time.Second)

	aPos := make([][3]float64, 5)
	// Symmetric V-shaped approach: same minimum at two refined points.
	bPos := [][3]float64{{4, 1, 0}, {2, 1, 0}, {0, 1, 0}, {2, 1, 0}, {4, 1, 0}}
	a := mkTraj("A", aPos, [3]float64{0, 0, 0})
	b := mkTraj("B", bPos, [3]float64{0, 0, 0})

	res, err := Pair(&a, &b, grid, 2, 1, 2)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	// Window [1,3], 5 refined points; the exact minimum (1 km) occurs only
	// at the center, index 2.
	if res.TIdxRefined != 2 {
		t.Errorf("refined index = %d, want 2", res.TIdxRefined)
	}

	// Flat segment: B holds the same separation over [1,2]; the first
	// refined point of the plateau must win.
	cPos := [][3]float64{{4, 1, 0}, {1, 1, 0}, {1, 1, 0}, {1, 1, 0}, {4, 1, 0}}
	c := mkTraj("C", cPos, [3]float64{0, 0, 0})
	res, err = Pair(&a, &c, grid, 2, 1, 4)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if res.TIdxRefined != 0 {
		t.Errorf("plateau tie resolved to %d, want 0", res.TIdxRefined)
	}
}

func TestUpsampleClampedToTwo(t *testing.T) {
	grid := mkGrid(t, 5, 10*time.Second)
	aPos := make([][3]float64, 5)
	bPos := [][3]float64{{4, 1, 0}, {2, 1, 0}, {1, 1, 0}, {2, 1, 0}, {4, 1, 0}}
	a := mkTraj("A", aPos, [3]float64{0, 0, 0})
	b := mkTraj("B", bPos, [3]float64{0, 0, 0})

	res1, err := Pair(&a, &b, grid, 2, 1, 0)
	if err != nil {
		t.Fatalf("Pair upsample=0: %v", err)
	}
	res2, err := Pair(&a, &b, grid, 2, 1, 2)
	if err != nil {
		t.Fatalf("Pair upsample=2: %v", err)
	}
	if diff := cmp.Diff(res2, res1); diff != "" {
		t.Errorf("upsample=0 should behave as 2 (-want +got):\n%s", diff)
	}
}

func buildBatchSet(t *testing.T) (*trajectory.Set, []screening.Candidate) {
	t.Helper()
	grid := mkGrid(t, 11, 10*time.Second)
	set := trajectory.NewSet(grid)

	aPos := make([][3]float64, 11)
	bPos := make([][3]float64, 11)
	cPos := make([][3]float64, 11)
	for k := 0; k < 11; k++ {
		ts := float64(k) * 10.0
		bPos[k] = [3]float64{5.0 - 0.5*ts, 0, 0}
		cPos[k] = [3]float64{0, 8.0 - 0.05*ts, 0}
	}
	for _, tr := range []trajectory.Trajectory{
		mkTraj("ALPHA", aPos, [3]float64{0, 0, 0}),
		mkTraj("BRAVO", bPos, [3]float64{-0.5, 0, 0}),
		mkTraj("CHARLIE", cPos, [3]float64{0, -0.05, 0}),
	} {
		if err := set.Add(tr); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	cands, err := screening.Screen(set, 100.0)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	return set, cands
}

func TestCandidatesBatch(t *testing.T) {
	set, cands := buildBatchSet(t)
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want 3", len(cands))
	}

	refined, err := Candidates(set, cands, DefaultWindow, DefaultUpsample)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(refined) != len(cands) {
		t.Fatalf("got %d refined rows, want %d", len(refined), len(cands))
	}

	for i := 1; i < len(refined); i++ {
		prev, cur := refined[i-1], refined[i]
		if prev.DCAKm > cur.DCAKm {
			t.Errorf("row %d out of DCA order: %v after %v", i, cur.DCAKm, prev.DCAKm)
		}
		if prev.DCAKm == cur.DCAKm && (prev.A > cur.A || (prev.A == cur.A && prev.B > cur.B)) {
			t.Errorf("row %d out of name order on tie", i)
		}
	}
}

func TestCandidatesIdempotent(t *testing.T) {
	set, cands := buildBatchSet(t)

	first, err := Candidates(set, cands, DefaultWindow, DefaultUpsample)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	second, err := Candidates(set, cands, DefaultWindow, DefaultUpsample)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("re-run differs (-first +second):\n%s", diff)
	}
}

func TestCandidatesUnknownObject(t *testing.T) {
	set, _ := buildBatchSet(t)
	_, err := Candidates(set, []screening.Candidate{{A: "ALPHA", B: "NOPE", TIndex: 0}}, 3, 10)
	if err == nil {
		t.Fatal("expected error for unknown object name")
	}
}

func BenchmarkPairRefine(b *testing.B) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	grid, err := trajectory.NewGrid(start, start.Add(300*time.Second), 10*time.Second)
	if err != nil {
		b.Fatalf("NewGrid: %v", err)
	}

	n := grid.Len()
	aPos := make([][3]float64, n)
	bPos := make([][3]float64, n)
	for k := 0; k < n; k++ {
		ts := float64(k) * 10.0
		bPos[k] = [3]float64{75.0 - 0.5*ts, 2, 1}
	}
	a := mkTraj("A", aPos, [3]float64{0, 0, 0})
	tr := mkTraj("B", bPos, [3]float64{-0.5, 0, 0})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Pair(&a, &tr, grid, -1, 3, 10); err != nil {
			b.Fatal(err)
		}
	}
}
