// Command diag runs the pipeline end to end against a local TLE file and
// prints what it finds. Quick sanity check, not part of the CLI surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/Veyza/toy-collision-avoidance/internal/propagation"
	"github.com/Veyza/toy-collision-avoidance/internal/refine"
	"github.com/Veyza/toy-collision-avoidance/internal/screening"
	"github.com/Veyza/toy-collision-avoidance/internal/tle"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	path := "data/active.tle"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Println("ERROR opening TLE file:", err)
		os.Exit(1)
	}
	defer f.Close()

	entries, err := tle.Parse(f, logger)
	if err != nil {
		fmt.Println("ERROR parsing TLE:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d TLE entries\n", len(entries))
	if len(entries) > 0 {
		fmt.Printf("First entry: %s (NORAD %d) epoch %v\n", entries[0].Name, entries[0].NORADID, entries[0].Epoch)
	}

	if len(entries) > 60 {
		entries = tle.Sample(entries, 60, 42)
		fmt.Printf("Sampled down to %d entries\n", len(entries))
	}

	epochs := tle.Epochs(entries)
	start := epochs.Max.Truncate(time.Minute)
	grid, err := trajectory.NewGrid(start, start.Add(2*time.Hour), 20*time.Second)
	if err != nil {
		fmt.Println("ERROR building grid:", err)
		os.Exit(1)
	}
	fmt.Printf("Grid: %d steps from %v\n", grid.Len(), grid[0].Format(time.RFC3339))

	set, err := propagation.Group(context.Background(), entries, grid,
		propagation.Config{Workers: runtime.NumCPU()}, logger)
	if err != nil {
		fmt.Println("ERROR propagating:", err)
		os.Exit(1)
	}
	fmt.Printf("Propagated %d objects\n", set.Len())

	cands, err := screening.Screen(set, 50)
	if err != nil {
		fmt.Println("ERROR screening:", err)
		os.Exit(1)
	}
	fmt.Printf("Candidates under 50 km: %d\n", len(cands))

	refined, err := refine.Candidates(set, cands, refine.DefaultWindow, refine.DefaultUpsample)
	if err != nil {
		fmt.Println("ERROR refining:", err)
		os.Exit(1)
	}
	for _, r := range refined {
		fmt.Printf("  %s / %s: TCA=%s DCA=%.3f km vrel=%.3f km/s\n",
			r.A, r.B, r.TCAUTC, r.DCAKm, r.VrelKms)
	}
}
