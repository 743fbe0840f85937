// Package propagation turns TLE element sets into trajectories on a shared
// time grid using SGP4.
package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veyza/toy-collision-avoidance/internal/metrics"
	"github.com/Veyza/toy-collision-avoidance/internal/tle"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

// Config holds propagation settings.
type Config struct {
	Workers int // worker pool size (default: runtime.NumCPU() at the caller)
}

// Group propagates every entry over the grid and assembles the resulting
// trajectory set. Duplicate object names are disambiguated with the NORAD
// ID so no trajectory silently shadows another. Objects whose SGP4 model
// cannot be initialized are skipped with a warning; a failed step within an
// otherwise good trajectory becomes an invalid sample on the grid.
func Group(ctx context.Context, entries []tle.Entry, grid trajectory.Grid, cfg Config, logger *slog.Logger) (*trajectory.Set, error) {
	if len(entries) == 0 {
		return nil, trajectory.ErrNoTrajectories
	}

	pool := NewWorkerPool(cfg.Workers, logger)

	logger.Debug("propagating",
		"object_count", len(entries),
		"grid_steps", grid.Len(),
		"grid_start", grid[0].Format(time.RFC3339),
		"workers", cfg.Workers,
	)

	start := time.Now()
	trajs, successCount, errorCount := pool.PropagateBatch(ctx, entries, grid)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, successCount, errorCount)

	logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(trajs) == 0 {
		return nil, fmt.Errorf("all %d objects failed to propagate: %w", len(entries), trajectory.ErrNoTrajectories)
	}

	set := trajectory.NewSet(grid)
	seen := make(map[string]bool, len(trajs))
	for _, p := range trajs {
		tr := p.Traj
		if seen[tr.Name] {
			disambiguated := fmt.Sprintf("%s (%d)", tr.Name, p.NORADID)
			logger.Warn("duplicate object name", "name", tr.Name, "renamed", disambiguated)
			tr.Name = disambiguated
		}
		seen[tr.Name] = true
		if err := set.Add(tr); err != nil {
			return nil, fmt.Errorf("assembling trajectory set: %w", err)
		}
	}

	return set, nil
}
