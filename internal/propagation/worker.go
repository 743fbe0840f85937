package propagation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Veyza/toy-collision-avoidance/internal/tle"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

// propagateJob is a unit of work for the worker pool: one object over the
// whole grid.
type propagateJob struct {
	idx   int
	entry tle.Entry
}

// propagateResult is the output of propagating one object.
type propagateResult struct {
	idx          int
	traj         trajectory.Trajectory
	invalidSteps int
	err          error
	noradID      int
}

// WorkerPool manages a fixed number of goroutines for parallel SGP4
// propagation across objects. Pair computations downstream stay
// single-threaded; propagation is where the wall time goes.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Propagated pairs a finished trajectory with the NORAD ID it came from.
type Propagated struct {
	Traj    trajectory.Trajectory
	NORADID int
}

// PropagateBatch propagates every entry over the grid using the pool.
// Results keep the input order so runs are deterministic. Objects whose
// SGP4 model fails to initialize are logged and skipped; returns the
// trajectories plus success and failure counts.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, entries []tle.Entry, grid trajectory.Grid) ([]Propagated, int, int) {
	if len(entries) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan propagateJob, wp.workers*2)
	results := make([]propagateResult, len(entries))

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results[job.idx] = propagateSingle(job, grid)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, entry := range entries {
			select {
			case jobs <- propagateJob{idx: i, entry: entry}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	trajs := make([]Propagated, 0, len(entries))
	var successCount, errorCount int
	for _, res := range results {
		if res.traj.Samples == nil && res.err == nil {
			// Job never ran (cancelled before being queued).
			continue
		}
		if res.err != nil {
			errorCount++
			wp.logger.Warn("propagation failed",
				"norad_id", res.noradID,
				"error", res.err,
			)
			continue
		}
		if res.invalidSteps > 0 {
			wp.logger.Warn("propagation had invalid steps",
				"norad_id", res.noradID,
				"name", res.traj.Name,
				"invalid_steps", res.invalidSteps,
				"total_steps", grid.Len(),
			)
		}
		successCount++
		trajs = append(trajs, Propagated{Traj: res.traj, NORADID: res.noradID})
	}

	return trajs, successCount, errorCount
}

// propagateSingle runs SGP4 for one object across every grid step.
func propagateSingle(job propagateJob, grid trajectory.Grid) propagateResult {
	prop, err := NewSGP4Propagator(job.entry.Line1, job.entry.Line2, job.entry.NORADID)
	if err != nil {
		return propagateResult{idx: job.idx, noradID: job.entry.NORADID, err: err}
	}

	samples := make([]trajectory.Sample, grid.Len())
	invalid := 0
	for k, t := range grid {
		samples[k] = prop.SampleAt(t)
		if !samples[k].Valid {
			invalid++
		}
	}

	return propagateResult{
		idx:          job.idx,
		noradID:      job.entry.NORADID,
		invalidSteps: invalid,
		traj: trajectory.Trajectory{
			Name:    job.entry.Name,
			Samples: samples,
		},
	}
}
