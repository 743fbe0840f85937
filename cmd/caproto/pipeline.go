package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veyza/toy-collision-avoidance/internal/archive"
	"github.com/Veyza/toy-collision-avoidance/internal/dvplan"
	"github.com/Veyza/toy-collision-avoidance/internal/metrics"
	"github.com/Veyza/toy-collision-avoidance/internal/propagation"
	"github.com/Veyza/toy-collision-avoidance/internal/refine"
	"github.com/Veyza/toy-collision-avoidance/internal/report"
	"github.com/Veyza/toy-collision-avoidance/internal/screening"
	"github.com/Veyza/toy-collision-avoidance/internal/tle"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

// pipelineFlags are the options shared by every propagation-based command.
type pipelineFlags struct {
	tles   string
	start  string
	end    string
	stepS  float64
	sample int
	seed   int64
}

func (pf *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&pf.tles, "tles", "", "path to TLE file")
	cmd.Flags().StringVar(&pf.start, "start", "", "window start, ISO UTC (e.g. 2025-08-17T00:00:00Z)")
	cmd.Flags().StringVar(&pf.end, "end", "", "window end, ISO UTC")
	cmd.Flags().Float64Var(&pf.stepS, "step", 20, "grid step in seconds")
	cmd.Flags().IntVar(&pf.sample, "sample", 0, "randomly sample N objects from the catalog")
	cmd.Flags().Int64Var(&pf.seed, "seed", envInt64("CAPROTO_SAMPLE_SEED", 42),
		"seed for --sample selection; keep fixed for repeatable runs")
	cmd.MarkFlagRequired("tles")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
}

// grid parses and validates the window flags.
func (pf *pipelineFlags) grid() (trajectory.Grid, error) {
	t0, err := trajectory.ParseISOUTC(pf.start)
	if err != nil {
		return nil, fmt.Errorf("invalid --start: %w", err)
	}
	t1, err := trajectory.ParseISOUTC(pf.end)
	if err != nil {
		return nil, fmt.Errorf("invalid --end: %w", err)
	}
	step := time.Duration(pf.stepS * float64(time.Second))
	return trajectory.NewGrid(t0, t1, step)
}

// entries loads and optionally subsamples the TLE catalog.
func (pf *pipelineFlags) entries() ([]tle.Entry, error) {
	f, err := os.Open(pf.tles)
	if err != nil {
		return nil, fmt.Errorf("opening TLE file: %w", err)
	}
	defer f.Close()

	entries, err := tle.Parse(f, logger)
	if err != nil {
		return nil, err
	}
	if pf.sample > 0 {
		entries = tle.Sample(entries, pf.sample, pf.seed)
	}
	metrics.SetTLEEntryCount(len(entries))
	return entries, nil
}

// propagate runs the full propagation stage for the flag set.
func (pf *pipelineFlags) propagate(ctx context.Context) (*trajectory.Set, error) {
	grid, err := pf.grid()
	if err != nil {
		return nil, err
	}
	entries, err := pf.entries()
	if err != nil {
		return nil, err
	}
	return propagation.Group(ctx, entries, grid, propagation.Config{Workers: defaultWorkers()}, logger)
}

func newFetchCmd() *cobra.Command {
	var group, out, cacheDir string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download TLEs for a Celestrak group into a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cache *tle.Cache
			if cacheDir != "" {
				cache = tle.NewCache(cacheDir, envInt("CAPROTO_TLE_CACHE_FILES", 5))
			}

			fetcher := tle.NewFetcher("")
			data, err := fetcher.FetchGroup(cmd.Context(), group)
			if err != nil {
				if cache == nil {
					return err
				}
				cached, ts, cacheErr := cache.LoadLatest(group)
				if cacheErr != nil {
					return fmt.Errorf("fetch failed (%v) and no cached copy: %w", err, cacheErr)
				}
				logger.Warn("fetch failed, using cached TLEs",
					"group", group, "cached_at", ts.Format(time.RFC3339), "error", err)
				data = cached
			} else if cache != nil {
				if err := cache.Write(group, data, time.Now()); err != nil {
					logger.Warn("caching TLEs failed", "group", group, "error", err)
				}
			}

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("creating output dir: %w", err)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			logger.Info("TLEs saved", "group", group, "path", out, "bytes", len(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Celestrak group (e.g. starlink, oneweb, active)")
	cmd.Flags().StringVar(&out, "out", "", "path to write TLEs")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", envString("CAPROTO_TLE_CACHE_DIR", ""),
		"directory for cached downloads; serves as fallback when Celestrak is unreachable")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newPropagateCmd() *cobra.Command {
	var pf pipelineFlags
	var out string

	cmd := &cobra.Command{
		Use:   "propagate",
		Short: "Propagate TLEs and write per-object CSV states",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := pf.propagate(cmd.Context())
			if err != nil {
				return err
			}
			w, err := report.NewWriter(out, logger)
			if err != nil {
				return err
			}
			n, err := w.WriteStateCSVs(set)
			if err != nil {
				return err
			}
			logger.Info("states written", "objects", n, "dir", out)
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "output directory")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newScreenCmd() *cobra.Command {
	var pf pipelineFlags
	var screenKm float64
	var out string

	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Propagate and coarse-screen pairs by minimum grid distance",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := pf.propagate(cmd.Context())
			if err != nil {
				return err
			}
			cands, err := screening.Screen(set, screenKm)
			if err != nil {
				return err
			}
			if err := writeCandidatesTo(out, cands); err != nil {
				return err
			}
			logger.Info("candidates written", "count", len(cands), "path", out)
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().Float64Var(&screenKm, "screen-km", 10, "keep pairs with dmin strictly under this distance")
	cmd.Flags().StringVar(&out, "out", "", "output CSV path for candidates")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newRefineCmd() *cobra.Command {
	var pf pipelineFlags
	var screenKm float64
	var window, upsample int
	var out string

	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Propagate, coarse-screen, then refine each TCA locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := pf.propagate(cmd.Context())
			if err != nil {
				return err
			}
			cands, err := screening.Screen(set, screenKm)
			if err != nil {
				return err
			}
			refined, err := refine.Candidates(set, cands, window, upsample)
			if err != nil {
				return err
			}
			if err := writeRefinedTo(out, refined); err != nil {
				return err
			}
			logger.Info("refined results written", "count", len(refined), "path", out)
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().Float64Var(&screenKm, "screen-km", 10, "screening threshold in km")
	cmd.Flags().IntVar(&window, "window", refine.DefaultWindow, "half-width in steps around the coarse minimum")
	cmd.Flags().IntVar(&upsample, "upsample", refine.DefaultUpsample, "temporal upsample factor inside the window")
	cmd.Flags().StringVar(&out, "out", "", "output CSV path for refined results")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newReportCmd() *cobra.Command {
	var pf pipelineFlags
	var screenKm float64
	var window, upsample int
	var outdir, archivePath string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Full pipeline: screen, refine, plots, markdown and JSON summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := pf.grid()
			if err != nil {
				return err
			}
			set, err := pf.propagate(cmd.Context())
			if err != nil {
				return err
			}
			cands, err := screening.Screen(set, screenKm)
			if err != nil {
				return err
			}
			refined, err := refine.Candidates(set, cands, window, upsample)
			if err != nil {
				return err
			}

			meta := report.Meta{
				GridStart:   grid[0].Format(time.RFC3339),
				GridEnd:     grid[grid.Len()-1].Format(time.RFC3339),
				StepSeconds: pf.stepS,
				ScreenKm:    screenKm,
				Window:      window,
				Upsample:    upsample,
				Objects:     set.Len(),
			}

			w, err := report.NewWriter(outdir, logger)
			if err != nil {
				return err
			}
			if err := w.WriteAll(meta, set, cands, refined, nil); err != nil {
				return err
			}

			if archivePath != "" {
				db, err := archive.Open(archivePath)
				if err != nil {
					return err
				}
				defer db.Close()
				runID, err := db.SaveRun(archive.RunMeta{
					GridStart:   meta.GridStart,
					GridEnd:     meta.GridEnd,
					StepSeconds: meta.StepSeconds,
					ScreenKm:    meta.ScreenKm,
					Objects:     meta.Objects,
				}, cands, refined)
				if err != nil {
					return err
				}
				logger.Info("run archived", "run_id", runID, "archive", archivePath)
			}
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().Float64Var(&screenKm, "screen-km", 10, "screening threshold in km")
	cmd.Flags().IntVar(&window, "window", refine.DefaultWindow, "refinement half-width in steps")
	cmd.Flags().IntVar(&upsample, "upsample", refine.DefaultUpsample, "refinement upsample factor")
	cmd.Flags().StringVar(&outdir, "outdir", "", "output directory for artifacts")
	cmd.Flags().StringVar(&archivePath, "archive", envString("CAPROTO_ARCHIVE_PATH", ""), "SQLite archive path (empty disables archiving)")
	cmd.MarkFlagRequired("outdir")
	return cmd
}

func newDvplanCmd() *cobra.Command {
	var refinedPath, planTime, out string
	var targetDCAKm, maxDvMps float64

	cmd := &cobra.Command{
		Use:   "dvplan",
		Short: "Generate Δv suggestions for refined results (toy along-track heuristic)",
		RunE: func(cmd *cobra.Command, args []string) error {
			refined, err := report.ReadRefinedCSV(refinedPath)
			if err != nil {
				return err
			}
			if len(refined) == 0 {
				return fmt.Errorf("no refined pairs in %s", refinedPath)
			}

			plan, err := trajectory.ParseISOUTC(planTime)
			if err != nil {
				return fmt.Errorf("invalid --plan-time: %w", err)
			}

			suggestions, err := dvplan.ForRefined(refined, dvplan.Params{
				PlanTime:    plan,
				TargetDCAKm: targetDCAKm,
				MaxDvMps:    maxDvMps,
			})
			if err != nil {
				return err
			}
			if err := writePlansTo(out, suggestions); err != nil {
				return err
			}
			logger.Info("dv suggestions written", "count", len(suggestions), "path", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&refinedPath, "refined", "", "path to refined.csv")
	cmd.Flags().StringVar(&planTime, "plan-time", "", "burn execution time, ISO UTC")
	cmd.Flags().Float64Var(&targetDCAKm, "target-dca-km", 2.0, "desired along-track separation at TCA (km)")
	cmd.Flags().Float64Var(&maxDvMps, "max-dv-mps", 0.05, "cap on Δv magnitude (m/s)")
	cmd.Flags().StringVar(&out, "out", "", "output CSV for suggestions")
	cmd.MarkFlagRequired("refined")
	cmd.MarkFlagRequired("plan-time")
	cmd.MarkFlagRequired("out")
	return cmd
}

// writeCandidatesTo writes a candidate table to an arbitrary CSV path.
func writeCandidatesTo(path string, cands []screening.Candidate) error {
	rows := make([][]string, 0, len(cands))
	for _, c := range cands {
		rows = append(rows, []string{
			c.A, c.B,
			strconv.FormatFloat(c.DminKm, 'g', -1, 64),
			strconv.Itoa(c.TIndex),
			c.TimeUTC,
		})
	}
	return writeCSVFile(path, screening.Columns, rows)
}

// writeRefinedTo writes a refined table to an arbitrary CSV path.
func writeRefinedTo(path string, refined []refine.Result) error {
	rows := make([][]string, 0, len(refined))
	for _, r := range refined {
		rows = append(rows, []string{
			r.A, r.B,
			strconv.Itoa(r.TIndex),
			strconv.Itoa(r.TIdxRefined),
			r.TCAUTC,
			strconv.FormatFloat(r.DCAKm, 'g', -1, 64),
			strconv.FormatFloat(r.VrelKms, 'g', -1, 64),
		})
	}
	return writeCSVFile(path, refine.Columns, rows)
}

// writePlansTo writes Δv suggestions to an arbitrary CSV path.
func writePlansTo(path string, plans []dvplan.Suggestion) error {
	rows := make([][]string, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, []string{
			p.A, p.B, p.Actor,
			p.TPlanUTC, p.TCAUTC,
			strconv.FormatFloat(p.DtToTCASec, 'g', -1, 64),
			strconv.FormatFloat(p.TargetDCAKm, 'g', -1, 64),
			strconv.FormatFloat(p.SuggestedDvMps, 'g', -1, 64),
			strconv.FormatFloat(p.AchievedDCAKm, 'g', -1, 64),
			p.Note,
		})
	}
	return writeCSVFile(path, dvplan.Columns, rows)
}

func writeCSVFile(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}
