// Package report writes run artifacts: CSV tables, a JSON and Markdown
// summary, and per-pair plots of the encounter geometry.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Veyza/toy-collision-avoidance/internal/dvplan"
	"github.com/Veyza/toy-collision-avoidance/internal/geometry"
	"github.com/Veyza/toy-collision-avoidance/internal/refine"
	"github.com/Veyza/toy-collision-avoidance/internal/screening"
	"github.com/Veyza/toy-collision-avoidance/internal/trajectory"
)

// Meta captures the run parameters echoed into the summary files.
type Meta struct {
	RunID        string  `json:"run_id"`
	GeneratedUTC string  `json:"generated_utc"`
	GridStart    string  `json:"grid_start_utc"`
	GridEnd      string  `json:"grid_end_utc"`
	StepSeconds  float64 `json:"step_s"`
	ScreenKm     float64 `json:"screen_km"`
	Window       int     `json:"refine_window"`
	Upsample     int     `json:"refine_upsample"`
	Objects      int     `json:"objects"`
}

// Summary is the report.json payload.
type Summary struct {
	Meta       Meta                  `json:"meta"`
	Candidates []screening.Candidate `json:"candidates"`
	Refined    []refine.Result       `json:"refined"`
	Plans      []dvplan.Suggestion   `json:"dv_plans,omitempty"`
}

// Writer produces all artifacts for one run under a single directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir %s: %w", dir, err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// Dir returns the artifact directory.
func (w *Writer) Dir() string { return w.dir }

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// WriteAll writes every artifact: CSV tables, report.json, report.md, and
// per-pair plots when a trajectory set is supplied. Plot failures are
// logged and skipped so a headless environment still gets the tables.
func (w *Writer) WriteAll(meta Meta, set *trajectory.Set, cands []screening.Candidate, refined []refine.Result, plans []dvplan.Suggestion) error {
	if meta.RunID == "" {
		meta.RunID = NewRunID()
	}
	if meta.GeneratedUTC == "" {
		meta.GeneratedUTC = time.Now().UTC().Format(time.RFC3339)
	}

	if err := w.WriteCandidatesCSV(cands); err != nil {
		return err
	}
	if err := w.WriteRefinedCSV(refined); err != nil {
		return err
	}
	if len(plans) > 0 {
		if err := w.WritePlansCSV(plans); err != nil {
			return err
		}
	}
	if err := w.writeJSON(meta, cands, refined, plans); err != nil {
		return err
	}
	if err := w.writeMarkdown(meta, cands, refined, plans); err != nil {
		return err
	}

	if set != nil {
		for _, r := range refined {
			if err := w.WriteDistanceCSV(set, r); err != nil {
				w.logger.Warn("distance csv failed", "pair", r.A+"/"+r.B, "error", err)
			}
			if err := w.WriteDistancePlot(set, r); err != nil {
				w.logger.Warn("distance plot failed", "pair", r.A+"/"+r.B, "error", err)
			}
			if err := w.WriteRelativeTrajectoryHTML(set, r); err != nil {
				w.logger.Warn("relative trajectory plot failed", "pair", r.A+"/"+r.B, "error", err)
			}
		}
	}

	w.logger.Info("report written",
		"dir", w.dir,
		"run_id", meta.RunID,
		"candidates", len(cands),
		"refined", len(refined),
	)
	return nil
}

// WriteCandidatesCSV writes candidates.csv. The header row is written even
// when the table is empty.
func (w *Writer) WriteCandidatesCSV(cands []screening.Candidate) error {
	rows := make([][]string, 0, len(cands))
	for _, c := range cands {
		rows = append(rows, []string{
			c.A, c.B,
			formatFloat(c.DminKm),
			strconv.Itoa(c.TIndex),
			c.TimeUTC,
		})
	}
	return w.writeCSV("candidates.csv", screening.Columns, rows)
}

// WriteRefinedCSV writes refined.csv with the same empty-table contract.
func (w *Writer) WriteRefinedCSV(refined []refine.Result) error {
	rows := make([][]string, 0, len(refined))
	for _, r := range refined {
		rows = append(rows, []string{
			r.A, r.B,
			strconv.Itoa(r.TIndex),
			strconv.Itoa(r.TIdxRefined),
			r.TCAUTC,
			formatFloat(r.DCAKm),
			formatFloat(r.VrelKms),
		})
	}
	return w.writeCSV("refined.csv", refine.Columns, rows)
}

// WritePlansCSV writes dv_plans.csv.
func (w *Writer) WritePlansCSV(plans []dvplan.Suggestion) error {
	rows := make([][]string, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, []string{
			p.A, p.B, p.Actor,
			p.TPlanUTC, p.TCAUTC,
			formatFloat(p.DtToTCASec),
			formatFloat(p.TargetDCAKm),
			formatFloat(p.SuggestedDvMps),
			formatFloat(p.AchievedDCAKm),
			p.Note,
		})
	}
	return w.writeCSV("dv_plans.csv", dvplan.Columns, rows)
}

func (w *Writer) writeCSV(name string, header []string, rows [][]string) error {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing %s header: %w", name, err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing %s row: %w", name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", name, err)
	}
	return f.Close()
}

func (w *Writer) writeJSON(meta Meta, cands []screening.Candidate, refined []refine.Result, plans []dvplan.Suggestion) error {
	if cands == nil {
		cands = []screening.Candidate{}
	}
	if refined == nil {
		refined = []refine.Result{}
	}
	summary := Summary{Meta: meta, Candidates: cands, Refined: refined, Plans: plans}

	path := filepath.Join(w.dir, "report.json")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encoding report.json: %w", err)
	}
	return f.Close()
}

func (w *Writer) writeMarkdown(meta Meta, cands []screening.Candidate, refined []refine.Result, plans []dvplan.Suggestion) error {
	path := filepath.Join(w.dir, "report.md")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# Conjunction screening report\n\n")
	fmt.Fprintf(f, "- Run: `%s`\n", meta.RunID)
	fmt.Fprintf(f, "- Generated: %s\n", meta.GeneratedUTC)
	fmt.Fprintf(f, "- Window: %s to %s, step %gs\n", meta.GridStart, meta.GridEnd, meta.StepSeconds)
	fmt.Fprintf(f, "- Objects: %d, screening threshold: %g km\n", meta.Objects, meta.ScreenKm)
	fmt.Fprintf(f, "- Refinement: window ±%d steps, upsample ×%d\n\n", meta.Window, meta.Upsample)

	fmt.Fprintf(f, "## Candidates (%d)\n\n", len(cands))
	if len(cands) == 0 {
		fmt.Fprintf(f, "No pairs under the screening threshold.\n\n")
	} else {
		fmt.Fprintf(f, "| a | b | dmin (km) | t index | time (UTC) |\n")
		fmt.Fprintf(f, "|---|---|-----------|---------|------------|\n")
		for _, c := range cands {
			fmt.Fprintf(f, "| %s | %s | %s | %d | %s |\n", c.A, c.B, formatFloat(c.DminKm), c.TIndex, c.TimeUTC)
		}
		fmt.Fprintf(f, "\n")
	}

	fmt.Fprintf(f, "## Refined encounters (%d)\n\n", len(refined))
	if len(refined) == 0 {
		fmt.Fprintf(f, "Nothing to refine.\n\n")
	} else {
		fmt.Fprintf(f, "| a | b | TCA (UTC) | DCA (km) | vrel (km/s) |\n")
		fmt.Fprintf(f, "|---|---|-----------|----------|-------------|\n")
		for _, r := range refined {
			fmt.Fprintf(f, "| %s | %s | %s | %s | %s |\n", r.A, r.B, r.TCAUTC, formatFloat(r.DCAKm), formatFloat(r.VrelKms))
		}
		fmt.Fprintf(f, "\n")
	}

	if len(plans) > 0 {
		fmt.Fprintf(f, "## Avoidance options (%d)\n\n", len(plans))
		fmt.Fprintf(f, "| a | b | actor | Δv (m/s) | achieved DCA (km) |\n")
		fmt.Fprintf(f, "|---|---|-------|----------|-------------------|\n")
		for _, p := range plans {
			fmt.Fprintf(f, "| %s | %s | %s | %s | %s |\n", p.A, p.B, p.Actor, formatFloat(p.SuggestedDvMps), formatFloat(p.AchievedDCAKm))
		}
		fmt.Fprintf(f, "\n%s\n", plans[0].Note)
	}

	return f.Close()
}

// stateColumns is the per-object state CSV schema.
var stateColumns = []string{"time_utc", "x_km", "y_km", "z_km", "vx_kms", "vy_kms", "vz_kms", "valid"}

// WriteStateCSVs writes one CSV of propagated states per object in the set
// and returns the number of files written.
func (w *Writer) WriteStateCSVs(set *trajectory.Set) (int, error) {
	grid := set.Grid()
	for i := 0; i < set.Len(); i++ {
		tr := set.At(i)
		rows := make([][]string, 0, tr.Len())
		for k, s := range tr.Samples {
			rows = append(rows, []string{
				grid[k].Format(time.RFC3339),
				formatFloat(s.R[0]), formatFloat(s.R[1]), formatFloat(s.R[2]),
				formatFloat(s.V[0]), formatFloat(s.V[1]), formatFloat(s.V[2]),
				strconv.FormatBool(s.Valid),
			})
		}
		name := sanitizeName(tr.Name) + ".csv"
		if err := w.writeCSV(name, stateColumns, rows); err != nil {
			return i, err
		}
	}
	return set.Len(), nil
}

// ReadRefinedCSV loads a refined.csv produced by WriteRefinedCSV.
func ReadRefinedCSV(path string) ([]refine.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header row", path)
	}
	if len(rows[0]) != len(refine.Columns) {
		return nil, fmt.Errorf("%s: header has %d columns, want %d", path, len(rows[0]), len(refine.Columns))
	}

	out := make([]refine.Result, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(refine.Columns) {
			return nil, fmt.Errorf("%s row %d: %d columns, want %d", path, i+2, len(row), len(refine.Columns))
		}
		tIndex, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: t_index: %w", path, i+2, err)
		}
		tRefined, err := strconv.Atoi(row[3])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: t_idx_refined: %w", path, i+2, err)
		}
		dca, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: dca_km: %w", path, i+2, err)
		}
		vrel, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: vrel_kms: %w", path, i+2, err)
		}
		out = append(out, refine.Result{
			A: row[0], B: row[1],
			TIndex: tIndex, TIdxRefined: tRefined,
			TCAUTC: row[4], DCAKm: dca, VrelKms: vrel,
		})
	}
	return out, nil
}

// distanceColumns is the per-pair windowed distance CSV schema.
var distanceColumns = []string{"t_index", "time_utc", "dist_km"}

// WriteDistanceCSV writes the coarse separation series around one refined
// pair's encounter window.
func (w *Writer) WriteDistanceCSV(set *trajectory.Set, r refine.Result) error {
	idx, dist, err := pairWindow(set, r, plotHalfWidth)
	if err != nil {
		return err
	}

	grid := set.Grid()
	rows := make([][]string, 0, len(idx))
	for i, k := range idx {
		rows = append(rows, []string{
			strconv.Itoa(k),
			grid[k].Format(time.RFC3339),
			formatFloat(dist[i]),
		})
	}
	return w.writeCSV(plotFileName(r, "distance", "csv"), distanceColumns, rows)
}

// pairWindow returns the indices and per-step distances around the coarse
// hit, clamped to the grid.
func pairWindow(set *trajectory.Set, r refine.Result, halfWidth int) ([]int, []float64, error) {
	ta, ok := set.Get(r.A)
	if !ok {
		return nil, nil, fmt.Errorf("object %q not in trajectory set", r.A)
	}
	tb, ok := set.Get(r.B)
	if !ok {
		return nil, nil, fmt.Errorf("object %q not in trajectory set", r.B)
	}

	steps := set.Grid().Len()
	i0 := r.TIndex - halfWidth
	if i0 < 0 {
		i0 = 0
	}
	i1 := r.TIndex + halfWidth
	if i1 > steps-1 {
		i1 = steps - 1
	}

	idx := make([]int, 0, i1-i0+1)
	dist := make([]float64, 0, i1-i0+1)
	for k := i0; k <= i1; k++ {
		idx = append(idx, k)
		dist = append(dist, geometry.StepDistance(ta, tb, k))
	}
	return idx, dist, nil
}

// formatFloat renders table values without exponent notation for the
// magnitudes this pipeline produces.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
