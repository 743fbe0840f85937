// Package archive persists screening runs to a local SQLite database so
// past runs can be listed and compared without keeping the artifacts.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Veyza/toy-collision-avoidance/internal/refine"
	"github.com/Veyza/toy-collision-avoidance/internal/screening"
)

// DB wraps the run archive database.
type DB struct {
	*sql.DB
}

// RunMeta describes one archived screening run.
type RunMeta struct {
	ID          string  `json:"id"`
	CreatedUTC  string  `json:"created_utc"`
	GridStart   string  `json:"grid_start_utc"`
	GridEnd     string  `json:"grid_end_utc"`
	StepSeconds float64 `json:"step_s"`
	ScreenKm    float64 `json:"screen_km"`
	Objects     int     `json:"objects"`
	Candidates  int     `json:"candidates"`
	Refined     int     `json:"refined"`
}

// Open opens (creating if needed) the archive at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id             TEXT PRIMARY KEY,
			created_utc    TEXT NOT NULL,
			grid_start_utc TEXT NOT NULL,
			grid_end_utc   TEXT NOT NULL,
			step_s         DOUBLE NOT NULL,
			screen_km      DOUBLE NOT NULL,
			objects        BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS candidates (
			run_id   TEXT NOT NULL,
			a        TEXT NOT NULL,
			b        TEXT NOT NULL,
			dmin_km  DOUBLE NOT NULL,
			t_index  BIGINT NOT NULL,
			time_utc TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id)
		);
		CREATE TABLE IF NOT EXISTS refined (
			run_id        TEXT NOT NULL,
			a             TEXT NOT NULL,
			b             TEXT NOT NULL,
			t_index       BIGINT NOT NULL,
			t_idx_refined BIGINT NOT NULL,
			tca_utc       TEXT NOT NULL,
			dca_km        DOUBLE NOT NULL,
			vrel_kms      DOUBLE NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}

	return &DB{db}, nil
}

// SaveRun stores one run with its candidate and refined tables and returns
// the generated run ID.
func (db *DB) SaveRun(meta RunMeta, cands []screening.Candidate, refined []refine.Result) (string, error) {
	id := uuid.NewString()

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning archive tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, created_utc, grid_start_utc, grid_end_utc, step_s, screen_km, objects)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339),
		meta.GridStart, meta.GridEnd, meta.StepSeconds, meta.ScreenKm, meta.Objects,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	for _, c := range cands {
		_, err = tx.Exec(
			`INSERT INTO candidates (run_id, a, b, dmin_km, t_index, time_utc)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, c.A, c.B, c.DminKm, c.TIndex, c.TimeUTC,
		)
		if err != nil {
			return "", fmt.Errorf("inserting candidate %s/%s: %w", c.A, c.B, err)
		}
	}

	for _, r := range refined {
		_, err = tx.Exec(
			`INSERT INTO refined (run_id, a, b, t_index, t_idx_refined, tca_utc, dca_km, vrel_kms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, r.A, r.B, r.TIndex, r.TIdxRefined, r.TCAUTC, r.DCAKm, r.VrelKms,
		)
		if err != nil {
			return "", fmt.Errorf("inserting refined %s/%s: %w", r.A, r.B, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return id, nil
}

// ListRuns returns run metadata newest-first.
func (db *DB) ListRuns(limit int) ([]RunMeta, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT r.id, r.created_utc, r.grid_start_utc, r.grid_end_utc, r.step_s, r.screen_km, r.objects,
		       (SELECT COUNT(*) FROM candidates c WHERE c.run_id = r.id),
		       (SELECT COUNT(*) FROM refined f WHERE f.run_id = r.id)
		FROM runs r
		ORDER BY r.created_utc DESC, r.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	out := make([]RunMeta, 0, limit)
	for rows.Next() {
		var m RunMeta
		if err := rows.Scan(&m.ID, &m.CreatedUTC, &m.GridStart, &m.GridEnd,
			&m.StepSeconds, &m.ScreenKm, &m.Objects, &m.Candidates, &m.Refined); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Refined returns the refined table of one run in its stored order.
func (db *DB) Refined(runID string) ([]refine.Result, error) {
	rows, err := db.Query(`
		SELECT a, b, t_index, t_idx_refined, tca_utc, dca_km, vrel_kms
		FROM refined WHERE run_id = ?
		ORDER BY dca_km, a, b`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading refined rows: %w", err)
	}
	defer rows.Close()

	out := make([]refine.Result, 0, 16)
	for rows.Next() {
		var r refine.Result
		if err := rows.Scan(&r.A, &r.B, &r.TIndex, &r.TIdxRefined, &r.TCAUTC, &r.DCAKm, &r.VrelKms); err != nil {
			return nil, fmt.Errorf("scanning refined row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Candidates returns the candidate table of one run in its stored order.
func (db *DB) Candidates(runID string) ([]screening.Candidate, error) {
	rows, err := db.Query(`
		SELECT a, b, dmin_km, t_index, time_utc
		FROM candidates WHERE run_id = ?
		ORDER BY dmin_km, a, b`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading candidate rows: %w", err)
	}
	defer rows.Close()

	out := make([]screening.Candidate, 0, 16)
	for rows.Next() {
		var c screening.Candidate
		if err := rows.Scan(&c.A, &c.B, &c.DminKm, &c.TIndex, &c.TimeUTC); err != nil {
			return nil, fmt.Errorf("scanning candidate row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
