// Package persistence provides the SQLite archive of finished runs:
// manifests, snapshot histories and series, for cross-run analysis.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/market-abm/internal/export"
	"github.com/talgya/market-abm/internal/world"
)

// DB wraps a SQLite connection for the run archive.
type DB struct {
	conn *sqlx.DB
}

// Run is one archived run row.
type Run struct {
	ID              string  `db:"id" json:"id"`
	Name            string  `db:"name" json:"name"`
	Environment     string  `db:"environment" json:"environment"`
	Seed            int64   `db:"seed" json:"seed"`
	Cycles          int     `db:"cycles" json:"cycles"`
	CompletedCycles int     `db:"completed_cycles" json:"completed_cycles"`
	StartedAt       string  `db:"started_at" json:"started_at"`
	DurationSeconds float64 `db:"duration_seconds" json:"duration_seconds"`
	Partial         bool    `db:"partial" json:"partial"`
	Error           string  `db:"error" json:"error,omitempty"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		environment TEXT NOT NULL,
		seed INTEGER NOT NULL,
		cycles INTEGER NOT NULL,
		completed_cycles INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		duration_seconds REAL NOT NULL,
		partial INTEGER NOT NULL,
		error TEXT NOT NULL,
		manifest_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		world_json TEXT NOT NULL,
		agents_json TEXT NOT NULL,
		PRIMARY KEY (run_id, cycle)
	);

	CREATE TABLE IF NOT EXISTS series (
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		idx INTEGER NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (run_id, name, idx)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun writes a run's manifest row, replacing an earlier row for the
// same run ID.
func (db *DB) SaveRun(m *export.Manifest) error {
	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	partial := 0
	if m.Partial {
		partial = 1
	}
	_, err = db.conn.Exec(`INSERT OR REPLACE INTO runs
		(id, name, environment, seed, cycles, completed_cycles, started_at,
		 duration_seconds, partial, error, manifest_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Name, m.Environment, m.Seed, m.Cycles, m.CompletedCycles,
		m.StartedAt.UTC().Format(time.RFC3339), m.DurationSeconds, partial, m.Error,
		string(manifestJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", m.RunID, err)
	}
	return nil
}

// SaveSnapshots writes a run's snapshot history (full replace).
func (db *DB) SaveSnapshots(runID string, snaps []world.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshots WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO snapshots
		(run_id, cycle, world_json, agents_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range snaps {
		worldJSON, err := json.Marshal(s.WorldState)
		if err != nil {
			return fmt.Errorf("marshal snapshot %d: %w", s.Cycle, err)
		}
		agentsJSON, err := json.Marshal(s.AgentStates)
		if err != nil {
			return fmt.Errorf("marshal snapshot %d: %w", s.Cycle, err)
		}
		if _, err := stmt.Exec(runID, s.Cycle, string(worldJSON), string(agentsJSON)); err != nil {
			return fmt.Errorf("insert snapshot %d: %w", s.Cycle, err)
		}
	}

	return tx.Commit()
}

// SaveSeries writes one named series of a run (full replace).
func (db *DB) SaveSeries(runID, name string, values []float64) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM series WHERE run_id = ? AND name = ?", runID, name); err != nil {
		return err
	}

	stmt, err := tx.Preparex("INSERT INTO series (run_id, name, idx, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, v := range values {
		if _, err := stmt.Exec(runID, name, i, v); err != nil {
			return fmt.Errorf("insert %s[%d]: %w", name, i, err)
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in archive metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// SaveRunArchive performs a full save of one run.
func (db *DB) SaveRunArchive(m *export.Manifest, env world.Environment) error {
	h := env.History()
	slog.Info("archiving run", "run_id", m.RunID, "snapshots", len(env.Snapshots()))

	if err := db.SaveRun(m); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if err := db.SaveSnapshots(m.RunID, env.Snapshots()); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	for name, values := range map[string][]float64{
		"price":     h.Prices,
		"imbalance": h.Imbalance,
		"dividend":  h.Dividends,
	} {
		if len(values) == 0 {
			continue
		}
		if err := db.SaveSeries(m.RunID, name, values); err != nil {
			return fmt.Errorf("save series %s: %w", name, err)
		}
	}
	if err := db.SaveMeta("last_run", m.RunID); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("run archived", "run_id", m.RunID)
	return nil
}

// Runs returns the most recent N runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		`SELECT id, name, environment, seed, cycles, completed_cycles, started_at,
		        duration_seconds, partial, error
		   FROM runs ORDER BY started_at DESC, id LIMIT ?`,
		limit,
	)
	return runs, err
}

// RunSeries returns a named series of a run in index order.
func (db *DB) RunSeries(runID, name string) ([]float64, error) {
	var values []float64
	err := db.conn.Select(&values,
		"SELECT value FROM series WHERE run_id = ? AND name = ? ORDER BY idx",
		runID, name,
	)
	return values, err
}

// RunSnapshots returns a run's snapshots with cycle >= from, in cycle order.
func (db *DB) RunSnapshots(runID string, from int) ([]world.Snapshot, error) {
	var rows []struct {
		Cycle      int    `db:"cycle"`
		WorldJSON  string `db:"world_json"`
		AgentsJSON string `db:"agents_json"`
	}
	err := db.conn.Select(&rows,
		"SELECT cycle, world_json, agents_json FROM snapshots WHERE run_id = ? AND cycle >= ? ORDER BY cycle",
		runID, from,
	)
	if err != nil {
		return nil, err
	}

	snaps := make([]world.Snapshot, 0, len(rows))
	for _, r := range rows {
		s := world.Snapshot{Cycle: r.Cycle}
		if err := json.Unmarshal([]byte(r.WorldJSON), &s.WorldState); err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", r.Cycle, err)
		}
		if err := json.Unmarshal([]byte(r.AgentsJSON), &s.AgentStates); err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", r.Cycle, err)
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}
