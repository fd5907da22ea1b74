// Package runlog records compile and solve runs in a SQLite database.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const Memory = ":memory:"

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var ErrNotFound = errors.New("run not found")

// Run is one recorded pipeline execution.
type Run struct {
	ID          string    `json:"id"`
	Scenario    string    `json:"scenario"`
	Kind        string    `json:"kind"` // compile or solve
	Status      string    `json:"status"`
	Objective   float64   `json:"objective"`
	Variables   int       `json:"variables"`
	Constraints int       `json:"constraints"`
	Warnings    int       `json:"warnings"`
	PostSolveOK bool      `json:"post_solve_ok"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Log wraps the run database.
type Log struct {
	sql *sql.DB
}

// Open opens (or creates) the database at path and runs migrations. Memory
// opens a private in-memory database.
func Open(ctx context.Context, path string) (*Log, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == Memory {
		dsn = Memory
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open runlog: %w", err)
	}
	if path == Memory {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping runlog: %w", err)
	}
	l := &Log{sql: db}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runlog: %w", err)
	}
	return l, nil
}

func (l *Log) Close() error {
	return l.sql.Close()
}

func (l *Log) migrate(ctx context.Context) error {
	version := 0
	// missing table on a fresh database leaves version at 0
	_ = l.sql.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := l.sql.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS runs (
				id          TEXT PRIMARY KEY,
				scenario    TEXT NOT NULL,
				kind        TEXT NOT NULL,
				status      TEXT NOT NULL,
				objective   REAL NOT NULL DEFAULT 0,
				variables   INTEGER NOT NULL DEFAULT 0,
				constraints INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				created_at  TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	if version < 2 {
		_, err := l.sql.ExecContext(ctx, `
			ALTER TABLE runs ADD COLUMN warnings INTEGER NOT NULL DEFAULT 0;
			ALTER TABLE runs ADD COLUMN post_solve_ok INTEGER NOT NULL DEFAULT 0;
			INSERT OR IGNORE INTO schema_version (version) VALUES (2);
		`)
		if err != nil {
			return fmt.Errorf("migration v2: %w", err)
		}
	}
	return nil
}

// Record stores r, filling in ID and CreatedAt when unset, and returns the
// stored run.
func (l *Log) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	_, err := l.sql.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, kind, status, objective, variables, constraints, warnings, post_solve_ok, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Scenario, r.Kind, r.Status, r.Objective, r.Variables, r.Constraints, r.Warnings,
		boolInt(r.PostSolveOK), r.DurationMs, r.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	return r, nil
}

const selectRuns = `SELECT id, scenario, kind, status, objective, variables, constraints,
	warnings, post_solve_ok, duration_ms, created_at FROM runs`

// Recent returns the last limit runs (newest first). limit <= 0 means 50.
func (l *Log) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.sql.QueryContext(ctx, selectRuns+" ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (l *Log) Get(ctx context.Context, id string) (Run, error) {
	r, err := scan(l.sql.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (Run, error) {
	var (
		r       Run
		postOK  int
		created string
	)
	if err := s.Scan(&r.ID, &r.Scenario, &r.Kind, &r.Status, &r.Objective, &r.Variables, &r.Constraints,
		&r.Warnings, &postOK, &r.DurationMs, &created); err != nil {
		return Run{}, err
	}
	r.PostSolveOK = postOK != 0
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: created_at: %w", r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
