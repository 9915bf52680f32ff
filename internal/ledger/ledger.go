// Package ledger records every run, task state transition and project
// outcome in a local sqlite database.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ledger is a sqlite-backed run history
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the ledger at path and migrates it to the latest schema
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure ledger: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load ledger migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: that would close db

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ledger migration failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	slog.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (migrateLogger) Verbose() bool { return false }

// StartRun records a new run and returns its id
func (l *Ledger) StartRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx, `INSERT INTO runs (id, started_at) VALUES (?, ?)`, id, l.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final project counts of a run
func (l *Ledger) FinishRun(ctx context.Context, runID string, copied, failed int) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, copied = ?, failed = ? WHERE id = ?`,
		l.now().UnixMilli(), copied, failed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordTaskState appends a task state transition
func (l *Ledger) RecordTaskState(ctx context.Context, runID string, projectID, taskID int, state models.TaskState, detail string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO task_events (run_id, project_id, task_id, state, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, projectID, taskID, string(state), detail, l.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record task %d state %s: %w", taskID, state, err)
	}
	return nil
}

// RecordProject stores the outcome and destination URLs of a source project
func (l *Ledger) RecordProject(ctx context.Context, runID string, p models.ProjectResult) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO project_results (run_id, project_id, name, status, error) VALUES (?, ?, ?, ?, ?)`,
		runID, p.ProjectID, p.Name, string(p.Status), p.Error)
	if err != nil {
		return fmt.Errorf("failed to record project %d: %w", p.ProjectID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM destination_urls WHERE run_id = ? AND project_id = ?`, runID, p.ProjectID); err != nil {
		return fmt.Errorf("failed to clear urls of project %d: %w", p.ProjectID, err)
	}
	for i, u := range p.URLs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO destination_urls (run_id, project_id, position, url) VALUES (?, ?, ?, ?)`,
			runID, p.ProjectID, i, u)
		if err != nil {
			return fmt.Errorf("failed to record url of project %d: %w", p.ProjectID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, copied, failed FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var (
			r        models.RunSummary
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Copied, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TaskHistory returns every recorded transition of a run in order
func (l *Ledger) TaskHistory(ctx context.Context, runID string) ([]models.TaskEvent, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, project_id, task_id, state, detail, created_at FROM task_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read task history: %w", err)
	}
	defer rows.Close()

	var events []models.TaskEvent
	for rows.Next() {
		var (
			e     models.TaskEvent
			state string
			at    int64
		)
		if err := rows.Scan(&e.RunID, &e.ProjectID, &e.TaskID, &state, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan task event: %w", err)
		}
		e.State = models.TaskState(state)
		e.At = time.UnixMilli(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Projects returns the recorded project outcomes of a run
func (l *Ledger) Projects(ctx context.Context, runID string) ([]models.ProjectResult, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT project_id, name, status, error FROM project_results WHERE run_id = ? ORDER BY project_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects: %w", err)
	}
	defer rows.Close()

	var projects []models.ProjectResult
	for rows.Next() {
		var (
			p      models.ProjectResult
			status string
		)
		if err := rows.Scan(&p.ProjectID, &p.Name, &status, &p.Error); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Status = models.ProjectStatus(status)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range projects {
		urls, err := l.urls(ctx, runID, projects[i].ProjectID)
		if err != nil {
			return nil, err
		}
		projects[i].URLs = urls
	}
	return projects, nil
}

func (l *Ledger) urls(ctx context.Context, runID string, projectID int) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT url FROM destination_urls WHERE run_id = ? AND project_id = ? ORDER BY position`, runID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
