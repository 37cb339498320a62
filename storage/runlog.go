package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"pfsync/models"
)

// RunLog is the local history of sync and cleanup runs. Operational data
// only; domain data lives in Mongo.
type RunLog struct {
	db *sql.DB
}

func NewRunLog(dbPath string) (*RunLog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	log := &RunLog{db: db}
	if err := log.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return log, nil
}

func (r *RunLog) Close() error {
	return r.db.Close()
}

func (r *RunLog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		error TEXT,
		counts JSON
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Begin records the start of a run and returns its id.
func (r *RunLog) Begin(kind models.RunKind) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO runs (id, kind, started_at, status) VALUES (?, ?, ?, ?)`,
		id, string(kind), time.Now().UTC(), string(models.RunStatusRunning),
	)
	if err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return id, nil
}

// Finish closes out a run with its final status and report.
func (r *RunLog) Finish(id string, status models.RunStatus, runErr string, counts json.RawMessage) error {
	_, err := r.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, error = ?, counts = ? WHERE id = ?`,
		time.Now().UTC(), string(status), runErr, string(counts), id,
	)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (r *RunLog) RecentRuns(limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(
		`SELECT id, kind, started_at, finished_at, status, COALESCE(error, ''), COALESCE(counts, '')
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		var kind, status, counts string
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &kind, &run.StartedAt, &finished, &status, &run.Error, &counts); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Kind = models.RunKind(kind)
		run.Status = models.RunStatus(status)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		if counts != "" {
			run.Counts = json.RawMessage(counts)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
