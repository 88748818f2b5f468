package persistence

import (
	"database/sql"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mgeddes/cabrun/pkg/api"
)

// ErrRunNotFound is returned when a history run row does not exist.
var ErrRunNotFound = errors.New("run not found")

// HistoryStore records run and step telemetry in SQLite. It is purely
// operational bookkeeping: the resume protocol never reads it.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore initializes the required schema in the given database
// and returns a new HistoryStore.
func NewHistoryStore(db *sql.DB) (*HistoryStore, error) {
	s := &HistoryStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HistoryStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			recipe TEXT NOT NULL,
			pid INTEGER NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS run_steps (
			run_id TEXT NOT NULL REFERENCES runs(id),
			number INTEGER NOT NULL,
			label TEXT NOT NULL,
			status TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
	)
	return err
}

// StartRun records the beginning of a run and returns its ID.
func (s *HistoryStore) StartRun(recipe string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO runs (id, recipe, pid, status, started_at)
		VALUES (?, ?, ?, 'running', ?)`,
		id, recipe, os.Getpid(), time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun stamps a run's final status and finish time.
func (s *HistoryStore) FinishRun(id, status string) error {
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RecordStep appends one executed-step row to a run.
func (s *HistoryStore) RecordStep(runID string, number int, label string, status api.Status, d time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO run_steps (run_id, number, label, status, duration_ms)
		VALUES (?, ?, ?, ?, ?)`,
		runID, number, label, string(status), d.Milliseconds(),
	)
	return err
}

// Run is one row of run history.
type Run struct {
	ID         string
	Recipe     string
	PID        int
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ListRuns returns run history, newest first. An empty recipe name means
// no filter.
func (s *HistoryStore) ListRuns(recipe string) ([]Run, error) {
	query := `SELECT id, recipe, pid, status, started_at, finished_at FROM runs`
	var args []any
	var clauses []string

	if recipe != "" {
		clauses = append(clauses, "recipe = ?")
		args = append(args, recipe)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Recipe, &r.PID, &r.Status, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}
