package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Journal records runs in a SQLite database.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Run is one archive run.
type Run struct {
	RunID      uuid.UUID
	Site       string
	Mode       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Archived   int
	Skipped    int
	Failed     int
	Halted     bool
}

// Totals are the counters written when a run finishes.
type Totals struct {
	Archived int
	Skipped  int
	Failed   int
	Halted   bool
}

// Outcome is what happened to one post during a run.
type Outcome struct {
	RunID      uuid.UUID
	URL        string
	Status     string
	Path       string
	Error      string
	RecordedAt time.Time
}

// Open opens or creates the journal at dbPath.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	j := &Journal{db: db, now: time.Now}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

// initSchema creates the tables if they don't exist.
func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		site TEXT NOT NULL,
		mode TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		archived INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		halted INTEGER DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS outcomes (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		path TEXT,
		error TEXT,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS outcomes_run ON outcomes(run_id);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// StartRun records the start of a run and returns its ID.
func (j *Journal) StartRun(site, mode string) (uuid.UUID, error) {
	id := uuid.New()
	now := j.now()

	_, err := j.db.Exec(
		`INSERT INTO runs (run_id, site, mode, started_at) VALUES (?, ?, ?, ?)`,
		id.String(), site, mode, formatTime(&now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// RecordOutcome appends the outcome of one post to a run.
func (j *Journal) RecordOutcome(runID uuid.UUID, url, status, path string, outcomeErr error) error {
	now := j.now()
	var errText *string
	if outcomeErr != nil {
		s := outcomeErr.Error()
		errText = &s
	}
	var pathText *string
	if path != "" {
		pathText = &path
	}

	_, err := j.db.Exec(
		`INSERT INTO outcomes (run_id, url, status, path, error, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID.String(), url, status, pathText, errText, formatTime(&now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// FinishRun stores the final counters of a run.
func (j *Journal) FinishRun(runID uuid.UUID, totals Totals) error {
	now := j.now()
	halted := 0
	if totals.Halted {
		halted = 1
	}

	result, err := j.db.Exec(
		`UPDATE runs SET finished_at = ?, archived = ?, skipped = ?, failed = ?, halted = ? WHERE run_id = ?`,
		formatTime(&now), totals.Archived, totals.Skipped, totals.Failed, halted, runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListRuns returns the most recent runs first. An empty site lists every
// site; a non-positive limit lists all runs.
func (j *Journal) ListRuns(site string, limit int) ([]Run, error) {
	query := `
		SELECT run_id, site, mode, started_at, finished_at,
		       archived, skipped, failed, halted
		FROM runs
	`

	var whereClauses []string
	var args []any
	if site != "" {
		whereClauses = append(whereClauses, "site = ?")
		args = append(args, site)
	}
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var runIDStr, startedAtStr string
		var finishedAtStr sql.NullString
		var halted int
		var run Run

		err := rows.Scan(
			&runIDStr, &run.Site, &run.Mode, &startedAtStr, &finishedAtStr,
			&run.Archived, &run.Skipped, &run.Failed, &halted,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.RunID, err = uuid.Parse(runIDStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run ID: %w", err)
		}
		run.StartedAt = parseTime(startedAtStr)
		if finishedAtStr.Valid {
			t := parseTime(finishedAtStr.String)
			run.FinishedAt = &t
		}
		run.Halted = halted != 0

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Outcomes returns the outcomes of a run in the order they were recorded.
func (j *Journal) Outcomes(runID uuid.UUID) ([]Outcome, error) {
	rows, err := j.db.Query(`
		SELECT url, status, path, error, recorded_at
		FROM outcomes
		WHERE run_id = ?
		ORDER BY rowid
	`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var url, status, recordedAtStr string
		var path, errText sql.NullString
		if err := rows.Scan(&url, &status, &path, &errText, &recordedAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, Outcome{
			RunID:      runID,
			URL:        url,
			Status:     status,
			Path:       path.String,
			Error:      errText.String,
			RecordedAt: parseTime(recordedAtStr),
		})
	}

	return outcomes, rows.Err()
}

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
