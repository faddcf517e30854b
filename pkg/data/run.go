package data

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	insertRunSQL = `INSERT INTO labeling_run (id, split, lf_names, started_at)
		VALUES (?, ?, ?, ?)
	`

	completeRunSQL = `UPDATE labeling_run SET
			completed_at = ?, docs = ?, votes = ?
		WHERE id = ?
	`

	selectRunSQL = `SELECT id, split, lf_names, started_at, completed_at, docs, votes
		FROM labeling_run WHERE id = ?
	`

	selectRunsSQL = `SELECT id, split, lf_names, started_at, completed_at, docs, votes
		FROM labeling_run
		WHERE split = COALESCE(?, split)
		ORDER BY started_at DESC
		LIMIT ?
	`

	selectLatestRunSQL = `SELECT id, split, lf_names, started_at, completed_at, docs, votes
		FROM labeling_run
		WHERE split = ? AND completed_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT 1
	`
)

// Run records one application of an LF set over a split. LFNames keeps
// the matrix column order.
type Run struct {
	ID          string   `json:"id" yaml:"id"`
	Split       string   `json:"split" yaml:"split"`
	LFNames     []string `json:"lf_names" yaml:"lf_names"`
	StartedAt   string   `json:"started_at" yaml:"started_at"`
	CompletedAt *string  `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Docs        int      `json:"docs" yaml:"docs"`
	Votes       int      `json:"votes" yaml:"votes"`
}

// CreateRun registers a new labeling run and returns it.
func CreateRun(db *sql.DB, split string, lfNames []string) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if split == "" || len(lfNames) == 0 {
		return nil, fmt.Errorf("split and lf names are required")
	}

	r := &Run{
		ID:        uuid.New().String(),
		Split:     split,
		LFNames:   lfNames,
		StartedAt: time.Now().UTC().Format(timeFormat),
	}

	if _, err := db.Exec(rebind(db, insertRunSQL),
		r.ID, r.Split, strings.Join(r.LFNames, ","), r.StartedAt); err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	return r, nil
}

// CompleteRun stamps the run done with its doc and vote counts.
func CompleteRun(db *sql.DB, id string, docs, votes int) error {
	if db == nil {
		return errDBNotInitialized
	}

	done := time.Now().UTC().Format(timeFormat)
	if _, err := db.Exec(rebind(db, completeRunSQL), done, docs, votes, id); err != nil {
		return fmt.Errorf("completing run %s: %w", id, err)
	}
	return nil
}

// GetRun returns a run by ID or nil when not found.
func GetRun(db *sql.DB, id string) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	row := db.QueryRow(rebind(db, selectRunSQL), id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	return r, nil
}

// GetRuns lists runs, newest first, all splits when split is nil.
func GetRuns(db *sql.DB, split *string, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit < 1 {
		limit = 50
	}

	rows, err := db.Query(rebind(db, selectRunsSQL), split, limit)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		list = append(list, r)
	}

	return list, rows.Err()
}

// GetLatestRun returns the newest completed run for a split, nil when
// the split has none.
func GetLatestRun(db *sql.DB, split string) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	row := db.QueryRow(rebind(db, selectLatestRunSQL), split)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run for %s: %w", split, err)
	}
	return r, nil
}

// DeleteRun removes a run and its votes.
func DeleteRun(db *sql.DB, id string) error {
	if db == nil {
		return errDBNotInitialized
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting delete tx: %w", err)
	}

	if _, err := tx.Exec(rebind(db, `DELETE FROM vote WHERE run_id = ?`), id); err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("deleting votes for run %s: %w", id, err)
	}
	if _, err := tx.Exec(rebind(db, `DELETE FROM labeling_run WHERE id = ?`), id); err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("deleting run %s: %w", id, err)
	}

	return tx.Commit()
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var names string
	var completed sql.NullString

	if err := row.Scan(&r.ID, &r.Split, &names, &r.StartedAt,
		&completed, &r.Docs, &r.Votes); err != nil {
		return nil, err
	}

	if names != "" {
		r.LFNames = strings.Split(names, ",")
	}
	if completed.Valid {
		r.CompletedAt = &completed.String
	}

	return &r, nil
}
