package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/radlabel/radlabel/pkg/label"
)

const (
	insertProbLabelSQL = `INSERT INTO prob_label (doc_id, method, p_abnormal, label, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (doc_id, method) DO UPDATE SET
			p_abnormal = excluded.p_abnormal,
			label = excluded.label,
			run_id = excluded.run_id,
			created_at = excluded.created_at
	`

	selectProbLabelsSQL = `SELECT p.doc_id, p.method, p.p_abnormal, p.label, p.run_id, p.created_at,
			r.split, r.gold
		FROM prob_label p
		JOIN report r ON p.doc_id = r.doc_id
		WHERE p.method = ?
		  AND r.split = COALESCE(?, r.split)
		ORDER BY p.doc_id
	`

	deleteProbLabelsSQL = `DELETE FROM prob_label WHERE method = ?`
)

// ProbRecord is a stored probabilistic label joined with its report's
// split and gold label.
type ProbRecord struct {
	DocID     string  `json:"doc_id" yaml:"doc_id"`
	Method    string  `json:"method" yaml:"method"`
	PAbnormal float64 `json:"p_abnormal" yaml:"p_abnormal"`
	Label     int     `json:"label" yaml:"label"`
	RunID     *string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	CreatedAt string  `json:"created_at" yaml:"created_at"`
	Split     string  `json:"split" yaml:"split"`
	Gold      *int    `json:"gold,omitempty" yaml:"gold,omitempty"`
}

// SaveProbLabels upserts resolved labels for a method. The run ID is
// nil for labels imported from an external label model.
func SaveProbLabels(db *sql.DB, method string, runID *string, labels []*label.ProbLabel) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}
	if method == "" {
		return 0, errors.New("method required")
	}

	stmt, err := db.Prepare(rebind(db, insertProbLabelSQL))
	if err != nil {
		return 0, fmt.Errorf("preparing prob label insert: %w", err)
	}
	defer stmt.Close()

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	now := time.Now().UTC().Format(timeFormat)
	var run any
	if runID != nil {
		run = *runID
	}

	for _, pl := range labels {
		if _, err := tx.Stmt(stmt).Exec(
			pl.DocID, method, pl.PAbnormal, int(pl.Label), run, now); err != nil {
			rollbackTransaction(tx)
			return 0, fmt.Errorf("inserting prob label for %s: %w", pl.DocID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	slog.Debug("saved prob labels", "method", method, "labels", len(labels))
	return len(labels), nil
}

// GetProbLabels returns a method's labels in doc ID order, all splits
// when split is nil.
func GetProbLabels(db *sql.DB, method string, split *string) ([]*ProbRecord, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(rebind(db, selectProbLabelsSQL), method, split)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying prob labels: %w", err)
	}
	defer rows.Close()

	list := make([]*ProbRecord, 0)
	for rows.Next() {
		var p ProbRecord
		var run sql.NullString
		var gold sql.NullInt64

		if err := rows.Scan(&p.DocID, &p.Method, &p.PAbnormal, &p.Label,
			&run, &p.CreatedAt, &p.Split, &gold); err != nil {
			return nil, fmt.Errorf("scanning prob label row: %w", err)
		}

		if run.Valid {
			p.RunID = &run.String
		}
		if gold.Valid {
			g := int(gold.Int64)
			p.Gold = &g
		}
		list = append(list, &p)
	}

	return list, rows.Err()
}

// DeleteProbLabels removes every label stored under a method.
func DeleteProbLabels(db *sql.DB, method string) error {
	if db == nil {
		return errDBNotInitialized
	}
	if _, err := db.Exec(rebind(db, deleteProbLabelsSQL), method); err != nil {
		return fmt.Errorf("deleting prob labels for %s: %w", method, err)
	}
	return nil
}
