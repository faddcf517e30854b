package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/radlabel/radlabel/pkg/label"
)

const (
	insertVoteSQL = `INSERT INTO vote (run_id, doc_id, lf, vote) VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, doc_id, lf) DO UPDATE SET vote = excluded.vote
	`

	selectVotesSQL = `SELECT doc_id, lf, vote FROM vote WHERE run_id = ? ORDER BY doc_id, lf`
)

// SaveVotes stores the cast votes of a run. Abstains are left out, the
// matrix is sparse on disk.
func SaveVotes(db *sql.DB, runID string, m *label.Matrix) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}
	if runID == "" {
		return 0, errors.New("run ID required")
	}
	if m == nil {
		return 0, errors.New("nil matrix")
	}

	stmt, err := db.Prepare(rebind(db, insertVoteSQL))
	if err != nil {
		return 0, fmt.Errorf("preparing vote insert statement: %w", err)
	}
	defer stmt.Close()

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	saved := 0
	for i, docID := range m.Docs {
		for j, name := range m.LFs {
			v := m.Cells[i][j]
			if v == label.Abstain {
				continue
			}
			if _, err := tx.Stmt(stmt).Exec(runID, docID, name, int(v)); err != nil {
				rollbackTransaction(tx)
				return 0, fmt.Errorf("inserting vote for %s/%s: %w", docID, name, err)
			}
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	slog.Debug("saved votes", "run", runID, "votes", saved)
	return saved, nil
}

// LoadMatrix rebuilds a run's label matrix. Rows are the current
// reports of the run's split in doc ID order, columns the run's LF
// names, so documents where every LF abstained keep their row.
func LoadMatrix(db *sql.DB, runID string) (*label.Matrix, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	run, err := GetRun(db, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	reports, err := GetReports(db, &run.Split)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(reports))
	docIdx := make(map[string]int, len(reports))
	for i, r := range reports {
		ids[i] = r.DocID
		docIdx[r.DocID] = i
	}
	lfIdx := make(map[string]int, len(run.LFNames))
	for j, name := range run.LFNames {
		lfIdx[name] = j
	}

	m := label.NewMatrix(ids, run.LFNames)

	rows, err := db.Query(rebind(db, selectVotesSQL), runID)
	if err != nil {
		return nil, fmt.Errorf("querying votes: %w", err)
	}
	defer rows.Close()

	dropped := 0
	for rows.Next() {
		var docID, lf string
		var v int
		if err := rows.Scan(&docID, &lf, &v); err != nil {
			return nil, fmt.Errorf("scanning vote row: %w", err)
		}

		i, okDoc := docIdx[docID]
		j, okLF := lfIdx[lf]
		if !okDoc || !okLF {
			dropped++
			continue
		}
		m.Set(i, j, label.Vote(v))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading vote rows: %w", err)
	}

	if dropped > 0 {
		slog.Debug("dropped votes for documents no longer in split",
			"run", runID, "dropped", dropped)
	}

	return m, nil
}
