package data

import (
	"database/sql"
	"errors"
	"fmt"
)

const (
	insertStateSQL = `INSERT INTO state (key, scope, value) VALUES (?, ?, ?)
		ON CONFLICT (key, scope) DO UPDATE SET value = excluded.value
	`

	selectStateSQL = `SELECT value FROM state WHERE key = ? AND scope = ?`

	deleteStateSQL = `DELETE FROM state WHERE key = ? AND scope = ?`
)

// Count queries behind GetDataState. Keep these portable, they run on
// both backends.
var stateQueries = map[string]string{
	"reports":      "SELECT COUNT(*) FROM report",
	"gold_labels":  "SELECT COUNT(*) FROM report WHERE gold IS NOT NULL",
	"runs":         "SELECT COUNT(*) FROM labeling_run",
	"votes":        "SELECT COUNT(*) FROM vote",
	"prob_labels":  "SELECT COUNT(*) FROM prob_label",
	"model_scores": "SELECT COUNT(*) FROM model_score",
}

// SaveState upserts a bookkeeping value under key and scope. Scope
// separates the same key across splits or sources, empty is fine.
func SaveState(db *sql.DB, key, scope, value string) error {
	if db == nil {
		return errDBNotInitialized
	}
	if key == "" {
		return errors.New("state key required")
	}

	if _, err := db.Exec(rebind(db, insertStateSQL), key, scope, value); err != nil {
		return fmt.Errorf("saving state %s/%s: %w", key, scope, err)
	}
	return nil
}

// GetState returns a stored value, nil when the key was never saved.
func GetState(db *sql.DB, key, scope string) (*string, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	var v string
	err := db.QueryRow(rebind(db, selectStateSQL), key, scope).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying state %s/%s: %w", key, scope, err)
	}
	return &v, nil
}

// DeleteState removes a stored value, no-op when absent.
func DeleteState(db *sql.DB, key, scope string) error {
	if db == nil {
		return errDBNotInitialized
	}
	if _, err := db.Exec(rebind(db, deleteStateSQL), key, scope); err != nil {
		return fmt.Errorf("deleting state %s/%s: %w", key, scope, err)
	}
	return nil
}

// GetDataState returns row counts for the main tables.
func GetDataState(db *sql.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64, len(stateQueries))
	for k, q := range stateQueries {
		var count int64
		if err := db.QueryRow(q).Scan(&count); err != nil {
			return nil, fmt.Errorf("counting %s: %w", k, err)
		}
		state[k] = count
	}

	return state, nil
}
