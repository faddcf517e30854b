package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	insertScoreSQL = `INSERT INTO model_score (doc_id, model, score, label, scored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (doc_id, model) DO UPDATE SET
			score = excluded.score,
			label = excluded.label,
			scored_at = excluded.scored_at
	`

	selectScoresSQL = `SELECT s.doc_id, s.model, s.score, s.label, s.scored_at,
			r.split, r.gold
		FROM model_score s
		JOIN report r ON s.doc_id = r.doc_id
		WHERE s.model = ?
		  AND r.split = COALESCE(?, r.split)
		ORDER BY s.doc_id
	`

	selectModelsSQL = `SELECT model, COUNT(*) AS docs, MAX(scored_at) AS last
		FROM model_score
		GROUP BY model
		ORDER BY model
	`
)

// Score is an end model's abnormality score for one document, joined
// with the report's split and gold label on read.
type Score struct {
	DocID    string  `json:"doc_id" yaml:"doc_id"`
	Model    string  `json:"model" yaml:"model"`
	Score    float64 `json:"score" yaml:"score"`
	Label    int     `json:"label" yaml:"label"`
	ScoredAt string  `json:"scored_at,omitempty" yaml:"scored_at,omitempty"`
	Split    string  `json:"split,omitempty" yaml:"split,omitempty"`
	Gold     *int    `json:"gold,omitempty" yaml:"gold,omitempty"`
}

// ModelInfo summarizes one scored model.
type ModelInfo struct {
	Model      string `json:"model" yaml:"model"`
	Docs       int    `json:"docs" yaml:"docs"`
	LastScored string `json:"last_scored" yaml:"last_scored"`
}

// SaveScores upserts a model's document scores.
func SaveScores(db *sql.DB, model string, scores []*Score) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}
	if model == "" {
		return 0, errors.New("model name required")
	}

	stmt, err := db.Prepare(rebind(db, insertScoreSQL))
	if err != nil {
		return 0, fmt.Errorf("preparing score insert: %w", err)
	}
	defer stmt.Close()

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	now := time.Now().UTC().Format(timeFormat)
	for _, s := range scores {
		if _, err := tx.Stmt(stmt).Exec(s.DocID, model, s.Score, s.Label, now); err != nil {
			rollbackTransaction(tx)
			return 0, fmt.Errorf("inserting score for %s: %w", s.DocID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	slog.Debug("saved model scores", "model", model, "scores", len(scores))
	return len(scores), nil
}

// GetScores returns a model's scores in doc ID order, all splits when
// split is nil.
func GetScores(db *sql.DB, model string, split *string) ([]*Score, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(rebind(db, selectScoresSQL), model, split)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying scores: %w", err)
	}
	defer rows.Close()

	list := make([]*Score, 0)
	for rows.Next() {
		var s Score
		var gold sql.NullInt64

		if err := rows.Scan(&s.DocID, &s.Model, &s.Score, &s.Label,
			&s.ScoredAt, &s.Split, &gold); err != nil {
			return nil, fmt.Errorf("scanning score row: %w", err)
		}

		if gold.Valid {
			g := int(gold.Int64)
			s.Gold = &g
		}
		list = append(list, &s)
	}

	return list, rows.Err()
}

// GetModels lists the models with stored scores.
func GetModels(db *sql.DB) ([]*ModelInfo, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectModelsSQL)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying models: %w", err)
	}
	defer rows.Close()

	list := make([]*ModelInfo, 0)
	for rows.Next() {
		var m ModelInfo
		if err := rows.Scan(&m.Model, &m.Docs, &m.LastScored); err != nil {
			return nil, fmt.Errorf("scanning model row: %w", err)
		}
		list = append(list, &m)
	}

	return list, rows.Err()
}
