package data

import (
	"database/sql"
	"fmt"
)

const (
	// Per-LF diagnostics for one run. Coverage counts the documents an
	// LF voted on, overlaps those where at least one other LF also
	// voted, conflicts those where another LF voted differently.
	// Correct and gold counts come from the reports' gold labels.
	selectLFSummarySQL = `WITH cast_votes AS (
			SELECT v.doc_id, v.lf, v.vote
			FROM vote v
			WHERE v.run_id = ?
		),
		doc_stats AS (
			SELECT doc_id, COUNT(*) AS voters
			FROM cast_votes
			GROUP BY doc_id
		)
		SELECT c.lf,
			COUNT(*) AS votes,
			SUM(CASE WHEN c.vote = 1 THEN 1 ELSE 0 END) AS abnormal,
			SUM(CASE WHEN c.vote = 2 THEN 1 ELSE 0 END) AS normal,
			SUM(CASE WHEN d.voters > 1 THEN 1 ELSE 0 END) AS overlaps,
			SUM(CASE WHEN EXISTS (
				SELECT 1 FROM cast_votes o
				WHERE o.doc_id = c.doc_id AND o.lf != c.lf AND o.vote != c.vote
			) THEN 1 ELSE 0 END) AS conflicts,
			SUM(CASE WHEN r.gold IS NOT NULL THEN 1 ELSE 0 END) AS gold_votes,
			SUM(CASE WHEN r.gold IS NOT NULL AND c.vote = r.gold THEN 1 ELSE 0 END) AS correct
		FROM cast_votes c
		JOIN doc_stats d ON c.doc_id = d.doc_id
		LEFT JOIN report r ON c.doc_id = r.doc_id
		GROUP BY c.lf
		ORDER BY c.lf
	`

	selectProbsSQL = `SELECT p.p_abnormal
		FROM prob_label p
		JOIN report r ON p.doc_id = r.doc_id
		WHERE p.method = ?
		  AND r.split = COALESCE(?, r.split)
		ORDER BY p.doc_id
	`

	selectSplitCountsSQL = `SELECT split,
			COUNT(*) AS docs,
			SUM(CASE WHEN gold = 1 THEN 1 ELSE 0 END) AS abnormal,
			SUM(CASE WHEN gold = 2 THEN 1 ELSE 0 END) AS normal,
			SUM(CASE WHEN img_ok = 1 THEN 1 ELSE 0 END) AS readable
		FROM report
		GROUP BY split
		ORDER BY split
	`
)

// LFSummarySeries holds per-LF run diagnostics as parallel slices.
// Rates are fractions of the run's document count; accuracy is over
// gold-labeled votes only and zero when the LF saw no gold.
type LFSummarySeries struct {
	LFs       []string  `json:"lfs"`
	Votes     []int     `json:"votes"`
	Abnormal  []int     `json:"abnormal"`
	Normal    []int     `json:"normal"`
	Coverage  []float64 `json:"coverage"`
	Overlaps  []float64 `json:"overlaps"`
	Conflicts []float64 `json:"conflicts"`
	GoldVotes []int     `json:"gold_votes"`
	Correct   []int     `json:"correct"`
	Accuracy  []float64 `json:"accuracy"`
}

// ProbBucketSeries is a ten-bucket histogram of resolved probabilities.
type ProbBucketSeries struct {
	Buckets []string `json:"buckets"`
	Counts  []int    `json:"counts"`
}

// SplitCountSeries holds per-split document, gold label, and readable
// image counts.
type SplitCountSeries struct {
	Splits   []string `json:"splits"`
	Docs     []int    `json:"docs"`
	Abnormal []int    `json:"abnormal"`
	Normal   []int    `json:"normal"`
	Readable []int    `json:"readable"`
}

// GetLFSummary computes per-LF diagnostics for a run.
func GetLFSummary(db *sql.DB, runID string) (*LFSummarySeries, error) {
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

	rows, err := db.Query(rebind(db, selectLFSummarySQL), runID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying lf summary: %w", err)
	}
	defer rows.Close()

	s := &LFSummarySeries{
		LFs:       make([]string, 0),
		Votes:     make([]int, 0),
		Abnormal:  make([]int, 0),
		Normal:    make([]int, 0),
		Coverage:  make([]float64, 0),
		Overlaps:  make([]float64, 0),
		Conflicts: make([]float64, 0),
		GoldVotes: make([]int, 0),
		Correct:   make([]int, 0),
		Accuracy:  make([]float64, 0),
	}

	for rows.Next() {
		var lf string
		var votes, abnormal, normal, overlaps, conflicts, goldVotes, correct int
		if err := rows.Scan(&lf, &votes, &abnormal, &normal,
			&overlaps, &conflicts, &goldVotes, &correct); err != nil {
			return nil, fmt.Errorf("scanning lf summary row: %w", err)
		}

		s.LFs = append(s.LFs, lf)
		s.Votes = append(s.Votes, votes)
		s.Abnormal = append(s.Abnormal, abnormal)
		s.Normal = append(s.Normal, normal)
		s.GoldVotes = append(s.GoldVotes, goldVotes)
		s.Correct = append(s.Correct, correct)

		var coverage, overlapRate, conflictRate float64
		if run.Docs > 0 {
			coverage = float64(votes) / float64(run.Docs)
			overlapRate = float64(overlaps) / float64(run.Docs)
			conflictRate = float64(conflicts) / float64(run.Docs)
		}
		s.Coverage = append(s.Coverage, coverage)
		s.Overlaps = append(s.Overlaps, overlapRate)
		s.Conflicts = append(s.Conflicts, conflictRate)

		var accuracy float64
		if goldVotes > 0 {
			accuracy = float64(correct) / float64(goldVotes)
		}
		s.Accuracy = append(s.Accuracy, accuracy)
	}

	return s, rows.Err()
}

// GetProbBuckets returns a method's probabilities bucketed to one
// decimal, all splits when split is nil. A probability of 1.0 lands in
// the last bucket; empty buckets stay at zero.
func GetProbBuckets(db *sql.DB, method string, split *string) (*ProbBucketSeries, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(rebind(db, selectProbsSQL), method, split)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying prob labels: %w", err)
	}
	defer rows.Close()

	counts := make([]int, 10)
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning prob label row: %w", err)
		}

		bucket := int(p * 10)
		if bucket < 0 {
			bucket = 0
		}
		if bucket >= len(counts) {
			bucket = len(counts) - 1
		}
		counts[bucket]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading prob label rows: %w", err)
	}

	s := &ProbBucketSeries{
		Buckets: make([]string, 0, len(counts)),
		Counts:  make([]int, 0, len(counts)),
	}
	for i, cnt := range counts {
		s.Buckets = append(s.Buckets, fmt.Sprintf("%.1f-%.1f", float64(i)/10, float64(i+1)/10))
		s.Counts = append(s.Counts, cnt)
	}

	return s, nil
}

// GetSplitCounts returns document, gold label, and readable image
// counts per split.
func GetSplitCounts(db *sql.DB) (*SplitCountSeries, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectSplitCountsSQL)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying split counts: %w", err)
	}
	defer rows.Close()

	s := &SplitCountSeries{
		Splits:   make([]string, 0),
		Docs:     make([]int, 0),
		Abnormal: make([]int, 0),
		Normal:   make([]int, 0),
		Readable: make([]int, 0),
	}

	for rows.Next() {
		var split string
		var docs, abnormal, normal, readable int
		if err := rows.Scan(&split, &docs, &abnormal, &normal, &readable); err != nil {
			return nil, fmt.Errorf("scanning split count row: %w", err)
		}
		s.Splits = append(s.Splits, split)
		s.Docs = append(s.Docs, docs)
		s.Abnormal = append(s.Abnormal, abnormal)
		s.Normal = append(s.Normal, normal)
		s.Readable = append(s.Readable, readable)
	}

	return s, rows.Err()
}
