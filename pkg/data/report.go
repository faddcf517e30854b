package data

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// GoldAbnormal and GoldNormal follow the vote convention of the
	// wrapped label model: 1 = abnormal, 2 = normal, 0 = abstain.
	GoldAbnormal = 1
	GoldNormal   = 2

	SplitTrain = "train"
	SplitDev   = "dev"
	SplitTest  = "test"

	batchSizeDefault = 500

	pathSeparator = ","

	insertReportSQL = `INSERT INTO report
			(doc_id, split, gold, xray_paths, report_text, imported_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (doc_id) DO UPDATE SET
			split = excluded.split,
			gold = excluded.gold,
			xray_paths = excluded.xray_paths,
			report_text = excluded.report_text,
			imported_at = excluded.imported_at
	`

	selectReportSQL = `SELECT doc_id, split, gold, xray_paths, report_text,
			img_width, img_height, img_mean, img_ok
		FROM report WHERE doc_id = ?
	`

	selectReportsSQL = `SELECT doc_id, split, gold, xray_paths, report_text,
			img_width, img_height, img_mean, img_ok
		FROM report
		WHERE split = COALESCE(?, split)
		ORDER BY doc_id
	`

	updateImageAuditSQL = `UPDATE report SET
			img_width = ?, img_height = ?, img_mean = ?, img_ok = ?
		WHERE doc_id = ?
	`
)

var Splits = []string{SplitTrain, SplitDev, SplitTest}

// Report is one radiology exam: a free-text report, its X-ray image
// paths, and an optional gold label.
type Report struct {
	DocID     string   `json:"doc_id" yaml:"doc_id"`
	Split     string   `json:"split" yaml:"split"`
	Gold      *int     `json:"gold,omitempty" yaml:"gold,omitempty"`
	XrayPaths []string `json:"xray_paths" yaml:"xray_paths"`
	Text      string   `json:"text" yaml:"text"`

	ImgWidth  *int     `json:"img_width,omitempty" yaml:"img_width,omitempty"`
	ImgHeight *int     `json:"img_height,omitempty" yaml:"img_height,omitempty"`
	ImgMean   *float64 `json:"img_mean,omitempty" yaml:"img_mean,omitempty"`
	ImgOK     bool     `json:"img_ok" yaml:"img_ok"`
}

// PrimaryXray returns the first image path, the frontal view in the
// source dataset's path ordering.
func (r *Report) PrimaryXray() string {
	if len(r.XrayPaths) == 0 {
		return ""
	}
	return r.XrayPaths[0]
}

// SaveReports upserts reports in batched transactions.
func SaveReports(db *sql.DB, reports []*Report) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	stmt, err := db.Prepare(rebind(db, insertReportSQL))
	if err != nil {
		return 0, fmt.Errorf("preparing report insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeFormat)
	saved := 0

	for start := 0; start < len(reports); start += batchSizeDefault {
		end := start + batchSizeDefault
		if end > len(reports) {
			end = len(reports)
		}

		tx, err := db.Begin()
		if err != nil {
			return saved, fmt.Errorf("starting report tx: %w", err)
		}

		for _, r := range reports[start:end] {
			var gold any
			if r.Gold != nil {
				gold = *r.Gold
			}
			if _, err := tx.Stmt(stmt).Exec(
				r.DocID, r.Split, gold,
				strings.Join(r.XrayPaths, pathSeparator),
				r.Text, now,
			); err != nil {
				rollbackTransaction(tx)
				return saved, fmt.Errorf("inserting report %s: %w", r.DocID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return saved, fmt.Errorf("committing report tx: %w", err)
		}
		saved += end - start
		slog.Debug("saved report batch", "from", start, "to", end)
	}

	return saved, nil
}

// GetReport returns a single report or nil when not found.
func GetReport(db *sql.DB, docID string) (*Report, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	row := db.QueryRow(rebind(db, selectReportSQL), docID)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying report %s: %w", docID, err)
	}
	return r, nil
}

// GetReports returns reports in stable doc_id order, all splits when
// split is nil.
func GetReports(db *sql.DB, split *string) ([]*Report, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(rebind(db, selectReportsSQL), split)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	list := make([]*Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		list = append(list, r)
	}

	return list, rows.Err()
}

// UpdateImageAudit records the decoded image properties for a report.
func UpdateImageAudit(db *sql.DB, docID string, width, height int, mean float64, ok bool) error {
	if db == nil {
		return errDBNotInitialized
	}

	okInt := 0
	if ok {
		okInt = 1
	}
	if _, err := db.Exec(rebind(db, updateImageAuditSQL),
		width, height, mean, okInt, docID); err != nil {
		return fmt.Errorf("updating image audit for %s: %w", docID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var r Report
	var gold sql.NullInt64
	var paths string
	var w, h sql.NullInt64
	var mean sql.NullFloat64
	var okInt int

	if err := row.Scan(&r.DocID, &r.Split, &gold, &paths, &r.Text,
		&w, &h, &mean, &okInt); err != nil {
		return nil, err
	}

	if gold.Valid {
		g := int(gold.Int64)
		r.Gold = &g
	}
	if paths != "" {
		r.XrayPaths = strings.Split(paths, pathSeparator)
	}
	if w.Valid {
		v := int(w.Int64)
		r.ImgWidth = &v
	}
	if h.Valid {
		v := int(h.Int64)
		r.ImgHeight = &v
	}
	if mean.Valid {
		v := mean.Float64
		r.ImgMean = &v
	}
	r.ImgOK = okInt == 1

	return &r, nil
}
