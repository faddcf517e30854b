package train

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	manifestColDocID = "doc_id"
	manifestColImage = "image_path"
	manifestColProb  = "p_abnormal"
	manifestColLabel = "label"
	scoreColScore    = "score"
)

// ManifestRow is one training example as handed to an out-of-process
// trainer: where the image lives and what the weak label says.
type ManifestRow struct {
	DocID     string  `json:"doc_id"`
	ImagePath string  `json:"image_path"`
	PAbnormal float64 `json:"p_abnormal"`
	Label     int     `json:"label"`
}

// WriteManifest exports rows to path, picking the format from the
// extension (.csv or .jsonl).
func WriteManifest(path string, rows []ManifestRow) error {
	if len(rows) == 0 {
		return errors.New("no rows to export")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return writeCSVManifest(path, rows)
	case ".jsonl":
		return writeJSONLManifest(path, rows)
	default:
		return fmt.Errorf("unsupported manifest format %q, use .csv or .jsonl", ext)
	}
}

func writeCSVManifest(path string, rows []ManifestRow) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("failed to close %s: %w", path, err)
		}
	}()

	w := csv.NewWriter(f)
	header := []string{manifestColDocID, manifestColImage, manifestColProb, manifestColLabel}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range rows {
		rec := []string{
			rows[i].DocID,
			rows[i].ImagePath,
			strconv.FormatFloat(rows[i].PAbnormal, 'f', -1, 64),
			strconv.Itoa(rows[i].Label),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", rows[i].DocID, err)
		}
	}

	w.Flush()
	return w.Error()
}

func writeJSONLManifest(path string, rows []ManifestRow) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("failed to close %s: %w", path, err)
		}
	}()

	// Encode appends the newline, one object per line.
	enc := json.NewEncoder(f)
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", rows[i].DocID, err)
		}
	}

	return nil
}

// ReadScores loads per-document scores from a CSV with a doc_id column
// and either a score or p_abnormal column. Extra columns are ignored.
func ReadScores(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scores, err := parseScores(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return scores, nil
}

func parseScores(r io.Reader) (map[string]float64, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "﻿")

	idCol, scoreCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case manifestColDocID:
			idCol = i
		case scoreColScore, manifestColProb:
			scoreCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("missing required column: %s", manifestColDocID)
	}
	if scoreCol < 0 {
		return nil, fmt.Errorf("missing required column: %s or %s", scoreColScore, manifestColProb)
	}

	scores := make(map[string]float64)

	// Rows are numbered like the file reads, the header is row 1.
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", row, err)
		}

		docID := strings.TrimSpace(rec[idCol])
		if docID == "" {
			return nil, fmt.Errorf("row %d: doc_id is empty", row)
		}
		if _, ok := scores[docID]; ok {
			return nil, fmt.Errorf("row %d: duplicate doc_id %q", row, docID)
		}

		raw := strings.TrimSpace(rec[scoreCol])
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad score %q", row, raw)
		}
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("row %d: score must be in [0, 1], got %s", row, raw)
		}

		scores[docID] = score
	}

	return scores, nil
}
