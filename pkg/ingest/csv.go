// Package ingest loads radiology datasets into the store: CSV report
// files per split, an image audit over the referenced X-rays, and an
// optional OCR path for scanned report PDFs.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/radlabel/radlabel/pkg/data"
)

const (
	colLabel     = "label"
	colXrayPaths = "xray_paths"
	colText      = "text"
)

// ReadCSV parses one split's dataset file into reports. The header
// must carry label, xray_paths, and text columns, in any order, extra
// columns are ignored. Any malformed row fails the whole file, nothing
// is partially imported.
func ReadCSV(path, split string) ([]*data.Report, error) {
	if !data.Contains(data.Splits, split) {
		return nil, fmt.Errorf("invalid split: %s", split)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reports, err := parseCSV(f, split)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return reports, nil
}

func parseCSV(r io.Reader, split string) ([]*data.Report, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "﻿")

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{colLabel, colXrayPaths, colText} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing required column: %s", name)
		}
	}

	// Rows are numbered like the file reads, the header is row 1.
	var reports []*data.Report
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		report, err := parseRow(rec, cols, split, row)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, nil
}

func parseRow(rec []string, cols map[string]int, split string, row int) (*data.Report, error) {
	gold, err := strconv.Atoi(strings.TrimSpace(rec[cols[colLabel]]))
	if err != nil || (gold != data.GoldAbnormal && gold != data.GoldNormal) {
		return nil, fmt.Errorf("row %d: label must be %d or %d, got %q",
			row, data.GoldAbnormal, data.GoldNormal, rec[cols[colLabel]])
	}

	var paths []string
	for _, p := range strings.Split(rec[cols[colXrayPaths]], ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("row %d: xray_paths has no entries", row)
	}

	text := strings.TrimSpace(rec[cols[colText]])
	if text == "" {
		return nil, fmt.Errorf("row %d: text is empty", row)
	}

	// The source files carry no ID column, so documents are keyed by
	// their position in the split. Re-imports land on the same IDs.
	return &data.Report{
		DocID:     fmt.Sprintf("%s-%05d", split, row-1),
		Split:     split,
		Gold:      &gold,
		XrayPaths: paths,
		Text:      text,
	}, nil
}
