//go:build !ocr

package ingest

import (
	"context"
	"errors"

	"github.com/radlabel/radlabel/pkg/data"
)

// ErrOCRNotEnabled is returned when scanned-report ingestion is called
// but OCR support was not compiled in. Rebuild with -tags ocr, with
// Tesseract and poppler-utils installed, to enable it.
var ErrOCRNotEnabled = errors.New("OCR support not enabled, rebuild with -tags ocr")

// ScanPDFs reports that OCR support is not compiled in.
func ScanPDFs(ctx context.Context, dir, split string) ([]*data.Report, error) {
	return nil, ErrOCRNotEnabled
}
