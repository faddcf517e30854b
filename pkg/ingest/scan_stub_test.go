//go:build !ocr

package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/radlabel/radlabel/pkg/data"
)

func TestScanPDFs_NotEnabled(t *testing.T) {
	reports, err := ScanPDFs(context.Background(), t.TempDir(), data.SplitTrain)
	assert.ErrorIs(t, err, ErrOCRNotEnabled)
	assert.Nil(t, reports)
}
