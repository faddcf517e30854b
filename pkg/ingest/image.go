package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/radlabel/radlabel/pkg/data"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
)

// Audit is the result of decoding one X-ray image.
type Audit struct {
	Width  int
	Height int
	Mean   float64
	OK     bool
}

// AuditImage decodes the image at path and measures it. Unreadable
// files come back flagged rather than as an error, the audit is
// advisory.
func AuditImage(path string) *Audit {
	f, err := os.Open(path)
	if err != nil {
		return &Audit{}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return &Audit{}
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return &Audit{}
	}

	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			sum += float64(g.Y)
		}
	}

	return &Audit{
		Width:  b.Dx(),
		Height: b.Dy(),
		Mean:   sum / float64(b.Dx()*b.Dy()),
		OK:     true,
	}
}

// AuditSplit measures the primary X-ray of every report in the split
// and stores the results. Decoding fans out across workers, writes to
// disjoint slots keep the outcome deterministic. Returns the number of
// readable images.
func AuditSplit(ctx context.Context, db *sql.DB, split, imageRoot string, workers int) (int, error) {
	reports, err := data.GetReports(db, &split)
	if err != nil {
		return 0, fmt.Errorf("failed to get reports: %w", err)
	}

	if workers < 1 {
		workers = runtime.NumCPU()
	}

	audits := make([]*Audit, len(reports))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, r := range reports {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			audits[i] = AuditImage(ResolvePath(imageRoot, r.PrimaryXray()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	readable := 0
	for i, r := range reports {
		a := audits[i]
		if err := data.UpdateImageAudit(db, r.DocID, a.Width, a.Height, a.Mean, a.OK); err != nil {
			return 0, fmt.Errorf("failed to save audit for %s: %w", r.DocID, err)
		}
		if a.OK {
			readable++
		} else {
			slog.Debug("unreadable xray", "doc", r.DocID, "path", r.PrimaryXray())
		}
	}

	slog.Info("image audit complete",
		"split", split, "docs", len(reports), "readable", readable)

	return readable, nil
}

// ResolvePath joins a relative image path to the dataset root.
// Absolute paths and empty values pass through unchanged.
func ResolvePath(root, p string) string {
	if p == "" || root == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
