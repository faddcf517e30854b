//go:build ocr

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/radlabel/radlabel/pkg/data"
)

// ScanPDFs recovers report text from a directory of scanned report
// PDFs. Pages are rasterized with pdftoppm (poppler-utils) and read
// with Tesseract. Each PDF becomes one report in the split, keyed by
// its file name, with no gold label and no X-ray paths.
func ScanPDFs(ctx context.Context, dir, split string) ([]*data.Report, error) {
	if !data.Contains(data.Splits, split) {
		return nil, fmt.Errorf("invalid split: %s", split)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no PDFs in %s", dir)
	}
	sort.Strings(paths)

	client := gosseract.NewClient()
	defer client.Close()

	reports := make([]*data.Report, 0, len(paths))
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		text, err := scanPDF(ctx, client, p)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}
		if text == "" {
			return nil, fmt.Errorf("no text recognized in %s", p)
		}

		stem := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		reports = append(reports, &data.Report{
			DocID: fmt.Sprintf("%s-scan-%s", split, stem),
			Split: split,
			Text:  text,
		})
		slog.Debug("scanned report", "pdf", filepath.Base(p), "chars", len(text))
	}

	slog.Info("scan complete", "dir", dir, "split", split, "docs", len(reports))

	return reports, nil
}

func scanPDF(ctx context.Context, client *gosseract.Client, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open: %w", err)
	}
	pages, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("failed to count pages: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "radlabel-scan-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	parts := make([]string, 0, pages)
	for page := 1; page <= pages; page++ {
		img, err := renderPage(ctx, path, tmpDir, page)
		if err != nil {
			return "", err
		}
		if err := client.SetImage(img); err != nil {
			return "", fmt.Errorf("failed to load page %d: %w", page, err)
		}
		text, err := client.Text()
		if err != nil {
			return "", fmt.Errorf("failed to recognize page %d: %w", page, err)
		}
		parts = append(parts, strings.TrimSpace(text))
	}

	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

// renderPage rasterizes a single PDF page to PNG and returns the file
// path. pdftoppm with -singlefile writes exactly <prefix>.png.
func renderPage(ctx context.Context, pdfPath, tmpDir string, page int) (string, error) {
	prefix := filepath.Join(tmpDir, fmt.Sprintf("page-%04d", page))
	n := strconv.Itoa(page)

	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", n,
		"-l", n,
		"-r", "300",
		"-singlefile",
		pdfPath,
		prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm failed on page %d: %w (output: %s)", page, err, out)
	}

	img := prefix + ".png"
	if _, err := os.Stat(img); err != nil {
		return "", fmt.Errorf("pdftoppm produced no output for page %d: %w", page, err)
	}
	return img, nil
}
