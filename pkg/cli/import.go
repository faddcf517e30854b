package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/radlabel/radlabel/pkg/data"
	"github.com/radlabel/radlabel/pkg/ingest"
	"github.com/urfave/cli/v2"
)

var (
	trainCSVFlag = &cli.StringFlag{
		Name:  "train",
		Usage: "CSV file with train split reports",
	}

	devCSVFlag = &cli.StringFlag{
		Name:  "dev",
		Usage: "CSV file with dev split reports",
	}

	testCSVFlag = &cli.StringFlag{
		Name:  "test",
		Usage: "CSV file with test split reports",
	}

	scansDirFlag = &cli.StringFlag{
		Name:  "scans",
		Usage: "Directory of scanned report PDFs to OCR (requires an ocr build)",
	}

	scansSplitFlag = &cli.StringFlag{
		Name:  "scans-split",
		Usage: fmt.Sprintf("Split for scanned reports [%s]", strings.Join(data.Splits, ", ")),
		Value: data.SplitTrain,
	}

	imageRootFlag = &cli.StringFlag{
		Name:  "image-root",
		Usage: "Directory relative X-ray paths resolve against",
	}

	importCmd = &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Import radiology reports and audit their X-ray images",
		UsageText: `radlabel import --train train.csv --dev dev.csv --test test.csv
   radlabel import --train train.csv --image-root ~/datasets/images
   radlabel import --scans ~/scans --scans-split train`,
		Action: cmdImport,
		Flags: []cli.Flag{
			trainCSVFlag,
			devCSVFlag,
			testCSVFlag,
			scansDirFlag,
			scansSplitFlag,
			imageRootFlag,
		},
	}
)

type ImportResult struct {
	Splits   map[string]int `json:"splits,omitempty"`
	Scanned  int            `json:"scanned,omitempty"`
	Readable map[string]int `json:"readable,omitempty"`
	Duration string         `json:"duration"`
}

func cmdImport(c *cli.Context) error {
	start := time.Now()

	csvPaths := map[string]string{
		data.SplitTrain: c.String(trainCSVFlag.Name),
		data.SplitDev:   c.String(devCSVFlag.Name),
		data.SplitTest:  c.String(testCSVFlag.Name),
	}
	scansDir := c.String(scansDirFlag.Name)

	hasInput := scansDir != ""
	for _, p := range csvPaths {
		hasInput = hasInput || p != ""
	}
	if !hasInput {
		return cli.ShowSubcommandHelp(c)
	}

	cfg := getConfig(c)
	ctx := context.Background()

	res := &ImportResult{
		Splits:   make(map[string]int),
		Readable: make(map[string]int),
	}
	touched := make([]string, 0, len(data.Splits))

	// 1. CSV reports
	for _, split := range data.Splits {
		p := csvPaths[split]
		if p == "" {
			continue
		}

		slog.Info("importing reports", "split", split, "file", p)
		reports, err := ingest.ReadCSV(p, split)
		if err != nil {
			return fmt.Errorf("importing %s split: %w", split, err)
		}

		n, err := data.SaveReports(cfg.DB, reports)
		if err != nil {
			return fmt.Errorf("saving %s split: %w", split, err)
		}

		res.Splits[split] = n
		touched = append(touched, split)
	}

	// 2. scanned PDFs
	if scansDir != "" {
		scansSplit := c.String(scansSplitFlag.Name)

		slog.Info("scanning report PDFs", "dir", scansDir, "split", scansSplit)
		reports, err := ingest.ScanPDFs(ctx, scansDir, scansSplit)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", scansDir, err)
		}

		n, err := data.SaveReports(cfg.DB, reports)
		if err != nil {
			return fmt.Errorf("saving scanned reports: %w", err)
		}

		res.Scanned = n
		if !data.Contains(touched, scansSplit) {
			touched = append(touched, scansSplit)
		}
	}

	// 3. image audit
	imageRoot := c.String(imageRootFlag.Name)
	for _, split := range touched {
		readable, err := ingest.AuditSplit(ctx, cfg.DB, split, imageRoot, 0)
		if err != nil {
			slog.Error("image audit failed", "split", split, "error", err)
			continue
		}
		res.Readable[split] = readable
	}

	res.Duration = time.Since(start).String()

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}
