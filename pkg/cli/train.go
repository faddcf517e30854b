package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/radlabel/radlabel/pkg/data"
	"github.com/radlabel/radlabel/pkg/ingest"
	"github.com/radlabel/radlabel/pkg/label"
	"github.com/radlabel/radlabel/pkg/train"
	"github.com/urfave/cli/v2"
)

const defaultModelName = "hashtron"

var (
	trainSplitFlag = &cli.StringFlag{
		Name:  "split",
		Usage: "Split whose weak labels to train on",
		Value: data.SplitTrain,
	}

	epochsFlag = &cli.IntFlag{
		Name:  "epochs",
		Usage: "Training epochs (default: 3)",
	}

	threadsFlag = &cli.IntFlag{
		Name:  "threads",
		Usage: "Solver threads (default: CPU count)",
	}

	deadlineFlag = &cli.IntFlag{
		Name:  "deadline-ms",
		Usage: "Solver deadline per hashtron in milliseconds (default: 1000)",
	}

	weightsFlag = &cli.StringFlag{
		Name:  "weights",
		Usage: "Weights file to write (default: <home>/<model>.bin)",
	}

	modelNameFlag = &cli.StringFlag{
		Name:  "model",
		Usage: "Model name for stored scores",
		Value: defaultModelName,
	}

	importModelFlag = &cli.StringFlag{
		Name:  "model",
		Usage: "Model name for stored scores",
		Value: "external",
	}

	manifestOutFlag = &cli.StringFlag{
		Name:     "out",
		Usage:    "Manifest file to write (.csv or .jsonl)",
		Required: true,
	}

	scoresFileFlag = &cli.StringFlag{
		Name:     "scores",
		Usage:    "CSV of per-document model scores (doc_id,score)",
		Required: true,
	}

	trainCmd = &cli.Command{
		Name:            "train",
		Aliases:         []string{"t"},
		HideHelpCommand: true,
		Usage:           "Train or exchange the end image classifier",
		Subcommands: []*cli.Command{
			{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Train the hashtron classifier and score every split",
				UsageText: `radlabel train model --method weighted --image-root ~/datasets/images
   radlabel train model --epochs 5 --model hashtron-v2`,
				Action: cmdTrainModel,
				Flags: []cli.Flag{
					methodFlag,
					trainSplitFlag,
					imageRootFlag,
					epochsFlag,
					threadsFlag,
					deadlineFlag,
					weightsFlag,
					modelNameFlag,
				},
			},
			{
				Name:      "export",
				Aliases:   []string{"e"},
				Usage:     "Write a training manifest for an out-of-process trainer",
				UsageText: `radlabel train export --method weighted --out manifest.csv`,
				Action:    cmdTrainExport,
				Flags: []cli.Flag{
					methodFlag,
					trainSplitFlag,
					imageRootFlag,
					manifestOutFlag,
				},
			},
			{
				Name:      "import",
				Aliases:   []string{"i"},
				Usage:     "Import per-document scores from an external model",
				UsageText: `radlabel train import --scores scores.csv --model densenet`,
				Action:    cmdTrainImport,
				Flags: []cli.Flag{
					scoresFileFlag,
					importModelFlag,
				},
			},
		},
	}
)

type TrainResult struct {
	Model    string  `json:"model"`
	Method   string  `json:"method"`
	Split    string  `json:"split"`
	Samples  int     `json:"samples"`
	Skipped  int     `json:"skipped,omitempty"`
	Accuracy float64 `json:"accuracy"`
	Weights  string  `json:"weights"`
	Scored   int     `json:"scored"`
	Duration string  `json:"duration"`
}

type ExportResult struct {
	Path     string `json:"path"`
	Rows     int    `json:"rows"`
	Skipped  int    `json:"skipped,omitempty"`
	Duration string `json:"duration"`
}

type ImportScoresResult struct {
	Model    string `json:"model"`
	Scored   int    `json:"scored"`
	Duration string `json:"duration"`
}

func cmdTrainModel(c *cli.Context) error {
	start := time.Now()

	method := c.String(methodFlag.Name)
	split := c.String(trainSplitFlag.Name)
	if err := validateMethodSplit(method, split); err != nil {
		return err
	}

	cfg := getConfig(c)
	ctx := context.Background()
	imageRoot := c.String(imageRootFlag.Name)
	modelName := c.String(modelNameFlag.Name)

	samples, skipped, err := loadSamples(cfg.DB, method, split, imageRoot)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no trainable samples in split %q, check --image-root", split)
	}

	slog.Info("training", "model", modelName, "samples", len(samples), "skipped", skipped)

	trainer := train.NewTrainer(train.Config{
		Epochs:     c.Int(epochsFlag.Name),
		Threads:    c.Int(threadsFlag.Name),
		DeadlineMs: c.Int(deadlineFlag.Name),
	})

	stats, err := trainer.Train(ctx, samples)
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}

	weights := c.String(weightsFlag.Name)
	if weights == "" {
		weights = path.Join(cfg.HomeDir, modelName+".bin")
	}
	if err := train.SaveWeights(trainer.Net, weights); err != nil {
		return fmt.Errorf("saving weights: %w", err)
	}

	scored, err := scoreReports(cfg.DB, trainer, modelName, imageRoot)
	if err != nil {
		return err
	}

	res := &TrainResult{
		Model:    modelName,
		Method:   method,
		Split:    split,
		Samples:  len(samples),
		Skipped:  skipped,
		Accuracy: stats.Accuracy,
		Weights:  weights,
		Scored:   scored,
		Duration: time.Since(start).String(),
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

func cmdTrainExport(c *cli.Context) error {
	start := time.Now()

	method := c.String(methodFlag.Name)
	split := c.String(trainSplitFlag.Name)
	if err := validateMethodSplit(method, split); err != nil {
		return err
	}

	cfg := getConfig(c)
	imageRoot := c.String(imageRootFlag.Name)

	probs, err := weakLabels(cfg.DB, method, split)
	if err != nil {
		return err
	}

	idx, err := reportIndex(cfg.DB, split)
	if err != nil {
		return err
	}

	rows := make([]train.ManifestRow, 0, len(probs))
	skipped := 0
	for _, p := range probs {
		r, ok := idx[p.DocID]
		if !ok || r.PrimaryXray() == "" {
			skipped++
			continue
		}
		rows = append(rows, train.ManifestRow{
			DocID:     p.DocID,
			ImagePath: ingest.ResolvePath(imageRoot, r.PrimaryXray()),
			PAbnormal: p.PAbnormal,
			Label:     p.Label,
		})
	}

	out := c.String(manifestOutFlag.Name)
	if err := train.WriteManifest(out, rows); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	res := &ExportResult{
		Path:     out,
		Rows:     len(rows),
		Skipped:  skipped,
		Duration: time.Since(start).String(),
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

func cmdTrainImport(c *cli.Context) error {
	start := time.Now()
	cfg := getConfig(c)

	scoresPath := c.String(scoresFileFlag.Name)
	scores, err := train.ReadScores(scoresPath)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		return fmt.Errorf("no scores in %s", scoresPath)
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := make([]*data.Score, 0, len(ids))
	for _, id := range ids {
		s := scores[id]
		list = append(list, &data.Score{
			DocID: id,
			Score: s,
			Label: int(label.HardLabel(s)),
		})
	}

	modelName := c.String(importModelFlag.Name)
	n, err := data.SaveScores(cfg.DB, modelName, list)
	if err != nil {
		return fmt.Errorf("saving scores: %w", err)
	}

	res := &ImportScoresResult{
		Model:    modelName,
		Scored:   n,
		Duration: time.Since(start).String(),
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

func validateMethodSplit(method, split string) error {
	if !data.Contains(label.ResolveMethods, method) {
		return fmt.Errorf("invalid method %q, must be one of: %s", method, strings.Join(label.ResolveMethods, ", "))
	}
	if !data.Contains(data.Splits, split) {
		return fmt.Errorf("invalid split %q, must be one of: %s", split, strings.Join(data.Splits, ", "))
	}
	return nil
}

func weakLabels(db *sql.DB, method, split string) ([]*data.ProbRecord, error) {
	probs, err := data.GetProbLabels(db, method, &split)
	if err != nil {
		return nil, fmt.Errorf("loading labels: %w", err)
	}
	if len(probs) == 0 {
		return nil, fmt.Errorf("no %s labels for split %q, run: radlabel resolve --method %s --split %s",
			method, split, method, split)
	}
	return probs, nil
}

func reportIndex(db *sql.DB, split string) (map[string]*data.Report, error) {
	reports, err := data.GetReports(db, &split)
	if err != nil {
		return nil, fmt.Errorf("loading reports: %w", err)
	}

	idx := make(map[string]*data.Report, len(reports))
	for _, r := range reports {
		idx[r.DocID] = r
	}
	return idx, nil
}

// loadSamples pairs each weak label with its rasterized X-ray.
// Documents without a readable image are skipped.
func loadSamples(db *sql.DB, method, split, imageRoot string) ([]train.Sample, int, error) {
	probs, err := weakLabels(db, method, split)
	if err != nil {
		return nil, 0, err
	}

	idx, err := reportIndex(db, split)
	if err != nil {
		return nil, 0, err
	}

	samples := make([]train.Sample, 0, len(probs))
	skipped := 0
	for _, p := range probs {
		r, ok := idx[p.DocID]
		if !ok || r.PrimaryXray() == "" {
			skipped++
			continue
		}

		in, err := train.LoadImageInput(ingest.ResolvePath(imageRoot, r.PrimaryXray()))
		if err != nil {
			slog.Debug("skipping unreadable image", "doc", p.DocID, "error", err)
			skipped++
			continue
		}

		samples = append(samples, train.Sample{
			DocID:    p.DocID,
			Input:    in,
			Abnormal: train.Outcome(p.Label == data.GoldAbnormal),
		})
	}

	return samples, skipped, nil
}

// scoreReports runs the trained network over every report with a
// readable image and stores the scores.
func scoreReports(db *sql.DB, trainer *train.Trainer, model, imageRoot string) (int, error) {
	reports, err := data.GetReports(db, nil)
	if err != nil {
		return 0, fmt.Errorf("loading reports: %w", err)
	}

	scores := make([]*data.Score, 0, len(reports))
	for _, r := range reports {
		if r.PrimaryXray() == "" {
			continue
		}

		in, err := train.LoadImageInput(ingest.ResolvePath(imageRoot, r.PrimaryXray()))
		if err != nil {
			slog.Debug("skipping unreadable image", "doc", r.DocID, "error", err)
			continue
		}

		s := trainer.Score(in)
		scores = append(scores, &data.Score{
			DocID: r.DocID,
			Score: s,
			Label: int(label.HardLabel(s)),
		})
	}

	if len(scores) == 0 {
		return 0, errors.New("no scorable images found")
	}

	return data.SaveScores(db, model, scores)
}
