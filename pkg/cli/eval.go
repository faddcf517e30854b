package cli

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/radlabel/radlabel/pkg/data"
	"github.com/radlabel/radlabel/pkg/label"
	"github.com/radlabel/radlabel/pkg/metrics"
	"github.com/urfave/cli/v2"
)

var (
	evalSplitFlag = &cli.StringFlag{
		Name:  "split",
		Usage: "Split to evaluate against gold labels",
		Value: data.SplitTest,
	}

	evalModelFlag = &cli.StringFlag{
		Name:  "model",
		Usage: "Evaluate a model's stored scores instead of --method labels",
	}

	thresholdFlag = &cli.Float64Flag{
		Name:  "threshold",
		Usage: "Decision threshold, scores at or above predict abnormal",
		Value: 0.5,
	}

	binsFlag = &cli.IntFlag{
		Name:  "bins",
		Usage: "Score histogram buckets",
		Value: 10,
	}

	evalCmd = &cli.Command{
		Name:    "eval",
		Aliases: []string{"e"},
		Usage:   "Score predictions against gold labels",
		UsageText: `radlabel eval --method majority --split dev
   radlabel eval --model hashtron --split test`,
		Action: cmdEval,
		Flags: []cli.Flag{
			evalModelFlag,
			methodFlag,
			evalSplitFlag,
			thresholdFlag,
			binsFlag,
		},
	}
)

type EvalResult struct {
	Target string `json:"target"`
	Split  string `json:"split"`

	Summary *metrics.Summary `json:"summary"`

	AbnormalScores *metrics.HistogramSeries `json:"abnormal_scores,omitempty"`
	NormalScores   *metrics.HistogramSeries `json:"normal_scores,omitempty"`
}

func cmdEval(c *cli.Context) error {
	split := c.String(evalSplitFlag.Name)
	if !data.Contains(data.Splits, split) {
		return fmt.Errorf("invalid split %q, must be one of: %s", split, strings.Join(data.Splits, ", "))
	}

	cfg := getConfig(c)

	res, err := evaluate(cfg.DB,
		c.String(evalModelFlag.Name),
		c.String(methodFlag.Name),
		split,
		c.Float64(thresholdFlag.Name),
		c.Int(binsFlag.Name))
	if err != nil {
		return err
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

// evaluate scores a model's or a resolution method's predictions for
// one split. Shared by the eval command and the dashboard API.
func evaluate(db *sql.DB, model, method, split string, threshold float64, bins int) (*EvalResult, error) {
	samples, target, err := evalSamples(db, model, method, split)
	if err != nil {
		return nil, err
	}

	summary, err := metrics.Evaluate(samples, threshold)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", target, err)
	}

	res := &EvalResult{
		Target:  target,
		Split:   split,
		Summary: summary,
	}

	abnormal, normal := metrics.SplitByGold(samples)
	if len(abnormal) > 0 {
		if res.AbnormalScores, err = metrics.ScoreHistogram(abnormal, bins); err != nil {
			return nil, fmt.Errorf("binning abnormal scores: %w", err)
		}
	}
	if len(normal) > 0 {
		if res.NormalScores, err = metrics.ScoreHistogram(normal, bins); err != nil {
			return nil, fmt.Errorf("binning normal scores: %w", err)
		}
	}

	return res, nil
}

// evalSamples pairs stored predictions with gold labels. With a model
// name it reads end model scores, otherwise resolved labels for the
// method.
func evalSamples(db *sql.DB, model, method, split string) ([]metrics.Sample, string, error) {
	if model != "" {
		scores, err := data.GetScores(db, model, &split)
		if err != nil {
			return nil, "", fmt.Errorf("loading scores: %w", err)
		}

		samples := make([]metrics.Sample, 0, len(scores))
		for _, s := range scores {
			if s.Gold == nil {
				continue
			}
			samples = append(samples, metrics.Sample{
				Score:    s.Score,
				Abnormal: *s.Gold == data.GoldAbnormal,
			})
		}
		if len(samples) == 0 {
			return nil, "", fmt.Errorf("no %s scores with gold labels in split %q", model, split)
		}
		return samples, model, nil
	}

	if !data.Contains(label.ResolveMethods, method) {
		return nil, "", fmt.Errorf("invalid method %q, must be one of: %s", method, strings.Join(label.ResolveMethods, ", "))
	}

	probs, err := data.GetProbLabels(db, method, &split)
	if err != nil {
		return nil, "", fmt.Errorf("loading labels: %w", err)
	}

	samples := make([]metrics.Sample, 0, len(probs))
	for _, p := range probs {
		if p.Gold == nil {
			continue
		}
		samples = append(samples, metrics.Sample{
			Score:    p.PAbnormal,
			Abnormal: *p.Gold == data.GoldAbnormal,
		})
	}
	if len(samples) == 0 {
		return nil, "", fmt.Errorf("no %s labels with gold labels in split %q", method, split)
	}
	return samples, method, nil
}
