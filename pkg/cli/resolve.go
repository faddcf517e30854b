package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/radlabel/radlabel/pkg/data"
	"github.com/radlabel/radlabel/pkg/label"
	"github.com/radlabel/radlabel/pkg/train"
	"github.com/urfave/cli/v2"
)

var (
	methodFlag = &cli.StringFlag{
		Name:  "method",
		Usage: fmt.Sprintf("Resolution method [%s]", strings.Join(label.ResolveMethods, ", ")),
		Value: label.MethodMajority,
	}

	resolveSplitFlag = &cli.StringFlag{
		Name:  "split",
		Usage: "Split whose votes to resolve",
		Value: data.SplitTrain,
	}

	importFileFlag = &cli.StringFlag{
		Name:  "import",
		Usage: "CSV of externally learned labels (doc_id,p_abnormal)",
	}

	resolveCmd = &cli.Command{
		Name:    "resolve",
		Aliases: []string{"r"},
		Usage:   "Resolve labeling votes into probabilistic labels",
		UsageText: `radlabel resolve --split train
   radlabel resolve --split train --method weighted
   radlabel resolve --method imported --import labels.csv`,
		Action: cmdResolve,
		Flags: []cli.Flag{
			methodFlag,
			resolveSplitFlag,
			runFlag,
			importFileFlag,
		},
	}
)

type ResolveResult struct {
	Method   string  `json:"method"`
	RunID    *string `json:"run_id,omitempty"`
	Docs     int     `json:"docs"`
	Abnormal int     `json:"abnormal"`
	Normal   int     `json:"normal"`
	Duration string  `json:"duration"`
}

func cmdResolve(c *cli.Context) error {
	start := time.Now()

	method := c.String(methodFlag.Name)
	if !data.Contains(label.ResolveMethods, method) {
		return fmt.Errorf("invalid method %q, must be one of: %s", method, strings.Join(label.ResolveMethods, ", "))
	}

	cfg := getConfig(c)

	var labels []*label.ProbLabel
	var runID *string

	switch method {
	case label.MethodImported:
		var err error
		labels, err = importedLabels(c.String(importFileFlag.Name))
		if err != nil {
			return err
		}

	default:
		id, err := resolveRunID(cfg.DB, c.String(runFlag.Name), c.String(resolveSplitFlag.Name))
		if err != nil {
			return err
		}
		runID = &id

		m, err := data.LoadMatrix(cfg.DB, id)
		if err != nil {
			return fmt.Errorf("loading vote matrix: %w", err)
		}

		if method == label.MethodWeighted {
			resolver, err := devResolver(cfg.DB)
			if err != nil {
				return err
			}
			labels, err = resolver.Resolve(m)
			if err != nil {
				return fmt.Errorf("resolving votes: %w", err)
			}
		} else {
			labels, err = label.MajorityVote(m)
			if err != nil {
				return fmt.Errorf("resolving votes: %w", err)
			}
		}
	}

	n, err := data.SaveProbLabels(cfg.DB, method, runID, labels)
	if err != nil {
		return fmt.Errorf("saving labels: %w", err)
	}

	res := &ResolveResult{
		Method:   method,
		RunID:    runID,
		Docs:     n,
		Duration: time.Since(start).String(),
	}
	for _, l := range labels {
		if l.Label == label.Abnormal {
			res.Abnormal++
		} else {
			res.Normal++
		}
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

// importedLabels reads an external label model's output. Documents
// come back in doc ID order so re-imports persist identically.
func importedLabels(path string) ([]*label.ProbLabel, error) {
	if path == "" {
		return nil, errors.New("--import is required with the imported method")
	}

	scores, err := train.ReadScores(path)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("no labels in %s", path)
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	labels := make([]*label.ProbLabel, 0, len(ids))
	for _, id := range ids {
		p := scores[id]
		labels = append(labels, &label.ProbLabel{
			DocID:     id,
			PAbnormal: p,
			Label:     label.HardLabel(p),
		})
	}

	return labels, nil
}

// devResolver builds a weighted resolver from LF accuracies counted on
// the dev split's latest run.
func devResolver(db *sql.DB) (*label.WeightedResolver, error) {
	devRun, err := data.GetLatestRun(db, data.SplitDev)
	if err != nil {
		return nil, fmt.Errorf("loading dev run: %w", err)
	}
	if devRun == nil {
		return nil, errors.New("weighted resolution needs a dev run, run: radlabel apply --split dev")
	}

	devMatrix, err := data.LoadMatrix(db, devRun.ID)
	if err != nil {
		return nil, fmt.Errorf("loading dev vote matrix: %w", err)
	}

	golds, err := goldLabels(db, data.SplitDev)
	if err != nil {
		return nil, err
	}
	if len(golds) == 0 {
		return nil, errors.New("dev split has no gold labels")
	}

	accs, err := label.EstimateAccuracies(devMatrix, golds)
	if err != nil {
		return nil, fmt.Errorf("estimating accuracies: %w", err)
	}

	return label.NewWeightedResolver(accs, label.EstimatePrior(golds)), nil
}

func goldLabels(db *sql.DB, split string) (map[string]label.Vote, error) {
	reports, err := data.GetReports(db, &split)
	if err != nil {
		return nil, fmt.Errorf("loading %s reports: %w", split, err)
	}

	golds := make(map[string]label.Vote, len(reports))
	for _, r := range reports {
		if r.Gold != nil {
			golds[r.DocID] = label.Vote(*r.Gold)
		}
	}
	return golds, nil
}
