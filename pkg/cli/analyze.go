package cli

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/radlabel/radlabel/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	runFlag = &cli.StringFlag{
		Name:  "run",
		Usage: "Labeling run ID (default: latest completed run for the split)",
	}

	analyzeSplitFlag = &cli.StringFlag{
		Name:  "split",
		Usage: "Split whose latest run to analyze",
		Value: data.SplitDev,
	}

	analyzeCmd = &cli.Command{
		Name:    "analyze",
		Aliases: []string{"an"},
		Usage:   "Summarize labeling function coverage, overlap, conflict, and accuracy",
		Action:  cmdAnalyze,
		Flags: []cli.Flag{
			runFlag,
			analyzeSplitFlag,
		},
	}
)

type AnalyzeResult struct {
	Run       *data.Run              `json:"run"`
	Summary   *data.LFSummarySeries  `json:"summary"`
	Splits    *data.SplitCountSeries `json:"splits"`
	State     map[string]int64       `json:"state"`
	MeanVotes float64                `json:"mean_votes_per_doc"`
}

func cmdAnalyze(c *cli.Context) error {
	cfg := getConfig(c)

	runID, err := resolveRunID(cfg.DB, c.String(runFlag.Name), c.String(analyzeSplitFlag.Name))
	if err != nil {
		return err
	}

	run, err := data.GetRun(cfg.DB, runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	summary, err := data.GetLFSummary(cfg.DB, runID)
	if err != nil {
		return fmt.Errorf("summarizing run: %w", err)
	}

	splits, err := data.GetSplitCounts(cfg.DB)
	if err != nil {
		return fmt.Errorf("counting splits: %w", err)
	}

	state, err := data.GetDataState(cfg.DB)
	if err != nil {
		return fmt.Errorf("counting rows: %w", err)
	}

	res := &AnalyzeResult{
		Run:     run,
		Summary: summary,
		Splits:  splits,
		State:   state,
	}
	if run.Docs > 0 {
		res.MeanVotes = float64(run.Votes) / float64(run.Docs)
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

// resolveRunID maps an explicit run ID through, or falls back to the
// split's latest completed run.
func resolveRunID(db *sql.DB, runID, split string) (string, error) {
	if runID != "" {
		return runID, nil
	}

	if !data.Contains(data.Splits, split) {
		return "", fmt.Errorf("invalid split %q, must be one of: %s", split, strings.Join(data.Splits, ", "))
	}

	run, err := data.GetLatestRun(db, split)
	if err != nil {
		return "", fmt.Errorf("loading latest run: %w", err)
	}
	if run == nil {
		return "", fmt.Errorf("no completed runs for split %q, run: radlabel apply --split %s", split, split)
	}

	return run.ID, nil
}
