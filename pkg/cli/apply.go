package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/radlabel/radlabel/pkg/config"
	"github.com/radlabel/radlabel/pkg/data"
	"github.com/radlabel/radlabel/pkg/label"
	"github.com/urfave/cli/v2"
)

const watchDebounce = 500 * time.Millisecond

var (
	splitFlag = &cli.StringFlag{
		Name:     "split",
		Usage:    fmt.Sprintf("Split to label [%s]", strings.Join(data.Splits, ", ")),
		Required: true,
	}

	lfConfigFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML file with custom labeling functions",
	}

	watchFlag = &cli.BoolFlag{
		Name:  "watch",
		Usage: "Re-apply whenever the config file changes",
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of parallel workers (default: CPU count)",
	}

	applyCmd = &cli.Command{
		Name:    "apply",
		Aliases: []string{"a"},
		Usage:   "Apply labeling functions to a split and store the vote matrix",
		UsageText: `radlabel apply --split train
   radlabel apply --split dev --config lfs.yaml --watch`,
		Action: cmdApply,
		Flags: []cli.Flag{
			splitFlag,
			lfConfigFlag,
			watchFlag,
			workersFlag,
		},
	}
)

type ApplyResult struct {
	RunID    string   `json:"run_id"`
	Split    string   `json:"split"`
	LFs      []string `json:"lfs"`
	Docs     int      `json:"docs"`
	Votes    int      `json:"votes"`
	Coverage float64  `json:"coverage"`
	Duration string   `json:"duration"`
}

func cmdApply(c *cli.Context) error {
	split := c.String(splitFlag.Name)
	if !data.Contains(data.Splits, split) {
		return fmt.Errorf("invalid split %q, must be one of: %s", split, strings.Join(data.Splits, ", "))
	}

	configPath := c.String(lfConfigFlag.Name)
	workers := c.Int(workersFlag.Name)

	cfg := getConfig(c)
	ctx := context.Background()

	runOnce := func() error {
		res, err := applyOnce(ctx, cfg.DB, split, configPath, workers)
		if err != nil {
			return err
		}
		return encode(res)
	}

	if !c.Bool(watchFlag.Name) {
		return runOnce()
	}

	if configPath == "" {
		return errors.New("--watch requires --config")
	}

	if err := runOnce(); err != nil {
		return err
	}

	return watchConfig(configPath, runOnce)
}

func applyOnce(ctx context.Context, db *sql.DB, split, configPath string, workers int) (*ApplyResult, error) {
	start := time.Now()

	lfs, err := loadLFs(configPath)
	if err != nil {
		return nil, err
	}

	reports, err := data.GetReports(db, &split)
	if err != nil {
		return nil, fmt.Errorf("loading reports: %w", err)
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("no reports in split %q, run: radlabel import", split)
	}

	docs := make([]*label.Document, len(reports))
	for i, r := range reports {
		docs[i] = label.NewDocument(r.DocID, r.Text)
	}

	applier := label.NewApplier(lfs)
	if workers > 0 {
		applier.Workers = workers
	}

	m, err := applier.Apply(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("applying labeling functions: %w", err)
	}

	run, err := data.CreateRun(db, split, label.Names(lfs))
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	votes, err := data.SaveVotes(db, run.ID, m)
	if err != nil {
		return nil, fmt.Errorf("saving votes: %w", err)
	}

	if err := data.CompleteRun(db, run.ID, len(docs), votes); err != nil {
		return nil, fmt.Errorf("completing run: %w", err)
	}

	return &ApplyResult{
		RunID:    run.ID,
		Split:    split,
		LFs:      label.Names(lfs),
		Docs:     len(docs),
		Votes:    votes,
		Coverage: m.Coverage(),
		Duration: time.Since(start).String(),
	}, nil
}

func loadLFs(configPath string) ([]label.LF, error) {
	lfs := label.Builtins()
	if configPath == "" {
		return lfs, nil
	}

	lfc, err := config.LoadLFConfig(configPath)
	if err != nil {
		return nil, err
	}

	custom, err := lfc.Build()
	if err != nil {
		return nil, err
	}

	return label.Merge(lfs, custom, lfc.ReplaceBuiltins)
}

// watchConfig re-runs fn whenever the config file is rewritten, until
// interrupted. The parent directory is watched because editors replace
// the file on save.
func watchConfig(configPath string, fn func() error) error {
	configPath = filepath.Clean(configPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("watching %s: %w", configPath, err)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("watching for config changes", "file", configPath)

	var last time.Time
	for {
		select {
		case ev := <-watcher.Events:
			if filepath.Clean(ev.Name) != configPath || !ev.Op.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			// editors fire several events per save
			if time.Since(last) < watchDebounce {
				continue
			}
			last = time.Now()

			slog.Info("config changed, re-applying", "file", configPath)
			if err := fn(); err != nil {
				slog.Error("apply failed", "error", err)
			}
		case err := <-watcher.Errors:
			slog.Error("watcher error", "error", err)
		case <-done:
			return nil
		}
	}
}
