package label

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Applier evaluates an LF set over documents in parallel. Rows are
// written to disjoint matrix slots, so the result is deterministic
// regardless of scheduling.
type Applier struct {
	LFs     []LF
	Workers int
}

func NewApplier(lfs []LF) *Applier {
	return &Applier{
		LFs:     lfs,
		Workers: runtime.NumCPU(),
	}
}

// Apply runs every LF on every document and returns the label matrix.
func (a *Applier) Apply(ctx context.Context, docs []*Document) (*Matrix, error) {
	if len(a.LFs) == 0 {
		return nil, errors.New("no labeling functions to apply")
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	m := NewMatrix(ids, Names(a.LFs))

	workers := a.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, d := range docs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			for j := range a.LFs {
				m.Cells[i][j] = safeEval(&a.LFs[j], d)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("applied labeling functions",
		"docs", len(docs), "lfs", len(a.LFs), "votes", m.NonAbstain())

	return m, nil
}

// safeEval contains a misbehaving LF to a single abstain instead of
// taking down the whole run.
func safeEval(lf *LF, d *Document) (v Vote) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("labeling function panicked", "lf", lf.Name, "doc", d.ID, "panic", r)
			v = Abstain
		}
	}()

	v = lf.Eval(d)
	if !v.Valid() {
		slog.Warn("labeling function returned invalid vote",
			"lf", lf.Name, "doc", d.ID, "vote", int(v))
		return Abstain
	}
	return v
}
