package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/neurlang/classifier/datasets"
	"github.com/neurlang/classifier/learning"
	"github.com/neurlang/classifier/net/feedforward"
)

const (
	defaultEpochs     = 3
	defaultDeadlineMs = 1000
	tallyGroup        = 500
)

// Sample is one training example: a rasterized X-ray and its weak
// label.
type Sample struct {
	DocID    string
	Input    *ImageInput
	Abnormal Outcome
}

// Config tunes the trainer. Zero values fall back to defaults.
type Config struct {
	Epochs       int
	Threads      int
	DeadlineMs   int
	SolutionsLog string
}

// EvalStats reports network agreement with the sample labels.
type EvalStats struct {
	Samples  int     `json:"samples"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Trainer drives worst-first hashtron training over a sample set.
type Trainer struct {
	Net *feedforward.FeedforwardNetwork
	cfg Config
}

func NewTrainer(cfg Config) *Trainer {
	if cfg.Epochs < 1 {
		cfg.Epochs = defaultEpochs
	}
	if cfg.Threads < 1 {
		cfg.Threads = runtime.NumCPU()
	}
	if cfg.DeadlineMs < 1 {
		cfg.DeadlineMs = defaultDeadlineMs
	}
	return &Trainer{
		Net: NewNetwork(),
		cfg: cfg,
	}
}

func bitDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Train fits the network to the samples, epoch by epoch over the
// worst-first hashtron ordering. Stops early once every sample is
// classified correctly.
func (t *Trainer) Train(ctx context.Context, samples []Sample) (*EvalStats, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to train on")
	}

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		order := t.Net.Shuffle(true)

		for _, position := range order {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			if err := t.trainPosition(samples, position); err != nil {
				return nil, err
			}
		}

		stats := t.Evaluate(samples)
		slog.Info("training epoch complete",
			"epoch", epoch+1, "accuracy", stats.Accuracy,
			"correct", stats.Correct, "samples", stats.Samples)

		if stats.Correct == stats.Samples {
			break
		}
	}

	return t.Evaluate(samples), nil
}

// trainPosition tallies every sample against one hashtron position and
// solves it.
func (t *Trainer) trainPosition(samples []Sample, position int) error {
	tally := new(datasets.Tally)
	tally.Init()
	tally.SetFinalization(false)
	defer tally.Free()

	for j := 0; j < len(samples); j += tallyGroup {
		var wg sync.WaitGroup
		for jj := 0; jj < tallyGroup && j+jj < len(samples); jj++ {
			wg.Add(1)
			go func(k int) {
				defer wg.Done()
				out := samples[k].Abnormal
				t.Net.Tally2(samples[k].Input, &out, position, tally,
					func(i feedforward.FeedforwardNetworkInput) uint32 {
						return bitDiff(i.Feature(0), out.Feature(0))
					})
			}(j + jj)
		}
		wg.Wait()
	}

	h := t.hyperParameters(tally.Len())
	h.Name = fmt.Sprint(position)

	htron, err := h.Training(tally)
	if err != nil {
		return fmt.Errorf("training hashtron %d: %w", position, err)
	}
	*t.Net.GetHashtron(position) = *htron

	return nil
}

func (t *Trainer) hyperParameters(tallyLen int) *learning.HyperParameters {
	h := new(learning.HyperParameters)
	h.Threads = t.cfg.Threads
	h.Factor = 1

	// shuffle before solving attempts
	h.Shuffle = true
	h.Seed = true

	// restart when stuck
	h.DeadlineMs = t.cfg.DeadlineMs
	h.DeadlineRetry = 3

	h.Subtractor = 1
	h.Printer = 70

	h.InitialLimit = 1000 + 4*tallyLen
	h.EndWhenSolved = true

	if t.cfg.SolutionsLog != "" {
		h.SetLogger(t.cfg.SolutionsLog)
	}

	return h
}

// Evaluate measures agreement between the network and the sample
// labels.
func (t *Trainer) Evaluate(samples []Sample) *EvalStats {
	stats := &EvalStats{Samples: len(samples)}
	for i := range samples {
		if t.Predict(samples[i].Input) == bool(samples[i].Abnormal) {
			stats.Correct++
		}
	}
	if stats.Samples > 0 {
		stats.Accuracy = float64(stats.Correct) / float64(stats.Samples)
	}
	return stats
}

// Predict returns the network's abnormality call for one raster.
func (t *Trainer) Predict(in *ImageInput) bool {
	return t.Net.Infer(in).Feature(0) != 0
}

// Score maps the binary network output to a score, 1 for abnormal.
func (t *Trainer) Score(in *ImageInput) float64 {
	if t.Predict(in) {
		return 1
	}
	return 0
}
