// Package metrics scores predicted abnormality probabilities against
// gold labels.
package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const defaultBins = 10

// Sample pairs one document's predicted abnormality score with its
// gold class.
type Sample struct {
	Score    float64 `json:"score"`
	Abnormal bool    `json:"abnormal"`
}

// Confusion is the binary confusion matrix with abnormal as the
// positive class.
type Confusion struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// Summary holds the standard classification metrics for one model or
// resolution method. ROCAUC is nil when the samples hold a single
// class.
type Summary struct {
	Samples   int     `json:"samples"`
	Positives int     `json:"positives"`
	Negatives int     `json:"negatives"`
	Threshold float64 `json:"threshold"`

	Accuracy  float64  `json:"accuracy"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1        float64  `json:"f1"`
	ROCAUC    *float64 `json:"roc_auc,omitempty"`

	Confusion Confusion `json:"confusion"`

	ScoreMean   float64 `json:"score_mean"`
	ScoreStdDev float64 `json:"score_std_dev"`
}

// HistogramSeries is a binned score distribution. Edges has one more
// entry than Counts.
type HistogramSeries struct {
	Edges  []float64 `json:"edges"`
	Counts []float64 `json:"counts"`
}

// Evaluate computes the summary at a decision threshold, scores at or
// above it predict abnormal.
func Evaluate(samples []Sample, threshold float64) (*Summary, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to evaluate")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0, 1], got %f", threshold)
	}

	s := &Summary{
		Samples:   len(samples),
		Threshold: threshold,
	}

	scores := make([]float64, 0, len(samples))
	for _, sm := range samples {
		scores = append(scores, sm.Score)

		predicted := sm.Score >= threshold
		switch {
		case predicted && sm.Abnormal:
			s.Confusion.TP++
		case predicted && !sm.Abnormal:
			s.Confusion.FP++
		case !predicted && !sm.Abnormal:
			s.Confusion.TN++
		default:
			s.Confusion.FN++
		}
	}

	c := s.Confusion
	s.Positives = c.TP + c.FN
	s.Negatives = c.FP + c.TN
	s.Accuracy = float64(c.TP+c.TN) / float64(s.Samples)

	if c.TP+c.FP > 0 {
		s.Precision = float64(c.TP) / float64(c.TP+c.FP)
	}
	if c.TP+c.FN > 0 {
		s.Recall = float64(c.TP) / float64(c.TP+c.FN)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}

	if auc, err := ROCAUC(samples); err == nil {
		s.ROCAUC = &auc
	} else {
		slog.Warn("ROC-AUC omitted", "reason", err)
	}

	s.ScoreMean = stat.Mean(scores, nil)
	if len(scores) > 1 {
		s.ScoreStdDev = stat.StdDev(scores, nil)
	}

	return s, nil
}

// ROCAUC computes the area under the ROC curve by ranks, the
// Mann-Whitney formulation with midranks over tied scores.
func ROCAUC(samples []Sample) (float64, error) {
	pos, neg := 0, 0
	for _, s := range samples {
		if s.Abnormal {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, fmt.Errorf("roc auc needs both classes, have %d abnormal and %d normal", pos, neg)
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	ranks := make([]float64, len(sorted))
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j].Score == sorted[i].Score {
			j++
		}
		mid := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[k] = mid
		}
		i = j
	}

	var sumPos float64
	for i, s := range sorted {
		if s.Abnormal {
			sumPos += ranks[i]
		}
	}

	u := sumPos - float64(pos)*float64(pos+1)/2
	return u / (float64(pos) * float64(neg)), nil
}

// ScoreHistogram bins scores over [0, 1]. Out-of-range scores are
// clamped to the ends.
func ScoreHistogram(scores []float64, bins int) (*HistogramSeries, error) {
	if len(scores) == 0 {
		return nil, errors.New("no scores to bin")
	}
	if bins < 1 {
		bins = defaultBins
	}

	// bins are half-open, a score of exactly 1 has to sit just under
	// the top edge
	top := math.Nextafter(1, 0)
	xs := make([]float64, len(scores))
	for i, v := range scores {
		switch {
		case v < 0:
			xs[i] = 0
		case v >= 1:
			xs[i] = top
		default:
			xs[i] = v
		}
	}
	sort.Float64s(xs)

	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = float64(i) / float64(bins)
	}

	counts := stat.Histogram(nil, edges, xs, nil)

	return &HistogramSeries{Edges: edges, Counts: counts}, nil
}

// SplitByGold separates the scores of abnormal and normal samples, the
// inputs for per-class histograms.
func SplitByGold(samples []Sample) (abnormal, normal []float64) {
	abnormal = make([]float64, 0, len(samples))
	normal = make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Abnormal {
			abnormal = append(abnormal, s.Score)
		} else {
			normal = append(normal, s.Score)
		}
	}
	return abnormal, normal
}
