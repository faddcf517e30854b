package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	samples := []Sample{
		{Score: 0.9, Abnormal: true},  // TP
		{Score: 0.8, Abnormal: true},  // TP
		{Score: 0.3, Abnormal: true},  // FN
		{Score: 0.7, Abnormal: false}, // FP
		{Score: 0.2, Abnormal: false}, // TN
		{Score: 0.1, Abnormal: false}, // TN
	}

	s, err := Evaluate(samples, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 6, s.Samples)
	assert.Equal(t, 3, s.Positives)
	assert.Equal(t, 3, s.Negatives)
	assert.Equal(t, Confusion{TP: 2, FP: 1, TN: 2, FN: 1}, s.Confusion)

	assert.InDelta(t, 4.0/6.0, s.Accuracy, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.Precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.F1, 1e-9)

	require.NotNil(t, s.ROCAUC)
	// pairs won: (0.9, 0.8) beat all three negatives, 0.3 beats only 0.2 and 0.1
	assert.InDelta(t, 8.0/9.0, *s.ROCAUC, 1e-9)

	assert.InDelta(t, 0.5, s.ScoreMean, 1e-9)
	assert.Greater(t, s.ScoreStdDev, 0.0)
}

func TestEvaluate_ThresholdBoundary(t *testing.T) {
	samples := []Sample{
		{Score: 0.5, Abnormal: true},
		{Score: 0.49, Abnormal: false},
	}

	s, err := Evaluate(samples, 0.5)
	require.NoError(t, err)
	assert.Equal(t, Confusion{TP: 1, TN: 1}, s.Confusion)
	assert.InDelta(t, 1.0, s.Accuracy, 1e-9)
}

func TestEvaluate_Empty(t *testing.T) {
	_, err := Evaluate(nil, 0.5)
	assert.Error(t, err)
}

func TestEvaluate_BadThreshold(t *testing.T) {
	samples := []Sample{{Score: 0.5, Abnormal: true}}
	_, err := Evaluate(samples, 1.5)
	assert.Error(t, err)
	_, err = Evaluate(samples, -0.1)
	assert.Error(t, err)
}

func TestEvaluate_SingleClassOmitsAUC(t *testing.T) {
	samples := []Sample{
		{Score: 0.9, Abnormal: true},
		{Score: 0.8, Abnormal: true},
	}

	s, err := Evaluate(samples, 0.5)
	require.NoError(t, err)
	assert.Nil(t, s.ROCAUC)
	assert.InDelta(t, 1.0, s.Recall, 1e-9)
}

func TestEvaluate_SingleSample(t *testing.T) {
	s, err := Evaluate([]Sample{{Score: 0.8, Abnormal: true}}, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, s.ScoreMean, 1e-9)
	assert.Equal(t, 0.0, s.ScoreStdDev)
}

func TestROCAUC_PerfectSeparation(t *testing.T) {
	samples := []Sample{
		{Score: 0.9, Abnormal: true},
		{Score: 0.8, Abnormal: true},
		{Score: 0.2, Abnormal: false},
		{Score: 0.1, Abnormal: false},
	}

	auc, err := ROCAUC(samples)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, auc, 1e-9)
}

func TestROCAUC_Inverted(t *testing.T) {
	samples := []Sample{
		{Score: 0.1, Abnormal: true},
		{Score: 0.9, Abnormal: false},
	}

	auc, err := ROCAUC(samples)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, auc, 1e-9)
}

func TestROCAUC_AllTied(t *testing.T) {
	samples := []Sample{
		{Score: 0.5, Abnormal: true},
		{Score: 0.5, Abnormal: true},
		{Score: 0.5, Abnormal: false},
		{Score: 0.5, Abnormal: false},
	}

	auc, err := ROCAUC(samples)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, auc, 1e-9)
}

func TestROCAUC_SingleClass(t *testing.T) {
	_, err := ROCAUC([]Sample{{Score: 0.9, Abnormal: true}})
	assert.Error(t, err)
}

func TestScoreHistogram(t *testing.T) {
	scores := []float64{0.05, 0.15, 0.55, 0.56, 1.0}

	h, err := ScoreHistogram(scores, 10)
	require.NoError(t, err)
	require.Len(t, h.Edges, 11)
	require.Len(t, h.Counts, 10)

	assert.InDelta(t, 1, h.Counts[0], 1e-9)
	assert.InDelta(t, 1, h.Counts[1], 1e-9)
	assert.InDelta(t, 2, h.Counts[5], 1e-9)
	// exact 1.0 lands in the top bin
	assert.InDelta(t, 1, h.Counts[9], 1e-9)

	total := 0.0
	for _, c := range h.Counts {
		total += c
	}
	assert.InDelta(t, float64(len(scores)), total, 1e-9)
}

func TestScoreHistogram_ClampsOutOfRange(t *testing.T) {
	h, err := ScoreHistogram([]float64{-0.5, 1.7}, 10)
	require.NoError(t, err)
	assert.InDelta(t, 1, h.Counts[0], 1e-9)
	assert.InDelta(t, 1, h.Counts[9], 1e-9)
}

func TestScoreHistogram_Empty(t *testing.T) {
	_, err := ScoreHistogram(nil, 10)
	assert.Error(t, err)
}

func TestScoreHistogram_DefaultBins(t *testing.T) {
	h, err := ScoreHistogram([]float64{0.5}, 0)
	require.NoError(t, err)
	assert.Len(t, h.Counts, 10)
}

func TestSplitByGold(t *testing.T) {
	samples := []Sample{
		{Score: 0.9, Abnormal: true},
		{Score: 0.2, Abnormal: false},
		{Score: 0.8, Abnormal: true},
	}

	abnormal, normal := SplitByGold(samples)
	assert.Equal(t, []float64{0.9, 0.8}, abnormal)
	assert.Equal(t, []float64{0.2}, normal)
}
