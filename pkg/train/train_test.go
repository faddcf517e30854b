package train

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNetwork_Shape(t *testing.T) {
	net := NewNetwork()
	// one pooled layer of fanout*fanout plus the output hashtron
	assert.Equal(t, fanout*fanout+1, net.Len())
}

func TestNewTrainer_Defaults(t *testing.T) {
	tr := NewTrainer(Config{})
	assert.Equal(t, defaultEpochs, tr.cfg.Epochs)
	assert.Equal(t, runtime.NumCPU(), tr.cfg.Threads)
	assert.Equal(t, defaultDeadlineMs, tr.cfg.DeadlineMs)
	require.NotNil(t, tr.Net)
}

func TestNewTrainer_Overrides(t *testing.T) {
	tr := NewTrainer(Config{Epochs: 7, Threads: 2, DeadlineMs: 50})
	assert.Equal(t, 7, tr.cfg.Epochs)
	assert.Equal(t, 2, tr.cfg.Threads)
	assert.Equal(t, 50, tr.cfg.DeadlineMs)
}

func TestTrain_NoSamples(t *testing.T) {
	tr := NewTrainer(Config{})
	_, err := tr.Train(context.Background(), nil)
	assert.Error(t, err)
}

func TestTrain_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewTrainer(Config{})
	samples := []Sample{{DocID: "d1", Input: &ImageInput{}, Abnormal: true}}

	_, err := tr.Train(ctx, samples)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBitDiff(t *testing.T) {
	assert.Equal(t, uint32(0), bitDiff(1, 1))
	assert.Equal(t, uint32(1), bitDiff(0, 1))
	assert.Equal(t, uint32(1), bitDiff(1, 0))
}
