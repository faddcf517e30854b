package train

import (
	"fmt"

	"github.com/neurlang/classifier/layer/majpool2d"
	"github.com/neurlang/classifier/net/feedforward"
)

// fanout sizes the first hashtron layer and its majority pool.
const fanout = 10

// NewNetwork builds the abnormality classifier: a hashtron layer
// pooled by majority into a single output hashtron.
func NewNetwork() *feedforward.FeedforwardNetwork {
	var net feedforward.FeedforwardNetwork
	net.NewLayer(fanout*fanout, 0)
	net.NewCombiner(majpool2d.MustNew(fanout, 1, fanout, 1, fanout, 1, 1))
	net.NewLayer(1, 0)
	return &net
}

// SaveWeights writes the network weights to path.
func SaveWeights(net *feedforward.FeedforwardNetwork, path string) error {
	if err := net.WriteCompressedWeightsToFile(path); err != nil {
		return fmt.Errorf("writing weights to %s: %w", path, err)
	}
	return nil
}

// LoadWeights builds the network and restores weights from path.
func LoadWeights(path string) (*feedforward.FeedforwardNetwork, error) {
	net := NewNetwork()
	if err := net.ReadCompressedWeightsFromFile(path); err != nil {
		return nil, fmt.Errorf("reading weights from %s: %w", path, err)
	}
	return net, nil
}
