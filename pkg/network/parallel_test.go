package network

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestParallelFitSingleWorkerMatchesMinibatch(t *testing.T) {
	X := blobs(50, 8, 4, 1)

	a, err := NewNeuronNetwork(blobSpecs(), 0.8, WithSeed(3))
	require.NoError(t, err)
	b, err := NewNeuronNetwork(blobSpecs(), 0.8, WithSeed(3))
	require.NoError(t, err)

	ha, err := a.MinibatchFit(X, X, MSE{}, quietConfig(5, 8, 4))
	require.NoError(t, err)
	hb, err := b.ParallelFit(X, X, MSE{}, quietConfig(5, 8, 4), ParallelConfig{Workers: 1})
	require.NoError(t, err)

	assert.InDeltaSlice(t, ha, hb, 1e-12)
	for i := range a.Layers {
		assert.True(t, mat.EqualApprox(a.Layers[i].Weights, b.Layers[i].Weights, 1e-12))
	}
}

func TestParallelFitManyWorkers(t *testing.T) {
	X := blobs(50, 8, 4, 1)

	a, err := NewNeuronNetwork(blobSpecs(), 0.8, WithSeed(3))
	require.NoError(t, err)
	b, err := NewNeuronNetwork(blobSpecs(), 0.8, WithSeed(3))
	require.NoError(t, err)

	ha, err := a.MinibatchFit(X, X, MSE{}, quietConfig(5, 8, 4))
	require.NoError(t, err)
	// 工作者数量多于批次大小时部分副本空闲
	hb, err := b.ParallelFit(X, X, MSE{}, quietConfig(5, 8, 4), ParallelConfig{Workers: 12})
	require.NoError(t, err)

	assert.InDeltaSlice(t, ha, hb, 1e-9)
	for i := range a.Layers {
		assert.True(t, mat.EqualApprox(a.Layers[i].Weights, b.Layers[i].Weights, 1e-9))
		assert.True(t, mat.EqualApprox(a.Layers[i].Biases, b.Layers[i].Biases, 1e-9))
	}
	assert.Equal(t, 0, b.Pending())
}

type failingAggregator struct{}

var errAggregate = errors.New("aggregate failed")

func (failingAggregator) Aggregate([]*Gradients) (*Gradients, error) {
	return nil, errAggregate
}

func TestParallelFitErrors(t *testing.T) {
	X := blobs(10, 8, 2, 1)
	nn, err := NewNeuronNetwork(blobSpecs(), 0.8, WithSeed(3))
	require.NoError(t, err)

	_, err = nn.ParallelFit(X, X, MSE{}, quietConfig(1, 4, 1), ParallelConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = nn.ParallelFit(X, X[:2], MSE{}, quietConfig(1, 4, 1), ParallelConfig{Workers: 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = nn.ParallelFit(X, X, MSE{}, quietConfig(1, 4, 1), ParallelConfig{Workers: 2, Aggregator: failingAggregator{}})
	assert.ErrorIs(t, err, errAggregate)
}

func TestSumAggregator(t *testing.T) {
	nn := linearNetwork(t, 1)
	a := NewGradients(nn)
	require.NoError(t, a.SetFlat([]float64{1, 2, 3}))
	b := NewGradients(nn)
	require.NoError(t, b.SetFlat([]float64{10, 20, 30}))

	sum, err := SumAggregator{}.Aggregate([]*Gradients{a, b})
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, sum.Flatten())
	// 输入不被修改
	assert.Equal(t, []float64{1, 2, 3}, a.Flatten())

	_, err = SumAggregator{}.Aggregate(nil)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestSplitBatch(t *testing.T) {
	replicas := []*NeuronNetwork{{}, {}, {}}
	workers := splitBatch(replicas, 7)
	require.Len(t, workers, 3)
	assert.Equal(t, [2]int{0, 3}, [2]int{workers[0].start, workers[0].end})
	assert.Equal(t, [2]int{6, 7}, [2]int{workers[2].start, workers[2].end})

	workers = splitBatch(replicas, 2)
	require.Len(t, workers, 2)
	assert.Same(t, replicas[1], workers[1].replica)
}
