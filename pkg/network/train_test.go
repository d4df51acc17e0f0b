package network

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"

	"SeqNet/pkg/dataProcess"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// blobs 生成高斯簇并逐列归一化到[0,1]，作为自编码器的输入和目标
func blobs(n, features, centers int, seed int64) []*mat.VecDense {
	X, _ := dataProcess.MakeBlobs(n, features, centers, 1, rand.New(rand.NewSource(seed)))
	m, err := dataProcess.FromVectors(X)
	if err != nil {
		panic(err)
	}
	return dataProcess.DenseToVectors(dataProcess.Norm(m))
}

func quietConfig(epochs, batch int, seed int64) TrainConfig {
	cfg := DefaultTrainConfig()
	cfg.Epochs = epochs
	cfg.BatchSize = batch
	cfg.Rand = rand.New(rand.NewSource(seed))
	return cfg
}

func TestFitReducesLossOnBlobs(t *testing.T) {
	X := blobs(200, 8, 4, 1)
	nn, err := NewNeuronNetwork(blobSpecs(), 0.8, WithSeed(2))
	require.NoError(t, err)

	history, err := nn.Fit(X, X, MSE{}, quietConfig(100, 0, 3))
	require.NoError(t, err)
	require.Len(t, history, 100)

	for _, l := range history {
		assert.False(t, math.IsNaN(l))
	}
	assert.Less(t, history[len(history)-1], history[0])

	for _, x := range X {
		assert.GreaterOrEqual(t, mat.Min(x), 0.0)
		assert.LessOrEqual(t, mat.Max(x), 1.0)
	}
	for _, p := range nn.Predict(X) {
		for i := 0; i < p.Len(); i++ {
			assert.False(t, math.IsNaN(p.AtVec(i)))
		}
	}
}

func TestMinibatchFitReducesLoss(t *testing.T) {
	X := blobs(200, 8, 4, 1)
	nn, err := NewNeuronNetwork(blobSpecs(), 0.8, WithSeed(2))
	require.NoError(t, err)

	history, err := nn.MinibatchFit(X, X, MSE{}, quietConfig(30, 10, 3))
	require.NoError(t, err)
	require.Len(t, history, 30)
	assert.Less(t, history[len(history)-1], history[0])
}

func TestMinibatchFullBatchMatchesFit(t *testing.T) {
	X := blobs(40, 8, 4, 5)

	a, err := NewNeuronNetwork(blobSpecs(), 0.5, WithSeed(6))
	require.NoError(t, err)
	b, err := NewNeuronNetwork(blobSpecs(), 0.5, WithSeed(6))
	require.NoError(t, err)

	ha, err := a.Fit(X, X, MSE{}, quietConfig(10, 0, 7))
	require.NoError(t, err)
	hb, err := b.MinibatchFit(X, X, MSE{}, quietConfig(10, len(X), 7))
	require.NoError(t, err)

	assert.InDeltaSlice(t, ha, hb, 1e-9)
	for i := range a.Layers {
		assert.True(t, mat.EqualApprox(a.Layers[i].Weights, b.Layers[i].Weights, 1e-9))
		assert.True(t, mat.EqualApprox(a.Layers[i].Biases, b.Layers[i].Biases, 1e-9))
	}
}

func TestFitWithCrossEntropy(t *testing.T) {
	X := []*mat.VecDense{
		mat.NewVecDense(2, []float64{0, 1}),
		mat.NewVecDense(2, []float64{1, 0}),
	}
	Y := []*mat.VecDense{
		mat.NewVecDense(2, []float64{0, 1}),
		mat.NewVecDense(2, []float64{1, 0}),
	}
	nn, err := NewNeuronNetwork([]LayerSpec{{Width: 2}, {Width: 2, Activation: ActivationFree}}, 0.5, WithSeed(9))
	require.NoError(t, err)

	history, err := nn.Fit(X, Y, CE{}, quietConfig(50, 0, 1))
	require.NoError(t, err)
	assert.Less(t, history[49], history[0])
	assert.Equal(t, 1.0, nn.Evaluate(X, Y))
	assert.Equal(t, 1, nn.Classify(X[0]))
}

func TestFitVerboseOutput(t *testing.T) {
	X := blobs(8, 8, 2, 1)
	nn, err := NewNeuronNetwork(blobSpecs(), 0.1, WithSeed(1))
	require.NoError(t, err)

	var buf bytes.Buffer
	var reports []EpochReport
	cfg := quietConfig(4, 0, 1)
	cfg.Verbose = true
	cfg.StatusUpdates = 2
	cfg.Out = &buf
	cfg.OnEpoch = func(r EpochReport) { reports = append(reports, r) }

	history, err := nn.Fit(X, X, MSE{}, cfg)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Mean Loss at epoch 0 : "))
	assert.True(t, strings.HasPrefix(lines[1], "Mean Loss at epoch 2 : "))
	assert.True(t, strings.HasPrefix(lines[2], "Mean Loss at epoch 3 : "))

	require.Len(t, reports, 4)
	for i, r := range reports {
		assert.Equal(t, i, r.Epoch)
		assert.Equal(t, 4, r.Epochs)
		assert.Equal(t, history[i], r.MeanLoss)
	}
}

func TestFitQuietByDefault(t *testing.T) {
	X := blobs(4, 8, 2, 1)
	nn, err := NewNeuronNetwork(blobSpecs(), 0.1, WithSeed(1))
	require.NoError(t, err)

	var buf bytes.Buffer
	cfg := quietConfig(3, 0, 1)
	cfg.Out = &buf
	_, err = nn.Fit(X, X, MSE{}, cfg)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestFitRejectsBadInput(t *testing.T) {
	nn, err := NewNeuronNetwork(blobSpecs(), 0.1, WithSeed(1))
	require.NoError(t, err)
	X := blobs(4, 8, 2, 1)

	_, err = nn.Fit(X, X[:3], MSE{}, quietConfig(1, 0, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = nn.Fit(nil, nil, MSE{}, quietConfig(1, 0, 1))
	assert.ErrorIs(t, err, ErrEmptyDataset)

	wide := []*mat.VecDense{mat.NewVecDense(9, nil)}
	_, err = nn.Fit(wide, X[:1], MSE{}, quietConfig(1, 0, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	narrowTarget := []*mat.VecDense{mat.NewVecDense(2, nil)}
	_, err = nn.MinibatchFit(X[:1], narrowTarget, MSE{}, quietConfig(1, 1, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = nn.Fit(X, X, MSE{}, quietConfig(0, 0, 1))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = nn.MinibatchFit(X, X, MSE{}, quietConfig(1, 0, 1))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	// 出错时参数不变
	before := mat.DenseCopyOf(nn.Layers[0].Weights)
	_, _ = nn.Fit(X, X[:1], MSE{}, quietConfig(1, 0, 1))
	assert.True(t, mat.Equal(before, nn.Layers[0].Weights))
}

func TestPredictReturnsCopies(t *testing.T) {
	X := blobs(3, 8, 3, 4)
	nn, err := NewNeuronNetwork(blobSpecs(), 0.1, WithSeed(1))
	require.NoError(t, err)
	before := mat.DenseCopyOf(nn.Layers[1].Weights)

	first := nn.Predict(X)
	require.Len(t, first, 3)
	assert.NotSame(t, first[0], first[1])

	second := nn.Predict(X)
	for i := range first {
		assert.True(t, mat.Equal(first[i], second[i]))
	}
	assert.True(t, mat.Equal(before, nn.Layers[1].Weights))
	assert.Equal(t, 0, nn.Pending())

	assert.Empty(t, nn.Predict(nil))
}

func TestCalculateLossAndEvaluate(t *testing.T) {
	nn := linearNetwork(t, 0.1)
	X := []*mat.VecDense{mat.NewVecDense(2, []float64{3, 4})}
	Y := []*mat.VecDense{mat.NewVecDense(1, []float64{10})}
	assert.InDelta(t, 2.25, nn.CalculateLoss(X, Y, MSE{}), 1e-12)
	assert.Equal(t, 0, nn.Pending())

	assert.Equal(t, 0.0, nn.Evaluate(nil, nil))
	assert.Equal(t, 0.0, nn.CalculateLoss(nil, nil, MSE{}))
}

func TestShuffleAndBatches(t *testing.T) {
	perm := shuffleIndices(10, rand.New(rand.NewSource(1)))
	seen := make(map[int]bool)
	for _, i := range perm {
		seen[i] = true
	}
	assert.Len(t, seen, 10)

	batches := createBatches([]int{0, 1, 2, 3, 4, 5, 6}, 3)
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}, {6}}, batches)
}
