package models

import (
	"math"
	"testing"

	"SeqNet/pkg/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(v int64) *int64 { return &v }

func xorRequest() CreateRequest {
	return CreateRequest{
		Name: "xor",
		Layers: []network.LayerSpec{
			{Width: 2},
			{Width: 3, Activation: network.ActivationSigmoid},
			{Width: 1, Activation: network.ActivationSigmoid},
		},
		LearningRate: 0.5,
		Seed:         seed(1),
	}
}

var (
	xorInputs  = [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	xorTargets = [][]float64{{0}, {1}, {1}, {0}}
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	model, err := m.Create(xorRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, model.ID)
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(model.ID)
	require.NoError(t, err)
	assert.Same(t, model, got)

	info := model.Info()
	assert.Equal(t, "xor", info.Name)
	assert.Equal(t, "mse", info.Loss)
	assert.Len(t, info.Layers, 3)
	assert.Nil(t, info.LastLoss)

	second, err := m.Create(xorRequest())
	require.NoError(t, err)
	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, model.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	require.NoError(t, m.Delete(model.ID))
	_, err = m.Get(model.ID)
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.ErrorIs(t, m.Delete(model.ID), ErrModelNotFound)
}

func TestManagerCreateErrors(t *testing.T) {
	m := NewManager()

	req := xorRequest()
	req.Layers = req.Layers[:1]
	_, err := m.Create(req)
	assert.ErrorIs(t, err, network.ErrInvalidTopology)

	req = xorRequest()
	req.Loss = "hinge"
	_, err = m.Create(req)
	assert.ErrorIs(t, err, network.ErrInvalidConfig)

	req = xorRequest()
	req.DP = &network.DPSGDConfig{L2NormClip: -1}
	_, err = m.Create(req)
	assert.ErrorIs(t, err, network.ErrInvalidConfig)

	assert.Equal(t, 0, m.Count())
}

func TestManagerTrainAndPredict(t *testing.T) {
	m := NewManager()
	model, err := m.Create(xorRequest())
	require.NoError(t, err)

	reports, unsubscribe := model.Hub.Subscribe()
	defer unsubscribe()

	history, err := m.Train(model.ID, xorInputs, xorTargets, TrainOptions{Epochs: 5, BatchSize: 2, Seed: seed(3)})
	require.NoError(t, err)
	require.Len(t, history, 5)

	for i := 0; i < 5; i++ {
		r := <-reports
		assert.Equal(t, i, r.Epoch)
		assert.Equal(t, history[i], r.MeanLoss)
	}

	info := model.Info()
	assert.Equal(t, 5, info.EpochsTrained)
	require.NotNil(t, info.LastLoss)
	assert.Equal(t, history[4], *info.LastLoss)
	assert.False(t, info.Training)

	_, err = m.Train(model.ID, xorInputs, xorTargets, TrainOptions{Epochs: 2, Mode: "parallel", Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 7, model.Info().EpochsTrained)

	outputs, err := m.Predict(model.ID, xorInputs)
	require.NoError(t, err)
	require.Len(t, outputs, 4)
	assert.Len(t, outputs[0], 1)

	_, err = m.Predict(model.ID, [][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, network.ErrShapeMismatch)

	_, err = m.Train(model.ID, xorInputs, xorTargets[:2], TrainOptions{Epochs: 1})
	assert.ErrorIs(t, err, network.ErrShapeMismatch)

	_, err = m.Train(model.ID, xorInputs, xorTargets, TrainOptions{Epochs: 1, Mode: "sgd"})
	assert.ErrorIs(t, err, network.ErrInvalidConfig)

	_, err = m.Train("missing", xorInputs, xorTargets, TrainOptions{})
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestManagerNonFinite(t *testing.T) {
	m := NewManager()
	model, err := m.Create(CreateRequest{
		Layers: []network.LayerSpec{
			{Width: 1},
			{Width: 1, Activation: network.ActivationTanH},
		},
		LearningRate: 0.1,
		Seed:         seed(1),
	})
	require.NoError(t, err)

	history, err := m.Train(model.ID, [][]float64{{1e9}}, [][]float64{{0}}, TrainOptions{Epochs: 1, Mode: "fit"})
	assert.ErrorIs(t, err, ErrNonFinite)
	require.Len(t, history, 1)
	assert.True(t, math.IsNaN(history[0]))

	info := model.Info()
	assert.True(t, info.Diverged)
	assert.Nil(t, info.LastLoss)
	assert.Equal(t, 1, info.EpochsTrained)

	_, err = m.Predict(model.ID, [][]float64{{1e9}})
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestHub(t *testing.T) {
	h := NewHub()
	a, unsubA := h.Subscribe()
	b, _ := h.Subscribe()
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(network.EpochReport{Epoch: 1})
	assert.Equal(t, 1, (<-a).Epoch)
	assert.Equal(t, 1, (<-b).Epoch)

	unsubA()
	unsubA()
	_, ok := <-a
	assert.False(t, ok)
	assert.Equal(t, 1, h.Subscribers())

	// 缓冲满时丢弃而不是阻塞
	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(network.EpochReport{Epoch: i})
	}
	assert.Len(t, b, subscriberBuffer)

	h.Close()
	h.Close()
	for range b {
	}
	c, _ := h.Subscribe()
	_, ok = <-c
	assert.False(t, ok)
}
