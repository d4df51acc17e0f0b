package network

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMSE(t *testing.T) {
	pred := mat.NewVecDense(2, []float64{1, 3})
	actual := mat.NewVecDense(2, []float64{0, 1})

	// ((1)^2 + (2)^2) / 2
	assert.InDelta(t, 2.5, MSE{}.Loss(pred, actual), 1e-12)

	// 2 * mean(1, 2) = 3，填充到整个宽度
	d := MSE{}.Derivative(pred, actual)
	assert.Equal(t, []float64{3, 3}, d.RawVector().Data)

	assert.Equal(t, 0.0, MSE{}.Loss(actual, actual))
}

func TestMSEDerivativeIsScalar(t *testing.T) {
	// 正负误差相互抵消
	pred := mat.NewVecDense(2, []float64{1, -1})
	actual := mat.NewVecDense(2, []float64{0, 0})
	d := MSE{}.Derivative(pred, actual)
	assert.Equal(t, []float64{0, 0}, d.RawVector().Data)
}

func TestSoftmax(t *testing.T) {
	p := Softmax(mat.NewVecDense(3, []float64{1, 2, 3}))
	assert.InDelta(t, 1, mat.Sum(p), 1e-12)
	assert.InDelta(t, 0.665241, p.AtVec(2), 1e-6)

	// 大数值不溢出
	big := Softmax(mat.NewVecDense(2, []float64{1000, 1000}))
	assert.InDelta(t, 0.5, big.AtVec(0), 1e-12)
	assert.InDelta(t, 0.5, big.AtVec(1), 1e-12)
}

func TestSoftmaxShiftInvariant(t *testing.T) {
	v := mat.NewVecDense(4, []float64{0.3, -2, 5, 1})
	for _, c := range []float64{100, -100, 1e-3, 700} {
		shifted := mat.VecDenseCopyOf(v)
		for i := 0; i < shifted.Len(); i++ {
			shifted.SetVec(i, shifted.AtVec(i)+c)
		}
		assert.InDeltaSlice(t, Softmax(v).RawVector().Data, Softmax(shifted).RawVector().Data, 1e-12, c)
	}
}

func TestCE(t *testing.T) {
	pred := mat.NewVecDense(2, []float64{0, 0})
	actual := mat.NewVecDense(2, []float64{1, 0})

	assert.InDelta(t, math.Log(2), CE{}.Loss(pred, actual), 1e-12)

	d := CE{}.Derivative(pred, actual)
	assert.InDeltaSlice(t, []float64{-0.5, 0.5}, d.RawVector().Data, 1e-12)
	assert.InDelta(t, 0, mat.Sum(d), 1e-12)
}

func TestLossKind(t *testing.T) {
	kind, err := ParseLossKind("cross_entropy")
	require.NoError(t, err)
	assert.Equal(t, LossCE, kind)

	kind, err = ParseLossKind("")
	require.NoError(t, err)
	assert.Equal(t, LossMSE, kind)

	_, err = ParseLossKind("hinge")
	assert.Error(t, err)

	loss, err := NewLoss(LossCE)
	require.NoError(t, err)
	assert.IsType(t, CE{}, loss)

	loss, err = NewLoss(LossMSE)
	require.NoError(t, err)
	assert.IsType(t, MSE{}, loss)

	_, err = NewLoss(LossKind(7))
	assert.Error(t, err)
}
