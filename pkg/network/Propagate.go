package network

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

/*
该文件包含了网络的前向传播和后向传播，以及梯度的累加和参数更新
*/

// Forward 整个网络的前向传播，返回输出层的激活值（缓存中的向量）
func (nn *NeuronNetwork) Forward(x *mat.VecDense) *mat.VecDense {
	if x.Len() != nn.InputSize {
		panic(fmt.Sprintf("network: 输入维度 %d 与输入层宽度 %d 不匹配", x.Len(), nn.InputSize))
	}
	nn.input.CopyVec(x)

	a := nn.input
	for _, layer := range nn.Layers {
		a = layer.Forward(a)
	}
	return a
}

// 保存梯度信息的结构体
type Gradients struct {
	// 每一层的权重梯度
	WeightGrads []*mat.Dense
	// 每一层的偏置梯度
	BiasGrads []*mat.VecDense
}

// 创建新的梯度结构体
func NewGradients(nn *NeuronNetwork) *Gradients {
	weightGrads := make([]*mat.Dense, len(nn.Layers))
	biasGrads := make([]*mat.VecDense, len(nn.Layers))
	for i, layer := range nn.Layers {
		weightGrads[i] = mat.NewDense(layer.OutputSize, layer.InputSize, nil)
		biasGrads[i] = mat.NewVecDense(layer.OutputSize, nil)
	}

	return &Gradients{
		WeightGrads: weightGrads,
		BiasGrads:   biasGrads,
	}
}

// ZeroLike 创建形状相同的全零梯度
func (g *Gradients) ZeroLike() *Gradients {
	out := &Gradients{
		WeightGrads: make([]*mat.Dense, len(g.WeightGrads)),
		BiasGrads:   make([]*mat.VecDense, len(g.BiasGrads)),
	}
	for i := range g.WeightGrads {
		r, c := g.WeightGrads[i].Dims()
		out.WeightGrads[i] = mat.NewDense(r, c, nil)
		out.BiasGrads[i] = mat.NewVecDense(g.BiasGrads[i].Len(), nil)
	}
	return out
}

// Len 梯度中的参数总数
func (g *Gradients) Len() int {
	n := 0
	for i := range g.WeightGrads {
		r, c := g.WeightGrads[i].Dims()
		n += r*c + g.BiasGrads[i].Len()
	}
	return n
}

// Flatten 按层展开为一维切片：每层先权重（行优先）再偏置
func (g *Gradients) Flatten() []float64 {
	out := make([]float64, 0, g.Len())
	for i := range g.WeightGrads {
		r, c := g.WeightGrads[i].Dims()
		for j := 0; j < r; j++ {
			for k := 0; k < c; k++ {
				out = append(out, g.WeightGrads[i].At(j, k))
			}
		}
		for j := 0; j < g.BiasGrads[i].Len(); j++ {
			out = append(out, g.BiasGrads[i].AtVec(j))
		}
	}
	return out
}

// SetFlat 按Flatten的布局写回梯度
func (g *Gradients) SetFlat(data []float64) error {
	if len(data) != g.Len() {
		return fmt.Errorf("%w: 梯度长度 %d, 期望 %d", ErrShapeMismatch, len(data), g.Len())
	}
	pos := 0
	for i := range g.WeightGrads {
		r, c := g.WeightGrads[i].Dims()
		for j := 0; j < r; j++ {
			for k := 0; k < c; k++ {
				g.WeightGrads[i].Set(j, k, data[pos])
				pos++
			}
		}
		for j := 0; j < g.BiasGrads[i].Len(); j++ {
			g.BiasGrads[i].SetVec(j, data[pos])
			pos++
		}
	}
	return nil
}

func (g *Gradients) String() string {
	var s string
	s += "权重梯度:\n"
	for i, wg := range g.WeightGrads {
		s += fmt.Sprintf("第 %d 层:\n%v\n", i, mat.Formatted(wg, mat.Prefix("  "), mat.Squeeze()))
	}
	s += "偏置梯度:\n"
	for i, bg := range g.BiasGrads {
		s += fmt.Sprintf("第 %d 层:\n%v\n", i, mat.Formatted(bg, mat.Prefix("  "), mat.Squeeze()))
	}
	return s
}

// 累加梯度
func AddGradients(accumGrads *Gradients, grads *Gradients) {
	for i := range accumGrads.WeightGrads {
		accumGrads.WeightGrads[i].Add(accumGrads.WeightGrads[i], grads.WeightGrads[i])
		accumGrads.BiasGrads[i].AddVec(accumGrads.BiasGrads[i], grads.BiasGrads[i])
	}
}

// layerInput 第i个计算层的输入，即前一层的激活值
func (nn *NeuronNetwork) layerInput(i int) *mat.VecDense {
	if i == 0 {
		return nn.input
	}
	return nn.Layers[i-1].a
}

// 计算单个样本的梯度（乘以学习率）并累加，不更新参数
// 必须在对应样本的Forward之后调用
func (nn *NeuronNetwork) Backward(y *mat.VecDense, loss Loss) {
	grads := NewGradients(nn)

	// 上一次迭代（更靠近输出层）的 dC/dA * dA/dZ
	var delta *mat.VecDense

	// 从后向前传播误差
	for i := len(nn.Layers) - 1; i >= 0; i-- {
		layer := nn.Layers[i]

		var dCdA *mat.VecDense
		if i == len(nn.Layers)-1 {
			// 损失函数对最终激活值的导数
			dCdA = loss.Derivative(layer.a, y)
		} else {
			next := nn.Layers[i+1]
			dCdA = mat.NewVecDense(layer.OutputSize, nil)
			dCdA.MulVec(next.Weights.T(), delta)
		}

		// 激活函数导数在激活后的值处求值
		dAdZ := layer.Activation.Derivative(layer.a)

		g := mat.NewVecDense(layer.OutputSize, nil)
		g.MulElemVec(dCdA, dAdZ)

		// dW = lr * g a^T, db = lr * g
		grads.WeightGrads[i].Outer(nn.LearningRate, g, nn.layerInput(i))
		grads.BiasGrads[i].ScaleVec(nn.LearningRate, g)

		delta = g
	}

	if nn.dp != nil {
		ClipGradientByL2Norm(grads, nn.dp.L2NormClip)
	}
	nn.accumulate(grads, 1)
}

// accumulate 将梯度和加入累加器，samples为其对应的样本数
func (nn *NeuronNetwork) accumulate(grads *Gradients, samples int) {
	if nn.accum == nil {
		nn.accum = NewGradients(nn)
	}
	AddGradients(nn.accum, grads)
	nn.samples += samples
}

// Step 用累加梯度的均值更新参数，然后清空累加器
// 累加器为空时不修改参数
func (nn *NeuronNetwork) Step() {
	if nn.samples == 0 {
		nn.Clear()
		return
	}

	if nn.dp != nil && nn.dp.NoiseMultiplier > 0 {
		AddGaussianNoise(nn.accum, nn.dp.NoiseMultiplier, nn.dp.L2NormClip)
	}

	scale := 1 / float64(nn.samples)
	for i, layer := range nn.Layers {
		var dw mat.Dense
		dw.Scale(scale, nn.accum.WeightGrads[i])
		layer.Weights.Sub(layer.Weights, &dw)

		var db mat.VecDense
		db.ScaleVec(scale, nn.accum.BiasGrads[i])
		layer.Biases.SubVec(layer.Biases, &db)
	}

	nn.Clear()
}

// Clear 清空累加的梯度
func (nn *NeuronNetwork) Clear() {
	nn.accum = nil
	nn.samples = 0
}

// Pending 自上次清空以来累加的样本数
func (nn *NeuronNetwork) Pending() int {
	return nn.samples
}

// Accumulated 返回当前累加的梯度和（无累加时为nil）
func (nn *NeuronNetwork) Accumulated() *Gradients {
	return nn.accum
}
