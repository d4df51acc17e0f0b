package network

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

/*
该文件包含神经网络层的封装和该层的前向传播
输入层不单独封装，网络只保存输入宽度和最近一次的输入
*/

// Layer 计算层：权重、偏置、激活函数以及前向传播的缓存
type Layer struct {
	InputSize  int
	OutputSize int
	Weights    *mat.Dense    // OutputSize*InputSize
	Biases     *mat.VecDense // 偏置向量
	Kind       ActivationKind
	Activation Activation

	// 最近一次前向传播的激活前/激活后的值，反向传播复用
	z *mat.VecDense
	a *mat.VecDense
}

// NewLayer 创建新层，权重和偏置从[0,1)均匀分布中采样
func NewLayer(inputSize int, outputSize int, kind ActivationKind, rng *rand.Rand) (*Layer, error) {
	activation, err := NewActivation(kind)
	if err != nil {
		return nil, err
	}

	weights := mat.NewDense(outputSize, inputSize, nil)
	for i := 0; i < outputSize; i++ {
		for j := 0; j < inputSize; j++ {
			weights.Set(i, j, rng.Float64())
		}
	}
	biases := mat.NewVecDense(outputSize, nil)
	for i := 0; i < outputSize; i++ {
		biases.SetVec(i, rng.Float64())
	}

	return &Layer{
		InputSize:  inputSize,
		OutputSize: outputSize,
		Weights:    weights,
		Biases:     biases,
		Kind:       kind,
		Activation: activation,
		z:          mat.NewVecDense(outputSize, nil),
		a:          mat.NewVecDense(outputSize, nil),
	}, nil
}

// Forward z = Wx + b, a = f(z)，结果写入缓存
func (l *Layer) Forward(x *mat.VecDense) *mat.VecDense {
	l.z.MulVec(l.Weights, x)
	l.z.AddVec(l.z, l.Biases)
	l.a = l.Activation.Activate(l.z)
	return l.a
}

// PreActivation 返回最近一次的z
func (l *Layer) PreActivation() *mat.VecDense { return l.z }

// Output 返回最近一次的a
func (l *Layer) Output() *mat.VecDense { return l.a }

// replica 共享权重和偏置，但拥有独立的缓存
func (l *Layer) replica() *Layer {
	return &Layer{
		InputSize:  l.InputSize,
		OutputSize: l.OutputSize,
		Weights:    l.Weights,
		Biases:     l.Biases,
		Kind:       l.Kind,
		Activation: l.Activation,
		z:          mat.NewVecDense(l.OutputSize, nil),
		a:          mat.NewVecDense(l.OutputSize, nil),
	}
}
