package network

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LossKind 损失函数类型
type LossKind int

const (
	LossMSE LossKind = iota // 均方误差
	LossCE                  // 交叉熵（内含softmax）
)

func (k LossKind) String() string {
	switch k {
	case LossMSE:
		return "mse"
	case LossCE:
		return "ce"
	default:
		return fmt.Sprintf("LossKind(%d)", int(k))
	}
}

// ParseLossKind 根据名称解析损失函数类型
func ParseLossKind(s string) (LossKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mse":
		return LossMSE, nil
	case "ce", "cross_entropy", "crossentropy":
		return LossCE, nil
	}
	return LossMSE, fmt.Errorf("未知的损失函数: %q", s)
}

// Loss 损失函数接口
// Derivative 返回的向量长度与pred相同
type Loss interface {
	Loss(pred, actual *mat.VecDense) float64
	Derivative(pred, actual *mat.VecDense) *mat.VecDense
}

// NewLoss 根据损失函数类型创建对应实现
func NewLoss(kind LossKind) (Loss, error) {
	switch kind {
	case LossMSE:
		return MSE{}, nil
	case LossCE:
		return CE{}, nil
	}
	return nil, fmt.Errorf("不支持的损失函数: %v", kind)
}

// MSE 均方误差损失函数
type MSE struct{}

func (MSE) Loss(pred, actual *mat.VecDense) float64 {
	diff := mat.NewVecDense(pred.Len(), nil)
	diff.SubVec(pred, actual)
	return mat.Dot(diff, diff) / float64(diff.Len())
}

// Derivative 返回标量 2*mean(pred-actual)，填充到整个输出宽度
func (MSE) Derivative(pred, actual *mat.VecDense) *mat.VecDense {
	diff := mat.NewVecDense(pred.Len(), nil)
	diff.SubVec(pred, actual)
	d := 2 * mat.Sum(diff) / float64(diff.Len())

	out := make([]float64, pred.Len())
	for i := range out {
		out[i] = d
	}
	return mat.NewVecDense(len(out), out)
}

// CE 交叉熵损失函数，先对pred做softmax
type CE struct{}

// Softmax 减去最大值后做指数归一化
func Softmax(v *mat.VecDense) *mat.VecDense {
	maxVal := mat.Max(v)
	exps := make([]float64, v.Len())
	for i := range exps {
		exps[i] = math.Exp(v.AtVec(i) - maxVal)
	}
	floats.Scale(1/floats.Sum(exps), exps)
	return mat.NewVecDense(len(exps), exps)
}

func (CE) Loss(pred, actual *mat.VecDense) float64 {
	p := Softmax(pred)
	loss := 0.0
	for i := 0; i < p.Len(); i++ {
		loss += -actual.AtVec(i) * math.Log(p.AtVec(i))
	}
	return loss
}

// Derivative 返回 softmax(pred) - actual（已包含softmax的梯度）
func (CE) Derivative(pred, actual *mat.VecDense) *mat.VecDense {
	grad := Softmax(pred)
	grad.SubVec(grad, actual)
	return grad
}
