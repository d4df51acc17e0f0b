package network

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ActivationKind 激活函数类型
type ActivationKind int

const (
	ActivationNone    ActivationKind = iota // 无激活函数（仅输入层）
	ActivationSigmoid                       // Sigmoid激活函数
	ActivationTanH                          // TanH激活函数
	ActivationFree                          // 恒等激活函数（直通）
)

var activationNames = map[ActivationKind]string{
	ActivationNone:    "none",
	ActivationSigmoid: "sigmoid",
	ActivationTanH:    "tanh",
	ActivationFree:    "free",
}

func (k ActivationKind) String() string {
	if name, ok := activationNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ActivationKind(%d)", int(k))
}

// ParseActivationKind 根据名称解析激活函数类型
func ParseActivationKind(s string) (ActivationKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" || name == "null" {
		return ActivationNone, nil
	}
	for kind, n := range activationNames {
		if n == name {
			return kind, nil
		}
	}
	return ActivationNone, fmt.Errorf("未知的激活函数: %q", s)
}

// MarshalText 实现 encoding.TextMarshaler，JSON中使用名称表示
func (k ActivationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *ActivationKind) UnmarshalText(text []byte) error {
	kind, err := ParseActivationKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Activation 激活函数接口，对整个向量逐元素操作，输入输出形状相同
type Activation interface {
	Activate(z *mat.VecDense) *mat.VecDense
	Derivative(x *mat.VecDense) *mat.VecDense
}

// NewActivation 根据激活函数类型创建对应实现
func NewActivation(kind ActivationKind) (Activation, error) {
	switch kind {
	case ActivationSigmoid:
		return Sigmoid{}, nil
	case ActivationTanH:
		return TanH{}, nil
	case ActivationFree:
		return Free{}, nil
	case ActivationNone:
		return nil, fmt.Errorf("%w: 计算层必须指定激活函数", ErrInvalidTopology)
	default:
		return nil, fmt.Errorf("%w: 不支持的激活函数 %v", ErrInvalidTopology, kind)
	}
}

// applyVec 对向量逐元素应用fn，返回新向量
func applyVec(fn func(float64) float64, v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	for i := 0; i < v.Len(); i++ {
		out.SetVec(i, fn(v.AtVec(i)))
	}
	return out
}

// Sigmoid 数值稳定的sigmoid激活函数
type Sigmoid struct{}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	// 负数分支避免exp(-x)溢出
	e := math.Exp(x)
	return e / (1 + e)
}

func (Sigmoid) Activate(z *mat.VecDense) *mat.VecDense {
	return applyVec(sigmoid, z)
}

// Derivative sig*(1-sig)，sig按同样的稳定公式重新计算
func (Sigmoid) Derivative(x *mat.VecDense) *mat.VecDense {
	return applyVec(func(v float64) float64 {
		s := sigmoid(v)
		return s * (1 - s)
	}, x)
}

// TanH 双曲正切激活函数，未做数值稳定处理，|x|很大时会得到NaN
type TanH struct{}

func tanh(x float64) float64 {
	ez := math.Exp(x)
	enz := math.Exp(-x)
	return (ez - enz) / (ez + enz)
}

func (TanH) Activate(z *mat.VecDense) *mat.VecDense {
	return applyVec(tanh, z)
}

func (TanH) Derivative(x *mat.VecDense) *mat.VecDense {
	return applyVec(func(v float64) float64 {
		t := tanh(v)
		return 1 - t*t
	}, x)
}

// Free 恒等激活函数，原样传递输入
type Free struct{}

func (Free) Activate(z *mat.VecDense) *mat.VecDense {
	return mat.VecDenseCopyOf(z)
}

// Derivative 常数1，按输入形状展开
func (Free) Derivative(x *mat.VecDense) *mat.VecDense {
	return applyVec(func(float64) float64 { return 1 }, x)
}
