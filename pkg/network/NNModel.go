package network

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
)

/*
该文件包含整个神经网络的初始化方法
*/

var (
	ErrInvalidTopology = errors.New("网络结构不合法")
	ErrShapeMismatch   = errors.New("数据维度不匹配")
	ErrEmptyDataset    = errors.New("数据集为空")
	ErrInvalidConfig   = errors.New("训练配置不合法")
)

// LayerSpec 层配置：宽度和激活函数，下标0为输入层
type LayerSpec struct {
	Width      int            `json:"width"`
	Activation ActivationKind `json:"activation"`
}

// ParseLayerSpecs 解析形如 "8:none,4:sigmoid,8:sigmoid" 的层配置
func ParseLayerSpecs(s string) ([]LayerSpec, error) {
	parts := strings.Split(s, ",")
	specs := make([]LayerSpec, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		widthStr, actStr, _ := strings.Cut(part, ":")
		width, err := strconv.Atoi(strings.TrimSpace(widthStr))
		if err != nil {
			return nil, fmt.Errorf("层宽度解析失败 %q: %w", part, err)
		}
		kind, err := ParseActivationKind(actStr)
		if err != nil {
			return nil, err
		}
		specs = append(specs, LayerSpec{Width: width, Activation: kind})
	}
	return specs, nil
}

// ValidateSpecs 检查层配置：至少两层，宽度为正，只有输入层没有激活函数
func ValidateSpecs(specs []LayerSpec) error {
	if len(specs) < 2 {
		return fmt.Errorf("%w: 至少需要输入层和一个计算层，实际 %d 层", ErrInvalidTopology, len(specs))
	}
	for i, spec := range specs {
		if spec.Width <= 0 {
			return fmt.Errorf("%w: 第 %d 层宽度必须为正数", ErrInvalidTopology, i)
		}
		if i == 0 && spec.Activation != ActivationNone {
			return fmt.Errorf("%w: 输入层不能有激活函数", ErrInvalidTopology)
		}
		if i > 0 && spec.Activation == ActivationNone {
			return fmt.Errorf("%w: 第 %d 层缺少激活函数", ErrInvalidTopology, i)
		}
	}
	return nil
}

type options struct {
	rng *rand.Rand
}

// Option 网络构造选项
type Option func(*options)

// WithSeed 使用固定种子初始化参数
func WithSeed(seed int64) Option {
	return func(o *options) { o.rng = rand.New(rand.NewSource(seed)) }
}

// WithRand 使用给定随机源初始化参数
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// NeuronNetwork 前馈神经网络
type NeuronNetwork struct {
	InputSize    int
	Layers       []*Layer
	LearningRate float64

	// 最近一次输入（输入层的激活值）
	input *mat.VecDense

	// 梯度累加器：自上次Step以来的梯度和与样本数
	accum   *Gradients
	samples int

	dp *DPSGDConfig
}

// NewNeuronNetwork 根据层配置和学习率创建网络
func NewNeuronNetwork(specs []LayerSpec, learningRate float64, opts ...Option) (*NeuronNetwork, error) {
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}
	if math.IsNaN(learningRate) || learningRate < 0 {
		return nil, fmt.Errorf("%w: 学习率必须为非负数 (%v)", ErrInvalidConfig, learningRate)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	//存储网络中每个计算层的切片
	layers := make([]*Layer, len(specs)-1)
	for i := range layers {
		layer, err := NewLayer(specs[i].Width, specs[i+1].Width, specs[i+1].Activation, o.rng)
		if err != nil {
			return nil, err
		}
		layers[i] = layer
	}

	return &NeuronNetwork{
		InputSize:    specs[0].Width,
		Layers:       layers,
		LearningRate: learningRate,
		input:        mat.NewVecDense(specs[0].Width, nil),
	}, nil
}

// OutputSize 输出层宽度
func (nn *NeuronNetwork) OutputSize() int {
	return nn.Layers[len(nn.Layers)-1].OutputSize
}

// Specs 返回网络的层配置
func (nn *NeuronNetwork) Specs() []LayerSpec {
	specs := make([]LayerSpec, 0, len(nn.Layers)+1)
	specs = append(specs, LayerSpec{Width: nn.InputSize, Activation: ActivationNone})
	for _, layer := range nn.Layers {
		specs = append(specs, LayerSpec{Width: layer.OutputSize, Activation: layer.Kind})
	}
	return specs
}

// Input 返回最近一次前向传播的输入
func (nn *NeuronNetwork) Input() *mat.VecDense {
	return nn.input
}

func (nn *NeuronNetwork) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "输入层: %d", nn.InputSize)
	for i, layer := range nn.Layers {
		fmt.Fprintf(&sb, "\n第 %d 层: %dx%d, 激活函数: %v", i+1, layer.OutputSize, layer.InputSize, layer.Kind)
	}
	return sb.String()
}

// replica 创建共享参数但拥有独立缓存和累加器的副本，用于数据并行训练
func (nn *NeuronNetwork) replica() *NeuronNetwork {
	layers := make([]*Layer, len(nn.Layers))
	for i, layer := range nn.Layers {
		layers[i] = layer.replica()
	}
	return &NeuronNetwork{
		InputSize:    nn.InputSize,
		Layers:       layers,
		LearningRate: nn.LearningRate,
		input:        mat.NewVecDense(nn.InputSize, nil),
		dp:           nn.dp,
	}
}
