package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DPSGDConfig 差分隐私SGD配置
type DPSGDConfig struct {
	// L2范数裁剪阈值
	L2NormClip float64 `json:"l2_norm_clip"`
	// 噪声乘数
	NoiseMultiplier float64 `json:"noise_multiplier"`
}

// NewDPSGDConfig 创建一个默认的DPSGD配置
func NewDPSGDConfig() *DPSGDConfig {
	return &DPSGDConfig{
		L2NormClip:      1.0,
		NoiseMultiplier: 1.0,
	}
}

// Validate 检查配置是否合法
func (c *DPSGDConfig) Validate() error {
	if c.L2NormClip <= 0 {
		return fmt.Errorf("%w: 裁剪阈值必须为正数", ErrInvalidConfig)
	}
	if c.NoiseMultiplier < 0 {
		return fmt.Errorf("%w: 噪声乘数不能为负数", ErrInvalidConfig)
	}
	return nil
}

// SetDP 启用差分隐私训练；传入nil关闭
// 启用后每个样本的梯度在累加前按层裁剪，Step时向梯度和添加高斯噪声
func (nn *NeuronNetwork) SetDP(cfg *DPSGDConfig) error {
	if cfg == nil {
		nn.dp = nil
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := *cfg
	nn.dp = &c
	return nil
}

// DP 返回当前的差分隐私配置，未启用时为nil
func (nn *NeuronNetwork) DP() *DPSGDConfig {
	return nn.dp
}

// ClipGradientByL2Norm 通过L2范数裁剪梯度，返回每层裁剪后的范数
func ClipGradientByL2Norm(grad *Gradients, maxNorm float64) []float64 {
	// 创建一个切片存储每层的L2范数
	layerNorms := make([]float64, len(grad.WeightGrads))

	for i := range grad.WeightGrads {
		weightGradNorm := grad.WeightGrads[i].Norm(2)
		biasGradNorm := grad.BiasGrads[i].Norm(2)

		totalNorm := math.Sqrt(weightGradNorm*weightGradNorm + biasGradNorm*biasGradNorm)
		layerNorms[i] = totalNorm

		// 如果范数超过阈值，进行裁剪
		if totalNorm > maxNorm {
			scaleFactor := maxNorm / totalNorm
			grad.WeightGrads[i].Scale(scaleFactor, grad.WeightGrads[i])
			grad.BiasGrads[i].ScaleVec(scaleFactor, grad.BiasGrads[i])
			layerNorms[i] = maxNorm
		}
	}
	return layerNorms
}

// AddGaussianNoise 添加高斯噪声到梯度
// 标准差 = 噪声乘数 * 裁剪阈值
func AddGaussianNoise(grad *Gradients, sigma, l2NormClip float64) {
	stdDev := sigma * l2NormClip
	if stdDev == 0 {
		return
	}

	normal := distuv.Normal{
		Mu:    0,
		Sigma: stdDev,
	}

	for i := range grad.WeightGrads {
		r, c := grad.WeightGrads[i].Dims()
		for j := 0; j < r; j++ {
			for k := 0; k < c; k++ {
				grad.WeightGrads[i].Set(j, k, grad.WeightGrads[i].At(j, k)+normal.Rand())
			}
		}

		for j := 0; j < grad.BiasGrads[i].Len(); j++ {
			grad.BiasGrads[i].SetVec(j, grad.BiasGrads[i].AtVec(j)+normal.Rand())
		}
	}
}
