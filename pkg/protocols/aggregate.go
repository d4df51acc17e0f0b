package protocols

import (
	"fmt"
	"sync"

	"SeqNet/pkg/network"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// DefaultParametersLiteral 梯度聚合使用的CKKS参数，只需要加法，一层模数即可
var DefaultParametersLiteral = ckks.ParametersLiteral{
	LogN:            13,
	LogQ:            []int{55, 40},
	LogP:            []int{61},
	LogDefaultScale: 40,
	RingType:        ring.Standard,
}

// InitParameters 根据参数字面量创建CKKS参数
func InitParameters(literal ckks.ParametersLiteral) (ckks.Parameters, error) {
	params, err := ckks.NewParametersFromLiteral(literal)
	if err != nil {
		return params, fmt.Errorf("CKKS参数创建失败: %w", err)
	}
	return params, nil
}

// CKKSAggregator 在密文下对各工作者的梯度求和
// 每个梯度展开后按槽数切块加密，逐块同态相加，最后解密还原
type CKKSAggregator struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor
	Evaluator *ckks.Evaluator

	// 编码器和求值器内部有缓冲区，不能并发使用
	mu sync.Mutex
}

// NewCKKSAggregator 生成密钥对并创建聚合器
func NewCKKSAggregator(params ckks.Parameters) *CKKSAggregator {
	kg := rlwe.NewKeyGenerator(params)
	sk := kg.GenSecretKeyNew()
	pk := kg.GenPublicKeyNew(sk)

	return &CKKSAggregator{
		Params:    params,
		Encoder:   ckks.NewEncoder(params),
		Encryptor: ckks.NewEncryptor(params, pk),
		Decryptor: ckks.NewDecryptor(params, sk),
		Evaluator: ckks.NewEvaluator(params, nil),
	}
}

// NewDefaultCKKSAggregator 使用默认参数创建聚合器
func NewDefaultCKKSAggregator() (*CKKSAggregator, error) {
	params, err := InitParameters(DefaultParametersLiteral)
	if err != nil {
		return nil, err
	}
	return NewCKKSAggregator(params), nil
}

// Slots 每个密文可容纳的值个数
func (a *CKKSAggregator) Slots() int {
	return a.Params.MaxSlots()
}

// Aggregate 实现network.GradientAggregator
func (a *CKKSAggregator) Aggregate(parts []*network.Gradients) (*network.Gradients, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: 没有可聚合的梯度", network.ErrEmptyDataset)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	length := parts[0].Len()
	slots := a.Slots()

	var sum []*rlwe.Ciphertext
	for p, part := range parts {
		if part.Len() != length {
			return nil, fmt.Errorf("%w: 第 %d 份梯度长度 %d, 期望 %d", network.ErrShapeMismatch, p, part.Len(), length)
		}
		cts, err := a.encrypt(part.Flatten(), slots)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			sum = cts
			continue
		}
		for i := range sum {
			if err := a.Evaluator.Add(sum[i], cts[i], sum[i]); err != nil {
				return nil, fmt.Errorf("密文加法失败: %w", err)
			}
		}
	}

	flat, err := a.decrypt(sum, length, slots)
	if err != nil {
		return nil, err
	}
	out := parts[0].ZeroLike()
	if err := out.SetFlat(flat); err != nil {
		return nil, err
	}
	return out, nil
}

// encrypt 将向量按槽数切块，逐块编码并加密
func (a *CKKSAggregator) encrypt(values []float64, slots int) ([]*rlwe.Ciphertext, error) {
	cts := make([]*rlwe.Ciphertext, 0, (len(values)+slots-1)/slots)
	for start := 0; start < len(values); start += slots {
		end := min(start+slots, len(values))

		pt := ckks.NewPlaintext(a.Params, a.Params.MaxLevel())
		if err := a.Encoder.Encode(values[start:end], pt); err != nil {
			return nil, fmt.Errorf("编码失败: %w", err)
		}
		ct, err := a.Encryptor.EncryptNew(pt)
		if err != nil {
			return nil, fmt.Errorf("加密失败: %w", err)
		}
		cts = append(cts, ct)
	}
	return cts, nil
}

// decrypt 解密并解码各块，拼接为长度为length的向量
func (a *CKKSAggregator) decrypt(cts []*rlwe.Ciphertext, length, slots int) ([]float64, error) {
	out := make([]float64, 0, length)
	decoded := make([]float64, slots)
	for _, ct := range cts {
		pt := a.Decryptor.DecryptNew(ct)
		if err := a.Encoder.Decode(pt, decoded); err != nil {
			return nil, fmt.Errorf("解码失败: %w", err)
		}
		n := min(slots, length-len(out))
		out = append(out, decoded[:n]...)
	}
	return out, nil
}
