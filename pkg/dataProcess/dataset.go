package dataProcess

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

/*
该文件实现训练数据集的封装
*/

var (
	ErrMisaligned    = errors.New("数据集长度不一致")
	ErrMissingHeader = errors.New("FASTA记录缺少标题行")
	ErrUnknownLabel  = errors.New("标签不在映射表中")
)

// Dataset 输入、目标以及整数类别标签，三者按下标对齐
type Dataset struct {
	Inputs  []*mat.VecDense
	Targets []*mat.VecDense
	Labels  []int
}

// NewDataset 创建数据集，labels可以为nil
func NewDataset(inputs, targets []*mat.VecDense, labels []int) (*Dataset, error) {
	sizes := []int{len(inputs), len(targets)}
	if labels != nil {
		sizes = append(sizes, len(labels))
	}
	if err := CheckAligned(sizes...); err != nil {
		return nil, err
	}
	return &Dataset{Inputs: inputs, Targets: targets, Labels: labels}, nil
}

// Len 样本数
func (d *Dataset) Len() int {
	return len(d.Inputs)
}

// Subset 按下标取子集
func (d *Dataset) Subset(indices []int) *Dataset {
	out := &Dataset{
		Inputs:  Take(d.Inputs, indices),
		Targets: Take(d.Targets, indices),
	}
	if d.Labels != nil {
		out.Labels = Take(d.Labels, indices)
	}
	return out
}

// Split 随机划分训练集和测试集
func (d *Dataset) Split(trainSize float64, rng *rand.Rand) (*Dataset, *Dataset, error) {
	train, test, err := TrainTestSplit(d.Len(), trainSize, rng)
	if err != nil {
		return nil, nil, err
	}
	return d.Subset(train), d.Subset(test), nil
}

// CheckAligned 检查多个数据集长度是否一致
func CheckAligned(sizes ...int) error {
	for i := 1; i < len(sizes); i++ {
		if sizes[i] != sizes[0] {
			return fmt.Errorf("%w: %v", ErrMisaligned, sizes)
		}
	}
	return nil
}
