package dataProcess

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Norm 按列归一化：先加上该列最小值的绝对值，再除以该列最大值
// 最大值为0的列保持不变
func Norm(X *mat.Dense) *mat.Dense {
	r, c := X.Dims()
	out := mat.DenseCopyOf(X)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, out)
		floats.AddConst(math.Abs(floats.Min(col)), col)
		if m := floats.Max(col); m != 0 {
			floats.Scale(1/m, col)
		}
		out.SetCol(j, col)
	}
	return out
}

// TrainTestSplit 打乱0..n-1并按比例划分为训练和测试下标
func TrainTestSplit(n int, trainSize float64, rng *rand.Rand) ([]int, []int, error) {
	if trainSize < 0 || trainSize > 1 {
		return nil, nil, fmt.Errorf("训练集比例必须在[0,1]内: %v", trainSize)
	}
	pos := int(float64(n) * trainSize)
	indices := rng.Perm(n)
	return indices[:pos], indices[pos:], nil
}

// SubsetData 不放回地随机抽取n个样本，n超过数据量时返回全部（打乱后）
func SubsetData[T any](data []T, n int, rng *rand.Rand) []T {
	indices := rng.Perm(len(data))
	if n < len(indices) {
		indices = indices[:max(n, 0)]
	}
	return Take(data, indices)
}

// Take 按下标取元素
func Take[T any](data []T, indices []int) []T {
	out := make([]T, len(indices))
	for i, idx := range indices {
		out[i] = data[idx]
	}
	return out
}

// MakeBlobs 生成各向同性的高斯簇，中心在[-10,10]内均匀采样
// 返回样本以及所属簇的下标
func MakeBlobs(n, features, centers int, std float64, rng *rand.Rand) ([]*mat.VecDense, []int) {
	means := make([][]float64, centers)
	for c := range means {
		means[c] = make([]float64, features)
		for j := range means[c] {
			means[c][j] = rng.Float64()*20 - 10
		}
	}

	X := make([]*mat.VecDense, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		c := i % centers
		v := mat.NewVecDense(features, nil)
		for j := 0; j < features; j++ {
			v.SetVec(j, means[c][j]+std*rng.NormFloat64())
		}
		X[i] = v
		labels[i] = c
	}
	return X, labels
}

// ToVectors 每行转换为一个向量
func ToVectors(rows [][]float64) []*mat.VecDense {
	out := make([]*mat.VecDense, len(rows))
	for i, row := range rows {
		out[i] = mat.NewVecDense(len(row), append([]float64(nil), row...))
	}
	return out
}

// FromVectors 将等长向量按行拼成矩阵
func FromVectors(vecs []*mat.VecDense) (*mat.Dense, error) {
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: 向量为空", ErrMisaligned)
	}
	width := vecs[0].Len()
	out := mat.NewDense(len(vecs), width, nil)
	for i, v := range vecs {
		if v.Len() != width {
			return nil, fmt.Errorf("%w: 第 %d 个向量长度 %d, 期望 %d", ErrMisaligned, i, v.Len(), width)
		}
		out.SetRow(i, v.RawVector().Data)
	}
	return out, nil
}

// DenseToVectors 矩阵的每一行转换为一个向量
func DenseToVectors(m *mat.Dense) []*mat.VecDense {
	r, c := m.Dims()
	out := make([]*mat.VecDense, r)
	for i := 0; i < r; i++ {
		out[i] = mat.NewVecDense(c, mat.Row(nil, i, m))
	}
	return out
}
