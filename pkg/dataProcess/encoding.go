package dataProcess

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LabelLookup 按排序后的唯一值为标签分配下标
func LabelLookup[T cmp.Ordered](labels []T) map[T]int {
	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	lookup := make(map[T]int, len(classes))
	for i, c := range classes {
		lookup[c] = i
	}
	return lookup
}

// OneHotEncoding 将标签转换为one-hot矩阵，每行一个标签
// lookup为nil时由LabelLookup生成
func OneHotEncoding[T cmp.Ordered](labels []T, lookup map[T]int) (*mat.Dense, error) {
	if lookup == nil {
		lookup = LabelLookup(labels)
	}
	if len(labels) == 0 || len(lookup) == 0 {
		return nil, fmt.Errorf("%w: 标签为空", ErrUnknownLabel)
	}

	ohe := mat.NewDense(len(labels), len(lookup), nil)
	for i, l := range labels {
		j, ok := lookup[l]
		if !ok || j < 0 || j >= len(lookup) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownLabel, l)
		}
		ohe.Set(i, j, 1)
	}
	return ohe, nil
}

// OneHotFlatten one-hot矩阵按行展开为向量
func OneHotFlatten[T cmp.Ordered](labels []T, lookup map[T]int) (*mat.VecDense, error) {
	ohe, err := OneHotEncoding(labels, lookup)
	if err != nil {
		return nil, err
	}
	r, c := ohe.Dims()
	return mat.NewVecDense(r*c, ohe.RawMatrix().Data), nil
}

// OneHotEncode 单个类别的one-hot向量
func OneHotEncode(label int, numClasses int) *mat.VecDense {
	oneHot := mat.NewVecDense(numClasses, nil)
	oneHot.SetVec(label, 1.0)
	return oneHot
}

// InverseOneHotEncoding 将展开的one-hot向量还原为字母序列，每段取最大值所在的字母
func InverseOneHotEncoding(ohe *mat.VecDense, alphabet []string) (string, error) {
	width := len(alphabet)
	if width == 0 || ohe.Len()%width != 0 {
		return "", fmt.Errorf("%w: 向量长度 %d 不能按字母表大小 %d 划分", ErrMisaligned, ohe.Len(), width)
	}

	var sb strings.Builder
	for start := 0; start < ohe.Len(); start += width {
		best := 0
		for j := 1; j < width; j++ {
			if ohe.AtVec(start+j) > ohe.AtVec(start+best) {
				best = j
			}
		}
		sb.WriteString(alphabet[best])
	}
	return sb.String(), nil
}
