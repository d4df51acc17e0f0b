package dataProcess

import (
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Nucleotides 碱基字母表，下标即one-hot编码的位置
var Nucleotides = []string{"A", "C", "T", "G"}

// Kmerize 从序列中生成长度为K的k-mer
type Kmerize struct {
	K      int
	Lookup map[string]int
}

// NewKmerize 使用默认碱基映射 A:0 C:1 T:2 G:3
func NewKmerize(k int) *Kmerize {
	lookup := make(map[string]int, len(Nucleotides))
	for i, n := range Nucleotides {
		lookup[n] = i
	}
	return &Kmerize{K: k, Lookup: lookup}
}

// Kmers 按步长1切出所有长度为K的子串，序列短于K时为空
func (km *Kmerize) Kmers(seq string) []string {
	if km.K <= 0 || len(seq) < km.K {
		return nil
	}
	kmers := make([]string, 0, len(seq)-km.K+1)
	for i := 0; i+km.K <= len(seq); i++ {
		kmers = append(kmers, seq[i:i+km.K])
	}
	return kmers
}

// Process 所有记录的k-mer，按记录顺序
func (km *Kmerize) Process(records []Record) []string {
	var out []string
	for _, rec := range records {
		out = append(out, km.Kmers(strings.ToUpper(rec.Seq))...)
	}
	return out
}

// Encode 将一个k-mer编码为展开的one-hot向量，长度K*len(Lookup)
func (km *Kmerize) Encode(kmer string) (*mat.VecDense, error) {
	return OneHotFlatten(strings.Split(kmer, ""), km.Lookup)
}

// ProcessOneHot 所有记录的one-hot k-mer，跳过含未知碱基的k-mer
func (km *Kmerize) ProcessOneHot(records []Record) []*mat.VecDense {
	var out []*mat.VecDense
	for _, kmer := range km.Process(records) {
		v, err := km.Encode(kmer)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
