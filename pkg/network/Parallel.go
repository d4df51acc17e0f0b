package network

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

/*
该文件包含数据并行训练：每个批次拆分给多个副本计算梯度，聚合后统一更新参数
*/

// GradientAggregator 将多个工作者的梯度和合并为一个
type GradientAggregator interface {
	Aggregate(parts []*Gradients) (*Gradients, error)
}

// SumAggregator 明文逐元素求和
type SumAggregator struct{}

// Aggregate 明文求和
func (SumAggregator) Aggregate(parts []*Gradients) (*Gradients, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: 没有可聚合的梯度", ErrEmptyDataset)
	}
	sum := parts[0].ZeroLike()
	for _, p := range parts {
		AddGradients(sum, p)
	}
	return sum, nil
}

// ParallelConfig 并行训练配置
type ParallelConfig struct {
	Workers    int
	Aggregator GradientAggregator // 为nil时使用SumAggregator
}

// worker 一个副本负责的批次片段
type worker struct {
	replica *NeuronNetwork
	start   int
	end     int
}

// ParallelFit 按小批量节奏训练，每个批次按工作者数量切分，各副本并发累加梯度，
// 全部完成后由聚合器合并，写入主网络的累加器并更新一次参数
func (nn *NeuronNetwork) ParallelFit(X, Y []*mat.VecDense, loss Loss, cfg TrainConfig, pcfg ParallelConfig) ([]float64, error) {
	if err := cfg.normalize(true); err != nil {
		return nil, err
	}
	if pcfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: 工作者数量必须为正数", ErrInvalidConfig)
	}
	if err := nn.CheckDataset(X, Y); err != nil {
		return nil, err
	}
	aggregator := pcfg.Aggregator
	if aggregator == nil {
		aggregator = SumAggregator{}
	}

	replicas := make([]*NeuronNetwork, pcfg.Workers)
	for i := range replicas {
		replicas[i] = nn.replica()
	}

	lossHistory := make([]float64, cfg.Epochs)
	losses := make([]float64, len(X))
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		perm := shuffleIndices(len(X), cfg.Rand)
		offset := 0
		for _, batch := range createBatches(perm, cfg.BatchSize) {
			workers := splitBatch(replicas, len(batch))

			var wg sync.WaitGroup
			for _, w := range workers {
				wg.Add(1)
				go func(w worker) {
					defer wg.Done()
					for j := w.start; j < w.end; j++ {
						idx := batch[j]
						losses[offset+j] = w.replica.trainSample(X[idx], Y[idx], loss)
					}
				}(w)
			}
			wg.Wait()

			parts := make([]*Gradients, 0, len(workers))
			count := 0
			for _, w := range workers {
				if w.replica.Pending() == 0 {
					continue
				}
				parts = append(parts, w.replica.Accumulated())
				count += w.replica.Pending()
				w.replica.Clear()
			}

			sum, err := aggregator.Aggregate(parts)
			if err != nil {
				return nil, fmt.Errorf("梯度聚合失败: %w", err)
			}
			nn.accumulate(sum, count)
			nn.Step()
			nn.Clear()

			offset += len(batch)
		}

		lossHistory[epoch] = endEpoch(cfg, epoch, losses)
	}
	return lossHistory, nil
}

// splitBatch 将长度为n的批次切分为连续片段，每个副本至多一个片段
func splitBatch(replicas []*NeuronNetwork, n int) []worker {
	per := (n + len(replicas) - 1) / len(replicas)
	workers := make([]worker, 0, len(replicas))
	for i, start := 0, 0; start < n; i, start = i+1, start+per {
		workers = append(workers, worker{
			replica: replicas[i],
			start:   start,
			end:     min(start+per, n),
		})
	}
	return workers
}
