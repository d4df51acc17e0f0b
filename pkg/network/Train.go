package network

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// EpochReport 每轮训练结束后的汇报
type EpochReport struct {
	Epoch    int     `json:"epoch"`
	Epochs   int     `json:"epochs"`
	MeanLoss float64 `json:"mean_loss"`
}

// TrainConfig 训练配置
type TrainConfig struct {
	Epochs        int
	BatchSize     int
	StatusUpdates int // 每隔多少轮打印一次平均损失
	Verbose       bool
	Out           io.Writer // 默认os.Stderr
	Rand          *rand.Rand
	OnEpoch       func(EpochReport)
}

// DefaultTrainConfig 默认训练配置
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:        100,
		BatchSize:     10,
		StatusUpdates: 10,
		Out:           os.Stderr,
	}
}

func (c *TrainConfig) normalize(batched bool) error {
	if c.Epochs <= 0 {
		return fmt.Errorf("%w: 训练轮数必须为正数", ErrInvalidConfig)
	}
	if batched && c.BatchSize <= 0 {
		return fmt.Errorf("%w: 批次大小必须为正数", ErrInvalidConfig)
	}
	if c.StatusUpdates <= 0 {
		c.StatusUpdates = 10
	}
	if c.Out == nil {
		c.Out = os.Stderr
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return nil
}

// CheckDataset 训练开始前检查数据集与网络结构是否一致
func (nn *NeuronNetwork) CheckDataset(X, Y []*mat.VecDense) error {
	if len(X) != len(Y) {
		return fmt.Errorf("%w: 样本数 %d, 标签数 %d", ErrShapeMismatch, len(X), len(Y))
	}
	if len(X) == 0 {
		return ErrEmptyDataset
	}
	out := nn.OutputSize()
	for i := range X {
		if X[i].Len() != nn.InputSize {
			return fmt.Errorf("%w: 第 %d 个样本维度 %d, 输入层宽度 %d", ErrShapeMismatch, i, X[i].Len(), nn.InputSize)
		}
		if Y[i].Len() != out {
			return fmt.Errorf("%w: 第 %d 个标签维度 %d, 输出层宽度 %d", ErrShapeMismatch, i, Y[i].Len(), out)
		}
	}
	return nil
}

// trainSample 单个样本：前向传播、计算损失、反向传播累加梯度
func (nn *NeuronNetwork) trainSample(x, y *mat.VecDense, loss Loss) float64 {
	pred := nn.Forward(x)
	l := loss.Loss(pred, y)
	nn.Backward(y, loss)
	return l
}

// endEpoch 计算本轮平均损失并按配置汇报
func endEpoch(cfg TrainConfig, epoch int, losses []float64) float64 {
	meanLoss := stat.Mean(losses, nil)
	if cfg.Verbose && (epoch%cfg.StatusUpdates == 0 || epoch == cfg.Epochs-1) {
		fmt.Fprintf(cfg.Out, "Mean Loss at epoch %d : %.6f\n", epoch, meanLoss)
	}
	if cfg.OnEpoch != nil {
		cfg.OnEpoch(EpochReport{Epoch: epoch, Epochs: cfg.Epochs, MeanLoss: meanLoss})
	}
	return meanLoss
}

// Fit 按数据集顺序逐个样本累加梯度，每轮结束时更新一次参数
// 返回每轮的平均损失
func (nn *NeuronNetwork) Fit(X, Y []*mat.VecDense, loss Loss, cfg TrainConfig) ([]float64, error) {
	if err := cfg.normalize(false); err != nil {
		return nil, err
	}
	if err := nn.CheckDataset(X, Y); err != nil {
		return nil, err
	}

	lossHistory := make([]float64, cfg.Epochs)
	losses := make([]float64, len(X))
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for i := range X {
			losses[i] = nn.trainSample(X[i], Y[i], loss)
		}

		// 每轮应用一次梯度下降，并清空梯度
		nn.Step()
		nn.Clear()

		lossHistory[epoch] = endEpoch(cfg, epoch, losses)
	}
	return lossHistory, nil
}

// MinibatchFit 每轮随机打乱样本并切分为批次，每个批次更新一次参数
func (nn *NeuronNetwork) MinibatchFit(X, Y []*mat.VecDense, loss Loss, cfg TrainConfig) ([]float64, error) {
	if err := cfg.normalize(true); err != nil {
		return nil, err
	}
	if err := nn.CheckDataset(X, Y); err != nil {
		return nil, err
	}

	lossHistory := make([]float64, cfg.Epochs)
	losses := make([]float64, 0, len(X))
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		losses = losses[:0]
		for _, batch := range createBatches(shuffleIndices(len(X), cfg.Rand), cfg.BatchSize) {
			for _, idx := range batch {
				losses = append(losses, nn.trainSample(X[idx], Y[idx], loss))
			}
			// 每个批次应用一次梯度
			nn.Step()
			nn.Clear()
		}

		lossHistory[epoch] = endEpoch(cfg, epoch, losses)
	}
	return lossHistory, nil
}

// Predict 对每个样本独立做前向传播，按输入顺序返回输出的副本
func (nn *NeuronNetwork) Predict(X []*mat.VecDense) []*mat.VecDense {
	predictions := make([]*mat.VecDense, len(X))
	for i, x := range X {
		predictions[i] = mat.VecDenseCopyOf(nn.Forward(x))
	}
	return predictions
}

// Classify 预测样本的类别（输出最大值的下标）
func (nn *NeuronNetwork) Classify(x *mat.VecDense) int {
	return argmax(nn.Forward(x))
}

// Evaluate 评估模型的分类准确率，标签为one-hot编码
func (nn *NeuronNetwork) Evaluate(X, Y []*mat.VecDense) float64 {
	if len(X) == 0 {
		return 0
	}
	correct := 0
	for i := range X {
		if nn.Classify(X[i]) == argmax(Y[i]) {
			correct++
		}
	}
	return float64(correct) / float64(len(X))
}

// CalculateLoss 计算整个数据集的平均损失，不累加梯度
func (nn *NeuronNetwork) CalculateLoss(X, Y []*mat.VecDense, loss Loss) float64 {
	if len(X) == 0 {
		return 0
	}
	total := 0.0
	for i := range X {
		total += loss.Loss(nn.Forward(X[i]), Y[i])
	}
	return total / float64(len(X))
}

func argmax(v *mat.VecDense) int {
	maxIdx := 0
	for i := 1; i < v.Len(); i++ {
		if v.AtVec(i) > v.AtVec(maxIdx) {
			maxIdx = i
		}
	}
	return maxIdx
}

// 辅助函数：打乱索引顺序
func shuffleIndices(length int, rng *rand.Rand) []int {
	indices := make([]int, length)
	for i := 0; i < length; i++ {
		indices[i] = i
	}

	// Fisher-Yates 洗牌算法
	for i := length - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}

	return indices
}

// createBatches 将索引切分为连续的批次，最后一个批次可能较小
func createBatches(indices []int, batchSize int) [][]int {
	numBatches := (len(indices) + batchSize - 1) / batchSize
	batches := make([][]int, numBatches)
	for i := 0; i < numBatches; i++ {
		start := i * batchSize
		end := min(start+batchSize, len(indices))
		batches[i] = indices[start:end]
	}
	return batches
}
