package training

import (
	"fmt"
	"time"

	"SeqNet/pkg/dataProcess"
	"SeqNet/pkg/network"

	"gonum.org/v1/gonum/mat"
)

// Mode 训练方式
type Mode int

const (
	ModeFit       Mode = iota // 全量梯度，每轮更新一次
	ModeMinibatch             // 小批量
	ModeParallel              // 小批量数据并行
)

// Options 训练选项
type Options struct {
	Mode     Mode
	Loss     network.Loss
	Config   network.TrainConfig
	Parallel network.ParallelConfig
}

// Result 训练前后的评估结果和耗时
type Result struct {
	InitialLoss     float64
	InitialAccuracy float64
	FinalLoss       float64
	FinalAccuracy   float64
	LossHistory     []float64
	TrainTime       time.Duration
	InferenceTime   time.Duration
}

// PrepareSequences 将正负样本序列转换为one-hot k-mer数据集
// 正样本标签为1，负样本标签为0，目标为两类的one-hot编码
func PrepareSequences(pos, neg []dataProcess.Record, k int) (*dataProcess.Dataset, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k必须为正数: %d", k)
	}
	km := dataProcess.NewKmerize(k)

	var inputs, targets []*mat.VecDense
	var labels []int
	for label, records := range [][]dataProcess.Record{neg, pos} {
		for _, v := range km.ProcessOneHot(records) {
			inputs = append(inputs, v)
			targets = append(targets, dataProcess.OneHotEncode(label, 2))
			labels = append(labels, label)
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: 序列中没有长度为 %d 的有效k-mer", network.ErrEmptyDataset, k)
	}
	return dataProcess.NewDataset(inputs, targets, labels)
}

// TrainModel 训练模型，并在训练前后评估测试集准确率和训练集损失
func TrainModel(nn *network.NeuronNetwork, trainDataset, testDataset *dataProcess.Dataset, opts Options) (*Result, error) {
	loss := opts.Loss
	if loss == nil {
		loss = network.MSE{}
	}
	if testDataset == nil {
		testDataset = trainDataset
	}

	res := &Result{}

	// 训练前评估
	res.InitialAccuracy = nn.Evaluate(testDataset.Inputs, testDataset.Targets)
	res.InitialLoss = nn.CalculateLoss(trainDataset.Inputs, trainDataset.Targets, loss)
	fmt.Printf("训练前 - 损失: %.4f, 准确率: %.2f%%\n", res.InitialLoss, res.InitialAccuracy*100)

	// 训练模型
	startTrain := time.Now()
	var err error
	switch opts.Mode {
	case ModeFit:
		res.LossHistory, err = nn.Fit(trainDataset.Inputs, trainDataset.Targets, loss, opts.Config)
	case ModeMinibatch:
		res.LossHistory, err = nn.MinibatchFit(trainDataset.Inputs, trainDataset.Targets, loss, opts.Config)
	case ModeParallel:
		res.LossHistory, err = nn.ParallelFit(trainDataset.Inputs, trainDataset.Targets, loss, opts.Config, opts.Parallel)
	default:
		err = fmt.Errorf("%w: 未知的训练方式 %d", network.ErrInvalidConfig, opts.Mode)
	}
	if err != nil {
		return nil, err
	}
	res.TrainTime = time.Since(startTrain)
	fmt.Printf("训练耗时: %v\n", res.TrainTime)

	// 训练后评估
	startInference := time.Now()
	res.FinalAccuracy = nn.Evaluate(testDataset.Inputs, testDataset.Targets)
	res.FinalLoss = nn.CalculateLoss(trainDataset.Inputs, trainDataset.Targets, loss)
	res.InferenceTime = time.Since(startInference)
	fmt.Printf("推理耗时: %v\n", res.InferenceTime)
	fmt.Printf("训练后 - 损失: %.4f, 准确率: %.2f%%\n", res.FinalLoss, res.FinalAccuracy*100)

	// 打印最后几轮的损失
	lastEpochs := min(5, len(res.LossHistory))
	if lastEpochs > 0 {
		fmt.Printf("最后 %d 轮训练结果:\n", lastEpochs)
		for i := len(res.LossHistory) - lastEpochs; i < len(res.LossHistory); i++ {
			fmt.Printf("轮次 %d - 损失: %.4f\n", i+1, res.LossHistory[i])
		}
	}
	return res, nil
}
