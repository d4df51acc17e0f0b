package models

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"SeqNet/pkg/dataProcess"
	"SeqNet/pkg/network"
	"SeqNet/pkg/protocols"

	"github.com/google/uuid"
)

var (
	ErrModelNotFound = errors.New("模型不存在")
	// ErrNonFinite 损失或输出出现NaN/Inf，无法编码为JSON
	ErrNonFinite = errors.New("模型输出包含NaN/Inf")
)

// CreateRequest 创建模型的参数
type CreateRequest struct {
	Name         string               `json:"name"`
	Layers       []network.LayerSpec  `json:"layers" binding:"required"`
	LearningRate float64              `json:"learning_rate"`
	Loss         string               `json:"loss"`
	Seed         *int64               `json:"seed"`
	DP           *network.DPSGDConfig `json:"dp"`
}

// TrainOptions 训练参数
type TrainOptions struct {
	Epochs    int    `json:"epochs"`
	BatchSize int    `json:"batch_size"`
	Mode      string `json:"mode"` // fit, minibatch, parallel
	Workers   int    `json:"workers"`
	Secure    bool   `json:"secure"` // 并行训练时使用CKKS加密聚合梯度
	Seed      *int64 `json:"seed"`
}

// Info 模型信息
type Info struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Layers        []network.LayerSpec `json:"layers"`
	LearningRate  float64             `json:"learning_rate"`
	Loss          string              `json:"loss"`
	DP            bool                `json:"dp"`
	EpochsTrained int                 `json:"epochs_trained"`
	LastLoss      *float64            `json:"last_loss,omitempty"`
	Diverged      bool                `json:"diverged"`
	Training      bool                `json:"training"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Model 注册表中的一个网络
// 网络的前向/反向缓存不能并发使用，训练和预测通过mu串行化
type Model struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Hub       *Hub

	loss     network.Loss
	lossKind network.LossKind

	mu       sync.Mutex
	net      *network.NeuronNetwork
	epochs   int
	lastLoss *float64
	diverged bool
	training bool

	// 状态查询不等待训练结束
	stateMu sync.RWMutex
}

// Manager 模型注册表
type Manager struct {
	models map[string]*Model
	mu     sync.RWMutex

	aggOnce sync.Once
	agg     network.GradientAggregator
	aggErr  error
}

// NewManager 创建模型注册表
func NewManager() *Manager {
	return &Manager{
		models: make(map[string]*Model),
	}
}

// Create 按请求创建模型并注册
func (m *Manager) Create(req CreateRequest) (*Model, error) {
	lossKind, err := network.ParseLossKind(req.Loss)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", network.ErrInvalidConfig, err)
	}
	loss, err := network.NewLoss(lossKind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", network.ErrInvalidConfig, err)
	}

	var opts []network.Option
	if req.Seed != nil {
		opts = append(opts, network.WithSeed(*req.Seed))
	}
	nn, err := network.NewNeuronNetwork(req.Layers, req.LearningRate, opts...)
	if err != nil {
		return nil, err
	}
	if req.DP != nil {
		if err := nn.SetDP(req.DP); err != nil {
			return nil, err
		}
	}

	model := &Model{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CreatedAt: time.Now(),
		Hub:       NewHub(),
		loss:      loss,
		lossKind:  lossKind,
		net:       nn,
	}

	m.mu.Lock()
	m.models[model.ID] = model
	m.mu.Unlock()

	fmt.Printf("创建模型 %s (%s)\n", model.ID, strings.ReplaceAll(nn.String(), "\n", "; "))
	return model, nil
}

// Get 根据ID获取模型
func (m *Manager) Get(id string) (*Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	model, ok := m.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return model, nil
}

// List 按创建时间返回所有模型信息
func (m *Manager) List() []Info {
	m.mu.RLock()
	models := make([]*Model, 0, len(m.models))
	for _, model := range m.models {
		models = append(models, model)
	}
	m.mu.RUnlock()

	slices.SortFunc(models, func(a, b *Model) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	infos := make([]Info, len(models))
	for i, model := range models {
		infos[i] = model.Info()
	}
	return infos
}

// Count 模型数量
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.models)
}

// Delete 删除模型并关闭其进度订阅
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	model, ok := m.models[id]
	if ok {
		delete(m.models, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	model.Hub.Close()
	fmt.Printf("删除模型 %s\n", id)
	return nil
}

// SecureAggregator 首次使用时生成CKKS密钥，之后复用
func (m *Manager) SecureAggregator() (network.GradientAggregator, error) {
	m.aggOnce.Do(func() {
		fmt.Println("初始化CKKS梯度聚合器...")
		m.agg, m.aggErr = protocols.NewDefaultCKKSAggregator()
	})
	return m.agg, m.aggErr
}

// Info 模型当前状态
func (model *Model) Info() Info {
	model.stateMu.RLock()
	defer model.stateMu.RUnlock()
	return Info{
		ID:            model.ID,
		Name:          model.Name,
		Layers:        model.net.Specs(),
		LearningRate:  model.net.LearningRate,
		Loss:          model.lossKind.String(),
		DP:            model.dpEnabled(),
		EpochsTrained: model.epochs,
		LastLoss:      model.lastLoss,
		Diverged:      model.diverged,
		Training:      model.training,
		CreatedAt:     model.CreatedAt,
	}
}

func (model *Model) dpEnabled() bool {
	return model.net.DP() != nil
}

func (model *Model) setTraining(training bool) {
	model.stateMu.Lock()
	model.training = training
	model.stateMu.Unlock()
}

// Train 训练指定模型，secure时使用共享的CKKS聚合器
func (m *Manager) Train(id string, inputs, targets [][]float64, opts TrainOptions) ([]float64, error) {
	model, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	var agg network.GradientAggregator
	if opts.Secure {
		if agg, err = m.SecureAggregator(); err != nil {
			return nil, err
		}
	}
	return model.Train(inputs, targets, opts, agg)
}

// Predict 使用指定模型预测
func (m *Manager) Predict(id string, inputs [][]float64) ([][]float64, error) {
	model, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return model.Predict(inputs)
}

// Train 在给定数据上训练模型，每轮汇报广播到Hub
// agg为nil时并行训练使用明文求和
// 损失出现NaN/Inf时参数仍已更新，返回损失历史和ErrNonFinite
func (model *Model) Train(inputs, targets [][]float64, opts TrainOptions, agg network.GradientAggregator) ([]float64, error) {
	X := dataProcess.ToVectors(inputs)
	Y := dataProcess.ToVectors(targets)

	cfg := network.DefaultTrainConfig()
	if opts.Epochs != 0 {
		cfg.Epochs = opts.Epochs
	}
	if opts.BatchSize != 0 {
		cfg.BatchSize = opts.BatchSize
	}
	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	cfg.Rand = rand.New(rand.NewSource(seed))
	cfg.OnEpoch = model.Hub.Publish

	model.mu.Lock()
	defer model.mu.Unlock()
	model.setTraining(true)
	defer model.setTraining(false)

	var (
		history []float64
		err     error
	)
	switch strings.ToLower(opts.Mode) {
	case "", "minibatch":
		history, err = model.net.MinibatchFit(X, Y, model.loss, cfg)
	case "fit":
		history, err = model.net.Fit(X, Y, model.loss, cfg)
	case "parallel":
		pcfg := network.ParallelConfig{Workers: opts.Workers, Aggregator: agg}
		if pcfg.Workers == 0 {
			pcfg.Workers = 2
		}
		history, err = model.net.ParallelFit(X, Y, model.loss, cfg, pcfg)
	default:
		return nil, fmt.Errorf("%w: 未知的训练方式 %q", network.ErrInvalidConfig, opts.Mode)
	}
	if err != nil {
		return nil, err
	}

	last := history[len(history)-1]
	diverged := !finite(history...)
	model.stateMu.Lock()
	model.epochs += len(history)
	model.diverged = diverged
	model.lastLoss = nil
	if !diverged {
		model.lastLoss = &last
	}
	model.stateMu.Unlock()

	if diverged {
		return history, fmt.Errorf("%w: 最后一轮平均损失 %v", ErrNonFinite, last)
	}
	return history, nil
}

// Predict 对每个输入做前向传播
func (model *Model) Predict(inputs [][]float64) ([][]float64, error) {
	model.mu.Lock()
	defer model.mu.Unlock()

	for i, row := range inputs {
		if len(row) != model.net.InputSize {
			return nil, fmt.Errorf("%w: 第 %d 个样本维度 %d, 输入层宽度 %d", network.ErrShapeMismatch, i, len(row), model.net.InputSize)
		}
	}
	preds := model.net.Predict(dataProcess.ToVectors(inputs))
	outputs := make([][]float64, len(preds))
	for i, p := range preds {
		outputs[i] = p.RawVector().Data
		if !finite(outputs[i]...) {
			return nil, fmt.Errorf("%w: 第 %d 个样本", ErrNonFinite, i)
		}
	}
	return outputs, nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
