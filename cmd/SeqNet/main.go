package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"SeqNet/pkg/dataProcess"
	"SeqNet/pkg/network"
	"SeqNet/pkg/protocols"
	"SeqNet/pkg/training"
)

func main() {
	var (
		posPath   = flag.String("pos", "", "正样本FASTA文件")
		negPath   = flag.String("neg", "", "负样本FASTA文件")
		k         = flag.Int("k", 17, "k-mer长度")
		layers    = flag.String("layers", "", "层配置，如 \"68:none,16:sigmoid,2:sigmoid\"，默认按k生成")
		lr        = flag.Float64("lr", 0.1, "学习率")
		epochs    = flag.Int("epochs", 100, "训练轮数")
		batch     = flag.Int("batch", 0, "批次大小，0表示每轮更新一次")
		workers   = flag.Int("workers", 1, "并行训练的工作者数量")
		secure    = flag.Bool("secure", false, "并行训练时使用CKKS加密聚合梯度")
		lossName  = flag.String("loss", "mse", "损失函数: mse 或 ce")
		status    = flag.Int("status", 10, "每隔多少轮打印一次损失")
		dpClip    = flag.Float64("dp-clip", 0, "差分隐私梯度裁剪阈值，0表示关闭")
		dpNoise   = flag.Float64("dp-noise", 1.0, "差分隐私噪声乘数")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "随机种子")
		demo      = flag.Bool("demo", false, "在合成的高斯簇数据上训练自编码器")
		trainSize = flag.Float64("train-size", 0.8, "训练集比例")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	var (
		train, test *dataProcess.Dataset
		specs       []network.LayerSpec
		err         error
	)
	if *demo {
		train, specs = blobDataset(rng)
		test = train
		if !flagSet("lr") {
			*lr = 0.8
		}
	} else {
		if *posPath == "" || *negPath == "" {
			flag.Usage()
			os.Exit(2)
		}
		var all *dataProcess.Dataset
		all, err = loadSequences(*posPath, *negPath, *k)
		if err != nil {
			log.Fatalf("加载数据集失败: %v", err)
		}
		train, test, err = all.Split(*trainSize, rng)
		if err != nil {
			log.Fatalf("划分数据集失败: %v", err)
		}
		fmt.Printf("训练数据集包含 %d 个样本\n", train.Len())
		fmt.Printf("测试数据集包含 %d 个样本\n", test.Len())

		layerStr := *layers
		if layerStr == "" {
			layerStr = fmt.Sprintf("%d:none,16:sigmoid,2:sigmoid", 4 * *k)
		}
		specs, err = network.ParseLayerSpecs(layerStr)
		if err != nil {
			log.Fatalf("解析层配置失败: %v", err)
		}
	}
	if *demo && *layers != "" {
		if specs, err = network.ParseLayerSpecs(*layers); err != nil {
			log.Fatalf("解析层配置失败: %v", err)
		}
	}

	// 创建神经网络
	nn, err := network.NewNeuronNetwork(specs, *lr, network.WithRand(rng))
	if err != nil {
		log.Fatalf("创建神经网络失败: %v", err)
	}
	fmt.Println(nn)

	if *dpClip > 0 {
		dpConfig := network.NewDPSGDConfig()
		dpConfig.L2NormClip = *dpClip
		dpConfig.NoiseMultiplier = *dpNoise
		if err := nn.SetDP(dpConfig); err != nil {
			log.Fatalf("差分隐私配置错误: %v", err)
		}
		fmt.Printf("差分隐私参数 - 噪声乘数: %.2f, 裁剪阈值: %.2f\n", dpConfig.NoiseMultiplier, dpConfig.L2NormClip)
	}

	lossKind, err := network.ParseLossKind(*lossName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	loss, err := network.NewLoss(lossKind)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg := network.DefaultTrainConfig()
	cfg.Epochs = *epochs
	cfg.BatchSize = *batch
	cfg.StatusUpdates = *status
	cfg.Verbose = true
	cfg.Rand = rng

	opts := training.Options{Loss: loss, Config: cfg}
	switch {
	case *workers > 1 || *secure:
		opts.Mode = training.ModeParallel
		if cfg.BatchSize <= 0 {
			opts.Config.BatchSize = train.Len()
		}
		opts.Parallel = network.ParallelConfig{Workers: max(*workers, 1)}
		if *secure {
			fmt.Println("初始化CKKS梯度聚合器...")
			agg, err := protocols.NewDefaultCKKSAggregator()
			if err != nil {
				log.Fatalf("创建CKKS聚合器失败: %v", err)
			}
			opts.Parallel.Aggregator = agg
		}
	case *batch > 0:
		opts.Mode = training.ModeMinibatch
	default:
		opts.Mode = training.ModeFit
	}

	fmt.Println("开始训练模型...")
	if _, err := training.TrainModel(nn, train, test, opts); err != nil {
		log.Fatalf("训练失败: %v", err)
	}

	// 展示一些测试样本的预测结果
	n := min(5, test.Len())
	predictions := nn.Predict(test.Inputs[:n])
	fmt.Println("\n测试样本预测结果:")
	for i, p := range predictions {
		if *demo {
			fmt.Printf("样本 %d - 输入: %.3f\n       输出: %.3f\n", i+1, test.Inputs[i].RawVector().Data, p.RawVector().Data)
			continue
		}
		fmt.Printf("样本 %d 的预测类别：%d, 真实类别：%d\n", i+1, nn.Classify(test.Inputs[i]), test.Labels[i])
	}
}

// blobDataset 生成200个8维、4个簇的样本，归一化后作为自编码器的输入和目标
func blobDataset(rng *rand.Rand) (*dataProcess.Dataset, []network.LayerSpec) {
	X, labels := dataProcess.MakeBlobs(200, 8, 4, 1.0, rng)
	m, err := dataProcess.FromVectors(X)
	if err != nil {
		log.Fatalf("生成数据失败: %v", err)
	}
	X = dataProcess.DenseToVectors(dataProcess.Norm(m))

	ds, err := dataProcess.NewDataset(X, X, labels)
	if err != nil {
		log.Fatalf("生成数据失败: %v", err)
	}
	specs := []network.LayerSpec{
		{Width: 8, Activation: network.ActivationNone},
		{Width: 4, Activation: network.ActivationSigmoid},
		{Width: 8, Activation: network.ActivationSigmoid},
	}
	return ds, specs
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func loadSequences(posPath, negPath string, k int) (*dataProcess.Dataset, error) {
	pos, err := dataProcess.ReadFasta(posPath)
	if err != nil {
		return nil, err
	}
	neg, err := dataProcess.ReadFasta(negPath)
	if err != nil {
		return nil, err
	}
	fmt.Printf("正样本序列 %d 条, 负样本序列 %d 条\n", len(pos), len(neg))
	return training.PrepareSequences(pos, neg, k)
}
