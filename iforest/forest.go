package iforest

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// eulerMascheroni 欧拉-马歇罗尼常数，用于调和数近似 H(n-1) ≈ ln(n-1) + γ。
const eulerMascheroni = 0.5772156649

// Forest 固定规模的孤立树集成。
// 所有树共享同一配置，在同一数据多重集的不同随机排列上独立训练。
type Forest[T Float, I Index] struct {
	trees    []*Tree[T, I]
	rng      *rand.Rand
	maxDepth I
}

type options struct {
	seed    uint64
	hasSeed bool
}

// Option 定义 Forest 的配置选项。
type Option func(*options)

// WithSeed 设置随机源种子，固定种子可复现构建与打分结果。
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.hasSeed = true
	}
}

// NewForest 创建包含 numTrees 棵树、每棵最大深度 maxDepth 的森林。
// maxDepth 为 0 时每棵树都退化为单个叶子。
func NewForest[T Float, I Index](numTrees int, maxDepth I, opts ...Option) (*Forest[T, I], error) {
	if numTrees <= 0 {
		return nil, fmt.Errorf("%w: number of trees must be positive, got %d", ErrInvalidConfig, numTrees)
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth must be non-negative, got %d", ErrInvalidConfig, maxDepth)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if !o.hasSeed {
		o.seed = uint64(time.Now().UnixNano()) //nolint:gosec // UnixNano >= 0。
	}

	//nolint:gosec // 统计算法使用非加密安全随机数以保证性能与可复现性.
	rng := rand.New(rand.NewPCG(o.seed, 0))

	trees := make([]*Tree[T, I], numTrees)
	for i := range trees {
		trees[i] = newTree[T](maxDepth, rng)
	}

	return &Forest[T, I]{
		trees:    trees,
		rng:      rng,
		maxDepth: maxDepth,
	}, nil
}

// Len 返回森林中树的数量。
func (f *Forest[T, I]) Len() int {
	return len(f.trees)
}

// MaxDepth 返回每棵树的最大深度配置。
func (f *Forest[T, I]) MaxDepth() I {
	return f.maxDepth
}

// Tree 返回第 i 棵树，越界返回 nil。
func (f *Forest[T, I]) Tree(i int) *Tree[T, I] {
	if i < 0 || i >= len(f.trees) {
		return nil
	}
	return f.trees[i]
}

// Build 用训练数据构建整个森林。
// 输入复制一次到内部工作缓冲区；每棵树构建前对缓冲区做一次无偏
// Fisher-Yates 洗牌，因此每棵树看到同一多重集的不同随机排列。
// 空输入下所有树退化为单个叶子并返回 ErrEmptyData，后续打分仍是确定的。
func (f *Forest[T, I]) Build(data []T) error {
	buf := make([]T, len(data))
	copy(buf, data)

	for _, tree := range f.trees {
		f.shuffle(buf)
		if err := tree.Build(buf); err != nil && !errors.Is(err, ErrEmptyData) {
			return err
		}
	}

	if len(data) == 0 {
		return ErrEmptyData
	}
	return nil
}

// shuffle 无偏 Fisher-Yates 洗牌：i 从尾部递减到 1，与 [0, i] 内均匀随机位置交换。
func (f *Forest[T, I]) shuffle(s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := f.rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// Score 计算 value 相对大小为 datasetSize 的训练集的离群分数。
// 对所有树的路径长度取平均得到 h，按 2^(h/c(n)) 归一化。
// 注意指数没有取负：分数随平均路径长度单调递增，
// 离群值路径更短，因此分数更低（与经典论文 2^(-h/c(n)) 的方向相反）。
// datasetSize <= 1 时 c(n) 为 0，返回 ErrDatasetTooSmall 而非除零。
func (f *Forest[T, I]) Score(value T, datasetSize int) (T, error) {
	if datasetSize <= 1 {
		return 0, fmt.Errorf("%w: got %d", ErrDatasetTooSmall, datasetSize)
	}

	var sum T
	for _, tree := range f.trees {
		pl, err := tree.PathLength(value, tree.RootID(), 0)
		if err != nil {
			return 0, err
		}
		sum += pl
	}
	avg := sum / T(len(f.trees))

	return T(math.Pow(2, float64(avg)/float64(expectedPathLength[T](datasetSize)))), nil
}

// expectedPathLength 随机二叉划分结构中 n 个元素的期望路径长度
// c(n) = 2*(ln(n-1) + γ) - 2*(n-1)/n，n <= 1 时为 0。
func expectedPathLength[T Float](n int) T {
	if n <= 1 {
		return 0
	}
	return T(2*(math.Log(float64(n-1))+eulerMascheroni) - 2*float64(n-1)/float64(n))
}

// Forest64 double 精度、64 位下标的常用实例化别名。
type Forest64 = Forest[float64, int64]

// NewForest64 创建 Forest64 实例。
func NewForest64(numTrees int, maxDepth int64, opts ...Option) (*Forest64, error) {
	return NewForest[float64, int64](numTrees, maxDepth, opts...)
}
