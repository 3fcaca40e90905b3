// Package detector 将孤立森林核心封装为面向业务的异常检测器，
// 提供训练/打分生命周期管理、结构化日志、Prometheus 指标与并发批量打分。
package detector

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/wyfcoding/iforest/config"
	"github.com/wyfcoding/iforest/iforest"
	"github.com/wyfcoding/iforest/logging"
	"github.com/wyfcoding/iforest/metrics"
)

var (
	// ErrNotFitted 检测器尚未训练。
	ErrNotFitted = errors.New("detector is not fitted")
)

// Result 单个值的打分结果。
// 分数随平均路径长度单调递增，离群值路径更短、分数更低，
// 因此低于阈值的值被判定为异常。
type Result struct {
	Value     float64
	Score     float64
	Anomalous bool
}

// Detector 基于孤立森林的异常检测器。
// 训练持写锁，打分持读锁，训练完成后可以并发打分。
type Detector struct {
	mu        sync.RWMutex
	forest    *iforest.Forest64
	name      string
	threshold float64
	dataSize  int
	fitted    bool
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

type options struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// Option 定义配置选项。
type Option func(*options)

// WithLogger 注入日志记录器。
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics 注入指标采集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New 按配置创建检测器。树的数量和最大深度非法时返回 iforest.ErrInvalidConfig。
func New(cfg config.DetectorConfig, opts ...Option) (*Detector, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}

	var forestOpts []iforest.Option
	if cfg.Seed != 0 {
		forestOpts = append(forestOpts, iforest.WithSeed(cfg.Seed))
	}
	forest, err := iforest.NewForest64(cfg.Trees, int64(cfg.MaxDepth), forestOpts...)
	if err != nil {
		return nil, fmt.Errorf("create forest: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}

	return &Detector{
		forest:    forest,
		name:      name,
		threshold: cfg.Threshold,
		logger:    o.logger,
		metrics:   o.metrics,
	}, nil
}

// Name 返回检测器名称（指标维度）。
func (d *Detector) Name() string {
	return d.name
}

// Fit 用训练数据构建森林。
// 空数据返回 iforest.ErrEmptyData 且检测器保持未训练状态。
func (d *Detector) Fit(ctx context.Context, data []float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	if err := d.forest.Build(data); err != nil {
		d.logger.WarnContext(ctx, "forest training failed",
			"detector", d.name, "samples", len(data), "error", err)

		return fmt.Errorf("build forest: %w", err)
	}
	elapsed := time.Since(start)

	d.dataSize = len(data)
	d.fitted = true

	if d.metrics != nil {
		d.metrics.TrainingsTotal.WithLabelValues(d.name).Inc()
		d.metrics.TrainDuration.WithLabelValues(d.name).Observe(elapsed.Seconds())
	}
	d.logger.InfoContext(ctx, "isolation forest trained",
		"detector", d.name,
		"samples", len(data),
		"trees", d.forest.Len(),
		"max_depth", d.forest.MaxDepth(),
		"duration", elapsed)

	return nil
}

// Score 对单个值打分。
// 未训练返回 ErrNotFitted；训练集大小不足时透传 iforest.ErrDatasetTooSmall。
func (d *Detector) Score(ctx context.Context, value float64) (Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.scoreLocked(ctx, value)
}

// scoreLocked 在持有读锁的前提下打分。
func (d *Detector) scoreLocked(ctx context.Context, value float64) (Result, error) {
	if !d.fitted {
		return Result{}, ErrNotFitted
	}

	start := time.Now()
	score, err := d.forest.Score(value, d.dataSize)
	if err != nil {
		return Result{}, fmt.Errorf("score value: %w", err)
	}

	res := Result{
		Value:     value,
		Score:     score,
		Anomalous: d.threshold > 0 && score < d.threshold,
	}

	if d.metrics != nil {
		d.metrics.ScoresTotal.WithLabelValues(d.name).Inc()
		d.metrics.ScoreDuration.WithLabelValues(d.name).Observe(time.Since(start).Seconds())
		d.metrics.ScoreValues.WithLabelValues(d.name).Observe(score)
		if res.Anomalous {
			d.metrics.AnomaliesTotal.WithLabelValues(d.name).Inc()
		}
	}
	if res.Anomalous {
		d.logger.WarnContext(ctx, "anomalous value detected",
			"detector", d.name, "value", value, "score", score, "threshold", d.threshold)
	}

	return res, nil
}

// ScoreBatch 并发地对一批值打分，结果与输入顺序一一对应。
// 打分是只读操作，训练本身保持串行；读锁覆盖整个批次。
func (d *Detector) ScoreBatch(ctx context.Context, values []float64) ([]Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.fitted {
		return nil, ErrNotFitted
	}
	if len(values) == 0 {
		return nil, nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(values) {
		workers = len(values)
	}
	chunk := (len(values) + workers - 1) / workers

	results := make([]Result, len(values))
	errs := make([]error, workers)

	var wg conc.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(values) {
			hi = len(values)
		}
		if lo >= hi {
			break
		}

		idx := w
		wg.Go(func() {
			for i := lo; i < hi; i++ {
				res, err := d.scoreLocked(ctx, values[i])
				if err != nil {
					errs[idx] = err
					return
				}
				results[i] = res
			}
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Threshold 返回当前异常判定阈值，0 表示关闭判定。
func (d *Detector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// SetThreshold 动态调整异常判定阈值（配置热加载时使用）。
func (d *Detector) SetThreshold(threshold float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
}
