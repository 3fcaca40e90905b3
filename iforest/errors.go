package iforest

import "errors"

var (
	// ErrInvalidConfig 配置错误（树数量、最大深度或随机源非法）。
	ErrInvalidConfig = errors.New("invalid config")
	// ErrEmptyData 输入数据为空。
	ErrEmptyData = errors.New("empty data")
	// ErrDatasetTooSmall 数据集大小不足以计算归一化因子。
	ErrDatasetTooSmall = errors.New("dataset size must be greater than 1")
	// ErrNodeOutOfRange 节点下标越界。
	ErrNodeOutOfRange = errors.New("node index out of range")
)
