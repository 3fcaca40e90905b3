// Package iforest 提供了 Isolation Forest（孤立森林）异常检测核心算法。
// 通过随机划分构建孤立树，利用平均路径长度衡量一个值相对参考数据集的孤立程度。
// 参考: Liu et al. (2008)。
package iforest

// Float 值类型约束，支持任意浮点精度实例化。
type Float interface {
	~float32 | ~float64
}

// Index 节点下标类型约束，必须是有符号整数（负数作为空子树哨兵）。
type Index interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Node 孤立树中的单个节点，纯值记录，构建后不可变。
// Left/Right 是节点所属树的扁平节点数组下标，-1 表示无子节点。
// 两个子节点都缺失时为叶子节点；内部节点的 SplitValue 才有意义。
type Node[T Float, I Index] struct {
	SplitValue T
	Left       I
	Right      I
}

// newLeaf 返回叶子节点哨兵。
// Go 的零值下标是 0 而非 -1，叶子必须显式构造。
func newLeaf[T Float, I Index]() Node[T, I] {
	return Node[T, I]{Left: -1, Right: -1}
}

// IsLeaf 判断当前节点是否为叶子节点。
func (n Node[T, I]) IsLeaf() bool {
	return n.Left < 0 && n.Right < 0
}
