package iforest

import (
	"fmt"
	"math/rand/v2"
)

// Tree 一棵孤立树。
// 节点存放在扁平的追加式数组中（arena 模式），以下标寻址，
// 子节点总是先于父节点追加，因此最后追加的节点就是整棵树的根。
type Tree[T Float, I Index] struct {
	nodes    []Node[T, I]
	rng      *rand.Rand
	maxDepth I
}

// NewTree 创建一棵最大深度为 maxDepth 的空树。
// rng 由调用方注入并持有种子，保证构建过程可复现。
func NewTree[T Float, I Index](maxDepth I, rng *rand.Rand) (*Tree[T, I], error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth must be non-negative, got %d", ErrInvalidConfig, maxDepth)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidConfig)
	}

	return newTree[T](maxDepth, rng), nil
}

// newTree 跳过参数校验的内部构造，供 Forest 批量创建使用。
func newTree[T Float, I Index](maxDepth I, rng *rand.Rand) *Tree[T, I] {
	// 容量启发式：深树按 maxDepth*(maxDepth/100) 预留，浅树按 maxDepth。
	// 只是减少扩容的优化，不影响正确性。
	capHint := int64(maxDepth)
	if maxDepth > 100 {
		capHint = int64(maxDepth) * (int64(maxDepth) / 100)
	}

	return &Tree[T, I]{
		nodes:    make([]Node[T, I], 0, capHint),
		maxDepth: maxDepth,
		rng:      rng,
	}
}

// RootID 返回根节点下标。
// 节点按后序追加，根永远是最后一个节点。
func (t *Tree[T, I]) RootID() I {
	return I(len(t.nodes) - 1)
}

// NodeCount 返回当前节点总数。
func (t *Tree[T, I]) NodeCount() int {
	return len(t.nodes)
}

// MaxDepth 返回构建时配置的最大递归深度。
func (t *Tree[T, I]) MaxDepth() I {
	return t.maxDepth
}

// Node 按下标返回节点副本。
func (t *Tree[T, I]) Node(i I) (Node[T, I], error) {
	if i < 0 || int64(i) >= int64(len(t.nodes)) {
		return Node[T, I]{}, fmt.Errorf("%w: %d of %d", ErrNodeOutOfRange, i, len(t.nodes))
	}
	return t.nodes[i], nil
}

// Build 从数据集构建树。
// 输入被复制到内部工作缓冲区后再做原地划分，调用方切片不会被修改。
// 重复调用会重置节点数组重新构建。
// 空输入会退化为单个叶子并返回 ErrEmptyData。
func (t *Tree[T, I]) Build(data []T) error {
	t.nodes = t.nodes[:0]

	buf := make([]T, len(data))
	copy(buf, data)
	t.buildRecursively(buf, 0, I(len(buf)), 0)

	if len(data) == 0 {
		return ErrEmptyData
	}
	return nil
}

// buildRecursively 在 [left, right) 区间上递归随机划分，返回子树根节点的下标。
func (t *Tree[T, I]) buildRecursively(data []T, left, right, depth I) I {
	if left >= right || depth >= t.maxDepth || right == 0 {
		t.nodes = append(t.nodes, newLeaf[T, I]())
		return t.RootID()
	}

	anchorIndex := left + I(t.rng.Int64N(int64(right-left)))
	anchor := data[anchorIndex]
	mid := left + I(partition(data[left:right], anchor))

	node := Node[T, I]{SplitValue: anchor}
	node.Left = t.buildRecursively(data, left, mid, depth+1)
	node.Right = t.buildRecursively(data, mid, right, depth+1)
	t.nodes = append(t.nodes, node)

	return t.RootID()
}

// partition 原地划分：小于 anchor 的元素移到前部，返回小于侧的元素个数。
// 谓词是严格小于，等值元素总是落在右侧；两侧内部的相对顺序不保证。
func partition[T Float](s []T, anchor T) int {
	i := 0
	for j, v := range s {
		if v < anchor {
			s[i], s[j] = s[j], s[i]
			i++
		}
	}
	return i
}

// PathLength 返回 value 从 node 下标处出发、初始深度 depth 的路径长度。
// 外部查询从 (RootID(), 0) 开始。下标越界返回 ErrNodeOutOfRange。
func (t *Tree[T, I]) PathLength(value T, node, depth I) (T, error) {
	if node < 0 || int64(node) >= int64(len(t.nodes)) {
		return 0, fmt.Errorf("%w: %d of %d", ErrNodeOutOfRange, node, len(t.nodes))
	}
	return t.pathLength(value, node, depth), nil
}

// pathLength 递归下降。内部节点优先尝试左子树（value < SplitValue 且左子树存在），
// 否则只要右子树存在就走右；到达叶子时返回 depth-1，
// 即最后一层合成叶子不计入路径，调用方不要再额外减一。
func (t *Tree[T, I]) pathLength(value T, node, depth I) T {
	n := t.nodes[node]

	if n.Left >= 0 || n.Right >= 0 {
		if value < n.SplitValue && n.Left >= 0 {
			return t.pathLength(value, n.Left, depth+1)
		} else if n.Right >= 0 {
			return t.pathLength(value, n.Right, depth+1)
		}
	}

	return T(depth - 1)
}
