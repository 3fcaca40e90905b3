package iforest

import (
	"errors"
	"math"
	"testing"
)

func TestNewForestValidation(t *testing.T) {
	cases := []struct {
		name     string
		numTrees int
		maxDepth int64
	}{
		{"zero trees", 0, 10},
		{"negative trees", -5, 10},
		{"negative depth", 10, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewForest[float64, int64](tc.numTrees, tc.maxDepth); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewForest(%d, %d) error = %v, want ErrInvalidConfig", tc.numTrees, tc.maxDepth, err)
			}
		})
	}
}

func TestForestBuildAllTrees(t *testing.T) {
	forest, err := NewForest64(50, 10, WithSeed(1))
	if err != nil {
		t.Fatalf("NewForest64: %v", err)
	}
	if err := forest.Build([]float64{1, 2, 3, 4, 5, 100}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for i := 0; i < forest.Len(); i++ {
		tree := forest.Tree(i)
		if tree == nil {
			t.Fatalf("Tree(%d) = nil", i)
		}
		if tree.NodeCount() == 0 {
			t.Errorf("tree %d has no nodes", i)
		}
		if got, want := tree.RootID(), int64(tree.NodeCount()-1); got != want {
			t.Errorf("tree %d: RootID() = %d, want %d", i, got, want)
		}
	}
}

func TestForestDoesNotMutateInput(t *testing.T) {
	data := []float64{9, 8, 7, 6, 5, 4, 3, 2, 1}
	original := make([]float64, len(data))
	copy(original, data)

	forest, err := NewForest64(20, 8, WithSeed(2))
	if err != nil {
		t.Fatalf("NewForest64: %v", err)
	}
	if err := forest.Build(data); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for i := range data {
		if data[i] != original[i] {
			t.Fatalf("input mutated at %d: got %v, want %v", i, data[i], original[i])
		}
	}
}

func TestScoreDeterministicWithSeed(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 100}

	build := func() *Forest64 {
		forest, err := NewForest64(100, 10, WithSeed(99))
		if err != nil {
			t.Fatalf("NewForest64: %v", err)
		}
		if err := forest.Build(data); err != nil {
			t.Fatalf("Build: %v", err)
		}
		return forest
	}

	f1, f2 := build(), build()
	for _, q := range []float64{3, 100, -7, 42.5} {
		s1, err := f1.Score(q, len(data))
		if err != nil {
			t.Fatalf("Score(%v): %v", q, err)
		}
		s2, err := f2.Score(q, len(data))
		if err != nil {
			t.Fatalf("Score(%v): %v", q, err)
		}
		if s1 != s2 {
			t.Errorf("same seed diverged for %v: %v vs %v", q, s1, s2)
		}

		// 打分是只读的：重复调用必须返回完全相同的结果。
		for i := 0; i < 5; i++ {
			again, err := f1.Score(q, len(data))
			if err != nil {
				t.Fatalf("repeated Score(%v): %v", q, err)
			}
			if again != s1 {
				t.Errorf("repeated Score(%v) = %v, want %v", q, again, s1)
			}
		}
	}
}

func TestScoreOutlierSensitivity(t *testing.T) {
	// 路径下降规则是非对称的：左子树只在 value < split 且左子树存在时尝试，
	// 否则一律走右。单元素区间在构建时会链式下探到深度上限，
	// 因此任何不小于数据最小值的查询都会走满整条链，路径长度恒为 maxDepth-1；
	// 只有低于数据下界的查询才会提前落入空的左叶子，用更少的划分被孤立。
	// 统计性质，跨多个种子取均值以压制单次随机性。
	data := []float64{10, 11, 12, 13, 14, 15}

	var inlierSum, outlierSum float64
	const trials = 20
	for seed := uint64(1); seed <= trials; seed++ {
		forest, err := NewForest64(100, 10, WithSeed(seed))
		if err != nil {
			t.Fatalf("NewForest64: %v", err)
		}
		if err := forest.Build(data); err != nil {
			t.Fatalf("Build: %v", err)
		}

		in, err := forest.Score(12, len(data))
		if err != nil {
			t.Fatalf("Score(12): %v", err)
		}
		out, err := forest.Score(-100, len(data))
		if err != nil {
			t.Fatalf("Score(-100): %v", err)
		}
		inlierSum += in
		outlierSum += out
	}

	inlierAvg := inlierSum / trials
	outlierAvg := outlierSum / trials
	if outlierAvg >= inlierAvg {
		t.Errorf("outlier score %v not below inlier score %v", outlierAvg, inlierAvg)
	}
	// 显著性余量：两者不应只差毫厘。
	if inlierAvg-outlierAvg < 0.1*inlierAvg {
		t.Errorf("margin too small: inlier %v, outlier %v", inlierAvg, outlierAvg)
	}
}

func TestScoreMemberQueriesHitDepthCap(t *testing.T) {
	// 固化按原样保留的行为：等于训练值的查询（以及任何不小于数据
	// 最小值的查询）总是下探到深度上限，路径长度为 maxDepth-1，
	// 分数因此恒等于 2^((maxDepth-1)/c(n))，与查询值无关。
	const maxDepth = int64(10)
	data := []float64{1, 2, 3, 4, 5, 100}

	forest, err := NewForest64(100, maxDepth, WithSeed(3))
	if err != nil {
		t.Fatalf("NewForest64: %v", err)
	}
	if err := forest.Build(data); err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := math.Pow(2, float64(maxDepth-1)/float64(expectedPathLength[float64](len(data))))
	for _, q := range []float64{1, 3, 100, 50, 2.5} {
		got, err := forest.Score(q, len(data))
		if err != nil {
			t.Fatalf("Score(%v): %v", q, err)
		}
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("Score(%v) = %v, want depth-capped %v", q, got, want)
		}
	}
}

func TestScoreDatasetTooSmall(t *testing.T) {
	forest, err := NewForest64(10, 5, WithSeed(4))
	if err != nil {
		t.Fatalf("NewForest64: %v", err)
	}
	if err := forest.Build([]float64{1, 2, 3}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, n := range []int{1, 0, -3} {
		if _, err := forest.Score(2, n); !errors.Is(err, ErrDatasetTooSmall) {
			t.Errorf("Score(_, %d) error = %v, want ErrDatasetTooSmall", n, err)
		}
	}
}

func TestForestEmptyBuild(t *testing.T) {
	forest, err := NewForest64(10, 5, WithSeed(6))
	if err != nil {
		t.Fatalf("NewForest64: %v", err)
	}

	if err := forest.Build(nil); !errors.Is(err, ErrEmptyData) {
		t.Fatalf("Build(nil) error = %v, want ErrEmptyData", err)
	}

	for i := 0; i < forest.Len(); i++ {
		tree := forest.Tree(i)
		if tree.NodeCount() != 1 {
			t.Fatalf("tree %d: NodeCount() = %d, want single leaf", i, tree.NodeCount())
		}
		root, err := tree.Node(tree.RootID())
		if err != nil {
			t.Fatalf("tree %d: Node: %v", i, err)
		}
		if !root.IsLeaf() {
			t.Errorf("tree %d: root is not a leaf: %+v", i, root)
		}
	}

	// 退化森林的打分必须是确定且有限的：每棵树的路径长度都是 -1，
	// 因此分数恒为 2^(-1/c(n))。
	score, err := forest.Score(5, 10)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := math.Pow(2, -1/float64(expectedPathLength[float64](10)))
	if math.Abs(score-want) > 1e-12 {
		t.Errorf("degenerate Score = %v, want %v", score, want)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		t.Errorf("degenerate Score not finite: %v", score)
	}
}

func TestExpectedPathLength(t *testing.T) {
	cases := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 2*eulerMascheroni - 1},
		{6, 2*(math.Log(5)+eulerMascheroni) - 2*5.0/6.0},
	}

	for _, tc := range cases {
		got := float64(expectedPathLength[float64](tc.n))
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("expectedPathLength(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestScoreGrowsWithPathLength(t *testing.T) {
	// 归一化公式按原样实现：指数不取负，分数随 h 单调递增。
	forest, err := NewForest64(100, 10, WithSeed(8))
	if err != nil {
		t.Fatalf("NewForest64: %v", err)
	}
	data := []float64{1, 2, 3, 4, 5, 100}
	if err := forest.Build(data); err != nil {
		t.Fatalf("Build: %v", err)
	}

	var hIn, hOut float64
	for i := 0; i < forest.Len(); i++ {
		tree := forest.Tree(i)
		pl, err := tree.PathLength(3, tree.RootID(), 0)
		if err != nil {
			t.Fatalf("PathLength(3): %v", err)
		}
		hIn += pl
		pl, err = tree.PathLength(100, tree.RootID(), 0)
		if err != nil {
			t.Fatalf("PathLength(100): %v", err)
		}
		hOut += pl
	}
	hIn /= float64(forest.Len())
	hOut /= float64(forest.Len())

	sIn, _ := forest.Score(3, len(data))
	sOut, _ := forest.Score(100, len(data))

	if (hIn > hOut) != (sIn > sOut) {
		t.Errorf("score ordering mismatch: h=(%v, %v), score=(%v, %v)", hIn, hOut, sIn, sOut)
	}
}

func TestForestFloat32Instantiation(t *testing.T) {
	forest, err := NewForest[float32, int32](30, 8, WithSeed(10))
	if err != nil {
		t.Fatalf("NewForest: %v", err)
	}
	if err := forest.Build([]float32{1, 2, 3, 4, 5, 50}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	score, err := forest.Score(float32(50), 6)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if math.IsNaN(float64(score)) || math.IsInf(float64(score), 0) {
		t.Errorf("Score = %v, want finite", score)
	}
}
