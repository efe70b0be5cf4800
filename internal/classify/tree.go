package classify

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	minSamplesLeaf = 2
	minImprovement = 1e-12
)

// decisionTree is a CART classifier grown on weighted Gini impurity.
type decisionTree struct {
	MinSamplesLeaf int

	k, d        int
	root        *treeNode
	importances []float64
}

type treeNode struct {
	feature     int
	threshold   float64
	left, right *treeNode
	class       int // leaf prediction
}

func (n *treeNode) leaf() bool { return n.left == nil }

func newDecisionTree() *decisionTree {
	return &decisionTree{MinSamplesLeaf: minSamplesLeaf}
}

func (t *decisionTree) fit(X [][]float64, y []int, k int, sw []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("classify: decision tree: no samples")
	}
	t.k, t.d = k, len(X[0])
	t.importances = make([]float64, t.d)
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.root = t.grow(X, y, sw, idx)
	if total := floats.Sum(t.importances); total > 0 {
		floats.Scale(1/total, t.importances)
	}
	return nil
}

func (t *decisionTree) classWeights(y []int, sw []float64, idx []int) []float64 {
	w := make([]float64, t.k)
	for _, i := range idx {
		w[y[i]] += sw[i]
	}
	return w
}

func gini(w []float64) float64 {
	total := floats.Sum(w)
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, v := range w {
		p := v / total
		g -= p * p
	}
	return g
}

func (t *decisionTree) grow(X [][]float64, y []int, sw []float64, idx []int) *treeNode {
	weights := t.classWeights(y, sw, idx)
	node := &treeNode{class: floats.MaxIdx(weights)}
	impurity := gini(weights)
	if impurity <= minImprovement || len(idx) < 2*t.MinSamplesLeaf {
		return node
	}

	total := floats.Sum(weights)
	bestGain, bestFeature, bestThreshold := minImprovement, -1, 0.0
	sorted := make([]int, len(idx))
	left := make([]float64, t.k)
	right := make([]float64, t.k)
	for f := 0; f < t.d; f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })
		for c := range left {
			left[c] = 0
		}
		copy(right, weights)
		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			left[y[i]] += sw[i]
			right[y[i]] -= sw[i]
			nLeft := pos + 1
			if nLeft < t.MinSamplesLeaf || len(sorted)-nLeft < t.MinSamplesLeaf {
				continue
			}
			lo, hi := X[i][f], X[sorted[pos+1]][f]
			if lo == hi {
				continue
			}
			wl, wr := floats.Sum(left), floats.Sum(right)
			gain := total*impurity - wl*gini(left) - wr*gini(right)
			if gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, f, lo+(hi-lo)/2
			}
		}
	}
	if bestFeature < 0 {
		return node
	}

	t.importances[bestFeature] += bestGain
	var li, ri []int
	for _, i := range idx {
		if X[i][bestFeature] <= bestThreshold {
			li = append(li, i)
		} else {
			ri = append(ri, i)
		}
	}
	node.feature, node.threshold = bestFeature, bestThreshold
	node.left = t.grow(X, y, sw, li)
	node.right = t.grow(X, y, sw, ri)
	return node
}

func (t *decisionTree) predict(row []float64) int {
	n := t.root
	for !n.leaf() {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.class
}

// importance is the normalized total weighted impurity decrease per feature.
func (t *decisionTree) importance() []float64 {
	return append([]float64(nil), t.importances...)
}
