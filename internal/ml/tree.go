package ml

import (
	"math/rand"
	"sort"
)

// leafFeature marks a node without children
const leafFeature = -1

// Node is one entry of a flattened regression tree. Children are indexes
// into RegressionTree.Nodes.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Samples   int
}

// IsLeaf reports whether the node predicts directly
func (n Node) IsLeaf() bool {
	return n.Feature == leafFeature
}

// RegressionTree is a CART tree grown on squared error until every leaf is
// pure or holds a single sample.
type RegressionTree struct {
	Nodes []Node
}

type splitCandidate struct {
	feature   int
	threshold float64
	score     float64
	leftN     int
}

// Fit grows the tree on the rows of X named by samples. Duplicated indexes
// count as repeated observations. rng orders the features tried at each node.
func (t *RegressionTree) Fit(X [][]float64, y []float64, samples []int, rng *rand.Rand) {
	t.Nodes = t.Nodes[:0]
	idx := make([]int, len(samples))
	copy(idx, samples)
	t.grow(X, y, idx, rng)
}

func (t *RegressionTree) grow(X [][]float64, y []float64, idx []int, rng *rand.Rand) int {
	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Feature: leafFeature, Value: meanAt(y, idx), Samples: len(idx)})

	if len(idx) < 2 || pure(y, idx) {
		return node
	}

	best, ok := bestSplit(X, y, idx, rng)
	if !ok {
		return node
	}

	// Partition in place: rows at or below the threshold go left.
	sort.SliceStable(idx, func(a, b int) bool {
		return X[idx[a]][best.feature] < X[idx[b]][best.feature]
	})
	left := t.grow(X, y, idx[:best.leftN], rng)
	right := t.grow(X, y, idx[best.leftN:], rng)

	t.Nodes[node].Feature = best.feature
	t.Nodes[node].Threshold = best.threshold
	t.Nodes[node].Left = left
	t.Nodes[node].Right = right
	return node
}

// bestSplit scans every feature in a random order and returns the split with
// the lowest summed squared error. Earlier features win ties.
func bestSplit(X [][]float64, y []float64, idx []int, rng *rand.Rand) (splitCandidate, bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += y[i]
	}

	best := splitCandidate{feature: leafFeature}
	found := false
	order := make([]int, n)

	for _, f := range rng.Perm(len(X[idx[0]])) {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool {
			return X[order[a]][f] < X[order[b]][f]
		})

		var leftSum float64
		for k := 1; k < n; k++ {
			leftSum += y[order[k-1]]
			lo, hi := X[order[k-1]][f], X[order[k]][f]
			if lo == hi {
				continue
			}

			// Minimizing SSE is maximizing sum_L^2/n_L + sum_R^2/n_R.
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(k) + rightSum*rightSum/float64(n-k)
			if !found || score > best.score {
				threshold := lo + (hi-lo)/2
				if threshold == hi {
					threshold = lo
				}
				best = splitCandidate{feature: f, threshold: threshold, score: score, leftN: k}
				found = true
			}
		}
	}
	return best, found
}

// Predict walks the tree for one feature vector
func (t *RegressionTree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	node := t.Nodes[0]
	for !node.IsLeaf() {
		if x[node.Feature] <= node.Threshold {
			node = t.Nodes[node.Left]
		} else {
			node = t.Nodes[node.Right]
		}
	}
	return node.Value
}

// Depth returns the longest root-to-leaf path length
func (t *RegressionTree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func pure(y []float64, idx []int) bool {
	first := y[idx[0]]
	for _, i := range idx[1:] {
		if y[i] != first {
			return false
		}
	}
	return true
}
