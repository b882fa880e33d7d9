package ml

import "sort"

// TreeNode is one node of a regression tree, stored flat for cheap
// serialization. Internal nodes route on x[Feature] < Threshold.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Leaf      bool
}

// Tree is a regression tree over dense feature vectors.
type Tree struct {
	Nodes []TreeNode
}

// Predict walks the tree for one vector.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// minGain rejects splits whose variance reduction is numerical noise.
const minGain = 1e-12

// treeBuilder grows one tree greedily by best variance reduction, restricted
// to the feature subset sampled for this boosting round.
type treeBuilder struct {
	X        [][]float64
	grad     []float64
	features []int
	maxDepth int
	minSplit int
	nodes    []TreeNode
}

func buildTree(X [][]float64, grad []float64, rows, features []int, maxDepth int) *Tree {
	b := &treeBuilder{
		X:        X,
		grad:     grad,
		features: features,
		maxDepth: maxDepth,
		minSplit: 2,
	}
	b.grow(rows, 0)
	return &Tree{Nodes: b.nodes}
}

// grow appends the subtree for rows and returns its root index.
func (b *treeBuilder) grow(rows []int, depth int) int {
	sum := 0.0
	for _, r := range rows {
		sum += b.grad[r]
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Leaf: true, Value: sum / float64(len(rows))})

	if depth >= b.maxDepth || len(rows) < b.minSplit {
		return idx
	}

	feature, threshold, ok := b.bestSplit(rows, sum)
	if !ok {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if b.X[r][feature] < threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return idx
}

type splitPoint struct {
	v float64
	g float64
}

// bestSplit scans every candidate feature for the cut maximizing the
// squared-sum score, equivalent to minimizing the post-split SSE.
func (b *treeBuilder) bestSplit(rows []int, total float64) (feature int, threshold float64, ok bool) {
	n := float64(len(rows))
	parentScore := total * total / n
	bestGain := minGain

	points := make([]splitPoint, len(rows))

	for _, f := range b.features {
		for i, r := range rows {
			points[i] = splitPoint{v: b.X[r][f], g: b.grad[r]}
		}
		sort.Slice(points, func(i, j int) bool { return points[i].v < points[j].v })

		sumL, nL := 0.0, 0.0
		for i := 0; i < len(points)-1; i++ {
			sumL += points[i].g
			nL++
			if points[i].v == points[i+1].v {
				continue
			}
			sumR := total - sumL
			nR := n - nL
			gain := sumL*sumL/nL + sumR*sumR/nR - parentScore
			if gain > bestGain {
				bestGain = gain
				feature = f
				threshold = (points[i].v + points[i+1].v) / 2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}
