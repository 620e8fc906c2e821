// Package dtree implements the categorical probability encoder: a
// one-hot encoder feeding a CART decision tree, trained once on the
// fixed categorical feature tuple and persisted as a single artifact.
package dtree

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Tree is a CART-style classifier using gini impurity and midpoint
// numeric thresholds. The split search is deterministic: features are
// scanned in order and ties keep the first best candidate.
type Tree struct {
	MaxDepth int // 0 means no depth limit
	MinLeaf  int // minimum samples per leaf

	Root    *Node
	Classes []int // sorted distinct class ids; proba vectors align with this
}

// Node is one tree node. Leaves carry the class distribution of their
// training samples.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node
	N         int
	Probas    []float64
}

// NewTree returns a classifier with unlimited depth and single-sample
// leaves, matching the defaults the pipeline trained with originally.
func NewTree() *Tree {
	return &Tree{MinLeaf: 1}
}

// Fit trains the tree on X (n rows, p columns) and integer labels y.
func (t *Tree) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return errors.New("dtree: empty training set")
	}
	if len(y) != len(X) {
		return fmt.Errorf("dtree: %d rows but %d labels", len(X), len(y))
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return fmt.Errorf("dtree: row %d has %d features, want %d", i, len(X[i]), p)
		}
	}

	seen := make(map[int]bool)
	t.Classes = t.Classes[:0]
	for _, c := range y {
		if !seen[c] {
			seen[c] = true
			t.Classes = append(t.Classes, c)
		}
	}
	sort.Ints(t.Classes)

	classIdx := make(map[int]int, len(t.Classes))
	for i, c := range t.Classes {
		classIdx[c] = i
	}
	yi := make([]int, len(y))
	for i, c := range y {
		yi[i] = classIdx[c]
	}

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.Root = t.build(X, yi, idx, 0)
	return nil
}

func (t *Tree) build(X [][]float64, y []int, idx []int, depth int) *Node {
	counts := make([]int, len(t.Classes))
	for _, i := range idx {
		counts[y[i]]++
	}
	node := &Node{N: len(idx), Probas: countsToProbas(counts)}

	if pure(counts) || len(idx) < 2*t.MinLeaf || (t.MaxDepth > 0 && depth >= t.MaxDepth) {
		node.Leaf = true
		return node
	}

	best := t.searchSplit(X, y, idx, gini(counts))
	if best.feature < 0 {
		node.Leaf = true
		return node
	}

	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = t.build(X, y, best.left, depth+1)
	node.Right = t.build(X, y, best.right, depth+1)
	return node
}

type split struct {
	gain      float64
	feature   int
	threshold float64
	left      []int
	right     []int
}

// searchSplit scans every feature in parallel and keeps the candidate
// with the highest gini gain, preferring the lowest feature index on
// ties so repeated fits produce identical trees.
func (t *Tree) searchSplit(X [][]float64, y []int, idx []int, parent float64) split {
	p := len(X[0])
	results := make([]split, p)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for f := 0; f < p; f++ {
		f := f
		g.Go(func() error {
			results[f] = t.splitFeature(X, y, idx, f, parent)
			return nil
		})
	}
	_ = g.Wait()

	best := split{gain: 0, feature: -1}
	for _, r := range results {
		if r.feature >= 0 && r.gain > best.gain {
			best = r
		}
	}
	return best
}

func (t *Tree) splitFeature(X [][]float64, y []int, idx []int, f int, parent float64) split {
	order := append([]int(nil), idx...)
	sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

	total := make([]int, len(t.Classes))
	for _, i := range order {
		total[y[i]]++
	}
	left := make([]int, len(t.Classes))
	n := len(order)

	best := split{gain: 0, feature: -1}
	for s := 1; s < n; s++ {
		left[y[order[s-1]]]++
		if X[order[s]][f] == X[order[s-1]][f] {
			continue
		}
		if s < t.MinLeaf || n-s < t.MinLeaf {
			continue
		}
		right := make([]int, len(total))
		for c := range total {
			right[c] = total[c] - left[c]
		}
		weighted := float64(s)/float64(n)*gini(left) + float64(n-s)/float64(n)*gini(right)
		gain := parent - weighted
		if gain > best.gain {
			best = split{
				gain:      gain,
				feature:   f,
				threshold: (X[order[s-1]][f] + X[order[s]][f]) / 2,
			}
			best.left = append([]int(nil), order[:s]...)
			best.right = append([]int(nil), order[s:]...)
		}
	}
	return best
}

// PredictProba returns the class distribution for one sample, aligned
// with Classes.
func (t *Tree) PredictProba(x []float64) []float64 {
	node := t.Root
	for node != nil && !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	if node == nil {
		uniform := make([]float64, len(t.Classes))
		for i := range uniform {
			uniform[i] = 1 / float64(len(uniform))
		}
		return uniform
	}
	return node.Probas
}

// Predict returns the majority class id for one sample.
func (t *Tree) Predict(x []float64) int {
	probas := t.PredictProba(x)
	best := 0
	for i := 1; i < len(probas); i++ {
		if probas[i] > probas[best] {
			best = i
		}
	}
	return t.Classes[best]
}

func gini(counts []int) float64 {
	n := 0
	for _, c := range counts {
		n += c
	}
	if n == 0 {
		return 0
	}
	out := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		out -= p * p
	}
	return out
}

func pure(counts []int) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func countsToProbas(counts []int) []float64 {
	n := 0
	for _, c := range counts {
		n += c
	}
	out := make([]float64, len(counts))
	if n == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = float64(c) / float64(n)
	}
	return out
}
