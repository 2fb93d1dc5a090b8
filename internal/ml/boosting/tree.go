package boosting

import (
	"math/rand"
	"sort"
)

const leaf = -1

// node is one tree node; Feature is leaf for terminal nodes
type node struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Value     float64 `msgpack:"v"`
}

type tree struct {
	Nodes []node `msgpack:"nodes"`
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeBuilder grows one squared-loss regression tree on residuals
type treeBuilder struct {
	x          [][]float64
	r          []float64
	params     Params
	rng        *rand.Rand
	nFeatures  int
	importance []float64
	nodes      []node
}

func (b *treeBuilder) build(rows []int) tree {
	b.nodes = b.nodes[:0]
	b.grow(rows, 0)
	return tree{Nodes: append([]node(nil), b.nodes...)}
}

func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	sum, sumSq := b.moments(rows)
	n := float64(len(rows))
	b.nodes = append(b.nodes, node{Feature: leaf, Value: sum / n})

	if depth >= b.params.MaxDepth ||
		len(rows) < b.params.MinSamplesSplit ||
		len(rows) < 2*b.params.MinSamplesLeaf {
		return idx
	}

	parentSSE := sumSq - sum*sum/n
	feature, threshold, gain := b.bestSplit(rows, sum)
	if feature == leaf || gain <= 1e-12*(1+parentSSE) {
		return idx
	}

	var left, right []int
	for _, row := range rows {
		if b.x[row][feature] <= threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	b.importance[feature] += gain
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

func (b *treeBuilder) moments(rows []int) (sum, sumSq float64) {
	for _, row := range rows {
		v := b.r[row]
		sum += v
		sumSq += v * v
	}
	return sum, sumSq
}

// bestSplit searches the sampled features for the threshold with the largest
// reduction in squared error. It returns leaf when no valid split exists.
func (b *treeBuilder) bestSplit(rows []int, total float64) (int, float64, float64) {
	n := len(rows)
	minLeaf := b.params.MinSamplesLeaf
	parentScore := total * total / float64(n)

	bestFeature, bestThreshold, bestGain := leaf, 0.0, 0.0
	sorted := make([]int, n)

	candidates := b.rng.Perm(b.nFeatures)[:b.params.featuresPerSplit(b.nFeatures)]
	for _, f := range candidates {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})

		var leftSum float64
		for i := 1; i < n; i++ {
			leftSum += b.r[sorted[i-1]]
			if i < minLeaf || n-i < minLeaf {
				continue
			}
			lo, hi := b.x[sorted[i-1]][f], b.x[sorted[i]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(i) + rightSum*rightSum/float64(n-i)
			if gain := score - parentScore; gain > bestGain {
				bestFeature, bestThreshold, bestGain = f, lo+(hi-lo)/2, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}
