package anomaly

import (
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"
)

// isolationTree is a single randomized binary partitioning tree over a
// feature subsample, per Liu, Ting & Zhou (2008).
type isolationTree struct {
	splitFeature int
	splitValue   float64
	left, right  *isolationTree
	size         int // number of samples at this (leaf) node, for path-length correction
}

const maxTreeDepth = 16 // fixed height limit, independent of subsampleSize (ceil(log2(256)) is 8)

func buildTree(data [][featureCount]float64, depth int, rng *rand.Rand) *isolationTree {
	if depth >= maxTreeDepth || len(data) <= 1 {
		return &isolationTree{size: len(data)}
	}

	feature := rng.Intn(featureCount)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range data {
		v := row[feature]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		return &isolationTree{size: len(data)}
	}

	splitValue := lo + rng.Float64()*(hi-lo)

	var left, right [][featureCount]float64
	for _, row := range data {
		if row[feature] < splitValue {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isolationTree{size: len(data)}
	}

	return &isolationTree{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         buildTree(left, depth+1, rng),
		right:        buildTree(right, depth+1, rng),
	}
}

// pathLength walks a single observation down the tree, returning the
// number of edges traversed plus a size-correction term for the leaf
// it lands in (c(n), the average path length of an unsuccessful BST
// search, per the isolation-forest paper).
func pathLength(t *isolationTree, x [featureCount]float64, depth int) float64 {
	if t.left == nil && t.right == nil {
		return float64(depth) + averagePathLength(t.size)
	}
	if x[t.splitFeature] < t.splitValue {
		return pathLength(t.left, x, depth+1)
	}
	return pathLength(t.right, x, depth+1)
}

// averagePathLength is c(n) from the isolation-forest paper: the
// expected path length of an unsuccessful search in a binary search
// tree of n nodes.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	const eulerGamma = 0.5772156649
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - (2 * float64(n-1) / float64(n))
}

// Forest is an isolation forest: an ensemble of randomized trees built
// over subsamples of the training batch. Immutable after Train; no
// lock is needed for inference (spec.md §5).
type Forest struct {
	trees         []*isolationTree
	subsampleSize int
	trained       bool
	threshold     float64
}

// ForestConfig holds the isolation forest's tunables (spec.md §6
// anomaly.*).
type ForestConfig struct {
	NEstimators  int
	Contamination float64
	RandomSeed    int64
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{NEstimators: 100, Contamination: 0.1, RandomSeed: 42}
}

// Train fits the forest on a batch of feature vectors, each built by
// subsample-with-replacement of the training data, per the standard
// isolation-forest construction. Deterministic given the configured
// seed.
func Train(data [][featureCount]float64, cfg ForestConfig) *Forest {
	subsampleSize := 256
	if subsampleSize > len(data) {
		subsampleSize = len(data)
	}

	rng := rand.New(rand.NewSource(cfg.RandomSeed))
	trees := make([]*isolationTree, cfg.NEstimators)
	for i := 0; i < cfg.NEstimators; i++ {
		sample := make([][featureCount]float64, subsampleSize)
		for j := range sample {
			sample[j] = data[rng.Intn(len(data))]
		}
		trees[i] = buildTree(sample, 0, rng)
	}

	f := &Forest{trees: trees, subsampleSize: subsampleSize, trained: true}
	f.threshold = contaminationThreshold(f, data, cfg.Contamination)
	return f
}

// contaminationThreshold scores the training batch against the
// just-built forest and picks the cutoff at the Contamination-th
// percentile of those scores, so that roughly Contamination fraction
// of the baseline itself falls below it. This is what makes
// ForestConfig.Contamination an actual decision knob rather than a
// value only consulted by sklearn's reference implementation.
func contaminationThreshold(f *Forest, data [][featureCount]float64, contamination float64) float64 {
	if len(data) == 0 {
		return 0
	}
	if contamination <= 0 {
		return 0
	}
	if contamination > 0.5 {
		contamination = 0.5
	}

	scores := make([]float64, len(data))
	for i, row := range data {
		scores[i] = f.Score(row)
	}
	sort.Float64s(scores)

	idx := int(contamination * float64(len(scores)))
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	return scores[idx]
}

// Score returns the isolation-forest anomaly score for a feature
// vector: in [-0.5, 0.5), with values near -0.5 indicating anomalies
// and higher values indicating normal points. Tree traversal is fanned
// out across an errgroup since each tree's path length is independent
// (spec.md §5: "isolation-forest inference can be parallelized
// internally").
func (f *Forest) Score(x [featureCount]float64) float64 {
	if !f.trained || len(f.trees) == 0 {
		return 0
	}

	lengths := make([]float64, len(f.trees))
	var g errgroup.Group
	for i, tree := range f.trees {
		i, tree := i, tree
		g.Go(func() error {
			lengths[i] = pathLength(tree, x, 0)
			return nil
		})
	}
	_ = g.Wait() // tree traversal never errors

	var sum float64
	for _, l := range lengths {
		sum += l
	}
	avgPathLength := sum / float64(len(lengths))

	c := averagePathLength(f.subsampleSize)
	if c == 0 {
		return 0
	}
	// s(x,n) = 2^(-E(h(x))/c(n)) per Liu, Ting & Zhou: s -> 1 for short
	// average paths (anomalies), s -> 0 for long ones (normal points).
	// Re-centered to 0.5-s so the sign matches spec.md's "lower => more
	// anomalous" (sklearn's decision_function convention).
	s := math.Pow(2, -avgPathLength/c)
	return 0.5 - s
}

// Trained reports whether the forest has been fit.
func (f *Forest) Trained() bool {
	return f != nil && f.trained
}

// Threshold returns the contamination-derived score cutoff below which
// a point is classified anomalous. Zero (the pre-contamination default)
// for an untrained or nil forest, matching Score's sign convention.
func (f *Forest) Threshold() float64 {
	if f == nil {
		return 0
	}
	return f.threshold
}
