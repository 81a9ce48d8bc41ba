package tree

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/wlattner/dare/data"
)

// Build constructs a tree from scratch from X, y, and params. X and y
// must be non-empty and have at least one feature column; params must
// validate (see Params.validate). Given a fixed seed, load order, and
// inputs the result is reproducible. Every feature column in X is a
// candidate at the root.
func Build(X data.Matrix, y data.Labels, params Params) (*Tree, error) {
	if len(X) != 0 {
		features := make([]int, len(X[0]))
		for i := range features {
			features[i] = i
		}
		return BuildSubset(X, y, params, features)
	}
	return BuildSubset(X, y, params, nil)
}

// BuildSubset is Build restricted to an explicit candidate feature
// subset at the root, used by the forest package to grow each member
// tree on a random subset of columns: feature subsampling is the one
// bagging decision a per-tree Build call can't express on its own,
// since Build always starts from every column.
func BuildSubset(X data.Matrix, y data.Labels, params Params, features []int) (*Tree, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 || len(y) == 0 {
		return nil, errors.Wrap(ErrInvalidParams, "empty training set")
	}
	if len(X) != len(y) {
		return nil, errors.Wrap(ErrInvalidParams, "X and y row counts differ")
	}
	if len(X[0]) == 0 {
		return nil, errors.Wrap(ErrInvalidParams, "empty feature set")
	}
	if len(features) == 0 {
		return nil, errors.Wrap(ErrInvalidParams, "empty candidate feature set")
	}

	ids := make([]int, len(y))
	for i := range ids {
		ids[i] = i
	}

	t := &Tree{
		Params: params,
		rng:    newRand(params.Seed),
	}

	t.Root = buildSubtree(X, y, ids, features, 0, t.Params, t.rng)

	return t, nil
}

// buildItem is one unit of work on the iterative build stack: the node
// to populate, the sample ids routed to it, its candidate feature set,
// and its depth. Grounded on wlattner/rf's stackItem/buildStack pattern
// (pop node, decide leaf vs split, push children), generalized from a
// continuous-threshold scan to the binary eligibility/Gibbs-draw
// splitter above.
type buildItem struct {
	node     *Node
	ids      []int
	features []int
	depth    int
}

// buildSubtree grows a full subtree rooted at a fresh node for
// (ids, features, depth), returning that node. Used both by Build (for
// the whole tree, depth 0) and by the Remover's retrain step (for a
// subtree rooted partway down an existing tree).
func buildSubtree(X data.Matrix, y data.Labels, ids []int, features []int, depth int, params Params, rng *rand.Rand) *Node {
	root := &Node{}

	stack := []buildItem{{node: root, ids: ids, features: features, depth: depth}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		populateNode(X, y, item, params, rng, &stack)
	}

	return root
}

// populateNode fills in item.node's leaf/internal fields following the
// builder algorithm:
//  1. compute sample_count/positive_count; if min_samples_split,
//     max_depth, purity, or an exhausted feature set stop it, emit a
//     Leaf.
//  2. otherwise invoke the Splitter; ErrNoValidSplit also emits a Leaf.
//  3. otherwise store Meta/chosen feature/Pi/u on an Internal node and
//     push both children onto the stack.
func populateNode(X data.Matrix, y data.Labels, item buildItem, params Params, rng *rand.Rand, stack *[]buildItem) {
	n := item.node
	n.Depth = item.depth
	n.SampleCount = len(item.ids)
	n.PositiveCount = countPositive(y, item.ids)

	pure := n.PositiveCount == 0 || n.PositiveCount == n.SampleCount
	atMaxDepth := params.MaxDepth >= 0 && item.depth == params.MaxDepth
	tooSmall := n.SampleCount < params.MinSamplesSplit
	noFeatures := len(item.features) == 0

	if tooSmall || atMaxDepth || pure || noFeatures {
		makeLeaf(n, item.ids, n.SampleCount, n.PositiveCount)
		return
	}

	result, err := split(X, y, item.ids, item.features, rng, params.Lambda, params.MinSamplesLeaf)
	if err != nil {
		makeLeaf(n, item.ids, n.SampleCount, n.PositiveCount)
		return
	}

	n.Leaf = false
	n.ChosenFeature = result.feature
	n.CandidateFeatures = item.features
	n.Meta = result.meta
	n.Pi = result.pi
	n.U = result.u

	n.Left = &Node{}
	n.Right = &Node{}

	*stack = append(*stack,
		buildItem{node: n.Left, ids: result.leftIDs, features: result.surviving, depth: item.depth + 1},
		buildItem{node: n.Right, ids: result.rightIDs, features: result.surviving, depth: item.depth + 1},
	)
}

func makeLeaf(n *Node, ids []int, sampleCount, positiveCount int) {
	n.Leaf = true
	n.SampleIDs = append([]int(nil), ids...)
	n.SampleCount = sampleCount
	n.PositiveCount = positiveCount
	n.PredictedProbability = predictedProbability(sampleCount, positiveCount)
}

func countPositive(y data.Labels, ids []int) int {
	c := 0
	for _, id := range ids {
		if y[id] == 1 {
			c++
		}
	}
	return c
}
