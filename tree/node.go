package tree

// Node is a tagged variant: the Leaf field is the discriminant, the
// same shape as wlattner/rf's Node{Left, Right, SplitVar, SplitVal,
// Leaf, ...}, generalized to carry per-feature Meta and the persisted
// randomized draw instead of a single chosen SplitVar.
//
// Leaf fields: SampleCount, PositiveCount, PredictedProbability, Depth,
// SampleIDs.
// Internal fields additionally: ChosenFeature, Left, Right,
// CandidateFeatures, Meta, Pi, U.
type Node struct {
	Leaf bool

	Depth         int
	SampleCount   int
	PositiveCount int
	SampleIDs     []int // only populated on leaves

	// leaf-only
	PredictedProbability float64

	// internal-only
	ChosenFeature     int
	Left              *Node
	Right             *Node
	CandidateFeatures []int // F(N), ascending, fixed for this node's lifetime
	Meta              Meta

	// Pi is the Gibbs distribution computed at build/last-valid-recheck
	// time, aligned with the ascending-ordered eligible subset of
	// CandidateFeatures at that time. U is the uniform draw in [0,1)
	// used to pick ChosenFeature from Pi; persisting it (rather than
	// the RNG state) is what makes the Remover's validity check exact
	// rather than statistical.
	Pi []float64
	U  float64
}

// Meta is the per-candidate-feature sufficient statistics stored on an
// internal node: for every f' at index k in CandidateFeatures,
// LeftCount[k]/RightCount[k] are the counts of samples in this node
// with X[.,f']=0 / =1, and LeftPos[k]/RightPos[k] are the positive-label
// counts on each side. This is the block that makes deletion efficient:
// it is never recomputed from scratch during descent, only
// incrementally updated.
type Meta struct {
	LeftCount  []int
	RightCount []int
	LeftPos    []int
	RightPos   []int
}

func newMeta(n int) Meta {
	return Meta{
		LeftCount:  make([]int, n),
		RightCount: make([]int, n),
		LeftPos:    make([]int, n),
		RightPos:   make([]int, n),
	}
}

// indexOf returns the position of feature f within CandidateFeatures,
// or -1 if absent. CandidateFeatures is small (shrinks by one per depth
// level) and kept sorted, so a linear scan is simple and cheap.
func (n *Node) indexOf(f int) int {
	for i, cf := range n.CandidateFeatures {
		if cf == f {
			return i
		}
	}
	return -1
}

// predictedProbability recomputes the leaf's predicted probability from
// its current counts. An empty leaf (all samples removed) predicts a
// constant 0.5 rather than NaN.
func predictedProbability(sampleCount, positiveCount int) float64 {
	if sampleCount == 0 {
		return 0.5
	}
	return float64(positiveCount) / float64(sampleCount)
}
