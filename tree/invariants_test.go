package tree

import (
	"testing"

	"github.com/wlattner/dare/data"
)

// collectIDs returns every live sample id reachable from n (its own
// subtree), used by tests to recompute the ground truth independently
// of the incremental counters under test.
func collectIDs(n *Node) []int {
	if n.Leaf {
		return append([]int(nil), n.SampleIDs...)
	}
	out := collectIDs(n.Left)
	out = append(out, collectIDs(n.Right)...)
	return out
}

// assertNodeInvariants walks n and checks, at every node, that
// SampleCount/PositiveCount/Meta match a fresh recomputation from X/y
// over the node's own live sample ids. This is the test-side analogue
// of the "no full rescan" invariant: we rescan here only to check the
// incremental machinery under test, never inside the tree package
// itself.
func assertNodeInvariants(t *testing.T, n *Node, X data.Matrix, y data.Labels, minSamplesLeaf int) {
	t.Helper()

	ids := collectIDs(n)
	wantCount := len(ids)
	wantPos := countPositive(y, ids)

	if n.SampleCount != wantCount {
		t.Errorf("node at depth %d: SampleCount = %d, want %d", n.Depth, n.SampleCount, wantCount)
	}
	if n.PositiveCount != wantPos {
		t.Errorf("node at depth %d: PositiveCount = %d, want %d", n.Depth, n.PositiveCount, wantPos)
	}

	if n.Leaf {
		if len(n.SampleIDs) != n.SampleCount {
			t.Errorf("leaf at depth %d: len(SampleIDs) = %d, SampleCount = %d", n.Depth, len(n.SampleIDs), n.SampleCount)
		}
		wantProb := predictedProbability(n.SampleCount, n.PositiveCount)
		if n.PredictedProbability != wantProb {
			t.Errorf("leaf at depth %d: PredictedProbability = %v, want %v", n.Depth, n.PredictedProbability, wantProb)
		}
		return
	}

	wantMeta := computeMeta(X, y, ids, n.CandidateFeatures)
	for k := range wantMeta.LeftCount {
		if n.Meta.LeftCount[k] != wantMeta.LeftCount[k] || n.Meta.RightCount[k] != wantMeta.RightCount[k] ||
			n.Meta.LeftPos[k] != wantMeta.LeftPos[k] || n.Meta.RightPos[k] != wantMeta.RightPos[k] {
			t.Errorf("node at depth %d feature %d: Meta = %+v, want %+v", n.Depth, n.CandidateFeatures[k], n.Meta, wantMeta)
			break
		}
	}

	found := false
	for _, f := range n.CandidateFeatures {
		if f == n.ChosenFeature {
			found = true
		}
	}
	if !found {
		t.Errorf("node at depth %d: ChosenFeature %d not in CandidateFeatures %v", n.Depth, n.ChosenFeature, n.CandidateFeatures)
	}

	assertNodeInvariants(t, n.Left, X, y, minSamplesLeaf)
	assertNodeInvariants(t, n.Right, X, y, minSamplesLeaf)
}

// toyData returns a small, fixed binary-feature dataset used across
// build/splitter/remove tests: 4 features, 8 rows, feature 0 is a
// perfect predictor of the label.
func toyData() (data.Matrix, data.Labels) {
	X := data.Matrix{
		{1, 0, 1, 0},
		{1, 1, 0, 0},
		{1, 0, 0, 1},
		{1, 1, 1, 1},
		{0, 0, 1, 1},
		{0, 1, 0, 0},
		{0, 0, 0, 1},
		{0, 1, 1, 0},
	}
	y := data.Labels{1, 1, 1, 1, 0, 0, 0, 0}
	return X, y
}
