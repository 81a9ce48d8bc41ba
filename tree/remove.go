package tree

import (
	"github.com/pkg/errors"

	"github.com/wlattner/dare/data"
)

// RemovalReport accumulates telemetry across Remove calls on a Tree,
// cleared only by ClearRemovalMetrics: NRetrains/RetrainDepths record
// structural rebuilds, NLeafUpdates counts leaf-probability-only
// updates, NSamplesRetrained is the total number of samples fed into
// every retrain's builder call.
type RemovalReport struct {
	NRetrains         int
	RetrainDepths     []int
	NLeafUpdates      int
	NSamplesRetrained int
}

// ClearRemovalMetrics resets the tree's cumulative removal telemetry to
// zero. On a poisoned tree it does nothing.
func (t *Tree) ClearRemovalMetrics() {
	if t.poisoned {
		return
	}
	t.telemetry = RemovalReport{}
}

// Remove deletes a batch of sample ids from the tree in place.
// Preconditions: every id in ids must be valid in mgr. On any
// precondition failure (ErrUnknownID/ErrAlreadyRemoved) the tree is left
// completely unchanged and the error is returned; mgr.MarkRemoved is
// atomic so either every id is marked or none are. Remove(nil/empty) is
// a no-op on tree shape and telemetry.
//
// Traversal is deterministic pre-order DFS, left before right, with
// per-node counter updates preceding the validity check and recursion.
func (t *Tree) Remove(mgr *data.Manager, ids []int) (RemovalReport, error) {
	if err := t.poisonCheck(); err != nil {
		return t.telemetry, err
	}

	if len(ids) == 0 {
		return t.telemetry, nil
	}

	if err := mgr.MarkRemoved(ids); err != nil {
		return t.telemetry, err
	}

	return t.RemoveValidated(mgr.X, mgr.Y, ids)
}

// RemoveValidated performs the structural removal procedure directly,
// skipping the data.Manager precondition check Remove otherwise does.
// It exists for the forest package: a forest shares one Manager across
// every member tree, so the precondition check and the id-validity
// bookkeeping happen exactly once, at the forest level, before fanning
// the already-validated batch out to each tree's own RemoveValidated
// call.
func (t *Tree) RemoveValidated(X data.Matrix, y data.Labels, ids []int) (RemovalReport, error) {
	if err := t.poisonCheck(); err != nil {
		return t.telemetry, err
	}
	if len(ids) == 0 {
		return t.telemetry, nil
	}

	removed := make(map[int]bool, len(ids))
	for _, id := range ids {
		removed[id] = true
	}

	if err := t.removeAtNode(&t.Root, X, y, ids, removed); err != nil {
		t.poisoned = true
		return t.telemetry, errors.Wrap(ErrPoisoned, err.Error())
	}

	return t.telemetry, nil
}

// removeAtNode implements the per-node descent/update procedure:
// update counters, then either update a leaf's prediction, convert to a
// leaf, recurse into valid children, or retrain. parent is the slot
// holding this node (the tree's Root field or its parent's Left/Right),
// passed by reference so a retrain can splice in a replacement subtree
// without Node needing parent pointers of its own.
func (t *Tree) removeAtNode(parent **Node, X data.Matrix, y data.Labels, idsAtNode []int, removed map[int]bool) error {
	if len(idsAtNode) == 0 {
		return nil
	}

	n := *parent

	for _, id := range idsAtNode {
		n.SampleCount--
		if y[id] == 1 {
			n.PositiveCount--
		}
	}

	if !n.Leaf {
		for _, id := range idsAtNode {
			row := X[id]
			positive := y[id] == 1
			for k, f := range n.CandidateFeatures {
				if row[f] == 0 {
					n.Meta.LeftCount[k]--
					if positive {
						n.Meta.LeftPos[k]--
					}
				} else {
					n.Meta.RightCount[k]--
					if positive {
						n.Meta.RightPos[k]--
					}
				}
			}
		}
	}

	if n.Leaf {
		n.SampleIDs = removeIDs(n.SampleIDs, idsAtNode)
		n.PredictedProbability = predictedProbability(n.SampleCount, n.PositiveCount)
		t.telemetry.NLeafUpdates++
		return nil
	}

	pure := n.PositiveCount == 0 || n.PositiveCount == n.SampleCount
	tooSmall := n.SampleCount < t.Params.MinSamplesSplit
	elig := eligibleIndices(n.Meta, t.Params.MinSamplesLeaf)

	if tooSmall || pure || len(elig) == 0 {
		return t.convertToLeaf(parent, y, removed)
	}

	scores := scoresFor(n.Meta)
	pi := gibbsWeights(scores, elig, t.Params.Lambda)
	chosenIdx := elig[drawIndex(pi, n.U)]
	feature := n.CandidateFeatures[chosenIdx]

	if feature == n.ChosenFeature {
		n.Pi = pi

		var left, right []int
		for _, id := range idsAtNode {
			if X[id][n.ChosenFeature] == 0 {
				left = append(left, id)
			} else {
				right = append(right, id)
			}
		}

		if len(left) > 0 {
			if err := t.removeAtNode(&n.Left, X, y, left, removed); err != nil {
				return err
			}
		}
		if len(right) > 0 {
			if err := t.removeAtNode(&n.Right, X, y, right, removed); err != nil {
				return err
			}
		}
		return nil
	}

	return t.retrain(parent, X, y, removed)
}

// convertToLeaf discards N's children, gathers the still-live sample
// ids under N (excluding the full removal batch), and replaces N with a
// leaf labeled by the surviving fraction. Reached when splitting N is no
// longer structurally possible (too few samples, purity, or no eligible
// feature); this is not an error, just a leaf update in telemetry.
func (t *Tree) convertToLeaf(parent **Node, y data.Labels, removed map[int]bool) error {
	n := *parent
	remaining := collectLeafSamples(n, removed)

	leaf := &Node{Depth: n.Depth}
	makeLeaf(leaf, remaining, len(remaining), countPositive(y, remaining))
	t.telemetry.NLeafUpdates++
	*parent = leaf
	return nil
}

// retrain rebuilds the minimal subtree rooted at N using every
// currently-live sample id under N. Retraining always happens at the
// shallowest invalidated node on a descent path, and descendants of a
// retrained subtree are never separately visited in the same Remove
// call.
func (t *Tree) retrain(parent **Node, X data.Matrix, y data.Labels, removed map[int]bool) error {
	n := *parent
	remaining := collectLeafSamples(n, removed)

	if t.failAllocation {
		t.failAllocation = false
		return errors.Wrap(ErrOutOfMemory, "simulated allocation failure during retrain")
	}

	var newRoot *Node
	if len(remaining) == 0 {
		newRoot = &Node{Depth: n.Depth}
		makeLeaf(newRoot, remaining, 0, 0)
	} else {
		newRoot = buildSubtree(X, y, remaining, n.CandidateFeatures, n.Depth, t.Params, t.rng)
	}

	*parent = newRoot

	t.telemetry.NRetrains++
	t.telemetry.RetrainDepths = append(t.telemetry.RetrainDepths, n.Depth)
	t.telemetry.NSamplesRetrained += len(remaining)

	return nil
}

// collectLeafSamples walks every descendant leaf of n and gathers its
// sample ids, excluding any id in removed (the full batch passed to
// this Remove call, not just the subset that routed through n). This is
// O(size of subtree), the dominant cost of a deletion that triggers a
// structural change.
func collectLeafSamples(n *Node, removed map[int]bool) []int {
	var out []int
	var walk func(*Node)
	walk = func(nd *Node) {
		if nd.Leaf {
			for _, id := range nd.SampleIDs {
				if !removed[id] {
					out = append(out, id)
				}
			}
			return
		}
		walk(nd.Left)
		walk(nd.Right)
	}
	walk(n)
	return out
}

// removeIDs returns ids with every member of drop removed, preserving
// order. drop is expected to be small (the subset of a Remove batch
// routed to this one leaf), so a linear membership test is simple and
// cheap relative to allocating a set.
func removeIDs(ids []int, drop []int) []int {
	out := ids[:0:0]
	for _, id := range ids {
		found := false
		for _, d := range drop {
			if d == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}
