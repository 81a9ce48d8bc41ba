// Package tree implements the core of a data-efficient machine-unlearning
// decision tree: a randomized, noisy-Gini splitter (Splitter), a
// recursive builder (Builder), and an in-place deletion procedure
// (Remover) that retrains only the minimal subtree whose split became
// invalid under an exact replay of its original randomized draw.
//
// Most of what follows generalizes wlattner/rf's continuous-feature CART
// splitter to binary features and a randomized, reversible split
// decision, as described in Brophy & Lowd's data-efficient random
// forests for machine unlearning.
package tree

import (
	"math/rand"

	"github.com/wlattner/dare/data"
)

// Tree owns a root Node and the parameters it was built with. A Tree is
// single-owner: at most one goroutine may Build, Remove, or mutate a
// given Tree at a time; Predict on an otherwise-idle Tree may be called
// concurrently from many goroutines.
type Tree struct {
	Root   *Node
	Params Params

	rng      *rand.Rand
	poisoned bool

	// failAllocation is a test-only hook: when true, the next retrain
	// triggered by Remove fails with ErrOutOfMemory instead of
	// allocating a replacement subtree, exercising the poisoned-tree
	// path below without an actual resource exhaustion.
	failAllocation bool

	telemetry RemovalReport
}

// Predict returns, for each row of X, the predicted probability of the
// leaf reached by walking the tree using X's feature values at each
// internal node.
func (t *Tree) Predict(X data.Matrix) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		n := t.Root
		for !n.Leaf {
			if row[n.ChosenFeature] == 0 {
				n = n.Left
			} else {
				n = n.Right
			}
		}
		out[i] = n.PredictedProbability
	}
	return out
}

// poisonCheck returns ErrPoisoned if the tree has previously suffered an
// unrecoverable allocation failure during a retrain: once that happens
// the tree is permanently marked poisoned and every further Remove or
// RemoveValidated call is rejected. Predict does not consult this flag.
func (t *Tree) poisonCheck() error {
	if t.poisoned {
		return ErrPoisoned
	}
	return nil
}
