package tree

// VarImp returns, indexed by feature, the impurity decrease attributed
// to splits on that feature across the whole tree, weighted by the
// number of samples reaching the splitting node and normalized so the
// importances sum to 1 (all zero if no split decreases impurity). Ported from
// wlattner/rf's VarImp(), generalized from a recursive node walk with
// an explicit impurity field to this package's Meta-derived score (the
// weighted post-split impurity is already available per node, so
// importance is parent impurity minus it).
func (t *Tree) VarImp(nFeatures int) []float64 {
	imp := make([]float64, nFeatures)

	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil || n.Leaf {
			return
		}

		parentGini := gini(n.SampleCount, n.PositiveCount)
		k := n.indexOf(n.ChosenFeature)
		splitScore := weightedScore(n.Meta.LeftCount[k], n.Meta.LeftPos[k], n.Meta.RightCount[k], n.Meta.RightPos[k])

		decrease := float64(n.SampleCount) * (parentGini - splitScore)
		if decrease > 0 {
			imp[n.ChosenFeature] += decrease
		}

		walk(n.Left)
		walk(n.Right)
	}
	walk(t.Root)

	var total float64
	for _, v := range imp {
		total += v
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}

	return imp
}
