package tree

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/wlattner/dare/data"
)

// gini is the impurity of a node with c total samples, p of which are
// positive: g(c,p) = 1 - (p/c)^2 - ((c-p)/c)^2. g(0, .) is defined as 0.
// Same formula as wlattner/rf's gini(), specialized to two classes.
func gini(c, p int) float64 {
	if c == 0 {
		return 0
	}
	pf := float64(p) / float64(c)
	nf := float64(c-p) / float64(c)
	return 1 - pf*pf - nf*nf
}

// weightedScore computes G(f') = (cL/c)*g(cL,pL) + (cR/c)*g(cR,pR) for
// one candidate feature, the direct generalization of wlattner/rf's
// weighted impurity combination in bestSplit, minus the continuous
// threshold scan (a binary feature has exactly one possible split).
func weightedScore(cL, pL, cR, pR int) float64 {
	c := cL + cR
	if c == 0 {
		return 0
	}
	return (float64(cL)/float64(c))*gini(cL, pL) + (float64(cR)/float64(c))*gini(cR, pR)
}

// computeMeta scans ids once and accumulates, for every feature in
// candidateFeatures, the left/right sample and positive counts. This is
// the only place sufficient statistics are computed from a full scan;
// every later update (Remover) is an incremental decrement of this
// block, never a rescan.
func computeMeta(X data.Matrix, y data.Labels, ids []int, candidateFeatures []int) Meta {
	m := newMeta(len(candidateFeatures))

	for _, id := range ids {
		row := X[id]
		positive := y[id] == 1
		for k, f := range candidateFeatures {
			if row[f] == 0 {
				m.LeftCount[k]++
				if positive {
					m.LeftPos[k]++
				}
			} else {
				m.RightCount[k]++
				if positive {
					m.RightPos[k]++
				}
			}
		}
	}

	return m
}

// eligibleIndices returns the indices (into candidateFeatures/Meta)
// whose left and right counts both meet minSamplesLeaf, in ascending
// order. The ascending order is load-bearing: it is the canonical
// ordering the Gibbs cumulative distribution and the persisted draw u
// are defined over, both at build time and at every later recheck.
func eligibleIndices(m Meta, minSamplesLeaf int) []int {
	var elig []int
	for k := range m.LeftCount {
		if m.LeftCount[k] >= minSamplesLeaf && m.RightCount[k] >= minSamplesLeaf {
			elig = append(elig, k)
		}
	}
	return elig
}

// gibbsWeights computes the Gibbs weight exp(-G(f')/lambda) for each of
// the given eligible indices, using max-subtraction for numerical
// stability: m = max(-G/lambda), weight = exp(-G/lambda - m), and then
// normalizes the weights so they sum to 1.
// Grounded on gonum/stat/sampleuv's pattern of building a weighted
// sampler from an explicit, already-computed weight vector; floats.Max
// supplies the stable-softmax max-subtraction that wlattner/rf's own
// argmin-over-G selection never needed.
func gibbsWeights(scores []float64, eligible []int, lambda float64) []float64 {
	scaled := make([]float64, len(eligible))
	for i, k := range eligible {
		scaled[i] = -scores[k] / lambda
	}

	m := floats.Max(scaled)

	weights := make([]float64, len(scaled))
	var sum float64
	for i, s := range scaled {
		weights[i] = math.Exp(s - m)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}

	return weights
}

// drawIndex performs the inverse-CDF draw: given the Gibbs distribution
// pi over eligible (ascending, aligned with pi), returns the position
// within eligible that u falls into. u must be in [0,1). The same
// function computes the original draw at build time and replays it at
// recheck time, which is what makes the Remover's validity check exact
// rather than statistical.
func drawIndex(pi []float64, u float64) int {
	var cum float64
	for i, w := range pi {
		cum += w
		if u < cum {
			return i
		}
	}
	// floating point rounding may leave u just above the final
	// cumulative sum; fall back to the last bucket.
	return len(pi) - 1
}

// scoresFor computes G(f') for every candidate feature index from Meta.
func scoresFor(m Meta) []float64 {
	scores := make([]float64, len(m.LeftCount))
	for k := range scores {
		scores[k] = weightedScore(m.LeftCount[k], m.LeftPos[k], m.RightCount[k], m.RightPos[k])
	}
	return scores
}

// splitResult is the Splitter's output: the chosen feature, the
// partitioned ids, the surviving candidate feature set, the Meta used
// to decide, and the Gibbs distribution/draw to persist on the node.
type splitResult struct {
	feature   int
	leftIDs   []int
	rightIDs  []int
	surviving []int
	meta      Meta
	pi        []float64
	u         float64
}

// split selects a split feature for a node from ids/candidateFeatures:
// compute Meta, filter to eligible features, build the Gibbs
// distribution over Gini scores, draw a feature, partition ids by its
// value. Returns ErrNoValidSplit if no feature is eligible; the caller
// (Builder/Remover) converts the node to a leaf in that case.
func split(X data.Matrix, y data.Labels, ids []int, candidateFeatures []int, rng *rand.Rand, lambda float64, minSamplesLeaf int) (splitResult, error) {
	meta := computeMeta(X, y, ids, candidateFeatures)
	elig := eligibleIndices(meta, minSamplesLeaf)

	if len(elig) == 0 {
		return splitResult{}, ErrNoValidSplit
	}

	scores := scoresFor(meta)
	pi := gibbsWeights(scores, elig, lambda)
	u := rng.Float64()
	chosenPos := drawIndex(pi, u)
	chosenIdx := elig[chosenPos]
	feature := candidateFeatures[chosenIdx]

	var left, right []int
	for _, id := range ids {
		if X[id][feature] == 0 {
			left = append(left, id)
		} else {
			right = append(right, id)
		}
	}

	surviving := make([]int, 0, len(candidateFeatures)-1)
	for _, f := range candidateFeatures {
		if f != feature {
			surviving = append(surviving, f)
		}
	}

	return splitResult{
		feature:   feature,
		leftIDs:   left,
		rightIDs:  right,
		surviving: surviving,
		meta:      meta,
		pi:        pi,
		u:         u,
	}, nil
}
