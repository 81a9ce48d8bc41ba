package tree

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Params holds the global parameters of a Tree, set once at Build time.
// Follows wlattner/rf's functional-options shape (tree.MinSplit,
// tree.MaxDepth, ...), generalized: no MaxFeatures/Impurity at the tree
// level, since every node considers its full remaining candidate
// feature set under a fixed Gini impurity.
type Params struct {
	MaxDepth        int // max depth a leaf may reach; 0 means root-only
	MinSamplesSplit int // min sample_count for a node to be split
	MinSamplesLeaf  int // min sample_count required on each side of a split
	Lambda          float64
	Seed            int64
}

// Configer is implemented by Params so options compose the same way
// wlattner/rf's treeConfiger does.
type Configer interface {
	setMaxDepth(int)
	setMinSamplesSplit(int)
	setMinSamplesLeaf(int)
	setLambda(float64)
	setSeed(int64)
}

func (p *Params) setMaxDepth(n int)          { p.MaxDepth = n }
func (p *Params) setMinSamplesSplit(n int)   { p.MinSamplesSplit = n }
func (p *Params) setMinSamplesLeaf(n int)    { p.MinSamplesLeaf = n }
func (p *Params) setLambda(lambda float64)   { p.Lambda = lambda }
func (p *Params) setSeed(seed int64)         { p.Seed = seed }

// MaxDepth limits the depth of the fitted tree.
func MaxDepth(n int) func(Configer) {
	return func(c Configer) { c.setMaxDepth(n) }
}

// MinSamplesSplit limits the size for a node to be split vs marked as a leaf.
func MinSamplesSplit(n int) func(Configer) {
	return func(c Configer) { c.setMinSamplesSplit(n) }
}

// MinSamplesLeaf limits the size of a child produced by a split.
func MinSamplesLeaf(n int) func(Configer) {
	return func(c Configer) { c.setMinSamplesLeaf(n) }
}

// Lambda sets the Gibbs noise temperature for the randomized splitter.
// Smaller values select closer to the argmin-Gini feature; larger
// values select closer to uniform among eligible features.
func Lambda(lambda float64) func(Configer) {
	return func(c Configer) { c.setLambda(lambda) }
}

// Seed sets the RNG seed used to build the tree and to make every
// subsequent randomized split decision reproducible.
func Seed(seed int64) func(Configer) {
	return func(c Configer) { c.setSeed(seed) }
}

// NewParams returns a Params populated with sane defaults
// (MinSamplesSplit(2), MinSamplesLeaf(1), MaxDepth(-1) meaning
// unbounded, Lambda(1.0)), applies options, then validates the result.
func NewParams(options ...func(Configer)) (Params, error) {
	p := Params{
		MaxDepth:        -1,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Lambda:          1.0,
		Seed:            time.Now().UnixNano(),
	}

	for _, opt := range options {
		opt(&p)
	}

	if err := p.validate(); err != nil {
		return Params{}, err
	}

	return p, nil
}

func (p Params) validate() error {
	// MaxDepth == -1 means "grow a full tree"; the candidate feature set
	// shrinks by one per level, so recursion is already bounded by the
	// number of features regardless of this sentinel. Any other
	// negative value is rejected.
	if p.MaxDepth < -1 {
		return errors.Wrap(ErrInvalidParams, "max_depth must be >= 0, or -1 for unbounded")
	}
	if p.Lambda <= 0 {
		return errors.Wrap(ErrInvalidParams, "lambda must be > 0")
	}
	if p.MinSamplesSplit < 2 {
		return errors.Wrap(ErrInvalidParams, "min_samples_split must be >= 2")
	}
	if p.MinSamplesLeaf < 1 {
		return errors.Wrap(ErrInvalidParams, "min_samples_leaf must be >= 1")
	}
	return nil
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
