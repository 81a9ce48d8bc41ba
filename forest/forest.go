// Package forest fans a collection of tree.Tree values out across a
// worker pool, the way wlattner/rf's forest/forest.go does for its
// bagged ensemble: a "trivial outer loop" over the same
// Fit/Predict/Remove operations a single tree exposes, generalized
// from wlattner/rf's classification forest.
//
// Diversity here comes from two sources, not classic bootstrap row
// resampling: each tree gets an independent RNG seed (so its Gibbs
// draws differ) and an independent random subset of candidate
// features at the root (the random-subspace idea wlattner/rf's
// MaxFeatures option also expresses). Every tree is trained on every
// live sample id, which keeps a sample id's membership uniform across
// the whole forest — the simplification that makes Remove a genuinely
// trivial fan-out: a removal batch validated once against the shared
// Manager applies, unmodified, to every member tree. A classic
// bootstrap-with-replacement forest would instead need each tree to
// track per-occurrence multiplicities of a resampled id, which the
// Remover's exact-replay design was never built to carry.
package forest

import (
	"math/rand"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/wlattner/dare/data"
	"github.com/wlattner/dare/tree"
)

var (
	// ErrInvalidParams mirrors tree.ErrInvalidParams for forest-level
	// configuration mistakes.
	ErrInvalidParams = errors.New("forest: invalid params")
)

// Configer is implemented by Params, following the same functional
// options shape as tree.Configer and wlattner/rf's forestConfiger.
type Configer interface {
	setNumTrees(int)
	setNumWorkers(int)
	setMaxFeatures(int)
	setMaxDepth(int)
	setMinSamplesSplit(int)
	setMinSamplesLeaf(int)
	setLambda(float64)
	setSeed(int64)
}

// Params holds forest-level configuration: how many trees, how much
// parallelism, how many candidate features each tree's root considers,
// and the per-tree Params passed through to tree.BuildSubset.
type Params struct {
	NumTrees        int
	NumWorkers      int
	MaxFeatures     int // 0 means round(sqrt(nFeatures)), at least 1
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Lambda          float64
	Seed            int64
}

func (p *Params) setNumTrees(n int)          { p.NumTrees = n }
func (p *Params) setNumWorkers(n int)        { p.NumWorkers = n }
func (p *Params) setMaxFeatures(n int)       { p.MaxFeatures = n }
func (p *Params) setMaxDepth(n int)          { p.MaxDepth = n }
func (p *Params) setMinSamplesSplit(n int)   { p.MinSamplesSplit = n }
func (p *Params) setMinSamplesLeaf(n int)    { p.MinSamplesLeaf = n }
func (p *Params) setLambda(lambda float64)   { p.Lambda = lambda }
func (p *Params) setSeed(seed int64)         { p.Seed = seed }

// NumTrees sets the ensemble size.
func NumTrees(n int) func(Configer) { return func(c Configer) { c.setNumTrees(n) } }

// NumWorkers caps how many trees build concurrently.
func NumWorkers(n int) func(Configer) { return func(c Configer) { c.setNumWorkers(n) } }

// MaxFeatures sets the size of each tree's root-level candidate
// feature subset; 0 defers to round(sqrt(nFeatures)).
func MaxFeatures(n int) func(Configer) { return func(c Configer) { c.setMaxFeatures(n) } }

// MaxDepth is passed through to every member tree's tree.Params.
func MaxDepth(n int) func(Configer) { return func(c Configer) { c.setMaxDepth(n) } }

// MinSamplesSplit is passed through to every member tree's tree.Params.
func MinSamplesSplit(n int) func(Configer) { return func(c Configer) { c.setMinSamplesSplit(n) } }

// MinSamplesLeaf is passed through to every member tree's tree.Params.
func MinSamplesLeaf(n int) func(Configer) { return func(c Configer) { c.setMinSamplesLeaf(n) } }

// Lambda is passed through to every member tree's tree.Params.
func Lambda(lambda float64) func(Configer) { return func(c Configer) { c.setLambda(lambda) } }

// Seed derives every member tree's individual seed (params.Seed + index + 1).
func Seed(seed int64) func(Configer) { return func(c Configer) { c.setSeed(seed) } }

// NewParams returns Params with sane defaults (NumTrees(10),
// NumWorkers(runtime.NumCPU())), applies options, and validates.
func NewParams(options ...func(Configer)) (Params, error) {
	p := Params{
		NumTrees:        10,
		NumWorkers:      runtime.NumCPU(),
		MaxFeatures:     0,
		MaxDepth:        -1,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Lambda:          1.0,
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
	if p.NumTrees < 1 {
		return errors.Wrap(ErrInvalidParams, "num_trees must be >= 1")
	}
	if p.NumWorkers < 1 {
		return errors.Wrap(ErrInvalidParams, "num_workers must be >= 1")
	}
	if p.MaxFeatures < 0 {
		return errors.Wrap(ErrInvalidParams, "max_features must be >= 0")
	}
	return nil
}

// Forest is a collection of independently-built trees sharing one
// data.Manager, following wlattner/rf's forest.Classifier shape.
type Forest struct {
	Trees  []*tree.Tree
	Params Params
	Mgr    *data.Manager
}

// Fit builds Params.NumTrees trees over a worker pool of
// Params.NumWorkers goroutines, grounded on wlattner/rf's forest.go
// channel-based job dispatch. Each tree is built from the full, live
// sample set in mgr, using an independently-seeded RNG and an
// independently-sampled candidate feature subset of size MaxFeatures.
func Fit(X data.Matrix, y data.Labels, params Params) (*Forest, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, errors.Wrap(ErrInvalidParams, "empty training set")
	}

	nFeatures := len(X[0])
	maxFeatures := params.MaxFeatures
	if maxFeatures == 0 {
		maxFeatures = defaultMaxFeatures(nFeatures)
	}
	if maxFeatures > nFeatures {
		maxFeatures = nFeatures
	}

	mgr := data.NewManager(X, y)

	trees := make([]*tree.Tree, params.NumTrees)
	errs := make([]error, params.NumTrees)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < params.NumWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				trees[i], errs[i] = fitOne(X, y, params, nFeatures, maxFeatures, i)
			}
		}()
	}
	for i := 0; i < params.NumTrees; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return &Forest{Trees: trees, Params: params, Mgr: mgr}, nil
}

func fitOne(X data.Matrix, y data.Labels, params Params, nFeatures, maxFeatures, index int) (*tree.Tree, error) {
	seed := params.Seed + int64(index) + 1
	rng := rand.New(rand.NewSource(seed))

	features := sampleFeatures(rng, nFeatures, maxFeatures)

	treeParams, err := tree.NewParams(
		tree.MaxDepth(params.MaxDepth),
		tree.MinSamplesSplit(params.MinSamplesSplit),
		tree.MinSamplesLeaf(params.MinSamplesLeaf),
		tree.Lambda(params.Lambda),
		tree.Seed(seed),
	)
	if err != nil {
		return nil, err
	}

	return tree.BuildSubset(X, y, treeParams, features)
}

// sampleFeatures draws k distinct feature indices out of [0, n) using a
// partial Fisher-Yates shuffle, the same approach wlattner/rf's
// build.go uses to sample MaxFeatures candidates per split; here it
// runs once, at the root, per tree rather than once per node, since
// the tree package's builder always considers every remaining feature at every node
// and leaves root-level feature bagging to the forest.
func sampleFeatures(rng *rand.Rand, n, k int) []int {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	out := append([]int(nil), pool[:k]...)
	sortInts(out)
	return out
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

func defaultMaxFeatures(nFeatures int) int {
	// the largest k with k*(k-1) < nFeatures is round(sqrt(nFeatures))
	k := 1
	for k*(k+1) < nFeatures {
		k++
	}
	if k < 1 {
		k = 1
	}
	return k
}

// Predict averages each tree's predicted_probability for every row of
// X, wlattner/rf's forest-level prediction rule generalized from a
// majority class vote to an averaged probability (each tree's own
// prediction is already probability-valued).
func (f *Forest) Predict(X data.Matrix) []float64 {
	out := make([]float64, len(X))
	for _, t := range f.Trees {
		p := t.Predict(X)
		for i, v := range p {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out
}

// Remove fans a single validated removal batch out across every member
// tree, merging telemetry. The Manager precondition check happens
// exactly once, here; each tree's RemoveValidated call skips its own
// Manager check, since ids have already been validated and marked
// (see tree.Tree.RemoveValidated).
func (f *Forest) Remove(ids []int) (RemovalReport, error) {
	if err := f.Mgr.MarkRemoved(ids); err != nil {
		return RemovalReport{}, err
	}

	merged := RemovalReport{PerTree: make([]tree.RemovalReport, len(f.Trees))}

	for i, t := range f.Trees {
		report, err := t.RemoveValidated(f.Mgr.X, f.Mgr.Y, ids)
		if err != nil {
			merged.PerTree[i] = report
			merged.FailedTrees = append(merged.FailedTrees, i)
			continue
		}
		merged.PerTree[i] = report
		merged.NRetrains += report.NRetrains
		merged.NLeafUpdates += report.NLeafUpdates
		merged.NSamplesRetrained += report.NSamplesRetrained
	}

	return merged, nil
}

// RemovalReport merges every member tree's tree.RemovalReport. A
// non-empty FailedTrees does not imply every tree failed: a tree whose
// own retrain hit a resource exhaustion is marked poisoned
// independently, the rest of the forest is unaffected.
type RemovalReport struct {
	NRetrains         int
	NLeafUpdates      int
	NSamplesRetrained int
	PerTree           []tree.RemovalReport
	FailedTrees       []int
}
