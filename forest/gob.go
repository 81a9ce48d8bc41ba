package forest

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/pkg/errors"

	"github.com/wlattner/dare/data"
	"github.com/wlattner/dare/tree"
)

// gobForest is the on-disk shape of a Forest, the ensemble-level
// analogue of tree's gobTree, following wlattner/rf's forest/forest.go
// Save/Load. Each member tree is round-tripped through tree.Save/Load
// rather than gob's default encoding of *tree.Tree, since the latter
// only captures Root/Params and would leave every loaded tree's
// unexported rng nil.
type gobForest struct {
	TreeBlobs [][]byte
	Params    Params
	X         data.Matrix
	Y         data.Labels
}

// Save writes f to w using encoding/gob.
func (f *Forest) Save(w io.Writer) error {
	blobs := make([][]byte, len(f.Trees))
	for i, t := range f.Trees {
		var buf bytes.Buffer
		if err := t.Save(&buf); err != nil {
			return errors.Wrap(err, "forest: encode tree")
		}
		blobs[i] = buf.Bytes()
	}

	g := gobForest{TreeBlobs: blobs, Params: f.Params, X: f.Mgr.X, Y: f.Mgr.Y}
	if err := gob.NewEncoder(w).Encode(&g); err != nil {
		return errors.Wrap(err, "forest: encode")
	}
	return nil
}

// Load reads a Forest previously written by Save. The Manager is
// rebuilt with every original sample id valid; any removal telemetry
// recorded on the member trees before saving is preserved, but the
// live/removed bookkeeping is not, matching wlattner/rf's Load which
// also only round-trips the fitted model, not deletion history. Every
// tree is decoded through tree.Load, so each one comes back with its
// rng correctly reseeded from its own Params.Seed and is immediately
// usable by a further Remove call.
func Load(r io.Reader) (*Forest, error) {
	var g gobForest
	if err := gob.NewDecoder(r).Decode(&g); err != nil {
		return nil, errors.Wrap(err, "forest: decode")
	}

	trees := make([]*tree.Tree, len(g.TreeBlobs))
	for i, blob := range g.TreeBlobs {
		t, err := tree.Load(bytes.NewReader(blob))
		if err != nil {
			return nil, errors.Wrap(err, "forest: decode tree")
		}
		trees[i] = t
	}

	return &Forest{
		Trees:  trees,
		Params: g.Params,
		Mgr:    data.NewManager(g.X, g.Y),
	}, nil
}
