package tree

import (
	"encoding/gob"
	"io"

	"github.com/pkg/errors"
)

// gobTree is the on-disk shape of a Tree: the RNG and the test-only
// failAllocation hook are deliberately excluded, persisting only the
// fitted model and not its build-time machinery, following wlattner/rf's
// own Save/Load. This is a convenience for cmd/dare and tests, not a
// specified wire format.
type gobTree struct {
	Root      *Node
	Params    Params
	Poisoned  bool
	Telemetry RemovalReport
}

// Save writes t to w using encoding/gob, matching wlattner/rf's Save
// methods.
func (t *Tree) Save(w io.Writer) error {
	g := gobTree{Root: t.Root, Params: t.Params, Poisoned: t.poisoned, Telemetry: t.telemetry}
	if err := gob.NewEncoder(w).Encode(&g); err != nil {
		return errors.Wrap(err, "tree: encode")
	}
	return nil
}

// Load reads a Tree previously written by Save. The loaded Tree's RNG
// is reseeded from Params.Seed, so further Remove calls on a loaded
// tree draw from the start of that seed's sequence, not from where the
// saved tree's RNG stood; RNG state itself is never serialized.
func Load(r io.Reader) (*Tree, error) {
	var g gobTree
	if err := gob.NewDecoder(r).Decode(&g); err != nil {
		return nil, errors.Wrap(err, "tree: decode")
	}
	return &Tree{
		Root:      g.Root,
		Params:    g.Params,
		rng:       newRand(g.Params.Seed),
		poisoned:  g.Poisoned,
		telemetry: g.Telemetry,
	}, nil
}
