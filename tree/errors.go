package tree

import "github.com/pkg/errors"

// Sentinel errors surfaced across the package boundary. Wrap with
// errors.Wrap/Wrapf at call sites that have useful context.
var (
	// ErrInvalidParams is returned by NewParams/Build when a parameter
	// is out of range (lambda <= 0, empty feature set, empty training
	// set, min_samples_split < 2, min_samples_leaf < 1).
	ErrInvalidParams = errors.New("tree: invalid params")

	// ErrNoValidSplit is returned internally by the splitter when no
	// candidate feature is eligible; the builder/remover converts the
	// node to a leaf in response, it is not surfaced to the host.
	ErrNoValidSplit = errors.New("tree: no valid split")

	// ErrPoisoned is returned by Remove/RemoveValidated once a tree has
	// suffered an unrecoverable allocation failure during a retrain,
	// including by the call in which that failure happens. No further
	// Remove calls are accepted, and ClearRemovalMetrics leaves a
	// poisoned tree's telemetry as it is.
	ErrPoisoned = errors.New("tree: poisoned, no further operations accepted")

	// ErrOutOfMemory is the error a retrain's failed allocation
	// produces. Remove reports that failure as ErrPoisoned, with
	// ErrOutOfMemory's message in the wrap text.
	ErrOutOfMemory = errors.New("tree: out of memory during retrain")
)
