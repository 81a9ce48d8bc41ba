// Package data owns the immutable training matrix and labels for a tree,
// and tracks which sample ids are still live after removal batches.
package data

import (
	"fmt"

	"github.com/pkg/errors"
)

// Matrix is an n x d binary feature matrix, row-major. Matrix[i][f] is
// the value of feature f for sample i, always 0 or 1.
type Matrix [][]uint8

// Labels holds the binary target value for each sample, Labels[i] is
// 0 or 1.
type Labels []uint8

// Sentinel errors surfaced across the package boundary. Wrap with
// errors.Wrap/Wrapf at call sites that have useful context (which id,
// which call); compare with errors.Is against these values, never by
// string matching.
var (
	ErrUnknownID      = errors.New("data: unknown sample id")
	ErrAlreadyRemoved = errors.New("data: sample already removed")
)

// Manager owns X and y and the set of ids still participating in any
// statistic update. Rows are never physically deleted, which keeps ids
// stable across removal batches.
type Manager struct {
	X     Matrix
	Y     Labels
	valid []bool
}

// NewManager loads X and y and marks every row id valid.
func NewManager(X Matrix, Y Labels) *Manager {
	valid := make([]bool, len(Y))
	for i := range valid {
		valid[i] = true
	}
	return &Manager{X: X, Y: Y, valid: valid}
}

// NFeatures returns the number of columns in X, or 0 if X is empty.
func (m *Manager) NFeatures() int {
	if len(m.X) == 0 {
		return 0
	}
	return len(m.X[0])
}

// N returns the total number of rows loaded, valid or not.
func (m *Manager) N() int {
	return len(m.Y)
}

// NValid returns the count of ids that have not been removed.
func (m *Manager) NValid() int {
	n := 0
	for _, v := range m.valid {
		if v {
			n++
		}
	}
	return n
}

// IsValid reports whether id is in range and has not been removed.
func (m *Manager) IsValid(id int) bool {
	return id >= 0 && id < len(m.valid) && m.valid[id]
}

// MarkRemoved marks every id in ids invalid. The check is performed
// against all ids before any mutation, so a batch either succeeds
// entirely or leaves the valid set unchanged: an id out of range fails
// with ErrUnknownID, an id already removed fails with ErrAlreadyRemoved.
func (m *Manager) MarkRemoved(ids []int) error {
	for _, id := range ids {
		if id < 0 || id >= len(m.valid) {
			return errors.Wrapf(ErrUnknownID, "id %d", id)
		}
		if !m.valid[id] {
			return errors.Wrapf(ErrAlreadyRemoved, "id %d", id)
		}
	}

	for _, id := range ids {
		m.valid[id] = false
	}

	return nil
}

// Get returns a view of X and y restricted to ids, in the order given.
// It does not check validity; callers that need only live rows should
// filter with IsValid first.
func (m *Manager) Get(ids []int) (Matrix, Labels, error) {
	X := make(Matrix, len(ids))
	Y := make(Labels, len(ids))

	for i, id := range ids {
		if id < 0 || id >= len(m.Y) {
			return nil, nil, errors.Wrapf(ErrUnknownID, "id %d", id)
		}
		X[i] = m.X[id]
		Y[i] = m.Y[id]
	}

	return X, Y, nil
}

// String implements fmt.Stringer for debugging/test failure messages.
func (m *Manager) String() string {
	return fmt.Sprintf("data.Manager{n=%d, valid=%d, features=%d}", m.N(), m.NValid(), m.NFeatures())
}
