package data

import (
	"testing"
)

func toyManager() *Manager {
	X := Matrix{
		{1, 0},
		{0, 1},
		{1, 1},
		{0, 0},
	}
	Y := Labels{1, 0, 1, 0}
	return NewManager(X, Y)
}

func TestNewManagerAllValid(t *testing.T) {
	m := toyManager()
	if m.NValid() != 4 {
		t.Errorf("NValid() = %d, want 4", m.NValid())
	}
	if m.N() != 4 {
		t.Errorf("N() = %d, want 4", m.N())
	}
	if m.NFeatures() != 2 {
		t.Errorf("NFeatures() = %d, want 2", m.NFeatures())
	}
}

func TestMarkRemoved(t *testing.T) {
	m := toyManager()

	if err := m.MarkRemoved([]int{1}); err != nil {
		t.Fatalf("MarkRemoved: %v", err)
	}
	if m.IsValid(1) {
		t.Error("id 1 should be invalid after removal")
	}
	if m.NValid() != 3 {
		t.Errorf("NValid() = %d, want 3", m.NValid())
	}
}

func TestMarkRemovedUnknownID(t *testing.T) {
	m := toyManager()

	if err := m.MarkRemoved([]int{99}); errorsIsUnknown(err) == false {
		t.Errorf("expected ErrUnknownID, got %v", err)
	}
	if m.NValid() != 4 {
		t.Error("a rejected batch must not change NValid")
	}
}

func TestMarkRemovedAlreadyRemoved(t *testing.T) {
	m := toyManager()

	if err := m.MarkRemoved([]int{0}); err != nil {
		t.Fatalf("MarkRemoved: %v", err)
	}
	if err := m.MarkRemoved([]int{0}); errorsIsAlreadyRemoved(err) == false {
		t.Errorf("expected ErrAlreadyRemoved, got %v", err)
	}
}

func TestMarkRemovedBatchIsAtomic(t *testing.T) {
	m := toyManager()

	// id 0 is valid, id 99 is not: the whole batch must be rejected and
	// id 0 must remain valid.
	if err := m.MarkRemoved([]int{0, 99}); err == nil {
		t.Fatal("expected an error for a batch containing an unknown id")
	}
	if !m.IsValid(0) {
		t.Error("valid id 0 should remain valid after a rejected batch")
	}
}

func TestGet(t *testing.T) {
	m := toyManager()

	X, Y, err := m.Get([]int{2, 0})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(X) != 2 || len(Y) != 2 {
		t.Fatalf("Get returned %d rows, want 2", len(X))
	}
	if Y[0] != 1 || Y[1] != 1 {
		t.Errorf("Get returned Y = %v, want [1 1]", Y)
	}
}

func errorsIsUnknown(err error) bool {
	return causeIs(err, ErrUnknownID)
}

func errorsIsAlreadyRemoved(err error) bool {
	return causeIs(err, ErrAlreadyRemoved)
}

func causeIs(err, target error) bool {
	type causer interface{ Cause() error }
	for err != nil {
		if err == target {
			return true
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}
