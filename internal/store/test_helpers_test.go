package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestDB creates a new file-backed store for testing.
func createTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestValues creates an intern table named "notes" for testing.
func createTestValues(t *testing.T) *Values {
	t.Helper()
	v, err := NewValues(context.Background(), createTestDB(t), "notes", "note")
	if err != nil {
		t.Fatalf("NewValues() failed: %v", err)
	}
	return v
}

// createTestPairs creates an integer-valued pair table named "notations" for testing.
func createTestPairs(t *testing.T) *Pairs[int64] {
	t.Helper()
	p, err := NewPairs[int64](context.Background(), createTestDB(t), "notations", "activity", "note")
	if err != nil {
		t.Fatalf("NewPairs() failed: %v", err)
	}
	return p
}
