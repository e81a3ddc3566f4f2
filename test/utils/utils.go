package utils

import (
	"math/rand"
	"os"
	"slices"
	"testing"

	"crocdb/pkg/hash"
)

// Mod vals by this value to prevent hardcoding tests.
// + 1 is necessary because rand.Int63n(_) can return 0.
var Salt int64 = rand.Int63n(1000) + 1

// GetTempDbFile creates a random file in the OS's default temporary
// directory to back an index under test, returning the file's name.
// The file is deleted once the test finishes.
func GetTempDbFile(t *testing.T) string {
	tmpfile, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatal(err)
	}

	// os.CreateTemp opens the file; the pager wants to open it itself.
	_ = tmpfile.Close()

	EnsureCleanup(t, func() {
		_ = os.Remove(tmpfile.Name())
	})
	return tmpfile.Name()
}

// EnsureCleanup registers a cleanup function that runs when the test (and
// all its parallel subtests) finish.
func EnsureCleanup(t *testing.T, cleanup func()) {
	t.Cleanup(cleanup)
}

// InsertPair inserts (key, val) into the index, erroring the test if the
// operation fails or reports the pair as not inserted.
func InsertPair(t *testing.T, index *hash.HashIndex, key, val int64) {
	inserted, err := index.Insert(key, val)
	if err != nil {
		t.Errorf("Failed to insert (%d, %d) into the index: %s", key, val, err)
		return
	}
	if !inserted {
		t.Errorf("Expected (%d, %d) to be inserted, but the index reported it wasn't", key, val)
	}
}

// InsertPairSplitting inserts (key, val), retrying when the insert reports
// false because a single split pass didn't yet separate the bucket's keys.
// Fails the test if the pair still isn't placed after maxAttempts splits.
func InsertPairSplitting(t *testing.T, index *hash.HashIndex, key, val int64, maxAttempts int) {
	for i := 0; i < maxAttempts; i++ {
		inserted, err := index.Insert(key, val)
		if err != nil {
			t.Errorf("Failed to insert (%d, %d) into the index: %s", key, val, err)
			return
		}
		if inserted {
			return
		}
	}
	t.Errorf("Failed to place (%d, %d) after %d split attempts", key, val, maxAttempts)
}

// RemovePair removes (key, val) from the index, erroring the test if the
// operation fails or the pair wasn't present.
func RemovePair(t *testing.T, index *hash.HashIndex, key, val int64) {
	removed, err := index.Remove(key, val)
	if err != nil {
		t.Errorf("Failed to remove (%d, %d) from the index: %s", key, val, err)
		return
	}
	if !removed {
		t.Errorf("Expected (%d, %d) to be removed, but the index reported it wasn't found", key, val)
	}
}

// CheckGetValue verifies that a lookup of key returns expectedVal among its
// results, erroring the test otherwise.
func CheckGetValue(t *testing.T, index *hash.HashIndex, key, expectedVal int64) {
	values, err := index.GetValue(key)
	if err != nil {
		t.Errorf("Failed to look up key %d: %s", key, err)
		return
	}
	if !slices.Contains(values, expectedVal) {
		t.Errorf("Expected key %d to map to value %d, but found %v", key, expectedVal, values)
	}
}

// CheckNoValue verifies that a lookup of key does not return val.
func CheckNoValue(t *testing.T, index *hash.HashIndex, key, val int64) {
	values, err := index.GetValue(key)
	if err != nil {
		t.Errorf("Failed to look up key %d: %s", key, err)
		return
	}
	if slices.Contains(values, val) {
		t.Errorf("Expected key %d to no longer map to value %d, but found %v", key, val, values)
	}
}

// CheckGlobalDepth verifies the directory's global depth.
func CheckGlobalDepth(t *testing.T, index *hash.HashIndex, want uint32) {
	depth, err := index.GlobalDepth()
	if err != nil {
		t.Errorf("Failed to read global depth: %s", err)
		return
	}
	if depth != want {
		t.Errorf("Expected global depth %d, but found %d", want, depth)
	}
}

// CheckIntegrity runs the index's invariant checker, erroring the test on
// any violation.
func CheckIntegrity(t *testing.T, index *hash.HashIndex) {
	if err := index.VerifyIntegrity(); err != nil {
		t.Errorf("Integrity check failed: %s", err)
	}
}
