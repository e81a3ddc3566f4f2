package hash_test

import (
	"testing"

	"crocdb/pkg/hash"
	"crocdb/pkg/pager"
	"crocdb/test/utils"
)

// setupBucket returns a Bucket view over a fresh page.
func setupBucket(t *testing.T) *hash.Bucket {
	t.Parallel()
	dbName := utils.GetTempDbFile(t)
	pgr, err := pager.New(dbName)
	if err != nil {
		t.Fatal("Failed to create pager:", err)
	}
	page, err := pgr.GetNewPage()
	if err != nil {
		t.Fatal("Failed to create bucket page:", err)
	}
	utils.EnsureCleanup(t, func() {
		_ = pgr.PutPage(page)
		_ = pgr.Close()
	})
	return hash.PageToBucket(page)
}

func TestHashBucket(t *testing.T) {
	t.Run("FullWithTailByte", testBucketFullTailByte)
	t.Run("DuplicateRejected", testBucketDuplicateRejected)
	t.Run("TombstoneScan", testBucketTombstoneScan)
	t.Run("NumReadable", testBucketNumReadable)
	t.Run("RemoveAt", testBucketRemoveAt)
}

/*
The bucket capacity is not a multiple of eight, so IsFull must check the
whole-byte prefix of the readable bitmap plus a partial tail byte.
*/
func testBucketFullTailByte(t *testing.T) {
	bucket := setupBucket(t)

	if bucket.IsFull() {
		t.Fatal("Expected a fresh bucket not to be full")
	}
	for i := int64(0); i < hash.BUCKET_ARRAY_SIZE; i++ {
		if !bucket.Insert(i, i, hash.Int64Comparator) {
			t.Fatalf("Failed to insert pair %d into a non-full bucket", i)
		}
	}
	if !bucket.IsFull() {
		t.Fatal("Expected a bucket with every slot taken to be full")
	}
	if bucket.Insert(hash.BUCKET_ARRAY_SIZE, 0, hash.Int64Comparator) {
		t.Error("Expected inserting into a full bucket to fail")
	}

	// Clearing one slot in the tail byte un-fills the bucket.
	if !bucket.Remove(hash.BUCKET_ARRAY_SIZE-1, hash.BUCKET_ARRAY_SIZE-1, hash.Int64Comparator) {
		t.Fatal("Failed to remove the last pair")
	}
	if bucket.IsFull() {
		t.Error("Expected the bucket not to be full after a removal")
	}
}

/*
Inserting an exact (key, value) duplicate fails and leaves one copy, but
the same key with a different value is accepted.
*/
func testBucketDuplicateRejected(t *testing.T) {
	bucket := setupBucket(t)

	if !bucket.Insert(5, 50, hash.Int64Comparator) {
		t.Fatal("First insert failed")
	}
	if bucket.Insert(5, 50, hash.Int64Comparator) {
		t.Error("Expected duplicate (5, 50) to be rejected")
	}
	if !bucket.Insert(5, 51, hash.Int64Comparator) {
		t.Error("Expected (5, 51) to be accepted alongside (5, 50)")
	}

	var values []int64
	if !bucket.GetValue(5, hash.Int64Comparator, &values) {
		t.Fatal("Lookup of key 5 found nothing")
	}
	if len(values) != 2 {
		t.Errorf("Expected two values for key 5, found %v", values)
	}
}

/*
Removal clears only the readable bit. Lookups must scan past the tombstone
to reach later slots, and a fresh insert reuses the earliest free slot.
*/
func testBucketTombstoneScan(t *testing.T) {
	bucket := setupBucket(t)

	bucket.Insert(1, 10, hash.Int64Comparator)
	bucket.Insert(2, 20, hash.Int64Comparator)
	bucket.Insert(3, 30, hash.Int64Comparator)

	if !bucket.Remove(2, 20, hash.Int64Comparator) {
		t.Fatal("Failed to remove (2, 20)")
	}
	if !bucket.IsOccupied(1) {
		t.Error("Expected the removed slot to keep its occupied bit")
	}
	if bucket.IsReadable(1) {
		t.Error("Expected the removed slot to lose its readable bit")
	}

	var values []int64
	if !bucket.GetValue(3, hash.Int64Comparator, &values) {
		t.Error("Expected the scan to step over the tombstone and find key 3")
	}

	// The tombstoned slot is the first non-readable slot, so it's reused.
	if !bucket.Insert(4, 40, hash.Int64Comparator) {
		t.Fatal("Failed to insert (4, 40)")
	}
	if bucket.KeyAt(1) != 4 {
		t.Errorf("Expected slot 1 to be reused for key 4, but found key %d", bucket.KeyAt(1))
	}
}

/*
NumReadable counts live entries only, and IsEmpty tracks it.
*/
func testBucketNumReadable(t *testing.T) {
	bucket := setupBucket(t)

	if !bucket.IsEmpty() {
		t.Fatal("Expected a fresh bucket to be empty")
	}
	for i := int64(0); i < 9; i++ {
		bucket.Insert(i, i, hash.Int64Comparator)
	}
	if got := bucket.NumReadable(); got != 9 {
		t.Errorf("Expected 9 readable entries, found %d", got)
	}
	bucket.Remove(0, 0, hash.Int64Comparator)
	bucket.Remove(8, 8, hash.Int64Comparator)
	if got := bucket.NumReadable(); got != 7 {
		t.Errorf("Expected 7 readable entries, found %d", got)
	}
	if bucket.IsEmpty() {
		t.Error("Expected a bucket with live entries not to be empty")
	}
}

/*
RemoveAt clears a slot unconditionally and GetAllItems skips it.
*/
func testBucketRemoveAt(t *testing.T) {
	bucket := setupBucket(t)

	bucket.Insert(1, 10, hash.Int64Comparator)
	bucket.Insert(2, 20, hash.Int64Comparator)
	bucket.RemoveAt(0)

	items := bucket.GetAllItems()
	if len(items) != 1 || items[0].Key != 2 {
		t.Errorf("Expected only (2, 20) to survive, found %v", items)
	}
}
