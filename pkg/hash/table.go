package hash

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"crocdb/pkg/entry"
	"crocdb/pkg/pager"

	"github.com/bits-and-blooms/bitset"
)

// ErrIndexUnavailable is returned when the underlying pager cannot satisfy
// a page fetch, allocation, or delete. All other outcomes (duplicate pair,
// missing pair, bucket full with no room to grow) are reported as booleans.
var ErrIndexUnavailable = errors.New("hash index unavailable")

func pagerError(err error) error {
	return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
}

// A HashTable is a disk-backed extendible hash index mapping int64 keys to
// int64 values. The same key may map to several values, but each exact
// (key, value) pair appears at most once.
//
// Concurrency follows a two-level scheme: a table-wide readers/writer latch,
// held in read mode by point operations and in write mode by structural
// changes (split and merge), plus a per-page latch on each bucket. Latches
// are always acquired table first, bucket second.
type HashTable struct {
	directoryPN int64        // Pagenum of the directory page
	pager       *pager.Pager // The pager backing this table
	hasher      HashFunc     // Key hash function
	cmp         Comparator   // Key comparator; only equality is consulted
	rwlock      sync.RWMutex // The table latch
}

// NewHashTable creates a fresh table on the given pager: a directory page
// at depth zero with its single slot pointing at one empty bucket.
func NewHashTable(pgr *pager.Pager, hasher HashFunc, cmp Comparator) (*HashTable, error) {
	dirPage, err := pgr.GetNewPage()
	if err != nil {
		return nil, pagerError(err)
	}
	table := &HashTable{directoryPN: dirPage.GetPageNum(), pager: pgr, hasher: hasher, cmp: cmp}
	dir := PageToDirectory(dirPage)
	dir.setGlobalDepth(0)

	bucket, err := newHashBucket(pgr)
	if err != nil {
		pgr.PutPage(dirPage)
		return nil, pagerError(err)
	}
	dir.SetBucketPageNum(0, bucket.page.GetPageNum())
	dir.SetLocalDepth(0, 0)

	pgr.PutPage(bucket.page)
	pgr.PutPage(dirPage)
	return table, nil
}

// LoadHashTable returns a table whose directory page already exists in the
// pager's file at the given pagenum.
func LoadHashTable(pgr *pager.Pager, directoryPN int64, hasher HashFunc, cmp Comparator) *HashTable {
	return &HashTable{directoryPN: directoryPN, pager: pgr, hasher: hasher, cmp: cmp}
}

// GetPager returns the pager backing this table.
func (table *HashTable) GetPager() *pager.Pager {
	return table.pager
}

// Hash narrows the configured hash function to the table's routing hash.
func (table *HashTable) Hash(key int64) uint32 {
	return table.hasher(key)
}

// keyToDirectoryIndex masks the key's hash down to the directory slot it
// routes to under the current global depth.
func (table *HashTable) keyToDirectoryIndex(key int64, dir *Directory) uint32 {
	return table.Hash(key) & dir.GetGlobalDepthMask()
}

// keyToPageNum returns the pagenum of the bucket the key currently routes to.
func (table *HashTable) keyToPageNum(key int64, dir *Directory) int64 {
	return dir.GetBucketPageNum(table.keyToDirectoryIndex(key, dir))
}

// fetchDirectory pins and returns the directory page view.
func (table *HashTable) fetchDirectory() (*Directory, error) {
	page, err := table.pager.GetPage(table.directoryPN)
	if err != nil {
		return nil, pagerError(err)
	}
	return PageToDirectory(page), nil
}

// fetchBucket pins and returns the bucket view for the given pagenum.
func (table *HashTable) fetchBucket(pagenum int64) (*Bucket, error) {
	page, err := table.pager.GetPage(pagenum)
	if err != nil {
		return nil, pagerError(err)
	}
	return PageToBucket(page), nil
}

// GetValue returns every value stored under the given key.
func (table *HashTable) GetValue(key int64) ([]int64, error) {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil, err
	}
	bucket, err := table.fetchBucket(table.keyToPageNum(key, dir))
	if err != nil {
		table.pager.PutPage(dir.page)
		return nil, err
	}

	var values []int64
	bucket.RLatch()
	bucket.GetValue(key, table.cmp, &values)
	bucket.RUnlatch()

	table.pager.PutPage(bucket.page)
	table.pager.PutPage(dir.page)
	return values, nil
}

// Insert adds the (key, value) pair to the table. Returns false if the
// exact pair is already present, or if the target bucket is full and
// splitting cannot make room for the key.
func (table *HashTable) Insert(key int64, value int64) (bool, error) {
	table.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.RUnlock()
		return false, err
	}
	bucket, err := table.fetchBucket(table.keyToPageNum(key, dir))
	if err != nil {
		table.pager.PutPage(dir.page)
		table.RUnlock()
		return false, err
	}

	bucket.WLatch()
	inserted := bucket.Insert(key, value, table.cmp)
	full := bucket.IsFull()
	// The bucket is released dirty even when the insert failed.
	bucket.page.SetDirty(true)
	bucket.WUnlatch()

	table.pager.PutPage(bucket.page)
	table.pager.PutPage(dir.page)
	table.RUnlock()

	if !inserted && full {
		return table.splitInsert(key, value)
	}
	return inserted, nil
}

// splitInsert grows the table to make room for key, then inserts. It holds
// the table write latch for its entire duration.
//
// A single split is performed. If every entry of the old bucket shares the
// new discriminating hash bit, the triggering key may still route to a full
// bucket; the insert then reports false.
func (table *HashTable) splitInsert(key int64, value int64) (bool, error) {
	table.WLock()
	defer table.WUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return false, err
	}
	oldIdx := table.keyToDirectoryIndex(key, dir)
	oldPN := dir.GetBucketPageNum(oldIdx)
	localDepth := dir.GetLocalDepth(oldIdx)
	oldBucket, err := table.fetchBucket(oldPN)
	if err != nil {
		table.pager.PutPage(dir.page)
		return false, err
	}

	// The table latch was dropped between the failed insert and now; the
	// bucket may no longer be full.
	if !oldBucket.IsFull() {
		inserted := oldBucket.Insert(key, value, table.cmp)
		oldBucket.page.SetDirty(true)
		table.pager.PutPage(oldBucket.page)
		table.pager.PutPage(dir.page)
		return inserted, nil
	}

	// Splitting a bucket at the depth ceiling would need a directory the
	// page cannot hold.
	if localDepth >= MAX_GLOBAL_DEPTH {
		table.pager.PutPage(oldBucket.page)
		table.pager.PutPage(dir.page)
		return false, nil
	}

	newBucket, err := newHashBucket(table.pager)
	if err != nil {
		table.pager.PutPage(oldBucket.page)
		table.pager.PutPage(dir.page)
		return false, pagerError(err)
	}
	newPN := newBucket.page.GetPageNum()

	if localDepth == dir.GetGlobalDepth() {
		dir.IncrGlobalDepth()
	}
	// Every slot aliasing the old bucket moves to depth localDepth+1; the
	// half whose new discriminating bit disagrees with the split slot is
	// redirected to the new bucket.
	newMask := uint32(1)<<(localDepth+1) - 1
	for i := uint32(0); i < dir.Size(); i++ {
		if dir.GetBucketPageNum(i) != oldPN {
			continue
		}
		dir.IncrLocalDepth(i)
		if i&newMask != oldIdx&newMask {
			dir.SetBucketPageNum(i, newPN)
		}
	}

	oldBucket.WLatch()
	newBucket.WLatch()

	// Rehash the old bucket's entries under the new depths; entries that
	// now route to the new bucket move there.
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if !oldBucket.IsReadable(i) {
			continue
		}
		e := oldBucket.getEntry(i)
		if table.keyToPageNum(e.Key, dir) == newPN {
			oldBucket.RemoveAt(i)
			newBucket.Insert(e.Key, e.Value, table.cmp)
		}
	}

	var inserted bool
	if table.keyToPageNum(key, dir) == oldPN {
		inserted = oldBucket.Insert(key, value, table.cmp)
	} else {
		inserted = newBucket.Insert(key, value, table.cmp)
	}

	newBucket.WUnlatch()
	oldBucket.WUnlatch()

	oldBucket.page.SetDirty(true)
	table.pager.PutPage(oldBucket.page)
	table.pager.PutPage(newBucket.page)
	table.pager.PutPage(dir.page)
	return inserted, nil
}

// Remove deletes the exact (key, value) pair from the table. Returns false
// if the pair is not present. Emptying a bucket triggers a merge pass and
// then drains any merge cascade it exposes.
func (table *HashTable) Remove(key int64, value int64) (bool, error) {
	table.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.RUnlock()
		return false, err
	}
	bucket, err := table.fetchBucket(table.keyToPageNum(key, dir))
	if err != nil {
		table.pager.PutPage(dir.page)
		table.RUnlock()
		return false, err
	}

	bucket.WLatch()
	removed := bucket.Remove(key, value, table.cmp)
	empty := bucket.IsEmpty()
	// The bucket is released dirty even when the remove failed.
	bucket.page.SetDirty(true)
	bucket.WUnlatch()

	table.pager.PutPage(bucket.page)
	table.pager.PutPage(dir.page)
	table.RUnlock()

	if removed && empty {
		if err := table.merge(key); err != nil {
			return removed, err
		}
		for {
			merged, err := table.extraMerge(key)
			if err != nil {
				return removed, err
			}
			if !merged {
				break
			}
		}
	}
	return removed, nil
}

// merge coalesces the (possibly still) empty bucket the key routes to into
// its split image. It holds the table write latch for its entire duration.
//
// The merge only happens if the bucket is still empty by the time the write
// latch is held and the split image sits at the same local depth; a sibling
// that has been further split cannot be coalesced.
func (table *HashTable) merge(key int64) error {
	table.WLock()
	defer table.WUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return err
	}
	idx := table.keyToDirectoryIndex(key, dir)
	pagenum := dir.GetBucketPageNum(idx)
	dirSize := dir.Size()
	localDepth := dir.GetLocalDepth(idx)
	localMask := dir.GetLocalDepthMask(idx)

	bucket, err := table.fetchBucket(pagenum)
	if err != nil {
		table.pager.PutPage(dir.page)
		return err
	}

	merged := false
	if localDepth > 0 && bucket.IsEmpty() {
		imageIdx := dir.GetSplitImageIndex(idx)
		if dir.GetLocalDepth(imageIdx) == localDepth {
			merged = true
			imagePN := dir.GetBucketPageNum(imageIdx)
			// Point every slot that referenced the empty bucket at its
			// sibling instead.
			for i := uint32(0); i < dirSize; i++ {
				if i&localMask == idx&localMask {
					dir.SetBucketPageNum(i, imagePN)
				}
			}
			table.pager.PutPage(bucket.page)
			if err := table.pager.DeletePage(pagenum); err != nil {
				table.pager.PutPage(dir.page)
				return pagerError(err)
			}
			// The coalesced bucket covers one fewer discriminating bit.
			parentMask := localMask ^ (1 << (localDepth - 1))
			for i := uint32(0); i < dirSize; i++ {
				if i&parentMask == idx&parentMask {
					dir.DecrLocalDepth(i)
				}
			}
			if dir.CanShrink() {
				dir.DecrGlobalDepth()
			}
		}
	}
	if !merged {
		table.pager.PutPage(bucket.page)
	}
	table.pager.PutPage(dir.page)
	return nil
}

// extraMerge coalesces the split image of the key's current bucket into
// that bucket if the image is empty and sits at the same local depth.
// Returns whether a merge occurred, so callers can loop until the cascade
// is drained.
//
// A merge can leave the coalesced region as the empty side of its own
// sibling pair; a single merge pass cannot see that shape.
func (table *HashTable) extraMerge(key int64) (bool, error) {
	table.WLock()
	defer table.WUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return false, err
	}
	idx := table.keyToDirectoryIndex(key, dir)
	pagenum := dir.GetBucketPageNum(idx)
	localDepth := dir.GetLocalDepth(idx)
	dirSize := dir.Size()

	merged := false
	if localDepth > 0 {
		imageIdx := dir.GetSplitImageIndex(idx)
		imagePN := dir.GetBucketPageNum(imageIdx)
		imageBucket, err := table.fetchBucket(imagePN)
		if err != nil {
			table.pager.PutPage(dir.page)
			return false, err
		}
		if dir.GetLocalDepth(imageIdx) == localDepth && imageBucket.IsEmpty() {
			merged = true
			for i := uint32(0); i < dirSize; i++ {
				switch dir.GetBucketPageNum(i) {
				case imagePN:
					dir.SetBucketPageNum(i, pagenum)
					dir.DecrLocalDepth(i)
				case pagenum:
					dir.DecrLocalDepth(i)
				}
			}
			table.pager.PutPage(imageBucket.page)
			if err := table.pager.DeletePage(imagePN); err != nil {
				table.pager.PutPage(dir.page)
				return false, pagerError(err)
			}
			if dir.CanShrink() {
				dir.DecrGlobalDepth()
			}
		}
		if !merged {
			table.pager.PutPage(imageBucket.page)
		}
	}
	table.pager.PutPage(dir.page)
	return merged, nil
}

// GetLocalDepth returns the local depth recorded at directory slot idx.
func (table *HashTable) GetLocalDepth(idx uint32) (uint32, error) {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return 0, err
	}
	depth := dir.GetLocalDepth(idx)
	table.pager.PutPage(dir.page)
	return depth, nil
}

// GetBucketPageNum returns the pagenum of the bucket directory slot idx
// points to.
func (table *HashTable) GetBucketPageNum(idx uint32) (int64, error) {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return 0, err
	}
	pagenum := dir.GetBucketPageNum(idx)
	table.pager.PutPage(dir.page)
	return pagenum, nil
}

// GetGlobalDepth returns the directory's current global depth.
func (table *HashTable) GetGlobalDepth() (uint32, error) {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return 0, err
	}
	depth := dir.GetGlobalDepth()
	table.pager.PutPage(dir.page)
	return depth, nil
}

// Select returns every live entry in the table.
func (table *HashTable) Select() ([]entry.Entry, error) {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil, err
	}
	defer table.pager.PutPage(dir.page)

	visited := bitset.New(uint(table.pager.GetNumPages()))
	var results []entry.Entry
	for i := uint32(0); i < dir.Size(); i++ {
		pagenum := dir.GetBucketPageNum(i)
		if visited.Test(uint(pagenum)) {
			continue
		}
		visited.Set(uint(pagenum))
		bucket, err := table.fetchBucket(pagenum)
		if err != nil {
			return nil, err
		}
		bucket.RLatch()
		results = append(results, bucket.GetAllItems()...)
		bucket.RUnlatch()
		table.pager.PutPage(bucket.page)
	}
	return results, nil
}

// RemoveAllItems drains the bucket at the given directory slot through the
// public remove path, merging as buckets empty.
func (table *HashTable) RemoveAllItems(idx uint32) error {
	table.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.RUnlock()
		return err
	}
	bucket, err := table.fetchBucket(dir.GetBucketPageNum(idx))
	if err != nil {
		table.pager.PutPage(dir.page)
		table.RUnlock()
		return err
	}
	bucket.RLatch()
	items := bucket.GetAllItems()
	bucket.RUnlatch()
	table.pager.PutPage(bucket.page)
	table.pager.PutPage(dir.page)
	table.RUnlock()

	for _, item := range items {
		if _, err := table.Remove(item.Key, item.Value); err != nil {
			return err
		}
	}
	return nil
}

// Print writes a string representation of the directory and every bucket
// to the specified writer.
func (table *HashTable) Print(w io.Writer) {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	defer table.pager.PutPage(dir.page)
	io.WriteString(w, "====\n")
	dir.Print(w)
	for i := uint32(0); i < dir.Size(); i++ {
		fmt.Fprintf(w, "====\nslot %d\n", i)
		bucket, err := table.fetchBucket(dir.GetBucketPageNum(i))
		if err != nil {
			continue
		}
		bucket.RLatch()
		bucket.Print(w)
		bucket.RUnlatch()
		table.pager.PutPage(bucket.page)
	}
	io.WriteString(w, "====\n")
}

// PrintPN writes a string representation of the bucket with the given
// pagenum to the specified writer.
func (table *HashTable) PrintPN(pagenum int64, w io.Writer) {
	table.RLock()
	defer table.RUnlock()
	bucket, err := table.fetchBucket(pagenum)
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	bucket.RLatch()
	bucket.Print(w)
	bucket.RUnlatch()
	table.pager.PutPage(bucket.page)
}

// WLock grabs the table write latch.
func (table *HashTable) WLock() {
	table.rwlock.Lock()
}

// WUnlock releases the table write latch.
func (table *HashTable) WUnlock() {
	table.rwlock.Unlock()
}

// RLock grabs a table read latch.
func (table *HashTable) RLock() {
	table.rwlock.RLock()
}

// RUnlock releases a table read latch.
func (table *HashTable) RUnlock() {
	table.rwlock.RUnlock()
}
