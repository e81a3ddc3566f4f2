package hash

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// VerifyIntegrity checks the extendible hashing invariants of the whole
// index under the table read latch: the directory invariants (see
// [Directory.VerifyIntegrity]) plus, for every live entry, that the entry's
// key actually routes to the bucket storing it.
func (table *HashTable) VerifyIntegrity() error {
	table.RLock()
	defer table.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return err
	}
	defer table.pager.PutPage(dir.page)

	if err := dir.VerifyIntegrity(); err != nil {
		return err
	}

	visited := bitset.New(uint(table.pager.GetNumPages()))
	for i := uint32(0); i < dir.Size(); i++ {
		pagenum := dir.GetBucketPageNum(i)
		if visited.Test(uint(pagenum)) {
			continue
		}
		visited.Set(uint(pagenum))
		bucket, err := table.fetchBucket(pagenum)
		if err != nil {
			return err
		}
		bucket.RLatch()
		err = table.verifyBucketRouting(dir, i, bucket)
		bucket.RUnlatch()
		table.pager.PutPage(bucket.page)
		if err != nil {
			return err
		}
	}
	return nil
}

// verifyBucketRouting checks that every live entry of the bucket pointed to
// by directory slot idx hashes back to a slot referencing that bucket.
func (table *HashTable) verifyBucketRouting(dir *Directory, idx uint32, bucket *Bucket) error {
	pagenum := dir.GetBucketPageNum(idx)
	localMask := dir.GetLocalDepthMask(idx)
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if !bucket.IsReadable(i) {
			continue
		}
		key := bucket.getEntry(i).Key
		if table.keyToPageNum(key, dir) != pagenum {
			return fmt.Errorf("key %d stored in bucket %d but routes to bucket %d",
				key, pagenum, table.keyToPageNum(key, dir))
		}
		if table.Hash(key)&localMask != idx&localMask {
			return fmt.Errorf("key %d disagrees with bucket %d on its low %d hash bits",
				key, pagenum, dir.GetLocalDepth(idx))
		}
	}
	return nil
}
