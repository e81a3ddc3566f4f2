package hash

import (
	"fmt"
	"io"

	"crocdb/pkg/entry"
	"crocdb/pkg/pager"
)

// Bucket is a typed view over one bucket page. A bucket holds a fixed array
// of entry slots plus two parallel bitmaps: occupied marks slots that have
// ever been used since the bucket was created, readable marks slots that
// currently hold a live entry. Removal clears only the readable bit, so
// scans can stop at the first never-used slot while still stepping over
// tombstones.
//
// The bucket's local depth lives in the directory, not here.
type Bucket struct {
	page *pager.Page
}

// newHashBucket constructs a new, empty Bucket on a fresh page from the
// given pager. The returned bucket's page is pinned; the caller must put it.
func newHashBucket(pgr *pager.Pager) (*Bucket, error) {
	newPage, err := pgr.GetNewPage()
	if err != nil {
		return nil, err
	}
	return &Bucket{page: newPage}, nil
}

// PageToBucket converts a pinned page into a Bucket view.
func PageToBucket(page *pager.Page) *Bucket {
	return &Bucket{page: page}
}

// GetPage returns the bucket's underlying page.
func (bucket *Bucket) GetPage() *pager.Page {
	return bucket.page
}

// Size returns the number of slots in the bucket.
func (bucket *Bucket) Size() int64 {
	return BUCKET_ARRAY_SIZE
}

// IsOccupied reports whether slot idx has ever held an entry.
func (bucket *Bucket) IsOccupied(idx int64) bool {
	return bucket.page.GetData()[OCCUPIED_OFFSET+idx/8]&(1<<(uint(idx)%8)) != 0
}

// setOccupied marks slot idx as having been used. Occupied bits are never
// cleared while the bucket lives.
func (bucket *Bucket) setOccupied(idx int64) {
	pos := OCCUPIED_OFFSET + idx/8
	b := bucket.page.GetData()[pos] | 1<<(uint(idx)%8)
	bucket.page.Update([]byte{b}, pos, 1)
}

// IsReadable reports whether slot idx currently holds a live entry.
func (bucket *Bucket) IsReadable(idx int64) bool {
	return bucket.page.GetData()[READABLE_OFFSET+idx/8]&(1<<(uint(idx)%8)) != 0
}

// setReadable marks slot idx as holding a live entry.
func (bucket *Bucket) setReadable(idx int64) {
	pos := READABLE_OFFSET + idx/8
	b := bucket.page.GetData()[pos] | 1<<(uint(idx)%8)
	bucket.page.Update([]byte{b}, pos, 1)
}

// setUnreadable clears the readable bit of slot idx, leaving the occupied
// bit as a tombstone.
func (bucket *Bucket) setUnreadable(idx int64) {
	pos := READABLE_OFFSET + idx/8
	b := bucket.page.GetData()[pos] &^ (1 << (uint(idx) % 8))
	bucket.page.Update([]byte{b}, pos, 1)
}

// slotPos returns the byte position of the slot with the given index.
func slotPos(idx int64) int64 {
	return SLOTS_OFFSET + idx*ENTRYSIZE
}

// getEntry returns the entry stored in slot idx.
func (bucket *Bucket) getEntry(idx int64) entry.Entry {
	pos := slotPos(idx)
	return entry.UnmarshalEntry(bucket.page.GetData()[pos : pos+ENTRYSIZE])
}

// setEntry writes the given entry into slot idx.
func (bucket *Bucket) setEntry(idx int64, e entry.Entry) {
	bucket.page.Update(e.Marshal(), slotPos(idx), ENTRYSIZE)
}

// KeyAt returns the key in slot idx, or zero if the slot is not readable.
func (bucket *Bucket) KeyAt(idx int64) int64 {
	if !bucket.IsReadable(idx) {
		return 0
	}
	return bucket.getEntry(idx).Key
}

// ValueAt returns the value in slot idx, or zero if the slot is not
// readable.
func (bucket *Bucket) ValueAt(idx int64) int64 {
	if !bucket.IsReadable(idx) {
		return 0
	}
	return bucket.getEntry(idx).Value
}

// Insert places (key, value) into the first non-readable slot. Returns
// false without modifying the bucket if the exact pair is already present
// or if no free slot exists.
func (bucket *Bucket) Insert(key int64, value int64, cmp Comparator) bool {
	insertIdx := BUCKET_ARRAY_SIZE
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) {
			e := bucket.getEntry(i)
			if cmp(e.Key, key) == 0 && e.Value == value {
				return false
			}
		} else {
			if insertIdx == BUCKET_ARRAY_SIZE {
				insertIdx = i
			}
			// A never-used slot ends the scan: no pair can live past it.
			if !bucket.IsOccupied(i) {
				break
			}
		}
	}
	if insertIdx == BUCKET_ARRAY_SIZE {
		return false
	}
	bucket.setEntry(insertIdx, entry.New(key, value))
	bucket.setOccupied(insertIdx)
	bucket.setReadable(insertIdx)
	return true
}

// GetValue appends to values every value stored under a key comparing equal
// to key. Returns whether any were found.
func (bucket *Bucket) GetValue(key int64, cmp Comparator, values *[]int64) bool {
	found := false
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) {
			if e := bucket.getEntry(i); cmp(e.Key, key) == 0 {
				*values = append(*values, e.Value)
				found = true
			}
		} else if !bucket.IsOccupied(i) {
			break
		}
	}
	return found
}

// Remove clears the readable bit of the first slot holding exactly
// (key, value), leaving a tombstone. Returns whether the pair was found.
func (bucket *Bucket) Remove(key int64, value int64, cmp Comparator) bool {
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) {
			if e := bucket.getEntry(i); cmp(e.Key, key) == 0 && e.Value == value {
				bucket.setUnreadable(i)
				return true
			}
		} else if !bucket.IsOccupied(i) {
			break
		}
	}
	return false
}

// RemoveAt clears the readable bit of slot idx unconditionally. Used while
// redistributing entries during a split.
func (bucket *Bucket) RemoveAt(idx int64) {
	bucket.setUnreadable(idx)
}

// IsFull reports whether every slot holds a live entry.
func (bucket *Bucket) IsFull() bool {
	data := bucket.page.GetData()
	wholeBytes := BUCKET_ARRAY_SIZE / 8
	for i := int64(0); i < wholeBytes; i++ {
		if data[READABLE_OFFSET+i] != 0xff {
			return false
		}
	}
	// The tail byte covers the last BUCKET_ARRAY_SIZE mod 8 slots.
	rest := BUCKET_ARRAY_SIZE % 8
	if rest != 0 && data[READABLE_OFFSET+wholeBytes] != (1<<uint(rest))-1 {
		return false
	}
	return true
}

// IsEmpty reports whether no slot holds a live entry.
func (bucket *Bucket) IsEmpty() bool {
	data := bucket.page.GetData()
	for i := int64(0); i < BITMAP_SIZE; i++ {
		if data[READABLE_OFFSET+i] != 0 {
			return false
		}
	}
	return true
}

// NumReadable returns the number of live entries in the bucket.
func (bucket *Bucket) NumReadable() uint32 {
	data := bucket.page.GetData()
	count := uint32(0)
	for i := int64(0); i < BITMAP_SIZE; i++ {
		b := data[READABLE_OFFSET+i]
		for b != 0 {
			b &= b - 1
			count++
		}
	}
	return count
}

// GetAllItems returns every live entry in the bucket.
func (bucket *Bucket) GetAllItems() []entry.Entry {
	items := make([]entry.Entry, 0, BUCKET_ARRAY_SIZE)
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) {
			items = append(items, bucket.getEntry(i))
		}
	}
	return items
}

// Print writes a summary of this bucket and its live entries to the
// specified writer.
func (bucket *Bucket) Print(w io.Writer) {
	occupied := int64(0)
	for i := int64(0); i < BUCKET_ARRAY_SIZE && bucket.IsOccupied(i); i++ {
		occupied++
	}
	fmt.Fprintf(w, "capacity: %d, occupied: %d, readable: %d\n",
		BUCKET_ARRAY_SIZE, occupied, bucket.NumReadable())
	fmt.Fprint(w, "entries:")
	for i := int64(0); i < BUCKET_ARRAY_SIZE; i++ {
		if bucket.IsReadable(i) {
			bucket.getEntry(i).Print(w)
		}
	}
	fmt.Fprintln(w)
}

// WLatch grabs the writer latch on the bucket's page.
func (bucket *Bucket) WLatch() {
	bucket.page.WLatch()
}

// WUnlatch releases the writer latch on the bucket's page.
func (bucket *Bucket) WUnlatch() {
	bucket.page.WUnlatch()
}

// RLatch grabs a reader latch on the bucket's page.
func (bucket *Bucket) RLatch() {
	bucket.page.RLatch()
}

// RUnlatch releases a reader latch on the bucket's page.
func (bucket *Bucket) RUnlatch() {
	bucket.page.RUnlatch()
}
