package hash

import (
	"encoding/binary"
	"fmt"
	"io"

	"crocdb/pkg/pager"
)

// Directory is a typed view over the index's directory page. It holds the
// global depth, one bucket pagenum per slot, and one local depth per slot.
// All accessors read and write the page bytes directly; mutations go through
// page.Update so the page is marked dirty.
//
// The directory page is only ever mutated while the table write latch is
// held, so it carries no latch of its own.
type Directory struct {
	page *pager.Page
}

// PageToDirectory converts a pinned page into a Directory view.
func PageToDirectory(page *pager.Page) *Directory {
	return &Directory{page: page}
}

// GetPage returns the underlying directory page.
func (dir *Directory) GetPage() *pager.Page {
	return dir.page
}

// GetGlobalDepth returns the number of hash bits currently used to index
// the directory.
func (dir *Directory) GetGlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(dir.page.GetData()[GLOBAL_DEPTH_OFFSET:])
}

func (dir *Directory) setGlobalDepth(depth uint32) {
	data := make([]byte, GLOBAL_DEPTH_SIZE)
	binary.LittleEndian.PutUint32(data, depth)
	dir.page.Update(data, GLOBAL_DEPTH_OFFSET, GLOBAL_DEPTH_SIZE)
}

// GetGlobalDepthMask returns the mask selecting the low GlobalDepth bits
// of a hash.
func (dir *Directory) GetGlobalDepthMask() uint32 {
	return (1 << dir.GetGlobalDepth()) - 1
}

// Size returns the number of directory slots currently addressable,
// 2^GlobalDepth.
func (dir *Directory) Size() uint32 {
	return 1 << dir.GetGlobalDepth()
}

// GetBucketPageNum returns the pagenum of the bucket that slot idx
// points to.
func (dir *Directory) GetBucketPageNum(idx uint32) int64 {
	pos := BUCKET_PNS_OFFSET + int64(idx)*BUCKET_PN_SIZE
	return int64(int32(binary.LittleEndian.Uint32(dir.page.GetData()[pos:])))
}

// SetBucketPageNum points slot idx at the bucket with the given pagenum.
func (dir *Directory) SetBucketPageNum(idx uint32, pagenum int64) {
	data := make([]byte, BUCKET_PN_SIZE)
	binary.LittleEndian.PutUint32(data, uint32(int32(pagenum)))
	dir.page.Update(data, BUCKET_PNS_OFFSET+int64(idx)*BUCKET_PN_SIZE, BUCKET_PN_SIZE)
}

// GetLocalDepth returns the local depth recorded for slot idx.
func (dir *Directory) GetLocalDepth(idx uint32) uint32 {
	return uint32(dir.page.GetData()[LOCAL_DEPTHS_OFFSET+int64(idx)])
}

// SetLocalDepth records the local depth for slot idx.
func (dir *Directory) SetLocalDepth(idx uint32, depth uint32) {
	dir.page.Update([]byte{uint8(depth)}, LOCAL_DEPTHS_OFFSET+int64(idx), 1)
}

// IncrLocalDepth increments the local depth of slot idx.
func (dir *Directory) IncrLocalDepth(idx uint32) {
	dir.SetLocalDepth(idx, dir.GetLocalDepth(idx)+1)
}

// DecrLocalDepth decrements the local depth of slot idx.
func (dir *Directory) DecrLocalDepth(idx uint32) {
	dir.SetLocalDepth(idx, dir.GetLocalDepth(idx)-1)
}

// GetLocalDepthMask returns the mask selecting the low LocalDepth(idx) bits
// of a hash.
func (dir *Directory) GetLocalDepthMask(idx uint32) uint32 {
	return (1 << dir.GetLocalDepth(idx)) - 1
}

// GetSplitImageIndex returns the directory slot that was slot idx's sibling
// under the last split: idx with its (LocalDepth-1)th bit flipped.
func (dir *Directory) GetSplitImageIndex(idx uint32) uint32 {
	return idx ^ (1 << (dir.GetLocalDepth(idx) - 1))
}

// IncrGlobalDepth doubles the directory by mirroring the lower half of both
// the pagenum and local depth arrays into the upper half, then incrementing
// the global depth. Mirrored entries initially alias the lower half's
// buckets.
func (dir *Directory) IncrGlobalDepth() {
	size := dir.Size()
	for i := uint32(0); i < size; i++ {
		dir.SetBucketPageNum(size+i, dir.GetBucketPageNum(i))
		dir.SetLocalDepth(size+i, dir.GetLocalDepth(i))
	}
	dir.setGlobalDepth(dir.GetGlobalDepth() + 1)
}

// DecrGlobalDepth halves the directory. The upper half entries simply
// become unaddressable; nothing is cleared.
func (dir *Directory) DecrGlobalDepth() {
	dir.setGlobalDepth(dir.GetGlobalDepth() - 1)
}

// CanShrink reports whether the directory can be halved: true iff no slot
// uses all GlobalDepth bits.
func (dir *Directory) CanShrink() bool {
	globalDepth := dir.GetGlobalDepth()
	if globalDepth == 0 {
		return false
	}
	for i := uint32(0); i < dir.Size(); i++ {
		if dir.GetLocalDepth(i) == globalDepth {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks the directory invariants:
//  1. every slot's local depth is at most the global depth,
//  2. slots sharing their low LocalDepth bits point at the same bucket,
//  3. all slots pointing at the same bucket agree on its local depth,
//  4. a bucket with local depth ld is pointed at by exactly
//     2^(GlobalDepth-ld) slots.
func (dir *Directory) VerifyIntegrity() error {
	globalDepth := dir.GetGlobalDepth()
	size := dir.Size()
	depths := make(map[int64]uint32)
	counts := make(map[int64]uint32)
	for i := uint32(0); i < size; i++ {
		pagenum := dir.GetBucketPageNum(i)
		localDepth := dir.GetLocalDepth(i)
		if localDepth > globalDepth {
			return fmt.Errorf("slot %d: local depth %d exceeds global depth %d", i, localDepth, globalDepth)
		}
		if base := i & dir.GetLocalDepthMask(i); dir.GetBucketPageNum(base) != pagenum {
			return fmt.Errorf("slot %d points at bucket %d, but slot %d sharing its low %d bits points at bucket %d",
				i, pagenum, base, localDepth, dir.GetBucketPageNum(base))
		}
		if seen, ok := depths[pagenum]; ok && seen != localDepth {
			return fmt.Errorf("bucket %d: inconsistent local depths %d and %d", pagenum, seen, localDepth)
		}
		depths[pagenum] = localDepth
		counts[pagenum]++
	}
	for pagenum, localDepth := range depths {
		want := uint32(1) << (globalDepth - localDepth)
		if counts[pagenum] != want {
			return fmt.Errorf("bucket %d: local depth %d implies %d directory pointers, found %d",
				pagenum, localDepth, want, counts[pagenum])
		}
	}
	return nil
}

// Print writes a string representation of the directory to the specified
// writer.
func (dir *Directory) Print(w io.Writer) {
	fmt.Fprintf(w, "global depth: %d\n", dir.GetGlobalDepth())
	for i := uint32(0); i < dir.Size(); i++ {
		fmt.Fprintf(w, "%3d -> bucket %d (local depth %d)\n",
			i, dir.GetBucketPageNum(i), dir.GetLocalDepth(i))
	}
}
