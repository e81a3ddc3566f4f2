package hash

import (
	"crocdb/pkg/entry"
	"crocdb/pkg/pager"
)

/////////////////////////////////////////////////////////////////////////////
////////////////////////// Low-level Constants //////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Page number of the directory page within the index file.
const ROOT_PN int64 = 0

const PAGESIZE int64 = pager.Pagesize

// The maximum global depth the directory can grow to. The directory page
// pre-allocates 2^MAX_GLOBAL_DEPTH slots so that doubling never moves data.
const MAX_GLOBAL_DEPTH uint32 = 9

// Number of pre-allocated directory slots.
const DIRECTORY_ARRAY_SIZE int64 = 1 << MAX_GLOBAL_DEPTH

// Directory page layout:
// [global depth: u32] [padding: u32] [local depths: u8 x 512] [bucket pagenums: i32 x 512]
const GLOBAL_DEPTH_OFFSET int64 = 0
const GLOBAL_DEPTH_SIZE int64 = 4
const LOCAL_DEPTHS_OFFSET int64 = 8
const BUCKET_PNS_OFFSET int64 = LOCAL_DEPTHS_OFFSET + DIRECTORY_ARRAY_SIZE
const BUCKET_PN_SIZE int64 = 4
const DIRECTORY_PAGE_SIZE int64 = BUCKET_PNS_OFFSET + DIRECTORY_ARRAY_SIZE*BUCKET_PN_SIZE

// ENTRYSIZE is the marshalled width of one bucket slot.
const ENTRYSIZE int64 = entry.Size

// BUCKET_ARRAY_SIZE is the number of slots in a bucket page, chosen so the
// two bitmaps plus the slot array fill one page:
// 2*ceil(N/8) + N*ENTRYSIZE <= PAGESIZE.
const BUCKET_ARRAY_SIZE int64 = 202

// Width of each of the occupied/readable bitmaps.
const BITMAP_SIZE int64 = (BUCKET_ARRAY_SIZE + 7) / 8

// Bucket page layout: [occupied: u8 x 26] [readable: u8 x 26] [slots: 202 x 20].
const OCCUPIED_OFFSET int64 = 0
const READABLE_OFFSET int64 = OCCUPIED_OFFSET + BITMAP_SIZE
const SLOTS_OFFSET int64 = READABLE_OFFSET + BITMAP_SIZE
const BUCKET_PAGE_SIZE int64 = SLOTS_OFFSET + BUCKET_ARRAY_SIZE*ENTRYSIZE
