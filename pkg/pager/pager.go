// Package pager implements the paged buffer manager that backs the hash
// index. Pages are fetched and pinned through a fixed-size frame cache and
// written back to disk on eviction or flush.
package pager

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"crocdb/pkg/config"
	"crocdb/pkg/list"

	"github.com/ncw/directio"
)

// Pagesize is the size of an individual page - defaults to 4kb.
const Pagesize int64 = directio.BlockSize

// Error for when there are no free/unpinned frames left to page into.
var ErrRanOutOfPages = errors.New("no available pages")

// Error for when a page operation is given a pagenum outside the file.
var ErrInvalidPagenum = errors.New("invalid pagenum")

// Error for when a pinned page is deleted.
var ErrPageStillPinned = errors.New("page is still pinned")

// Pager manages pages of data stored in a file.
type Pager struct {
	file         *os.File   // File descriptor for the file that backs this pager on disk.
	numPages     int64      // The number of pages that this pager has access to (both on disk and in memory).
	freeList     *list.List // A list of pre-allocated (but unused) frames.
	unpinnedList *list.List // The list of in-memory pages that have yet to be evicted, but are not currently in use.
	pinnedList   *list.List // The list of in-memory pages currently being used by the database.
	freePagenums []int64    // Pagenums freed by DeletePage, reused before the file is grown.
	// The page table, which maps pagenums to their corresponding pages
	// (stored in a link belonging to the list the page is in).
	pageTable map[int64]*list.Link
	ptMtx     sync.Mutex // Mutex protecting the page table for concurrent use.
}

// New constructs a new Pager, backing it with a database file at the
// specified filePath. See [*Pager.Open] for details on the backing file.
func New(filePath string) (pager *Pager, err error) {
	pager = &Pager{}
	pager.pageTable = make(map[int64]*list.Link)
	pager.freeList = list.NewList()
	pager.unpinnedList = list.NewList()
	pager.pinnedList = list.NewList()
	frames := directio.AlignedBlock(int(Pagesize * config.MaxPagesInBuffer))
	for i := 0; i < config.MaxPagesInBuffer; i++ {
		frame := frames[i*int(Pagesize) : (i+1)*int(Pagesize)]
		page := Page{
			pager:   pager,
			pagenum: NoPage,
			dirty:   false,
			data:    frame,
		}
		pager.freeList.PushTail(&page)
	}

	err = pager.Open(filePath)
	if err != nil {
		pager = nil
	}
	return
}

// GetFileName returns the file name/path used to open the pager's backing file.
func (pager *Pager) GetFileName() (filename string) {
	return pager.file.Name()
}

// GetNumPages returns the number of pages the pager tracks.
func (pager *Pager) GetNumPages() (numPages int64) {
	return pager.numPages
}

// Open (re-)initializes the pager with a database file at the specified
// filePath, creating it if it doesn't exist. Errors if the file can't be
// opened or its length is not a multiple of Pagesize.
func (pager *Pager) Open(filePath string) (err error) {
	// Create the necessary prerequisite directories.
	if idx := strings.LastIndex(filePath, "/"); idx != -1 {
		err = os.MkdirAll(filePath[:idx], 0775)
		if err != nil {
			return err
		}
	}
	// Open or create the db file.
	pager.file, err = directio.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return err
	}
	// Get info about the size of the pager.
	var info os.FileInfo
	var len int64
	if info, err = pager.file.Stat(); err == nil {
		len = info.Size()
		if len%Pagesize != 0 {
			return errors.New("db file has been corrupted")
		}
	}
	pager.numPages = len / Pagesize
	return nil
}

// Close signals the pager to flush all dirty pages to disk and close its
// backing file. Errors if any page is still pinned.
func (pager *Pager) Close() error {
	// Prevent new data from being paged in.
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	if pager.pinnedList.PeekHead() != nil {
		return errors.New("pages are still pinned on close")
	}
	pager.FlushAllPages()
	return pager.file.Close()
}

// fillPageFromDisk populates a page's data from the data currently on disk.
func (pager *Pager) fillPageFromDisk(page *Page) error {
	if _, err := pager.file.Seek(page.pagenum*Pagesize, 0); err != nil {
		return err
	}
	if _, err := pager.file.Read(page.data); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// newPage returns a currently unused frame from the free or unpinned list,
// or ErrRanOutOfPages if there are no unused frames available.
// The ptMtx should be locked on entry.
func (pager *Pager) newPage(pagenum int64) (newPage *Page, err error) {
	if freeLink := pager.freeList.PeekHead(); freeLink != nil {
		// Check the free list first.
		freeLink.PopSelf()
		newPage = freeLink.GetValue().(*Page)
	} else if unpinLink := pager.unpinnedList.PeekHead(); unpinLink != nil {
		// If no frame was found, evict a page from the unpinned list.
		unpinLink.PopSelf()
		newPage = unpinLink.GetValue().(*Page)
		pager.FlushPage(newPage)
		delete(pager.pageTable, newPage.pagenum)
	} else {
		return nil, ErrRanOutOfPages
	}
	newPage.pagenum = pagenum
	newPage.dirty = false
	newPage.pinCount.Store(1)
	return newPage, nil
}

// GetFreePN returns the pagenum the next call to GetNewPage will assign.
func (pager *Pager) GetFreePN() (nextPN int64) {
	if n := len(pager.freePagenums); n > 0 {
		return pager.freePagenums[n-1]
	}
	return pager.numPages
}

// GetNewPage pins and returns a new page with the next available pagenum.
// Pagenums released by DeletePage are reused before the file is grown.
// The page's data is zeroed.
func (pager *Pager) GetNewPage() (page *Page, err error) {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	// Prefer a recycled pagenum over growing the file.
	var pagenum int64
	if n := len(pager.freePagenums); n > 0 {
		pagenum = pager.freePagenums[n-1]
		pager.freePagenums = pager.freePagenums[:n-1]
	} else {
		pagenum = pager.numPages
	}
	page, err = pager.newPage(pagenum)
	if err != nil {
		return nil, err
	}

	// The frame may hold stale data from an evicted or deleted page.
	clear(page.data)
	// Mark dirty so the new page is eventually flushed to disk.
	page.dirty = true
	newLink := pager.pinnedList.PushTail(page)
	pager.pageTable[pagenum] = newLink
	if pagenum == pager.numPages {
		pager.numPages++
	}
	return page, nil
}

// GetPage pins and returns the page corresponding to the given pagenum.
func (pager *Pager) GetPage(pagenum int64) (page *Page, err error) {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	if pagenum < 0 || pagenum > pager.numPages-1 {
		return nil, ErrInvalidPagenum
	}
	// Try the page table first.
	var newLink *list.Link
	link, ok := pager.pageTable[pagenum]
	if ok {
		page = link.GetValue().(*Page)
		// Move the page to the pinned list if needed.
		if link.GetList() == pager.unpinnedList {
			link.PopSelf()
			newLink = pager.pinnedList.PushTail(page)
			pager.pageTable[pagenum] = newLink
		}
		page.Get()
		return page, nil
	}

	// Else, find a frame to hold the page.
	page, err = pager.newPage(pagenum)
	if err != nil {
		return nil, err
	}

	// Read the page in from disk.
	page.dirty = false
	err = pager.fillPageFromDisk(page)
	if err != nil {
		pager.freeList.PushTail(page)
		return nil, err
	}

	newLink = pager.pinnedList.PushTail(page)
	pager.pageTable[pagenum] = newLink
	return page, nil
}

// PutPage releases one reference to a page. A page whose pin count reaches
// zero becomes eligible for eviction.
func (pager *Pager) PutPage(page *Page) (err error) {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	ret := page.Put()
	if ret == 0 {
		link := pager.pageTable[page.pagenum]
		link.PopSelf()
		newLink := pager.unpinnedList.PushTail(page)
		pager.pageTable[page.pagenum] = newLink
	}
	if ret < 0 {
		return errors.New("pinCount for page is < 0")
	}
	return nil
}

// DeletePage drops the page with the given pagenum and recycles its
// pagenum for a future GetNewPage. The page must be unpinned; deleting a
// pinned page returns ErrPageStillPinned. The on-disk contents are not
// touched; the pagenum simply becomes dead until reused.
func (pager *Pager) DeletePage(pagenum int64) error {
	pager.ptMtx.Lock()
	defer pager.ptMtx.Unlock()
	if pagenum < 0 || pagenum > pager.numPages-1 {
		return ErrInvalidPagenum
	}
	if link, ok := pager.pageTable[pagenum]; ok {
		page := link.GetValue().(*Page)
		if page.PinCount() > 0 {
			return ErrPageStillPinned
		}
		// Return the frame to the free list without flushing.
		link.PopSelf()
		delete(pager.pageTable, pagenum)
		page.pagenum = NoPage
		page.dirty = false
		pager.freeList.PushTail(page)
	}
	pager.freePagenums = append(pager.freePagenums, pagenum)
	return nil
}

// FlushPage flushes a particular page's data to disk if it is dirty.
// Concurrency note: the page should at least be read-latched on entry.
func (pager *Pager) FlushPage(page *Page) {
	if page.IsDirty() {
		pager.file.WriteAt(
			page.data,
			page.pagenum*Pagesize,
		)
		page.SetDirty(false)
	}
}

// FlushAllPages flushes all dirty pages to disk.
func (pager *Pager) FlushAllPages() {
	writer := func(link *list.Link) {
		page := link.GetValue().(*Page)
		pager.FlushPage(page)
	}
	pager.pinnedList.Map(writer)
	pager.unpinnedList.Map(writer)
}
