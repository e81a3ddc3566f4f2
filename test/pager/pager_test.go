package pager_test

import (
	"bytes"
	"testing"

	"crocdb/pkg/config"
	"crocdb/pkg/pager"
	"crocdb/test/utils"
)

// setupPager creates a new pager backed by a temp db file.
func setupPager(t *testing.T) *pager.Pager {
	t.Parallel()
	dbname := utils.GetTempDbFile(t)
	p, err := pager.New(dbname)
	if err != nil {
		t.Fatal("Failed to create a new pager:", err)
	}

	utils.EnsureCleanup(t, func() {
		// Don't check close error since we are only concerned with resource cleanup
		_ = p.Close()
	})
	return p
}

// getNewPage wraps a call to Pager.GetNewPage() with error checking.
// If deferPut is true, queues the page to be put when the test ends.
func getNewPage(t *testing.T, p *pager.Pager, deferPut bool) *pager.Page {
	page, err := p.GetNewPage()
	if err != nil {
		t.Fatal("Error getting new page:", err)
	}

	if deferPut {
		utils.EnsureCleanup(t, func() {
			_ = p.PutPage(page)
		})
	}
	return page
}

// getPage wraps a call to Pager.GetPage(pagenum) with error checking.
// If deferPut is true, queues the page to be put when the test ends.
func getPage(t *testing.T, p *pager.Pager, pagenum int64, deferPut bool) *pager.Page {
	page, err := p.GetPage(pagenum)
	if err != nil {
		t.Fatalf("Error getting existing page %d: %s", pagenum, err)
	}

	if deferPut {
		utils.EnsureCleanup(t, func() {
			err = p.PutPage(page)
			if err != nil {
				t.Errorf("Error putting page %d: %s", page.GetPageNum(), err)
			}
		})
	}
	return page
}

// closeAndReopen closes a pager then reopens it with the same database file.
func closeAndReopen(t *testing.T, p *pager.Pager) {
	err := p.Close()
	if err != nil {
		t.Fatal("Failed to close pager:", err)
	}

	err = p.Open(p.GetFileName())
	if err != nil {
		t.Fatal("Failed to open pager:", err)
	}
}

func TestPager(t *testing.T) {
	t.Run("NewPager", testNewPager)
	t.Run("GetNewPage", testGetNewPage)
	t.Run("GetPagePagenumber", testGetPagePagenumber)
	t.Run("NegativePagenumber", testNegativePagenumber)
	t.Run("MaxGetNewPages", testMaxGetNewPages)
	t.Run("FlushOnePage", testFlushOnePage)
	t.Run("TooManyPuts", testTooManyPuts)
	t.Run("PincountsOnClose", testPincountsOnClose)
	t.Run("DeletePinnedPage", testDeletePinnedPage)
	t.Run("DeleteAndRecycle", testDeleteAndRecycle)
}

/*
Sets up a new pager and then closes it, checking that no errors happen
along the way.
*/
func testNewPager(t *testing.T) {
	_ = setupPager(t)
}

/*
Checks that the first call to GetNewPage returns a dirty, zeroed page with
the right pager and page number of 0.
*/
func testGetNewPage(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p, true)
	if page.GetPager() != p {
		t.Error("New page has bad pager field")
	}
	if page.GetPageNum() != 0 {
		t.Error("Expected new page to have pagenum 0, but found pagenum", page.GetPageNum())
	}
	if !page.IsDirty() {
		t.Error("Expected new page to be dirty, but it wasn't")
	}
	if !bytes.Equal(page.GetData(), make([]byte, pager.Pagesize)) {
		t.Error("Expected new page data to be zeroed")
	}
}

/*
Calls GetNewPage twice and retrieves both pages by pagenum, checking that
the pages returned have the correct pagenum.
*/
func testGetPagePagenumber(t *testing.T) {
	p := setupPager(t)
	getNewPage(t, p, true)
	getNewPage(t, p, true)
	page := getPage(t, p, 1, true)
	if page.GetPageNum() != 1 {
		t.Error("Expected page with pagenum 1, but found pagenum", page.GetPageNum())
	}
	page = getPage(t, p, 0, true)
	if page.GetPageNum() != 0 {
		t.Error("Expected page with pagenum 0, but found pagenum", page.GetPageNum())
	}
}

/*
Checks that getting a negative or out-of-range pagenum fails.
*/
func testNegativePagenumber(t *testing.T) {
	p := setupPager(t)
	if _, err := p.GetPage(-1); err == nil {
		t.Error("Expected getting a negative pagenum to fail")
	}
	if _, err := p.GetPage(p.GetNumPages()); err == nil {
		t.Error("Expected getting a pagenum beyond the file to fail")
	}
}

/*
Pins every frame in the buffer and checks that one more allocation fails
with ErrRanOutOfPages.
*/
func testMaxGetNewPages(t *testing.T) {
	p := setupPager(t)
	for i := 0; i < config.MaxPagesInBuffer; i++ {
		getNewPage(t, p, true)
	}
	if _, err := p.GetNewPage(); err != pager.ErrRanOutOfPages {
		t.Error("Expected to run out of pages, but got:", err)
	}
}

/*
Writes data into a page, flushes it through close/reopen, and checks the
data survives the round trip.
*/
func testFlushOnePage(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p, false)
	payload := []byte("deadbeef")
	page.Update(payload, 0, int64(len(payload)))
	if err := p.PutPage(page); err != nil {
		t.Fatal("Failed to put page:", err)
	}
	closeAndReopen(t, p)

	page = getPage(t, p, 0, true)
	if !bytes.Equal(page.GetData()[:len(payload)], payload) {
		t.Error("Page data did not survive a flush and reopen")
	}
}

/*
Putting a page more times than it was pinned errors.
*/
func testTooManyPuts(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p, false)
	if err := p.PutPage(page); err != nil {
		t.Fatal("Failed to put page:", err)
	}
	if err := p.PutPage(page); err == nil {
		t.Error("Expected putting an unpinned page to fail")
	}
}

/*
Closing a pager with pinned pages fails.
*/
func testPincountsOnClose(t *testing.T) {
	dbname := utils.GetTempDbFile(t)
	p, err := pager.New(dbname)
	if err != nil {
		t.Fatal("Failed to create a new pager:", err)
	}
	page := getNewPage(t, p, false)
	if err := p.Close(); err == nil {
		t.Error("Expected closing a pager with pinned pages to fail")
	}
	if err := p.PutPage(page); err != nil {
		t.Fatal("Failed to put page:", err)
	}
	if err := p.Close(); err != nil {
		t.Error("Failed to close pager after putting pages:", err)
	}
}

/*
Deleting a page that is still pinned fails; the delete succeeds once the
page is put.
*/
func testDeletePinnedPage(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p, false)
	if err := p.DeletePage(page.GetPageNum()); err != pager.ErrPageStillPinned {
		t.Error("Expected deleting a pinned page to fail, but got:", err)
	}
	if err := p.PutPage(page); err != nil {
		t.Fatal("Failed to put page:", err)
	}
	if err := p.DeletePage(0); err != nil {
		t.Error("Failed to delete an unpinned page:", err)
	}
}

/*
A deleted pagenum is recycled by the next GetNewPage, and the recycled
frame comes back zeroed rather than holding the dead page's bytes.
*/
func testDeleteAndRecycle(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p, false)
	page.Update([]byte("stale"), 0, 5)
	if err := p.PutPage(page); err != nil {
		t.Fatal("Failed to put page:", err)
	}
	getNewPage(t, p, true) // pagenum 1 keeps the file two pages long

	if err := p.DeletePage(0); err != nil {
		t.Fatal("Failed to delete page 0:", err)
	}
	if next := p.GetFreePN(); next != 0 {
		t.Errorf("Expected the freed pagenum 0 to be reused next, but found %d", next)
	}

	recycled := getNewPage(t, p, true)
	if recycled.GetPageNum() != 0 {
		t.Errorf("Expected the recycled page to have pagenum 0, but found %d", recycled.GetPageNum())
	}
	if !bytes.Equal(recycled.GetData()[:5], make([]byte, 5)) {
		t.Error("Expected the recycled page to be zeroed")
	}
	if p.GetNumPages() != 2 {
		t.Errorf("Expected the file to stay two pages long, but found %d", p.GetNumPages())
	}
}
