package hash

import (
	"io"
	"path/filepath"

	"crocdb/pkg/entry"
	"crocdb/pkg/pager"
)

// HashIndex is a disk-backed index that uses an extendible HashTable as
// its underlying datastructure.
type HashIndex struct {
	table *HashTable   // The HashTable
	pager *pager.Pager // The pager backing this index / HashTable
}

// NewHashIndex builds an index over the given pager with an explicit hash
// function and comparator. If the pager's file already holds pages, the
// existing directory at the root page is reused; otherwise a fresh table
// is created.
func NewHashIndex(pgr *pager.Pager, hasher HashFunc, cmp Comparator) (*HashIndex, error) {
	var table *HashTable
	var err error
	if pgr.GetNumPages() == 0 {
		table, err = NewHashTable(pgr, hasher, cmp)
		if err != nil {
			return nil, err
		}
	} else {
		table = LoadHashTable(pgr, ROOT_PN, hasher, cmp)
	}
	return &HashIndex{table: table, pager: pgr}, nil
}

// OpenIndex opens (or creates) an index backed by the file at filename,
// using the default xxHash hasher and int64 comparator.
func OpenIndex(filename string) (*HashIndex, error) {
	pgr, err := pager.New(filename)
	if err != nil {
		return nil, err
	}
	return NewHashIndex(pgr, XxHasher, Int64Comparator)
}

// GetName returns the base file name of the file backing this index's pager.
func (index *HashIndex) GetName() string {
	return filepath.Base(index.pager.GetFileName())
}

// GetPager returns the pager backing this index.
func (index *HashIndex) GetPager() *pager.Pager {
	return index.pager
}

// GetTable returns the underlying hash table.
func (index *HashIndex) GetTable() *HashTable {
	return index.table
}

// Close flushes the index to disk and closes the backing file.
func (index *HashIndex) Close() error {
	return index.pager.Close()
}

// GetValue returns every value stored under the given key.
func (index *HashIndex) GetValue(key int64) ([]int64, error) {
	return index.table.GetValue(key)
}

// Insert adds the (key, value) pair to the index.
func (index *HashIndex) Insert(key int64, value int64) (bool, error) {
	return index.table.Insert(key, value)
}

// Remove deletes the exact (key, value) pair from the index.
func (index *HashIndex) Remove(key int64, value int64) (bool, error) {
	return index.table.Remove(key, value)
}

// GlobalDepth returns the directory's current global depth.
func (index *HashIndex) GlobalDepth() (uint32, error) {
	return index.table.GetGlobalDepth()
}

// VerifyIntegrity checks the extendible hashing invariants.
func (index *HashIndex) VerifyIntegrity() error {
	return index.table.VerifyIntegrity()
}

// Select returns every live entry in the index.
func (index *HashIndex) Select() ([]entry.Entry, error) {
	return index.table.Select()
}

// Print writes all elements to the specified writer.
func (index *HashIndex) Print(w io.Writer) {
	index.table.Print(w)
}

// PrintPN writes one bucket page's elements to the specified writer.
func (index *HashIndex) PrintPN(pagenum int64, w io.Writer) {
	index.table.PrintPN(pagenum, w)
}
