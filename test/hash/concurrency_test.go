package hash_test

import (
	"fmt"
	"math/rand"
	"testing"

	"crocdb/pkg/hash"
	"crocdb/test/utils"

	"golang.org/x/sync/errgroup"
)

const numWriters int64 = 8
const keysPerWriter int64 = 400

func TestConcurrentHash(t *testing.T) {
	t.Run("InsertAndGet", testConcurrentInsertAndGet)
	t.Run("InsertAndRemove", testConcurrentInsertAndRemove)
}

// writerRange inserts this writer's disjoint key range.
func writerRange(index *hash.HashIndex, writerId int64) error {
	base := writerId * keysPerWriter
	for i := int64(0); i < keysPerWriter; i++ {
		key := base + i
		inserted, err := index.Insert(key, key%hashSalt)
		if err != nil {
			return fmt.Errorf("insert (%d, %d): %w", key, key%hashSalt, err)
		}
		if !inserted {
			return fmt.Errorf("insert (%d, %d): pair reported as not inserted", key, key%hashSalt)
		}
	}
	return nil
}

/*
Eight writers insert disjoint key ranges while readers run point lookups
the whole time. A reader may see a key before or after its insert, but a
found key must carry the right value (no torn pairs). At the end every
inserted pair is present and the invariants hold.
*/
func testConcurrentInsertAndGet(t *testing.T) {
	index := setupHash(t)

	done := make(chan struct{})
	var readers errgroup.Group
	for r := 0; r < 2; r++ {
		readers.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				default:
				}
				key := rand.Int63n(numWriters * keysPerWriter)
				values, err := index.GetValue(key)
				if err != nil {
					return fmt.Errorf("lookup %d: %w", key, err)
				}
				for _, v := range values {
					if v != key%hashSalt {
						return fmt.Errorf("lookup %d: torn value %d", key, v)
					}
				}
			}
		})
	}

	var writers errgroup.Group
	for w := int64(0); w < numWriters; w++ {
		w := w
		writers.Go(func() error {
			return writerRange(index, w)
		})
	}
	err := writers.Wait()
	close(done)
	if rerr := readers.Wait(); err == nil {
		err = rerr
	}
	if err != nil {
		t.Fatal(err)
	}

	for key := int64(0); key < numWriters*keysPerWriter; key++ {
		utils.CheckGetValue(t, index, key, key%hashSalt)
	}
	utils.CheckIntegrity(t, index)
}

/*
Writers insert their ranges, then concurrently remove them again while
readers keep looking up. The index must end empty of all written pairs
with its invariants intact.
*/
func testConcurrentInsertAndRemove(t *testing.T) {
	index := setupHash(t)

	var writers errgroup.Group
	for w := int64(0); w < numWriters; w++ {
		w := w
		writers.Go(func() error {
			return writerRange(index, w)
		})
	}
	if err := writers.Wait(); err != nil {
		t.Fatal(err)
	}
	utils.CheckIntegrity(t, index)

	done := make(chan struct{})
	var readers errgroup.Group
	readers.Go(func() error {
		for {
			select {
			case <-done:
				return nil
			default:
			}
			if _, err := index.GetValue(rand.Int63n(numWriters * keysPerWriter)); err != nil {
				return err
			}
		}
	})

	var removers errgroup.Group
	for w := int64(0); w < numWriters; w++ {
		w := w
		removers.Go(func() error {
			base := w * keysPerWriter
			for i := int64(0); i < keysPerWriter; i++ {
				key := base + i
				removed, err := index.Remove(key, key%hashSalt)
				if err != nil {
					return fmt.Errorf("remove (%d, %d): %w", key, key%hashSalt, err)
				}
				if !removed {
					return fmt.Errorf("remove (%d, %d): pair reported as missing", key, key%hashSalt)
				}
			}
			return nil
		})
	}
	err := removers.Wait()
	close(done)
	if rerr := readers.Wait(); err == nil {
		err = rerr
	}
	if err != nil {
		t.Fatal(err)
	}

	for key := int64(0); key < numWriters*keysPerWriter; key++ {
		utils.CheckNoValue(t, index, key, key%hashSalt)
	}
	utils.CheckIntegrity(t, index)
}
