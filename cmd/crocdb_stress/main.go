// The stress driver hammers one index file with concurrent inserts,
// lookups, and removes, then checks the extendible hashing invariants.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"crocdb/pkg/hash"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var MAX_DELAY int64 = 2

// Get delay jitter.
func jitter() time.Duration {
	return time.Duration(rand.Int63n(MAX_DELAY)+1) * time.Millisecond
}

// writer inserts opsPerWorker keys from its own range, removing a fraction
// of them again so that splits and merges both get exercised.
func writer(index *hash.HashIndex, workerId int64, opsPerWorker int64, removeEvery int64) error {
	base := workerId * opsPerWorker
	for i := int64(0); i < opsPerWorker; i++ {
		key := base + i
		if _, err := index.Insert(key, key%251); err != nil {
			return fmt.Errorf("worker %d: insert %d: %w", workerId, key, err)
		}
		if removeEvery > 0 && i%removeEvery == 0 {
			time.Sleep(jitter())
			if _, err := index.Remove(key, key%251); err != nil {
				return fmt.Errorf("worker %d: remove %d: %w", workerId, key, err)
			}
		}
	}
	return nil
}

// reader runs point lookups against random keys until done is closed.
func reader(index *hash.HashIndex, keySpace int64, done <-chan struct{}) error {
	for {
		select {
		case <-done:
			return nil
		default:
		}
		if _, err := index.GetValue(rand.Int63n(keySpace)); err != nil {
			return fmt.Errorf("reader: %w", err)
		}
	}
}

func main() {
	var fileFlag = flag.String("file", "data/stress.db", "index file")
	var nFlag = flag.Int64("n", 8, "number of writer goroutines")
	var opsFlag = flag.Int64("ops", 2000, "operations per writer")
	var readersFlag = flag.Int("readers", 2, "number of reader goroutines")
	var removeFlag = flag.Int64("remove-every", 4, "remove every k-th inserted key (0 disables)")
	flag.Parse()

	os.Remove(*fileFlag)
	index, err := hash.OpenIndex(*fileFlag)
	if err != nil {
		log.Fatal(err)
	}
	defer index.Close()

	runId := uuid.New()
	fmt.Printf("stress run %v: %d writers x %d ops, %d readers\n",
		runId, *nFlag, *opsFlag, *readersFlag)

	start := time.Now()
	done := make(chan struct{})
	var g errgroup.Group
	for w := int64(0); w < *nFlag; w++ {
		w := w
		g.Go(func() error {
			return writer(index, w, *opsFlag, *removeFlag)
		})
	}
	var readers errgroup.Group
	for i := 0; i < *readersFlag; i++ {
		readers.Go(func() error {
			return reader(index, *nFlag**opsFlag, done)
		})
	}
	err = g.Wait()
	close(done)
	if rerr := readers.Wait(); err == nil {
		err = rerr
	}
	if err != nil {
		log.Fatal(err)
	}

	if err := index.VerifyIntegrity(); err != nil {
		log.Fatalf("integrity check failed: %v", err)
	}
	depth, err := index.GlobalDepth()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("stress run %v ok in %v, global depth %d\n", runId, time.Since(start), depth)
}
