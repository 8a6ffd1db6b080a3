// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ffp

import (
	"fmt"
	"sync"
	"testing"
)

func smallConfig() Config {
	return Config{
		RootFanoutBits: 2,
		FanoutBits:     2,
		MaxChain:       2,
		MaxThreads:     32,
	}
}

func TestSearchMissingIsNotFound(t *testing.T) {
	tr := New[string](smallConfig())
	tid, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	defer tr.EndThread(tid)

	if _, ok := tr.Search(1234, tid); ok {
		t.Error("expected not found in an empty trie")
	}
}

func TestInsertSearchRemove(t *testing.T) {
	tr := New[string](smallConfig())
	tid, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	defer tr.EndThread(tid)

	if err := tr.Insert(42, "hello", tid); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if v, ok := tr.Search(42, tid); !ok || v != "hello" {
		t.Errorf("Search(42) = %q, %t; want hello, true", v, ok)
	}

	tr.Remove(42, tid)
	if _, ok := tr.Search(42, tid); ok {
		t.Error("expected not found after Remove")
	}

	// Removing an absent key is a no-op, not an error.
	tr.Remove(42, tid)
}

func TestInsertIsIdempotent(t *testing.T) {
	tr := New[string](smallConfig())
	tid, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	defer tr.EndThread(tid)

	if err := tr.Insert(7, "first", tid); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert(7, "second", tid); err != nil {
		t.Fatal(err)
	}
	if v, _ := tr.Search(7, tid); v != "first" {
		t.Errorf("Search(7) = %q, want first (first writer wins)", v)
	}
}

// TestExpansionPreservesAllEntries forces repeated bucket expansion by
// inserting far more keys than MaxChain allows into a single bucket, and
// verifies every key is still found afterward.
func TestExpansionPreservesAllEntries(t *testing.T) {
	tr := New[int](smallConfig())
	tid, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	defer tr.EndThread(tid)

	const n = 500
	for i := 0; i < n; i++ {
		h := uint64(i) * 0x9E3779B97F4A7C15 // scatter across the hash space
		if err := tr.Insert(h, i, tid); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		h := uint64(i) * 0x9E3779B97F4A7C15
		v, ok := tr.Search(h, tid)
		if !ok || v != i {
			t.Errorf("Search(%d) = %d, %t; want %d, true", i, v, ok, i)
		}
	}
}

// TestRemoveDrainsAndReinserts exercises compression (removing every
// entry of an expanded region) followed by reinserting into the same
// space, which must succeed cleanly whether or not compression actually
// ran.
func TestRemoveDrainsAndReinserts(t *testing.T) {
	tr := New[int](smallConfig())
	tid, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	defer tr.EndThread(tid)

	const n = 200
	hashes := make([]uint64, n)
	for i := 0; i < n; i++ {
		hashes[i] = uint64(i) * 0x9E3779B97F4A7C15
		if err := tr.Insert(hashes[i], i, tid); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for _, h := range hashes {
		tr.Remove(h, tid)
	}
	for _, h := range hashes {
		if _, ok := tr.Search(h, tid); ok {
			t.Errorf("Search(%#x) found after Remove", h)
		}
	}
	for i, h := range hashes {
		if err := tr.Insert(h, i*2, tid); err != nil {
			t.Fatalf("reinsert(%d): %v", i, err)
		}
	}
	for i, h := range hashes {
		if v, ok := tr.Search(h, tid); !ok || v != i*2 {
			t.Errorf("Search(%#x) = %d, %t; want %d, true", h, v, ok, i*2)
		}
	}
}

func TestInsertAllocFailure(t *testing.T) {
	cfg := smallConfig()
	fail := true
	cfg.AllocFail = func() bool { return fail }
	tr := New[int](cfg)
	tid, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	defer tr.EndThread(tid)

	if err := tr.Insert(1, 1, tid); err != ErrAllocFailed {
		t.Errorf("Insert with failing allocator = %v, want ErrAllocFailed", err)
	}

	fail = false
	if err := tr.Insert(1, 1, tid); err != nil {
		t.Fatalf("Insert after allocator recovers: %v", err)
	}
}

func TestInitThreadExhaustion(t *testing.T) {
	cfg := smallConfig()
	cfg.MaxThreads = 2
	tr := New[int](cfg)

	tid1, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	tid2, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.InitThread(); err != ErrThreadSlotsExhausted {
		t.Errorf("third InitThread = %v, want ErrThreadSlotsExhausted", err)
	}

	tr.EndThread(tid1)
	if _, err := tr.InitThread(); err != nil {
		t.Errorf("InitThread after EndThread: %v", err)
	}
	tr.EndThread(tid2)
}

// TestConcurrentInsertSearchRemove drives many goroutines through
// overlapping insert/search/remove traffic on disjoint keys and checks
// every surviving key is still reachable, grounded on hash/map_test.go's
// TestGetIterateRace concurrency style.
func TestConcurrentInsertSearchRemove(t *testing.T) {
	cfg := smallConfig()
	cfg.MaxThreads = 64
	tr := New[int](cfg)

	const workers = 32
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			tid, err := tr.InitThread()
			if err != nil {
				t.Errorf("InitThread: %v", err)
				return
			}
			defer tr.EndThread(tid)

			for i := 0; i < perWorker; i++ {
				h := uint64(w*perWorker+i) * 0x9E3779B97F4A7C15
				if err := tr.Insert(h, w*perWorker+i, tid); err != nil {
					t.Errorf("Insert: %v", err)
					return
				}
			}
			for i := 0; i < perWorker; i++ {
				h := uint64(w*perWorker+i) * 0x9E3779B97F4A7C15
				v, ok := tr.Search(h, tid)
				if !ok || v != w*perWorker+i {
					t.Errorf("Search(worker %d, %d) = %d, %t; want %d, true",
						w, i, v, ok, w*perWorker+i)
				}
			}
			// Remove every other entry to exercise concurrent
			// expansion and compression together.
			for i := 0; i < perWorker; i += 2 {
				h := uint64(w*perWorker+i) * 0x9E3779B97F4A7C15
				tr.Remove(h, tid)
			}
		}(w)
	}
	wg.Wait()

	tid, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	defer tr.EndThread(tid)
	for w := 0; w < workers; w++ {
		for i := 1; i < perWorker; i += 2 {
			h := uint64(w*perWorker+i) * 0x9E3779B97F4A7C15
			v, ok := tr.Search(h, tid)
			if !ok || v != w*perWorker+i {
				t.Errorf("post-run Search(worker %d, %d) = %d, %t; want %d, true",
					w, i, v, ok, w*perWorker+i)
			}
		}
	}
}

// TestWalkMatchesTrackedKeySet exercises spec.md §8's core round-trip
// property: once every operation has quiesced, the multiset of
// inserted-but-not-removed keys equals the multiset an exhaustive walk
// of the trie discovers. Concurrent goroutines hammer a shared trie
// with mixed insert/remove traffic (goroutine + WaitGroup fan-out, the
// style hash/map_test.go uses for its own concurrency tests); only
// after every goroutine finishes does the test walk the trie once and
// diff it against the independently tracked set, which would catch a
// stray leaf left behind by a bad unlink or a duplicate left behind by
// a bad migration — neither of which TestConcurrentInsertSearchRemove's
// re-Search-the-tracked-keys check above can see.
func TestWalkMatchesTrackedKeySet(t *testing.T) {
	tr := New[int](smallConfig())

	const workers = 8
	const perWorker = 300
	var mu sync.Mutex
	present := map[uint64]bool{}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			tid, err := tr.InitThread()
			if err != nil {
				t.Error(err)
				return
			}
			defer tr.EndThread(tid)

			for i := 0; i < perWorker; i++ {
				h := uint64(w*perWorker+i) * 0x9E3779B97F4A7C15
				if err := tr.Insert(h, w, tid); err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				present[h] = true
				mu.Unlock()

				if i%3 == 0 {
					tr.Remove(h, tid)
					mu.Lock()
					delete(present, h)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	walked := map[uint64]bool{}
	for _, h := range tr.walkHashes() {
		if walked[h] {
			t.Errorf("walk found duplicate leaf for hash %#x", h)
		}
		walked[h] = true
	}

	if len(walked) != len(present) {
		t.Fatalf("walk found %d keys, tracked set has %d", len(walked), len(present))
	}
	for h := range present {
		if !walked[h] {
			t.Errorf("tracked key %#x missing from walk", h)
		}
	}
	for h := range walked {
		if !present[h] {
			t.Errorf("walk found untracked key %#x not in the tracked set", h)
		}
	}
}

func ExampleTrie() {
	tr := New[string](DefaultConfig())
	tid, _ := tr.InitThread()
	defer tr.EndThread(tid)

	tr.Insert(1, "one", tid)
	v, ok := tr.Search(1, tid)
	fmt.Println(v, ok)
	// Output: one true
}
