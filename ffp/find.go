// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ffp

// findResult is the outcome of a traversal: either a found leaf, or
// enough state to install a new leaf at the chain tail (owner, the slot
// to CAS, the value last observed there, and the chain length seen so
// far, which insert uses to decide whether to expand instead).
type findResult[V any] struct {
	owner *node[V]
	found *node[V]
	tail  slotRef[V]
	tailObserved *node[V]
	count int
}

// find walks from h toward the bucket that hash maps into, descending
// through expansions and scanning collision chains, per spec.md §4.2.
// It returns the terminal hash node actually reached (h may have
// descended past the caller's starting point) together with the
// findResult.
//
// On the way it opportunistically unlinks leaves it observes marked
// invalid, handing them to t's reclaimer; a failed unlink CAS or an
// in-flight expansion observed mid-scan restarts the walk from the
// bucket, never blocking.
func find[V any](t *Trie[V], h *node[V], hash uint64, tid int) (findResult[V], *node[V]) {
	for {
		idx := bucketIndex(hash, h.hashPos, h.size)
		bslot := &h.buckets[idx]
		observed := bslot.Load()

		tail := slotRef[V]{bucket: bslot}
		tailObserved := observed
		iter := observed
		count := 0
		if iter.k == kindLeaf {
			count = 1
		}

		restart := false
		for iter != h {
			t.reclaimer.Protect(tid, protectScan, iter)

			if iter.k == kindHash {
				// A concurrent expansion may have appended a child
				// hash node at the chain tail before republishing the
				// bucket slot; walk back up until we find the level
				// whose parent is the h we're currently scanning.
				p := iter
				for p.prev.Load() != h {
					p = p.prev.Load()
				}
				h = p
				restart = true
				break
			}

			ns := iter.next.Load()
			if ns.invalid {
				if tail.casTo(iter, ns.to) {
					t.reclaimer.Retire(iter)
					if tail.bucket != nil && ns.to == h {
						releaseOccupancy(t, h)
					}
					tailObserved = ns.to
					iter = ns.to
					continue
				}
				t.retries.Add(1)
				restart = true
				break
			}
			if iter.hash == hash {
				t.reclaimer.Protect(tid, protectFound, iter)
				t.sampleChainLength(count)
				return findResult[V]{owner: h, found: iter}, h
			}

			tail = slotRef[V]{leaf: &iter.next}
			tailObserved = ns.to
			iter = ns.to
			count++
		}
		t.reclaimer.Clear(tid, protectScan)

		if restart {
			continue
		}
		t.sampleChainLength(count)
		return findResult[V]{owner: h, tail: tail, tailObserved: tailObserved, count: count}, h
	}
}
