// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ffp

// makeInvisible physically unlinks leaf, already flagged invalid by
// markInvalid, from h's chain. It re-derives the chain position from
// scratch rather than reusing anything from the traversal that found
// leaf, since that traversal may be long finished by the time a winning
// CAS here actually happens.
func makeInvisible[V any](t *Trie[V], leaf *node[V], h *node[V]) {
	for {
		// Find the first valid node after leaf, skipping over any run
		// of other leaves concurrently flagged invalid.
		validAfter := leaf.next.Load().to
		for validAfter.k == kindLeaf {
			ns := validAfter.next.Load()
			if !ns.invalid {
				break
			}
			validAfter = ns.to
		}

		// Walk from validAfter to the hash node that terminates its
		// chain, to learn which level leaf's successors actually live
		// at now.
		term := validAfter
		for term.k != kindHash {
			term = term.next.Load().to
		}

		if term == h {
			idx := bucketIndex(leaf.hash, h.hashPos, h.size)
			bslot := &h.buckets[idx]

			tail := slotRef[V]{bucket: bslot}
			tailObserved := bslot.Load()
			iter := tailObserved
			for iter != leaf && iter.k == kindLeaf {
				ns := iter.next.Load()
				if !ns.invalid {
					tail = slotRef[V]{leaf: &iter.next}
					tailObserved = ns.to
					iter = ns.to
					continue
				}
				iter = ns.to
			}

			if iter == leaf {
				if tail.casTo(leaf, validAfter) {
					if tail.bucket != nil && validAfter == h {
						releaseOccupancy(t, h)
					}
					return
				}
				continue // lost the unlink race; rescan and retry
			}
			if iter == h {
				// someone else already unlinked leaf.
				return
			}
			// iter is a hash node installed by a concurrent expansion
			// of this very bucket, encountered before we reached leaf.
			// Walk up to h's immediate child and retry there, same as
			// find's mid-chain hash-node handling.
			for iter.prev.Load() != h {
				iter = iter.prev.Load()
			}
			h = iter
			continue
		}

		if term.hashPos < h.hashPos {
			// leaf's chain now terminates above h: it has already
			// been migrated out from under us by a concurrent
			// expansion and is someone else's problem now.
			return
		}

		// term is a hash node deeper than h: retry the search from
		// there.
		h = term
	}
}
