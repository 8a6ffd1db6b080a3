// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ffp

// closedOccupancy marks a hash node's occupied counter as claimed by a
// compressor, distinguishing "genuinely empty, being reclaimed" from the
// ordinary zero a node starts at and returns to between occupants.
const closedOccupancy = int32(-1)

// reserveOccupancy claims the transition of one of h's buckets from
// empty to non-empty, ahead of the CAS that will actually perform it.
// It fails (returning false) only if a compressor has already claimed
// exclusive reclamation rights over h, in which case the caller must
// abandon its attempt to install into h and restart from the root: h
// may be unlinked from its parent by the time the caller would have
// finished.
func reserveOccupancy[V any](h *node[V]) bool {
	for {
		cur := h.occupied.Load()
		if cur == closedOccupancy {
			return false
		}
		if h.occupied.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// releaseOccupancy records one of h's buckets transitioning from
// non-empty to empty, and attempts compression if that was the last
// one.
func releaseOccupancy[V any](t *Trie[V], h *node[V]) {
	for {
		cur := h.occupied.Load()
		next := cur - 1
		if h.occupied.CompareAndSwap(cur, next) {
			if next == 0 {
				tryCompress(t, h)
			}
			return
		}
	}
}

// tryCompress attempts to unlink c from its parent once c's occupied
// counter reads zero. It claims exclusive reclamation rights by CASing
// the counter from 0 to closedOccupancy; any concurrent insert that
// observes the closed counter aborts and retries from the root instead
// of racing compression, per reserveOccupancy above. The root is never
// compressed.
func tryCompress[V any](t *Trie[V], c *node[V]) {
	parent := c.prev.Load()
	if parent == nil {
		return
	}
	if !c.occupied.CompareAndSwap(0, closedOccupancy) {
		return
	}

	slot := &parent.buckets[c.parentIdx]
	if !slot.CompareAndSwap(c, parent) {
		// A bucket of c transitioned back to non-empty between our
		// claim and the slot swap (reserveOccupancy above should
		// make this unreachable in practice, but never assume a
		// lock-free protocol can't be raced). Release our claim and
		// let a later remove retry compression.
		c.occupied.Store(0)
		return
	}

	c.prev.Store(nil)
	t.reclaimer.Retire(c)
	t.compressions.Add(1)
	releaseOccupancy(t, parent)
}

// markInvalid sets leaf's tombstone flag, leaving its pointer unchanged.
// It returns false if another thread's remove already flagged leaf, in
// which case the caller has nothing further to do: that thread owns the
// physical unlink.
func markInvalid[V any](leaf *node[V]) bool {
	for {
		cur := leaf.next.Load()
		if cur.invalid {
			return false
		}
		if leaf.next.CompareAndSwap(cur, &nextState[V]{to: cur.to, invalid: true}) {
			return true
		}
	}
}

// forceCAS sets leaf's successor to target, unconditionally of its
// current pointee, unless leaf has been concurrently flagged invalid.
// It is safe to ignore the current pointee here because at most one
// migration ever targets a given leaf at a time (the bucket expansion
// that triggers migration is itself won by exactly one thread's initial
// tail-swap CAS); the only concurrent writer leaf.next still has is a
// remove setting the invalid flag, which this checks for explicitly.
func forceCAS[V any](leaf *node[V], target *node[V]) bool {
	for {
		cur := leaf.next.Load()
		if cur.invalid {
			return false
		}
		if leaf.next.CompareAndSwap(cur, &nextState[V]{to: target}) {
			return true
		}
	}
}
