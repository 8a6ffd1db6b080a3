// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ffp

// Stats is a point-in-time, best-effort snapshot of a Trie's shape,
// intended for monitoring consumers such as ffpmetrics. It walks the
// live structure using the same atomic loads Search does and may
// observe a combination of hash nodes and leaves that never existed
// together if the trie mutates concurrently with the walk; that's an
// acceptable tradeoff for a metrics snapshot, not something Stats
// itself corrects for.
type Stats struct {
	// HashNodes is the number of hash nodes reachable from the root,
	// including the root itself.
	HashNodes int
	// Leaves is the number of leaf (key/value) entries found.
	Leaves int
	// MaxDepth is the deepest level reached below the root (the root
	// itself is depth 0).
	MaxDepth int
}

// Stats walks t and returns a snapshot of its current shape.
func (t *Trie[V]) Stats() Stats {
	var s Stats
	var walk func(h *node[V], depth int)
	walk = func(h *node[V], depth int) {
		s.HashNodes++
		if depth > s.MaxDepth {
			s.MaxDepth = depth
		}
		for i := range h.buckets {
			n := h.buckets[i].Load()
			for n != h {
				if n.k == kindHash {
					walk(n, depth+1)
					break
				}
				s.Leaves++
				n = n.next.Load().to
			}
		}
	}
	walk(t.root, 0)
	return s
}

// walkHashes returns every hash a structural walk of t finds attached
// to a non-invalid leaf. Unlike Stats, which only counts, this exists
// for tests that need to compare the trie's actual physical content
// against an independently tracked logical key set — spec.md §8's
// round-trip property that the multiset of inserted-but-not-removed
// keys equals the multiset an exhaustive post-termination walk
// discovers.
func (t *Trie[V]) walkHashes() []uint64 {
	var hashes []uint64
	var walk func(h *node[V])
	walk = func(h *node[V]) {
		for i := range h.buckets {
			n := h.buckets[i].Load()
			for n != h {
				if n.k == kindHash {
					walk(n)
					break
				}
				ns := n.next.Load()
				if !ns.invalid {
					hashes = append(hashes, n.hash)
				}
				n = ns.to
			}
		}
	}
	walk(t.root)
	return hashes
}
