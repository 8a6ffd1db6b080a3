// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ffp

import "sync/atomic"

// kind discriminates the two node variants that share the node
// representation below, mirroring the original C `enum ntype {HASH, ANS}`.
type kind uint8

const (
	kindHash kind = iota
	kindLeaf
)

// node is a hash node or a leaf node, discriminated by k. Both variants are
// carried on one allocation shape so that a bucket slot or a leaf's next
// pointer can refer to either without an interface: an interface value big
// enough to hold either pointer would still need a concrete field layout
// underneath, and keeping one concrete *node lets every atomic slot in the
// trie be a plain atomic.Pointer[node[V]].
type node[V any] struct {
	k kind

	// hash node fields. size is the bit-width of this level's index (a
	// 2^size fan-out); hashPos is the bit offset into the hash at which
	// this level starts indexing; prev is the parent hash node (nil at
	// root, cleared to nil by compression once this node is reclaimed).
	size    uint
	hashPos uint
	prev    atomic.Pointer[node[V]]
	buckets []atomic.Pointer[node[V]]
	// occupied counts buckets currently holding a non-empty chain or a
	// child hash node; used by the counter-based compression protocol
	// to detect "this hash node is now empty" without a full bucket scan.
	// A value of closedOccupancy means a compressor has claimed
	// exclusive reclamation rights over this node.
	occupied atomic.Int32
	// parentIdx is the bucket index within prev that this hash node
	// occupies, recorded at creation so compression can locate and CAS
	// that slot without a hash value on hand.
	parentIdx uint64

	// leaf node fields.
	hash  uint64
	value V
	// next is the tagged successor: either another leaf in the same
	// chain or the hash node (owner, or newer child during expansion)
	// that terminates it. The validity bit lives in nextState.invalid.
	next atomic.Pointer[nextState[V]]
}

// nextState is the Go-native analogue of the C tagged pointer word
// `next | validity_bit`: an immutable value, swapped in whole by CAS, so
// that the (pointer, validity) pair transitions atomically together. See
// DESIGN.md's Open Question 1 for why this replaces bit-tagging a raw
// pointer.
type nextState[V any] struct {
	to      *node[V]
	invalid bool
}

func newHashNode[V any](size, hashPos uint, prev *node[V]) *node[V] {
	n := &node[V]{
		k:       kindHash,
		size:    size,
		hashPos: hashPos,
		buckets: make([]atomic.Pointer[node[V]], 1<<size),
	}
	n.prev.Store(prev)
	for i := range n.buckets {
		// Empty bucket invariant: a slot with no chain self-points to
		// its owning hash node. This both distinguishes "empty" from
		// "chain present" and terminates chain traversal without a nil
		// check.
		n.buckets[i].Store(n)
	}
	return n
}

func newLeafNode[V any](hash uint64, value V, next *node[V]) *node[V] {
	n := &node[V]{k: kindLeaf, hash: hash, value: value}
	n.next.Store(&nextState[V]{to: next})
	return n
}

// bucketIndex computes the fan-out index for hash at this level, per
// spec: (hash >> hashPos) & ((1 << size) - 1).
func bucketIndex(hash uint64, hashPos, size uint) uint64 {
	return (hash >> hashPos) & ((uint64(1) << size) - 1)
}

// empty reports whether h (a hash node) currently has no occupied
// buckets. remove and compress do not call it; they act on the value
// releaseOccupancy's decrement produces instead.
func (n *node[V]) empty() bool {
	return n.occupied.Load() == 0
}

// slotRef abstracts the predecessor slot that traversal, insert, and
// expansion CAS to splice or unlink a node: either a hash node's bucket
// slot (untagged) or a leaf's next field (tagged). Both represent "the
// pointer that currently designates the next element of this chain."
type slotRef[V any] struct {
	bucket *atomic.Pointer[node[V]]
	leaf   *atomic.Pointer[nextState[V]]
}

// load returns the node currently designated by the slot, ignoring any
// validity tag (callers that care about validity load the leaf's
// nextState directly and read its invalid field).
func (s slotRef[V]) load() *node[V] {
	if s.bucket != nil {
		return s.bucket.Load()
	}
	return s.leaf.Load().to
}

// casTo attempts to move the slot from designating old to designating
// new, preserving validity (for a leaf slot, this fails outright if the
// leaf has since been marked invalid — the same "expect low bit stays 0"
// guard as the original force_cas/CAS-of-tail-slot).
func (s slotRef[V]) casTo(old, new *node[V]) bool {
	if s.bucket != nil {
		return s.bucket.CompareAndSwap(old, new)
	}
	cur := s.leaf.Load()
	if cur.invalid || cur.to != old {
		return false
	}
	return s.leaf.CompareAndSwap(cur, &nextState[V]{to: new})
}
