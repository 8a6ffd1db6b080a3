// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package ffp implements FFP, a lock-free, dynamically-expanding hash
// trie for concurrent insert, remove, and lookup of hash-keyed,
// pointer-valued entries.
//
// FFP combines a radix tree of fixed-fan-out hash nodes with intrusive
// singly-linked collision chains at each bucket. A bucket whose chain
// grows past a configurable threshold is expanded into a child hash
// node; a child hash node that becomes empty can be compressed back
// into its parent bucket. Every operation enters at the root and
// descends by indexing successive chunks of the caller-supplied hash;
// on contention, operations restart from the root or from a safe
// re-entry point rather than blocking.
//
// The package does not hash keys itself: callers supply a uint64 hash
// and are responsible for distributing it well across bits. It also
// does not reclaim memory on its own; it delegates to the
// [github.com/fastfeatures/ffp/reclaim] package's hazard-pointer
// discipline so that a node observed by one goroutine is never mutated
// for reuse by another while still potentially in use.
package ffp
