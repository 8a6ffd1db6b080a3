// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ffp

import (
	"sync/atomic"
	"unsafe"

	"github.com/fastfeatures/ffp/reclaim"
)

const (
	// protectScan guards the node a traversal is currently examining.
	protectScan = 0
	// protectFound guards a leaf handed back to a caller (Search's
	// result, or the leaf a racing Insert/Remove just matched) until
	// the caller is done reading it.
	protectFound = 1

	hazardSlotsPerThread = 2

	defaultRootFanoutBits = 8
	defaultFanoutBits     = 4
	defaultMaxChain       = 8
	defaultMaxThreads     = 64
)

// Config tunes a Trie's fan-out, collision-chain threshold, and
// concurrency bound. New replaces every zero-valued numeric field with
// its DefaultConfig value, so a zero Config yields a default Trie.
type Config struct {
	// RootFanoutBits sizes the root hash node's bucket array to
	// 1<<RootFanoutBits. A wider root reduces contention and average
	// chain length for small-to-medium tries at the cost of a larger
	// fixed allocation.
	RootFanoutBits uint
	// FanoutBits sizes every non-root hash node's bucket array.
	FanoutBits uint
	// MaxChain is the collision chain length that triggers expanding
	// a bucket into a child hash node.
	MaxChain int
	// MaxThreads bounds the number of concurrent InitThread
	// participants and sizes the hazard-pointer slot arrays.
	MaxThreads int
	// AllocFail, if non-nil, is consulted before allocating a new
	// leaf (Insert) or the hash node a bucket expansion installs
	// (the expansion insert itself triggers); returning true
	// simulates an allocation failure, surfaced as ErrAllocFailed.
	// A nil AllocFail never fails, matching Go's actual allocator,
	// which has no recoverable failure mode of its own.
	AllocFail func() bool
}

// DefaultConfig returns a Config with reasonable defaults for a
// general-purpose trie.
func DefaultConfig() Config {
	return Config{
		RootFanoutBits: defaultRootFanoutBits,
		FanoutBits:     defaultFanoutBits,
		MaxChain:       defaultMaxChain,
		MaxThreads:     defaultMaxThreads,
	}
}

// Trie is a lock-free, dynamically-expanding hash trie mapping a
// caller-supplied uint64 hash to a value of type V.
type Trie[V any] struct {
	root       *node[V]
	fanoutBits uint
	maxChain   int

	threads   *reclaim.Registry
	reclaimer reclaimAdapter[V]
	allocFail func() bool

	expansions   atomic.Int64
	compressions atomic.Int64
	retries      atomic.Int64
	chainHist    [chainHistBuckets]atomic.Int64
}

// New creates an empty Trie per cfg. Use DefaultConfig to start from
// sensible defaults and override only the fields that matter.
func New[V any](cfg Config) *Trie[V] {
	if cfg.MaxChain <= 0 {
		cfg.MaxChain = defaultMaxChain
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = defaultMaxThreads
	}
	if cfg.RootFanoutBits == 0 {
		cfg.RootFanoutBits = defaultRootFanoutBits
	}
	if cfg.FanoutBits == 0 {
		cfg.FanoutBits = defaultFanoutBits
	}

	t := &Trie[V]{
		root:       newHashNode[V](cfg.RootFanoutBits, 0, nil),
		fanoutBits: cfg.FanoutBits,
		maxChain:   cfg.MaxChain,
		threads:    reclaim.NewRegistry(cfg.MaxThreads),
		allocFail:  cfg.AllocFail,
	}
	t.reclaimer = reclaimAdapter[V]{r: reclaim.NewReclaimer(cfg.MaxThreads, hazardSlotsPerThread)}
	return t
}

// InitThread claims a registry slot for the calling goroutine and
// returns the tid it must pass to Search/Insert/Remove. It returns
// ErrThreadSlotsExhausted if every slot configured via
// Config.MaxThreads is already claimed.
func (t *Trie[V]) InitThread() (int, error) {
	tid := t.threads.Acquire()
	if tid < 0 {
		return 0, ErrThreadSlotsExhausted
	}
	return tid, nil
}

// EndThread releases tid back to the registry. The caller must not use
// tid again after calling this.
func (t *Trie[V]) EndThread(tid int) {
	t.threads.Release(tid)
}

// Search returns the value stored under hash, and whether it was
// found.
func (t *Trie[V]) Search(hash uint64, tid int) (V, bool) {
	res, _ := find(t, t.root, hash, tid)
	if res.found == nil {
		var zero V
		return zero, false
	}
	v := res.found.value
	t.reclaimer.Clear(tid, protectFound)
	return v, true
}

// Insert adds hash->value if hash is not already present. Insert is
// idempotent: if hash is already present, Insert reports success
// without altering the stored value (first writer wins). It returns
// ErrAllocFailed only if node allocation could not be completed; any
// other contention is resolved internally by restarting.
func (t *Trie[V]) Insert(hash uint64, value V, tid int) error {
	for {
		res, h := find(t, t.root, hash, tid)
		if res.found != nil {
			t.reclaimer.Clear(tid, protectFound)
			return nil
		}

		if res.count >= t.maxChain {
			if ok, err := expand(t, h, hash, res); err != nil {
				return err
			} else if !ok {
				t.retries.Add(1)
				continue
			}
			continue
		}

		if t.failAlloc() {
			return ErrAllocFailed
		}
		leaf := newLeafNode(hash, value, h)

		if res.tail.bucket != nil {
			if !reserveOccupancy(h) {
				t.retries.Add(1)
				continue
			}
			if !res.tail.casTo(res.tailObserved, leaf) {
				releaseOccupancy(t, h)
				t.retries.Add(1)
				continue
			}
			return nil
		}

		if !res.tail.casTo(res.tailObserved, leaf) {
			t.retries.Add(1)
			continue
		}
		return nil
	}
}

// Remove deletes hash's entry, if present. Removing an absent hash is
// a no-op.
func (t *Trie[V]) Remove(hash uint64, tid int) {
	res, h := find(t, t.root, hash, tid)
	if res.found == nil {
		return
	}
	leaf := res.found
	t.reclaimer.Clear(tid, protectFound)
	if markInvalid(leaf) {
		makeInvisible(t, leaf, h)
	}
}

// Destroy releases t's root and every node reachable from it. Go's
// collector reclaims the underlying memory once nothing else
// references it; there is no explicit free step to run. The Trie must
// not be used again after calling Destroy.
func (t *Trie[V]) Destroy() {
	t.root = nil
}

func (t *Trie[V]) failAlloc() bool {
	return t.allocFail != nil && t.allocFail()
}

// reclaimAdapter adapts the package-level *node[V] type this package
// works in terms of to reclaim.Reclaimer's unsafe.Pointer-based API,
// so find.go and friends can call Protect/Clear/Retire directly on a
// *node[V] without repeating the conversion at every call site.
type reclaimAdapter[V any] struct {
	r *reclaim.Reclaimer
}

func (a reclaimAdapter[V]) Protect(tid, slot int, p *node[V]) {
	a.r.Protect(tid, slot, unsafe.Pointer(p))
}

func (a reclaimAdapter[V]) Clear(tid, slot int) {
	a.r.Clear(tid, slot)
}

func (a reclaimAdapter[V]) Retire(p *node[V]) {
	a.r.Retire(unsafe.Pointer(p))
}
