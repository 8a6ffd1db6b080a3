// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package reclaim

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// retireScanThreshold bounds how long a retired pointer can sit unswept
// before Retire pays for a full hazard scan; it's a throughput/latency
// knob, not a correctness one.
const retireScanThreshold = 64

// Reclaimer implements a bounded hazard-pointer scheme: each of up to
// maxThreads participants publishes, per protect slot, the address of a
// node it is currently examining. Retire defers a node's last reference
// from being dropped until no participant's hazard slot still names it.
//
// Go's garbage collector already makes a node's memory safe to reuse by
// anyone once it is unreachable; what this type adds is FFP's specific
// guarantee that a traversal mid-scan of a node a concurrent remove has
// unlinked still sees a fully-formed node rather than one some other
// part of the trie has since overwritten the fields of. Since this
// package never recycles node allocations for reuse, Retire's job is
// only to hold a reference until it is provably safe to let it go, so
// the collector reclaims the node exactly once nothing is watching it.
type Reclaimer struct {
	slotsPerThread int
	hazard         [][]unsafe.Pointer

	mu      sync.Mutex
	retired []unsafe.Pointer
}

// NewReclaimer creates a reclaimer sized for maxThreads participants,
// each publishing up to slotsPerThread simultaneous hazard pointers.
func NewReclaimer(maxThreads, slotsPerThread int) *Reclaimer {
	hazard := make([][]unsafe.Pointer, maxThreads)
	for i := range hazard {
		hazard[i] = make([]unsafe.Pointer, slotsPerThread)
	}
	return &Reclaimer{slotsPerThread: slotsPerThread, hazard: hazard}
}

// Protect publishes p as tid's hazard pointer in the given slot,
// visible to any concurrent Retire's scan before this call returns.
func (r *Reclaimer) Protect(tid, slot int, p unsafe.Pointer) {
	atomic.StorePointer(&r.hazard[tid][slot], p)
}

// Clear withdraws tid's hazard pointer from slot.
func (r *Reclaimer) Clear(tid, slot int) {
	atomic.StorePointer(&r.hazard[tid][slot], nil)
}

// Retire marks p as logically removed from the trie. Once no
// participant's hazard slot names p, the reclaimer drops its own
// reference so the collector may reclaim it.
func (r *Reclaimer) Retire(p unsafe.Pointer) {
	r.mu.Lock()
	r.retired = append(r.retired, p)
	due := len(r.retired) >= retireScanThreshold
	r.mu.Unlock()
	if due {
		r.scan()
	}
}

func (r *Reclaimer) scan() {
	protected := make(map[unsafe.Pointer]struct{})
	for _, slots := range r.hazard {
		for i := range slots {
			if p := atomic.LoadPointer(&slots[i]); p != nil {
				protected[p] = struct{}{}
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	remaining := r.retired[:0]
	for _, p := range r.retired {
		if _, live := protected[p]; live {
			remaining = append(remaining, p)
		}
	}
	r.retired = remaining
}
