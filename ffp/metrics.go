// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ffp

// chainHistBuckets bounds the fixed-size chain-length histogram: counts
// are kept for lengths 0..chainHistBuckets-2, with the last bucket
// catching every chain at or beyond that length. A fixed array (rather
// than one bucket per possible MaxChain) keeps Metrics a plain value
// type regardless of a given Trie's configuration.
const chainHistBuckets = 9

// Metrics is a snapshot of the counters the core package maintains on
// its own restart, expansion, and compression paths. ffpmetrics.Collector
// reads this alongside Stats to report live contention and structure.
type Metrics struct {
	// Expansions counts buckets successfully converted from a saturated
	// chain into a child hash node.
	Expansions int64
	// Compressions counts hash nodes successfully unlinked back into an
	// empty parent bucket.
	Compressions int64
	// Retries counts CAS-failure restarts: find's own mid-chain
	// restarts plus Insert's restarts after a lost expansion, a refused
	// occupancy reservation, or a failed tail CAS. Genuine tree descents
	// into an already-expanded bucket are not counted here, only
	// contention.
	Retries int64
	// ChainLengths[i] counts traversals whose collision chain length was
	// exactly i, for i < chainHistBuckets-1; ChainLengths[last] counts
	// every chain at or beyond that length.
	ChainLengths [chainHistBuckets]int64
}

// Metrics returns a snapshot of t's restart/expansion/compression
// counters and its chain-length histogram.
func (t *Trie[V]) Metrics() Metrics {
	m := Metrics{
		Expansions:   t.expansions.Load(),
		Compressions: t.compressions.Load(),
		Retries:      t.retries.Load(),
	}
	for i := range t.chainHist {
		m.ChainLengths[i] = t.chainHist[i].Load()
	}
	return m
}

// sampleChainLength records one traversal's observed collision chain
// length into t's histogram, called by find on every completed scan.
func (t *Trie[V]) sampleChainLength(count int) {
	if count >= chainHistBuckets {
		count = chainHistBuckets - 1
	}
	t.chainHist[count].Add(1)
}
