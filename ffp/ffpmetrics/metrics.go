// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package ffpmetrics adapts an ffp.Trie's shape to a
// prometheus.Collector, in the style of cmd/ocprometheus's collector:
// a small type implementing Describe/Collect over live structure state
// rather than a cache that has to be kept in sync separately.
package ffpmetrics

import (
	"github.com/fastfeatures/ffp"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsProvider is satisfied by *ffp.Trie[V] for any V: neither Stats
// nor Metrics has type parameters of its own, so a Collector built
// around this interface works for a trie of any value type without
// itself being generic.
type StatsProvider interface {
	Stats() ffp.Stats
	Metrics() ffp.Metrics
}

// chainHistBounds are the upper bounds (exclusive of the last, +Inf,
// bucket) ffp.Metrics.ChainLengths' fixed array corresponds to: index i
// counts chains of length exactly i, for i up to len(chainHistBounds);
// the last slot is every chain at or beyond that.
var chainHistBounds = []float64{0, 1, 2, 3, 4, 5, 6, 7}

// Collector exposes a Trie's hash node count, leaf count, max depth,
// expansion/compression/retry counters, and a chain-length histogram
// as Prometheus metrics, labeled by name so a process embedding more
// than one trie can tell them apart.
type Collector struct {
	name string
	trie StatsProvider

	hashNodes    *prometheus.Desc
	leaves       *prometheus.Desc
	maxDepth     *prometheus.Desc
	expansions   *prometheus.Desc
	compressions *prometheus.Desc
	retries      *prometheus.Desc
	chainLength  *prometheus.Desc
}

// NewCollector returns a Collector for trie, labeling every metric it
// emits with name.
func NewCollector(name string, trie StatsProvider) *Collector {
	constLabels := prometheus.Labels{"trie": name}
	return &Collector{
		name: name,
		trie: trie,
		hashNodes: prometheus.NewDesc(
			"ffp_hash_nodes", "Number of hash nodes reachable from the root.",
			nil, constLabels),
		leaves: prometheus.NewDesc(
			"ffp_leaves", "Number of key/value entries stored.",
			nil, constLabels),
		maxDepth: prometheus.NewDesc(
			"ffp_max_depth", "Deepest hash node level below the root.",
			nil, constLabels),
		expansions: prometheus.NewDesc(
			"ffp_expansions_total", "Buckets converted from a saturated chain into a child hash node.",
			nil, constLabels),
		compressions: prometheus.NewDesc(
			"ffp_compressions_total", "Hash nodes unlinked back into an empty parent bucket.",
			nil, constLabels),
		retries: prometheus.NewDesc(
			"ffp_retries_total", "CAS-failure restarts observed during traversal and insertion.",
			nil, constLabels),
		chainLength: prometheus.NewDesc(
			"ffp_chain_length", "Collision chain length sampled at the end of each traversal.",
			nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hashNodes
	ch <- c.leaves
	ch <- c.maxDepth
	ch <- c.expansions
	ch <- c.compressions
	ch <- c.retries
	ch <- c.chainLength
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.trie.Stats()
	ch <- prometheus.MustNewConstMetric(c.hashNodes, prometheus.GaugeValue, float64(s.HashNodes))
	ch <- prometheus.MustNewConstMetric(c.leaves, prometheus.GaugeValue, float64(s.Leaves))
	ch <- prometheus.MustNewConstMetric(c.maxDepth, prometheus.GaugeValue, float64(s.MaxDepth))

	m := c.trie.Metrics()
	ch <- prometheus.MustNewConstMetric(c.expansions, prometheus.CounterValue, float64(m.Expansions))
	ch <- prometheus.MustNewConstMetric(c.compressions, prometheus.CounterValue, float64(m.Compressions))
	ch <- prometheus.MustNewConstMetric(c.retries, prometheus.CounterValue, float64(m.Retries))

	buckets := make(map[float64]uint64, len(chainHistBounds))
	var cumulative uint64
	var sum float64
	for i, bound := range chainHistBounds {
		cumulative += uint64(m.ChainLengths[i])
		buckets[bound] = cumulative
		sum += float64(i) * float64(m.ChainLengths[i])
	}
	var count uint64
	for _, n := range m.ChainLengths {
		count += uint64(n)
	}
	overflow := len(chainHistBounds)
	sum += float64(overflow) * float64(m.ChainLengths[overflow])
	ch <- prometheus.MustNewConstHistogram(c.chainLength, count, sum, buckets)
}
