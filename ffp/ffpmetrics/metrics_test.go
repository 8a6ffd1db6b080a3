// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ffpmetrics

import (
	"testing"

	"github.com/fastfeatures/ffp"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// collectedMetrics is everything one Collect call produced, keyed by
// the metric's Desc string so a test can look up a specific series
// without caring about channel ordering.
func collectedMetrics(t *testing.T, c *Collector) map[string]*dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 8)
	go func() {
		c.Collect(ch)
		close(ch)
	}()

	got := map[string]*dto.Metric{}
	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got[m.Desc().String()] = d
	}
	return got
}

func descStrings(descs ...*prometheus.Desc) map[string]bool {
	out := make(map[string]bool, len(descs))
	for _, d := range descs {
		out[d.String()] = true
	}
	return out
}

func TestCollectorReportsLiveShape(t *testing.T) {
	tr := ffp.New[int](ffp.Config{
		RootFanoutBits: 2,
		FanoutBits:     2,
		MaxChain:       2,
		MaxThreads:     4,
	})
	tid, err := tr.InitThread()
	if err != nil {
		t.Fatal(err)
	}
	defer tr.EndThread(tid)

	for i := 0; i < 50; i++ {
		h := uint64(i) * 0x9E3779B97F4A7C15
		if err := tr.Insert(h, i, tid); err != nil {
			t.Fatal(err)
		}
	}

	c := NewCollector("test", tr)
	got := collectedMetrics(t, c)
	if len(got) != 7 {
		t.Fatalf("expected 7 metrics (3 gauge, 3 counter, 1 histogram), got %d", len(got))
	}

	for desc := range descStrings(c.hashNodes, c.leaves, c.maxDepth) {
		m, ok := got[desc]
		if !ok {
			t.Errorf("missing gauge %s", desc)
			continue
		}
		if m.GetGauge().GetValue() < 0 {
			t.Errorf("gauge %s = %v, want >= 0", desc, m.GetGauge().GetValue())
		}
	}
	for desc := range descStrings(c.expansions, c.compressions, c.retries) {
		m, ok := got[desc]
		if !ok {
			t.Errorf("missing counter %s", desc)
			continue
		}
		if m.GetCounter().GetValue() < 0 {
			t.Errorf("counter %s = %v, want >= 0", desc, m.GetCounter().GetValue())
		}
	}

	// 50 inserts into a MaxChain=2 trie must have triggered at least one
	// expansion, and every insert's traversal samples a chain length.
	hist := got[c.chainLength.String()]
	if hist == nil || hist.GetHistogram() == nil {
		t.Fatal("missing chain-length histogram")
	}
	if hist.GetHistogram().GetSampleCount() == 0 {
		t.Error("chain-length histogram has zero samples after 50 inserts")
	}
	expansions := got[c.expansions.String()].GetCounter().GetValue()
	if expansions == 0 {
		t.Error("expected at least one expansion with MaxChain=2 and 50 inserts")
	}
}

func TestCollectorDescribe(t *testing.T) {
	tr := ffp.New[int](ffp.DefaultConfig())
	c := NewCollector("test", tr)
	ch := make(chan *prometheus.Desc, 8)
	c.Describe(ch)
	close(ch)
	var n int
	for range ch {
		n++
	}
	if n != 7 {
		t.Errorf("Describe sent %d descs, want 7", n)
	}
}
