// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Command ffpbench drives concurrent insert/search/remove traffic
// against an ffp.Trie and reports throughput, in the style of
// cmd/gnmi's flag-driven main paired with a YAML config file
// (cmd/ocprometheus/config.go) and an errgroup-orchestrated worker
// pool (gnmireverse/client).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/aristanetworks/glog"
	"github.com/cenkalti/backoff/v4"
	"github.com/fastfeatures/ffp"
	"github.com/fastfeatures/ffp/ffpmetrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (see config.go for fields)")
	workers := flag.Int("workers", 0, "override config.Workers if non-zero")
	duration := flag.Duration("duration", 0, "override config.Duration if non-zero")
	metricsAddr := flag.String("metrics_addr", "", "override config.MetricsAddr if non-empty")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		glog.Fatalf("ffpbench: loading config: %v", err)
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *duration != 0 {
		cfg.Duration = *duration
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	trie := ffp.New[uint64](ffp.Config{
		RootFanoutBits: cfg.RootFanoutBits,
		FanoutBits:     cfg.FanoutBits,
		MaxChain:       cfg.MaxChain,
		MaxThreads:     cfg.Workers + 1,
	})

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, trie)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	go reportContention(ctx, trie, cfg.ContentionThreshold)

	var ops, inserts, removes, searches atomic.Uint64
	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		seed := uint64(w) + 1
		eg.Go(func() error {
			return runWorker(ctx, trie, cfg, seed, &ops, &inserts, &removes, &searches)
		})
	}

	start := time.Now()
	if err := eg.Wait(); err != nil {
		glog.Errorf("ffpbench: worker error: %v", err)
	}
	elapsed := time.Since(start)

	total := ops.Load()
	fmt.Printf("ran %d workers for %s: %d ops (%d insert, %d remove, %d search), %.0f ops/sec\n",
		cfg.Workers, elapsed, total, inserts.Load(), removes.Load(), searches.Load(),
		float64(total)/elapsed.Seconds())
	fmt.Printf("final shape: %+v\n", trie.Stats())
}

// runWorker claims a trie thread slot and drives random traffic against
// hash keys drawn uniformly from [0, cfg.Keyspace) until ctx is done.
func runWorker(ctx context.Context, trie *ffp.Trie[uint64], cfg config, seed uint64,
	ops, inserts, removes, searches *atomic.Uint64) error {

	tid, err := trie.InitThread()
	if err != nil {
		return fmt.Errorf("InitThread: %w", err)
	}
	defer trie.EndThread(tid)

	rng := rand.New(rand.NewSource(seed))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		hash := rng.Uint64() % cfg.Keyspace
		switch roll := rng.Float64(); {
		case roll < cfg.InsertRatio:
			if err := trie.Insert(hash, hash, tid); err != nil {
				return fmt.Errorf("Insert: %w", err)
			}
			inserts.Add(1)
		case roll < cfg.InsertRatio+cfg.RemoveRatio:
			trie.Remove(hash, tid)
			removes.Add(1)
		default:
			trie.Search(hash, tid)
			searches.Add(1)
		}
		ops.Add(1)
	}
}

// serveMetrics runs a Prometheus metrics endpoint for trie at addr
// until the process exits.
func serveMetrics(addr string, trie *ffp.Trie[uint64]) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(ffpmetrics.NewCollector("ffpbench", trie))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Errorf("ffpbench: metrics server exited: %v", err)
	}
}

// contentionSampleInterval is how often reportContention reads the
// trie's retry counter to compute a delta.
const contentionSampleInterval = 500 * time.Millisecond

// reportContention watches trie's CAS-retry counter and logs a
// contention sample whenever more than threshold retries land within
// one sampling interval, backing off exponentially between log lines
// while that stays true so sustained contention produces a shrinking
// trickle of warnings instead of a log storm, in the style of
// gnmireverse/client's backoff-wrapped retry loop.
func reportContention(ctx context.Context, trie *ffp.Trie[uint64], threshold int64) {
	bo := backoff.NewExponentialBackOff()
	ticker := time.NewTicker(contentionSampleInterval)
	defer ticker.Stop()

	var lastRetries int64
	var nextLogAt time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m := trie.Metrics()
			delta := m.Retries - lastRetries
			lastRetries = m.Retries

			if delta <= threshold {
				bo.Reset()
				continue
			}
			if now.Before(nextLogAt) {
				continue
			}
			glog.Warningf("ffpbench: contention sample: %d CAS retries in %s (expansions=%d compressions=%d)",
				delta, contentionSampleInterval, m.Expansions, m.Compressions)
			nextLogAt = now.Add(bo.NextBackOff())
		}
	}
}
