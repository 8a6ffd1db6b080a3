// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// config is the representation of ffpbench's YAML config file, in the
// style of cmd/ocprometheus's Config: plain exported fields, loaded
// once at startup and then read-only.
type config struct {
	// Workers is the number of concurrent goroutines driving traffic
	// against the trie, each with its own registry slot.
	Workers int `yaml:"workers"`
	// Duration bounds how long the benchmark runs before reporting
	// final numbers and exiting.
	Duration time.Duration `yaml:"duration"`
	// Keyspace bounds the range of hash values workers draw from;
	// a small keyspace exercises collision chains and expansion
	// harder than a large one.
	Keyspace uint64 `yaml:"keyspace"`
	// InsertRatio and RemoveRatio partition each worker's operations;
	// the remainder are searches.
	InsertRatio float64 `yaml:"insert_ratio"`
	RemoveRatio float64 `yaml:"remove_ratio"`

	// RootFanoutBits and FanoutBits size the trie per ffp.Config.
	RootFanoutBits uint `yaml:"root_fanout_bits"`
	FanoutBits     uint `yaml:"fanout_bits"`
	MaxChain       int  `yaml:"max_chain"`

	// MetricsAddr, if non-empty, serves Prometheus metrics over HTTP
	// at this address for the duration of the run.
	MetricsAddr string `yaml:"metrics_addr"`

	// ContentionThreshold is the number of CAS retries per sampling
	// interval that triggers a contention-sample log line. Once
	// triggered, further samples back off exponentially so sustained
	// contention produces a shrinking trickle of log lines rather than
	// one per interval.
	ContentionThreshold int64 `yaml:"contention_threshold"`
}

func defaultConfig() config {
	return config{
		Workers:        8,
		Duration:       30 * time.Second,
		Keyspace:       1 << 20,
		InsertRatio:    0.3,
		RemoveRatio:    0.1,
		RootFanoutBits:      8,
		FanoutBits:          4,
		MaxChain:            8,
		ContentionThreshold: 1000,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}
