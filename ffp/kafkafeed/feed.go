// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package kafkafeed replays a trie's Insert/Remove mutations from a
// Kafka topic, so multiple processes can each maintain their own copy
// of the same logical trie driven off one ordered event log. It
// mirrors kafka/producer.Producer's Start/Stop lifecycle, but for the
// consuming side, and kafka/client.go's plain sarama.Config
// construction.
package kafkafeed

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/aristanetworks/glog"
	"github.com/fastfeatures/ffp"
)

// Op identifies the mutation a message's key requests.
type Op byte

const (
	// OpInsert requests Trie.Insert with the message value decoded
	// via the Feed's Decoder.
	OpInsert Op = iota
	// OpRemove requests Trie.Remove; the message value is ignored.
	OpRemove
)

// keyLen is 1 op byte + 8 hash bytes.
const keyLen = 9

// EncodeKey builds the message key Feed expects: op in the first byte,
// hash big-endian in the next eight. Producers writing to the topic a
// Feed consumes should use this to stay in sync with Feed.apply.
func EncodeKey(op Op, hash uint64) []byte {
	key := make([]byte, keyLen)
	key[0] = byte(op)
	binary.BigEndian.PutUint64(key[1:], hash)
	return key
}

// Decoder turns a Kafka message's value into the payload an OpInsert
// mutation stores.
type Decoder[V any] func([]byte) (V, error)

// Feed consumes every partition of a Kafka topic and replays each
// decoded mutation against a Trie.
type Feed[V any] struct {
	trie   *ffp.Trie[V]
	tid    int
	decode Decoder[V]

	consumer            sarama.Consumer
	partitionConsumers  []sarama.PartitionConsumer
	done                chan struct{}
	wg                  sync.WaitGroup
}

// New creates a Feed that will consume topic from addresses and apply
// mutations to trie under tid, which the caller must already have
// claimed via trie.InitThread and must not use concurrently for
// anything else while the Feed is running.
func New[V any](addresses []string, topic string, trie *ffp.Trie[V], tid int,
	decode Decoder[V]) (*Feed[V], error) {

	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(addresses, config)
	if err != nil {
		return nil, fmt.Errorf("kafkafeed: creating consumer: %w", err)
	}

	partitions, err := consumer.Partitions(topic)
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("kafkafeed: listing partitions for %q: %w", topic, err)
	}

	f := &Feed[V]{
		trie:   trie,
		tid:    tid,
		decode: decode,
		consumer: consumer,
		done:     make(chan struct{}),
	}
	for _, p := range partitions {
		pc, err := consumer.ConsumePartition(topic, p, sarama.OffsetOldest)
		if err != nil {
			f.Stop()
			return nil, fmt.Errorf("kafkafeed: consuming partition %d of %q: %w", p, topic, err)
		}
		f.partitionConsumers = append(f.partitionConsumers, pc)
	}
	return f, nil
}

// Start begins replaying messages in the background. Non-blocking.
func (f *Feed[V]) Start() {
	for _, pc := range f.partitionConsumers {
		f.wg.Add(1)
		go f.run(pc)
	}
}

func (f *Feed[V]) run(pc sarama.PartitionConsumer) {
	defer f.wg.Done()
	for {
		select {
		case msg, open := <-pc.Messages():
			if !open {
				return
			}
			if err := f.apply(msg); err != nil {
				glog.Errorf("kafkafeed: dropping message at offset %d: %v", msg.Offset, err)
			}
		case err, open := <-pc.Errors():
			if !open {
				return
			}
			glog.Errorf("kafkafeed: partition consumer error: %v", err)
		case <-f.done:
			return
		}
	}
}

func (f *Feed[V]) apply(msg *sarama.ConsumerMessage) error {
	if len(msg.Key) != keyLen {
		return fmt.Errorf("malformed key: %d bytes, want %d", len(msg.Key), keyLen)
	}
	hash := binary.BigEndian.Uint64(msg.Key[1:])
	switch Op(msg.Key[0]) {
	case OpRemove:
		f.trie.Remove(hash, f.tid)
		return nil
	case OpInsert:
		v, err := f.decode(msg.Value)
		if err != nil {
			return fmt.Errorf("decoding value: %w", err)
		}
		return f.trie.Insert(hash, v, f.tid)
	default:
		return fmt.Errorf("unknown op %d", msg.Key[0])
	}
}

// Stop halts consumption and releases the underlying Kafka consumer.
// It does not release trie's tid; the caller still owns that.
func (f *Feed[V]) Stop() {
	close(f.done)
	f.wg.Wait()
	for _, pc := range f.partitionConsumers {
		pc.Close()
	}
	f.consumer.Close()
}
