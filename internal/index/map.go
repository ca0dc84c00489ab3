// Package index provides a concurrent sharded multimap: a key may be
// associated with many values, and the keyspace is partitioned into
// independently locked shards so unrelated keys never contend.
package index

import (
	"hash/fnv"
	"sync"
)

// Map associates keys with sets of values. It is partitioned into a fixed
// number of shards selected by hashing the key; each shard holds its pairs
// in insertion order under its own read/write lock. There is no removal.
type Map[K comparable, V comparable] struct {
	shards []shard[K, V]
	hash   func(K) uint64
}

type shard[K comparable, V comparable] struct {
	mu    sync.RWMutex
	pairs []pair[K, V]
}

type pair[K comparable, V comparable] struct {
	key   K
	value V
}

// New creates a Map with shardCount shards. The hash function must be pure:
// equal keys must always hash to the same value.
func New[K comparable, V comparable](shardCount int, hash func(K) uint64) *Map[K, V] {
	if shardCount <= 0 {
		shardCount = 1
	}
	return &Map[K, V]{
		shards: make([]shard[K, V], shardCount),
		hash:   hash,
	}
}

// StringHash is an fnv-1a hash suitable as the hash function for string keys.
func StringHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[m.hash(key)%uint64(len(m.shards))]
}

// Insert associates value with key. Inserting a (key, value) pair that is
// already present is a no-op, so repeated indexing of the same word in the
// same document is harmless. Exactly one shard is locked.
func (m *Map[K, V]) Insert(key K, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pairs {
		if p.key == key && p.value == value {
			return
		}
	}
	s.pairs = append(s.pairs, pair[K, V]{key: key, value: value})
}

// Lookup returns a snapshot copy of all values associated with key, in
// shard-insertion order. The returned slice is owned by the caller. A key
// with no values yields nil.
func (m *Map[K, V]) Lookup(key K) []V {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var values []V
	for _, p := range s.pairs {
		if p.key == key {
			values = append(values, p.value)
		}
	}
	return values
}

// ShardCount returns the number of shards fixed at construction.
func (m *Map[K, V]) ShardCount() int {
	return len(m.shards)
}
