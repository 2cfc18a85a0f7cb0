// Package sharded provides a string set split into independently locked
// shards, for keys written from many goroutines at once.
package sharded

import (
	"hash/fnv"
	"sync"
)

type setShard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// Set is a concurrent string set.
type Set []*setShard

// NewSet creates a set with numShards shards. numShards must be a power of 2.
func NewSet(numShards int) *Set {
	if numShards <= 0 || numShards&(numShards-1) != 0 {
		panic("num shards must be a power of 2")
	}
	s := make(Set, numShards)
	for i := range numShards {
		s[i] = &setShard{items: make(map[string]struct{})}
	}
	return &s
}

// getShard uses FNV-1a and a bitwise AND for the power-of-2 modulus.
func (s *Set) getShard(key string) *setShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return (*s)[int(h.Sum32()&uint32(len(*s)-1))]
}

// Store adds key.
func (s *Set) Store(key string) {
	shard := s.getShard(key)
	shard.mu.Lock()
	shard.items[key] = struct{}{}
	shard.mu.Unlock()
}

// Has checks only for the presence of a key.
func (s *Set) Has(key string) bool {
	shard := s.getShard(key)
	shard.mu.RLock()
	_, exists := shard.items[key]
	shard.mu.RUnlock()
	return exists
}

// Delete removes key.
func (s *Set) Delete(key string) {
	shard := s.getShard(key)
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
}

// Count returns the number of keys across all shards.
func (s *Set) Count() int {
	n := 0
	for _, shard := range *s {
		shard.mu.RLock()
		n += len(shard.items)
		shard.mu.RUnlock()
	}
	return n
}
