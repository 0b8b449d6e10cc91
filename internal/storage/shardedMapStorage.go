package storage

import (
	"errors"
	"math/bits"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// ShardedMapStorage is a thread-safe key-value storage,
// divided into segments (shards) to reduce contention for locking.
//
// Single-key operations hold mu for reading plus the lock of their shard.
// Operations spanning keys (Rename, Keys, Len, FlushAll, Export, Import) hold mu for writing,
// which excludes every other operation and keeps them atomic to observers.
type ShardedMapStorage struct {
	mu        sync.RWMutex
	shards    []*MapStorage
	shardMask uint32
}

// NewShardedMapStorage creates a new instance of ShardedMapStorage.
// The requestedShards parameter must be a power of two for efficient allocation.
// The maximum allowed number of shards is 64.
func NewShardedMapStorage(requestedShards uint) (*ShardedMapStorage, error) {
	if bits.OnesCount(requestedShards) != 1 {
		return nil, errors.New("requested shards must be a power of 2")
	}

	if requestedShards > 64 {
		return nil, errors.New("requested shards must be less or equal than 64")
	}

	s := &ShardedMapStorage{
		shards:    make([]*MapStorage, requestedShards),
		shardMask: uint32(requestedShards - 1),
	}

	var i uint
	for i = 0; i < requestedShards; i++ {
		s.shards[i] = NewMapStorage()
	}

	return s, nil
}

// getShardIndex returns index of shard by key
func (s *ShardedMapStorage) getShardIndex(key string) uint32 {
	return murmur3.Sum32([]byte(key)) & s.shardMask
}

// shard returns the shard owning key
func (s *ShardedMapStorage) shard(key string) *MapStorage {
	return s.shards[s.getShardIndex(key)]
}

// Get returns the value and true if the key is found. Otherwise, "", false.
func (s *ShardedMapStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).Get(key)
}

// Set writes the value based on the options. Returns true if recording has been performed.
func (s *ShardedMapStorage) Set(key, value string, options SetOptions) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).Set(key, value, options)
}

// Type returns the kind of value stored at key
func (s *ShardedMapStorage) Type(key string) DataType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).Type(key)
}

// Delete deletes the key. Returns true if the key existed and was deleted.
func (s *ShardedMapStorage) Delete(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).Delete(key)
}

// Expire sets the key lifetime
func (s *ShardedMapStorage) Expire(key string, ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).Expire(key, ttl)
}

// Expiry returns the remaining lifetime and status as ExpiryStatus
func (s *ShardedMapStorage) Expiry(key string) (time.Duration, ExpiryStatus) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).Expiry(key)
}

// Persist removes the expiration date of the key, making it eternal.
func (s *ShardedMapStorage) Persist(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).Persist(key)
}

// Rename moves oldKey to newKey, possibly across shards
func (s *ShardedMapStorage) Rename(oldKey, newKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exp, ok := s.shard(oldKey).take(oldKey)
	if !ok {
		return false
	}
	s.shard(newKey).put(newKey, e, exp)
	return true
}

// Keys collects the live keys of every shard
func (s *ShardedMapStorage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for _, shard := range s.shards {
		keys = append(keys, shard.Keys()...)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys
}

// Len returns the number of live keys across shards
func (s *ShardedMapStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, shard := range s.shards {
		total += shard.Len()
	}
	return total
}

// FlushAll empties every shard
func (s *ShardedMapStorage) FlushAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, shard := range s.shards {
		shard.FlushAll()
	}
}

// DeleteExpired randomly selects a limit of keys from each shard and delete if his TTL has expired
func (s *ShardedMapStorage) DeleteExpired(limit int) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wg sync.WaitGroup
	var totalRatio float64
	var mu sync.Mutex // protects totalRatio

	shardCount := len(s.shards)
	wg.Add(shardCount)

	for _, shard := range s.shards {
		go func(m *MapStorage) {
			ratio := m.DeleteExpired(limit)

			mu.Lock()
			totalRatio += ratio
			mu.Unlock()

			wg.Done()
		}(shard)
	}

	wg.Wait()

	return totalRatio / float64(shardCount)
}

// Export takes a copy of all shards at the same point in time
func (s *ShardedMapStorage) Export() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []Record
	for _, shard := range s.shards {
		records = append(records, shard.Export()...)
	}
	return records
}

// Import resets every shard and distributes records by key
func (s *ShardedMapStorage) Import(records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buckets := make([][]Record, len(s.shards))
	for _, r := range records {
		idx := s.getShardIndex(r.Key)
		buckets[idx] = append(buckets[idx], r)
	}

	for i, shard := range s.shards {
		shard.Import(buckets[i])
	}
}

// LPush inserts values at the head of the list stored at key
func (s *ShardedMapStorage) LPush(key string, values ...string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).LPush(key, values...)
}

// RPush appends values to the list stored at key
func (s *ShardedMapStorage) RPush(key string, values ...string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).RPush(key, values...)
}

// LPop removes and returns the first element of the list stored at key
func (s *ShardedMapStorage) LPop(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).LPop(key)
}

// RPop removes and returns the last element of the list stored at key
func (s *ShardedMapStorage) RPop(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).RPop(key)
}

// LLen returns the length of the list stored at key
func (s *ShardedMapStorage) LLen(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).LLen(key)
}

// LRem removes occurrences of value from the list stored at key
func (s *ShardedMapStorage) LRem(key string, count int, value string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).LRem(key, count, value)
}

// LIndex returns the element at index in the list stored at key
func (s *ShardedMapStorage) LIndex(key string, index int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).LIndex(key, index)
}

// LSet replaces the element at index in the list stored at key
func (s *ShardedMapStorage) LSet(key string, index int, value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).LSet(key, index, value)
}

// LRange returns a slice of the list stored at key
func (s *ShardedMapStorage) LRange(key string, start, stop int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).LRange(key, start, stop)
}

// HSet sets field in the hash stored at key
func (s *ShardedMapStorage) HSet(key, field, value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).HSet(key, field, value)
}

// HMSet sets every pair in the hash stored at key
func (s *ShardedMapStorage) HMSet(key string, pairs []FieldValue) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).HMSet(key, pairs)
}

// HGet returns the value associated with field in the hash stored at key
func (s *ShardedMapStorage) HGet(key, field string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).HGet(key, field)
}

// HGetAll returns all fields and values of the hash stored at key
func (s *ShardedMapStorage) HGetAll(key string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).HGetAll(key)
}

// HDel calculate index shard and delegates all the logic of the work to the MapStorage
func (s *ShardedMapStorage) HDel(key, field string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).HDel(key, field)
}

// HExists returns if field is an existing field in the hash stored at key
func (s *ShardedMapStorage) HExists(key, field string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).HExists(key, field)
}

// HLen returns the number of fields contained in the hash stored at key
func (s *ShardedMapStorage) HLen(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).HLen(key)
}

// HKeys returns all field names in the hash stored at key
func (s *ShardedMapStorage) HKeys(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).HKeys(key)
}

// HVals returns all values in the hash stored at key
func (s *ShardedMapStorage) HVals(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shard(key).HVals(key)
}
