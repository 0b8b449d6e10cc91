package storage

import (
	"time"
)

type ExpiryStatus int

const (
	// ExpNotFound means that the key does not exist
	ExpNotFound ExpiryStatus = -2
	// ExpNoTimeout means that the key exists, but it does not have a TTL
	ExpNoTimeout ExpiryStatus = -1
	// ExpActive means that the key has an active lifetime
	ExpActive ExpiryStatus = 1
)

type SetOptions struct {
	TTL     time.Duration // key lifetime
	KeepTTL bool          // if true, retain the existing TTL (ignore TTL field)
	NX      bool          // only set if the key does not exist
	XX      bool          // only set if the key already exists
}

// Storage is a common interface for working with key-value storages.
// Every method is atomic. Absent, expired and wrong-typed keys are reported
// through the boolean or zero results, never as errors
type Storage interface {
	// Set writes a string value based on the options, replacing an entry of any type.
	// Returns true if recording has been performed
	Set(key, value string, options SetOptions) bool

	// Get returns the value and true if a string is stored at key. Otherwise, "", false
	Get(key string) (string, bool)

	// Keys returns every live key in unspecified order
	Keys() []string

	// Len returns the number of live keys
	Len() int

	// Type returns the kind of value stored at key, TypeNone if there is none
	Type(key string) DataType

	// Delete deletes the key. Returns true if the key existed and was deleted
	Delete(key string) bool

	// Expire sets the key lifetime. A non-positive ttl expires the key on next access.
	// Returns false if the key does not exist
	Expire(key string, ttl time.Duration) bool

	// Expiry returns the remaining lifetime and status as ExpiryStatus
	Expiry(key string) (time.Duration, ExpiryStatus)

	// Persist removes the expiration date of the key, making it eternal.
	// Returns true if a TTL was removed
	Persist(key string) bool

	// Rename moves the value and TTL of oldKey to newKey, overwriting newKey.
	// Returns false if oldKey does not exist
	Rename(oldKey, newKey string) bool

	// FlushAll removes every key
	FlushAll()

	// LPush inserts values at the head of the list, one after another.
	// Returns the new length, or false if key holds another type
	LPush(key string, values ...string) (int, bool)

	// RPush appends values to the tail of the list
	RPush(key string, values ...string) (int, bool)

	// LPop removes and returns the first element
	LPop(key string) (string, bool)

	// RPop removes and returns the last element
	RPop(key string) (string, bool)

	// LLen returns the length of the list, 0 if absent
	LLen(key string) int

	// LRem removes up to |count| occurrences of value, all of them when count is 0.
	// A negative count scans from the tail. Returns the number removed
	LRem(key string, count int, value string) int

	// LIndex returns the element at index, negative indices count from the tail
	LIndex(key string, index int) (string, bool)

	// LSet replaces the element at index. Returns false if the index is out of range
	LSet(key string, index int, value string) bool

	// LRange returns the elements between start and stop inclusive, negative offsets count from the tail
	LRange(key string, start, stop int) []string

	// HSet sets field in the hash stored at key. Returns false if key holds another type
	HSet(key, field, value string) bool

	// HGet returns the value associated with field in the hash stored at key
	HGet(key, field string) (string, bool)

	// HExists returns if field is an existing field in the hash stored at key
	HExists(key, field string) bool

	// HDel removes field from the hash stored at key
	HDel(key, field string) bool

	// HGetAll returns all fields and values of the hash stored at key
	HGetAll(key string) map[string]string

	// HKeys returns all field names in the hash stored at key
	HKeys(key string) []string

	// HVals returns all values in the hash stored at key
	HVals(key string) []string

	// HLen returns the number of fields contained in the hash stored at key
	HLen(key string) int

	// HMSet sets every pair in order. Returns false if key holds another type
	HMSet(key string, pairs []FieldValue) bool

	// DeleteExpired randomly selects a limit of keys and deletes them if their TTL has expired.
	// Returns the ratio of expired keys among the checked ones
	DeleteExpired(limit int) float64

	// Export returns a consistent copy of every live key
	Export() []Record

	// Import replaces the whole content of the storage with records
	Import(records []Record)
}

var (
	_ Storage = (*MapStorage)(nil)
	_ Storage = (*ShardedMapStorage)(nil)
)
