package storage

import (
	"sync"
	"time"
)

// MapStorage is a thread-safe key-value storage guarded by a single lock.
// Every key maps to exactly one Entity, so a key never holds two kinds of value
type MapStorage struct {
	data    map[string]*Entity   // key - value
	expires map[string]time.Time // key - deadline, carries the monotonic clock reading
	mu      sync.Mutex
	now     func() time.Time
}

// NewMapStorage creates a new instance of MapStorage.
func NewMapStorage() *MapStorage {
	return &MapStorage{
		data:    make(map[string]*Entity),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// expired reports whether key has a deadline that is not after now. Caller holds m.mu
func (m *MapStorage) expired(key string, now time.Time) bool {
	exp, hasExp := m.expires[key]
	return hasExp && !now.Before(exp)
}

// entry returns the live entity at key, purging it first if it has expired. Caller holds m.mu
func (m *MapStorage) entry(key string) *Entity {
	if m.expired(key, m.now()) {
		m.remove(key)
		return nil
	}
	return m.data[key]
}

// remove drops key from both maps. Caller holds m.mu
func (m *MapStorage) remove(key string) {
	delete(m.data, key)
	delete(m.expires, key)
}

// purgeExpired drops every expired key. Caller holds m.mu
func (m *MapStorage) purgeExpired() {
	now := m.now()
	for key := range m.expires {
		if m.expired(key, now) {
			m.remove(key)
		}
	}
}

// Get returns the value and true if a string is stored at key. Otherwise, "", false
func (m *MapStorage) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if e == nil || e.Type != TypeString {
		return "", false
	}
	return e.str(), true
}

// Set writes the value based on the options. Returns true if recording has been performed
func (m *MapStorage) Set(key, value string, options SetOptions) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	exists := m.entry(key) != nil

	if options.NX && exists {
		return false
	}

	if options.XX && !exists {
		return false
	}

	m.data[key] = NewStringEntity(value)

	if options.KeepTTL {
		// if KEEPTTL is set, we do nothing to m.expires (retain existing)
		// a freshly created key has no entry there anyway
		return true
	}

	if options.TTL == 0 {
		// no TTL provided (and not KEEPTTL), so we remove any existing expiration (persist)
		delete(m.expires, key)
	} else {
		m.expires[key] = m.now().Add(options.TTL)
	}

	return true
}

// Keys returns every live key
func (m *MapStorage) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeExpired()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of live keys
func (m *MapStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeExpired()
	return len(m.data)
}

// Type returns the kind of value stored at key
func (m *MapStorage) Type(key string) DataType {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.entry(key); e != nil {
		return e.Type
	}
	return TypeNone
}

// Delete deletes the key. Returns true if the key existed and was deleted
func (m *MapStorage) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entry(key) == nil {
		return false
	}
	m.remove(key)
	return true
}

// Expire sets a deadline of now+ttl on an existing key
func (m *MapStorage) Expire(key string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entry(key) == nil {
		return false
	}
	m.expires[key] = m.now().Add(ttl)
	return true
}

// Expiry returns the remaining lifetime and status as expiryStatus
func (m *MapStorage) Expiry(key string) (time.Duration, ExpiryStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// key does not exist
	if m.entry(key) == nil {
		return 0, ExpNotFound
	}

	exp, hasExp := m.expires[key]
	// key without TTL
	if !hasExp {
		return 0, ExpNoTimeout
	}

	return exp.Sub(m.now()), ExpActive
}

// Persist removes the expiration date of the key, making it eternal.
// Returns true if the key had a TTL
func (m *MapStorage) Persist(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entry(key) == nil {
		return false
	}
	if _, hasExp := m.expires[key]; !hasExp {
		return false
	}

	delete(m.expires, key)
	return true
}

// Rename moves the entity and its deadline from oldKey to newKey
func (m *MapStorage) Rename(oldKey, newKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(oldKey)
	if e == nil {
		return false
	}
	if oldKey == newKey {
		return true
	}

	exp, hasExp := m.expires[oldKey]
	m.remove(oldKey)
	m.remove(newKey)

	m.data[newKey] = e
	if hasExp {
		m.expires[newKey] = exp
	}
	return true
}

// FlushAll removes every key
func (m *MapStorage) FlushAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
}

// reset replaces both maps. Caller holds m.mu
func (m *MapStorage) reset() {
	m.data = make(map[string]*Entity)
	m.expires = make(map[string]time.Time)
}

// take removes key and hands its entity and deadline to the caller
func (m *MapStorage) take(key string) (*Entity, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if e == nil {
		return nil, time.Time{}, false
	}

	exp := m.expires[key]
	m.remove(key)
	return e, exp, true
}

// put stores e at key, replacing any previous entity. A zero deadline means no TTL
func (m *MapStorage) put(key string, e *Entity, exp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(key)
	m.data[key] = e
	if !exp.IsZero() {
		m.expires[key] = exp
	}
}

// DeleteExpired randomly selects a limit of keys and delete if his TTL has expired
func (m *MapStorage) DeleteExpired(limit int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.expires) == 0 || limit <= 0 {
		return 0.0
	}

	checked := 0
	expired := 0
	now := m.now()

	// go map iteration is randomized by design
	for key := range m.expires {
		checked++
		if m.expired(key, now) {
			m.remove(key)
			expired++
		}

		if checked >= limit {
			break
		}
	}

	return float64(expired) / float64(checked)
}

// Export returns a deep copy of every live key
func (m *MapStorage) Export() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeExpired()

	records := make([]Record, 0, len(m.data))
	for key, e := range m.data {
		records = append(records, Record{
			Key:      key,
			Entity:   e.clone(),
			ExpireAt: m.expires[key],
		})
	}
	return records
}

// Import drops the current content and loads records
func (m *MapStorage) Import(records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	for _, r := range records {
		e := r.Entity.clone()
		m.data[r.Key] = &e
		if !r.ExpireAt.IsZero() {
			m.expires[r.Key] = r.ExpireAt
		}
	}
}
