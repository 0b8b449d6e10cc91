package storage

// hashAt returns the hash stored at key. ok is false when key holds another type. Caller holds m.mu
func (m *MapStorage) hashAt(key string) (hash map[string]string, ok bool) {
	e := m.entry(key)
	if e == nil {
		return nil, true
	}
	if e.Type != TypeHash {
		return nil, false
	}
	return e.hash(), true
}

// hashForWrite returns the hash at key, creating it when absent. Caller holds m.mu
func (m *MapStorage) hashForWrite(key string) (map[string]string, bool) {
	hash, ok := m.hashAt(key)
	if !ok {
		return nil, false
	}
	if hash == nil {
		hash = make(map[string]string)
		m.data[key] = NewHashEntity(hash)
	}
	return hash, true
}

// HSet sets the field to value in the hash stored at key
func (m *MapStorage) HSet(key, field, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, ok := m.hashForWrite(key)
	if !ok {
		return false
	}
	hash[field] = value
	return true
}

// HMSet sets every pair in the hash stored at key
func (m *MapStorage) HMSet(key string, pairs []FieldValue) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, ok := m.hashForWrite(key)
	if !ok {
		return false
	}
	for _, p := range pairs {
		hash[p.Field] = p.Value
	}
	return true
}

// HGet returns the value associated with field in the hash stored at key
func (m *MapStorage) HGet(key, field string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, _ := m.hashAt(key)
	val, ok := hash[field]
	return val, ok
}

// HExists returns if field is an existing field in the hash stored at key
func (m *MapStorage) HExists(key, field string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, _ := m.hashAt(key)
	_, ok := hash[field]
	return ok
}

// HDel removes field, the key itself goes away with its last field
func (m *MapStorage) HDel(key, field string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, _ := m.hashAt(key)
	if _, ok := hash[field]; !ok {
		return false
	}

	delete(hash, field)
	if len(hash) == 0 {
		m.remove(key)
	}
	return true
}

// HGetAll returns a copy of all fields and values of the hash stored at key
func (m *MapStorage) HGetAll(key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, _ := m.hashAt(key)
	res := make(map[string]string, len(hash))
	for f, v := range hash {
		res[f] = v
	}
	return res
}

// HKeys returns all field names in the hash stored at key
func (m *MapStorage) HKeys(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, _ := m.hashAt(key)
	res := make([]string, 0, len(hash))
	for f := range hash {
		res = append(res, f)
	}
	return res
}

// HVals returns all values in the hash stored at key
func (m *MapStorage) HVals(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, _ := m.hashAt(key)
	res := make([]string, 0, len(hash))
	for _, v := range hash {
		res = append(res, v)
	}
	return res
}

// HLen returns the number of fields contained in the hash stored at key
func (m *MapStorage) HLen(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, _ := m.hashAt(key)
	return len(hash)
}
