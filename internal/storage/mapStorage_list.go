package storage

// listAt returns the list stored at key. ok is false when key holds another type. Caller holds m.mu
func (m *MapStorage) listAt(key string) (list []string, ok bool) {
	e := m.entry(key)
	if e == nil {
		return nil, true
	}
	if e.Type != TypeList {
		return nil, false
	}
	return e.list(), true
}

// storeList writes list back to key, an empty list removes the key. Caller holds m.mu
func (m *MapStorage) storeList(key string, list []string) {
	if len(list) == 0 {
		m.remove(key)
		return
	}
	if e, ok := m.data[key]; ok {
		e.Value = list
		return
	}
	m.data[key] = NewListEntity(list)
}

// resolveIndex maps a possibly negative index onto [0, length). ok is false when out of range
func resolveIndex(index, length int) (int, bool) {
	if index < 0 {
		index += length
	}
	if index < 0 || index >= length {
		return 0, false
	}
	return index, true
}

// LPush inserts values at the head of the list
func (m *MapStorage) LPush(key string, values ...string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.listAt(key)
	if !ok {
		return 0, false
	}

	pushed := make([]string, 0, len(values)+len(list))
	for i := len(values) - 1; i >= 0; i-- {
		pushed = append(pushed, values[i])
	}
	pushed = append(pushed, list...)

	m.storeList(key, pushed)
	return len(pushed), true
}

// RPush appends values to the tail of the list
func (m *MapStorage) RPush(key string, values ...string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.listAt(key)
	if !ok {
		return 0, false
	}

	list = append(list, values...)
	m.storeList(key, list)
	return len(list), true
}

// LPop removes and returns the first element
func (m *MapStorage) LPop(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, _ := m.listAt(key)
	if len(list) == 0 {
		return "", false
	}

	val := list[0]
	list[0] = ""
	m.storeList(key, list[1:])
	return val, true
}

// RPop removes and returns the last element
func (m *MapStorage) RPop(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, _ := m.listAt(key)
	if len(list) == 0 {
		return "", false
	}

	last := len(list) - 1
	val := list[last]
	list[last] = ""
	m.storeList(key, list[:last])
	return val, true
}

// LLen returns the length of the list
func (m *MapStorage) LLen(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, _ := m.listAt(key)
	return len(list)
}

// LRem removes occurrences of value, see Storage.LRem for the meaning of count
func (m *MapStorage) LRem(key string, count int, value string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, _ := m.listAt(key)
	if len(list) == 0 {
		return 0
	}

	limit := count
	if limit < 0 {
		limit = -limit
	}

	drop := make([]bool, len(list))
	removed := 0

	for n := range list {
		i := n
		if count < 0 {
			i = len(list) - 1 - n
		}
		if list[i] != value {
			continue
		}

		drop[i] = true
		removed++
		if limit > 0 && removed == limit {
			break
		}
	}

	if removed == 0 {
		return 0
	}

	kept := make([]string, 0, len(list)-removed)
	for i, item := range list {
		if !drop[i] {
			kept = append(kept, item)
		}
	}

	m.storeList(key, kept)
	return removed
}

// LIndex returns the element at index
func (m *MapStorage) LIndex(key string, index int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, _ := m.listAt(key)
	i, ok := resolveIndex(index, len(list))
	if !ok {
		return "", false
	}
	return list[i], true
}

// LSet replaces the element at index
func (m *MapStorage) LSet(key string, index int, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, _ := m.listAt(key)
	i, ok := resolveIndex(index, len(list))
	if !ok {
		return false
	}
	list[i] = value
	return true
}

// LRange returns a copy of the elements between start and stop inclusive
func (m *MapStorage) LRange(key string, start, stop int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, _ := m.listAt(key)
	length := len(list)

	if start < 0 {
		start = max(start+length, 0)
	}
	if stop < 0 {
		stop += length
	}
	stop = min(stop, length-1)

	if start > stop {
		return []string{}
	}

	return append([]string(nil), list[start:stop+1]...)
}
