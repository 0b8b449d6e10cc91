package storage

import "time"

type DataType byte

const (
	TypeNone DataType = iota
	TypeString
	TypeList
	TypeHash
)

// String returns the name reported by the TYPE command
func (t DataType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeHash:
		return "hash"
	default:
		return "none"
	}
}

// Entity generic container for value.
// Value holds a string, a []string or a map[string]string according to Type
type Entity struct {
	Type  DataType
	Value interface{}
}

// FieldValue is one field of a hash in HMSET order
type FieldValue struct {
	Field string
	Value string
}

// Record is a point-in-time copy of one key, used by snapshots
type Record struct {
	Key      string
	Entity   Entity
	ExpireAt time.Time // zero when the key has no TTL
}

func NewStringEntity(value string) *Entity {
	return &Entity{Type: TypeString, Value: value}
}

func NewListEntity(items []string) *Entity {
	return &Entity{Type: TypeList, Value: items}
}

func NewHashEntity(fields map[string]string) *Entity {
	return &Entity{Type: TypeHash, Value: fields}
}

func (e *Entity) str() string {
	s, _ := e.Value.(string)
	return s
}

func (e *Entity) list() []string {
	l, _ := e.Value.([]string)
	return l
}

func (e *Entity) hash() map[string]string {
	h, _ := e.Value.(map[string]string)
	return h
}

// clone returns a deep copy so that callers outside the lock never share backing storage
func (e *Entity) clone() Entity {
	switch e.Type {
	case TypeList:
		return Entity{Type: TypeList, Value: append([]string(nil), e.list()...)}
	case TypeHash:
		h := make(map[string]string, len(e.hash()))
		for f, v := range e.hash() {
			h[f] = v
		}
		return Entity{Type: TypeHash, Value: h}
	default:
		return *e
	}
}
