package resp

import (
	"fmt"
	"strings"
)

// MakeSimpleString construct SimpleString Value from string
func MakeSimpleString(s string) Value {
	return Value{
		Type:   TypeSimpleString,
		String: []byte(s),
	}
}

// MakeError construct Error Value from string
func MakeError(s string) Value {
	return Value{
		Type:   TypeError,
		String: []byte(s),
	}
}

// MakeErrorWrongNumberOfArguments construct Error Value that command had wrong number of arguments for command
func MakeErrorWrongNumberOfArguments(cmd string) Value {
	return MakeError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd)))
}

// MakeErrorWrongType construct Error Value for an operation against a key of another kind
func MakeErrorWrongType() Value {
	return MakeError("WRONGTYPE Operation against a key holding the wrong kind of value")
}

// MakeBulkString construct BulkString Value from string
func MakeBulkString(s string) Value {
	return Value{
		Type:   TypeBulkString,
		String: []byte(s),
	}
}

// MakeNilBulkString construct nil BulkSting Value
func MakeNilBulkString() Value {
	return Value{
		Type:   TypeBulkString,
		IsNull: true,
	}
}

// MakeInteger construct Integer Value from int64
func MakeInteger(n int64) Value {
	return Value{
		Type:    TypeInteger,
		Integer: n,
	}
}

// MakeBool construct Integer Value 1 for true and 0 for false
func MakeBool(b bool) Value {
	if b {
		return MakeInteger(1)
	}
	return MakeInteger(0)
}

// MakeArray creates a standard RESP array containing the provided elements
func MakeArray(values []Value) Value {
	return Value{
		Type:  TypeArray,
		Array: values,
	}
}

// MakeBulkArray creates an array of bulk strings. A nil slice gives an empty array, not a nil one
func MakeBulkArray(items []string) Value {
	vals := make([]Value, len(items))
	for i, item := range items {
		vals[i] = MakeBulkString(item)
	}
	return MakeArray(vals)
}

// MakeHashArray flattens a hash into field, value, field, value... in map iteration order
func MakeHashArray(hash map[string]string) Value {
	vals := make([]Value, 0, len(hash)*2)
	for field, value := range hash {
		vals = append(vals, MakeBulkString(field), MakeBulkString(value))
	}
	return MakeArray(vals)
}
