package server

import (
	"github.com/eternalApril/lettuce/internal/resp"
	"github.com/eternalApril/lettuce/internal/storage"
)

func lpush(req *request) resp.Value {
	n, ok := req.storage.LPush(req.args[0], req.args[1:]...)
	if !ok {
		return resp.MakeErrorWrongType()
	}
	return resp.MakeInteger(int64(n))
}

func rpush(req *request) resp.Value {
	n, ok := req.storage.RPush(req.args[0], req.args[1:]...)
	if !ok {
		return resp.MakeErrorWrongType()
	}
	return resp.MakeInteger(int64(n))
}

func lpop(req *request) resp.Value {
	value, ok := req.storage.LPop(req.args[0])
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(value)
}

func rpop(req *request) resp.Value {
	value, ok := req.storage.RPop(req.args[0])
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(value)
}

func llen(req *request) resp.Value {
	return resp.MakeInteger(int64(req.storage.LLen(req.args[0])))
}

func lrem(req *request) resp.Value {
	count, ok := parseIndex(req.args[1])
	if !ok {
		return resp.MakeError(errInvalidCount)
	}
	return resp.MakeInteger(int64(req.storage.LRem(req.args[0], count, req.args[2])))
}

func lindex(req *request) resp.Value {
	index, ok := parseIndex(req.args[1])
	if !ok {
		return resp.MakeError(errInvalidIndex)
	}

	value, found := req.storage.LIndex(req.args[0], index)
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(value)
}

func lset(req *request) resp.Value {
	key := req.args[0]

	index, ok := parseIndex(req.args[1])
	if !ok {
		return resp.MakeError(errInvalidIndex)
	}

	if req.storage.LSet(key, index, req.args[2]) {
		return resp.MakeSimpleString("OK")
	}

	if t := req.storage.Type(key); t != storage.TypeList && t != storage.TypeNone {
		return resp.MakeErrorWrongType()
	}
	return resp.MakeError(errIndexOutOfRange)
}

// lget returns the whole list
func lget(req *request) resp.Value {
	return resp.MakeBulkArray(req.storage.LRange(req.args[0], 0, -1))
}

func lrange(req *request) resp.Value {
	start, ok := parseIndex(req.args[1])
	if !ok {
		return resp.MakeError(errInvalidIndex)
	}
	stop, ok := parseIndex(req.args[2])
	if !ok {
		return resp.MakeError(errInvalidIndex)
	}
	return resp.MakeBulkArray(req.storage.LRange(req.args[0], start, stop))
}
