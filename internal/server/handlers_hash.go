package server

import (
	"github.com/eternalApril/lettuce/internal/resp"
	"github.com/eternalApril/lettuce/internal/storage"
)

func hset(req *request) resp.Value {
	if !req.storage.HSet(req.args[0], req.args[1], req.args[2]) {
		return resp.MakeErrorWrongType()
	}
	return resp.MakeInteger(1)
}

func hget(req *request) resp.Value {
	value, ok := req.storage.HGet(req.args[0], req.args[1])
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(value)
}

func hexists(req *request) resp.Value {
	return resp.MakeBool(req.storage.HExists(req.args[0], req.args[1]))
}

func hdel(req *request) resp.Value {
	return resp.MakeBool(req.storage.HDel(req.args[0], req.args[1]))
}

func hgetall(req *request) resp.Value {
	return resp.MakeHashArray(req.storage.HGetAll(req.args[0]))
}

func hkeys(req *request) resp.Value {
	return resp.MakeBulkArray(req.storage.HKeys(req.args[0]))
}

func hvals(req *request) resp.Value {
	return resp.MakeBulkArray(req.storage.HVals(req.args[0]))
}

func hlen(req *request) resp.Value {
	return resp.MakeInteger(int64(req.storage.HLen(req.args[0])))
}

// hmset serves HMSET key field value [field value ...]
func hmset(req *request) resp.Value {
	pairs := req.args[1:]
	if len(pairs)%2 != 0 {
		return resp.MakeErrorWrongNumberOfArguments("HMSET")
	}

	fields := make([]storage.FieldValue, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields = append(fields, storage.FieldValue{Field: pairs[i], Value: pairs[i+1]})
	}

	if !req.storage.HMSet(req.args[0], fields) {
		return resp.MakeErrorWrongType()
	}
	return resp.MakeSimpleString("OK")
}
