package server

import (
	"math"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/eternalApril/lettuce/internal/resp"
	"github.com/eternalApril/lettuce/internal/storage"
)

const (
	errSyntax          = "ERR syntax error"
	errInvalidExpire   = "ERR Invalid expire time"
	errInvalidCount    = "ERR Invalid count value"
	errInvalidIndex    = "ERR Invalid index value"
	errIndexOutOfRange = "ERR Index out of range"
)

// parseInt parses a decimal integer argument
func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// parseIndex parses an argument that is used as a slice position
func parseIndex(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// durationOf converts n units to a duration, saturating instead of overflowing
func durationOf(n int64, unit time.Duration) time.Duration {
	if n > math.MaxInt64/int64(unit) {
		return math.MaxInt64
	}
	if n < math.MinInt64/int64(unit) {
		return math.MinInt64
	}
	return time.Duration(n) * unit
}

func ping(req *request) resp.Value {
	switch len(req.args) {
	case 0:
		return resp.MakeSimpleString("PONG")
	case 1:
		return resp.MakeBulkString(req.args[0])
	default:
		return resp.MakeErrorWrongNumberOfArguments("PING")
	}
}

func echo(req *request) resp.Value {
	return resp.MakeBulkString(req.args[0])
}

func flushAll(req *request) resp.Value {
	req.storage.FlushAll()
	return resp.MakeSimpleString("OK")
}

func dbSize(req *request) resp.Value {
	return resp.MakeInteger(int64(req.storage.Len()))
}

// keys returns live keys matching an optional glob pattern, sorted
func keys(req *request) resp.Value {
	pattern := "*"
	switch len(req.args) {
	case 0:
	case 1:
		pattern = req.args[0]
	default:
		return resp.MakeErrorWrongNumberOfArguments("KEYS")
	}

	if _, err := path.Match(pattern, ""); err != nil {
		return resp.MakeError("ERR invalid pattern '" + pattern + "'")
	}

	all := req.storage.Keys()
	matched := all[:0]
	for _, key := range all {
		// path.Match never lets '*' cross a '/', so the common case skips it
		if pattern == "*" {
			matched = append(matched, key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			matched = append(matched, key)
		}
	}
	slices.Sort(matched)

	return resp.MakeBulkArray(matched)
}

func typeOf(req *request) resp.Value {
	return resp.MakeSimpleString(req.storage.Type(req.args[0]).String())
}

func del(req *request) resp.Value {
	var deleted int64
	for _, key := range req.args {
		if req.storage.Delete(key) {
			deleted++
		}
	}
	return resp.MakeInteger(deleted)
}

func expire(req *request) resp.Value {
	seconds, ok := parseInt(req.args[1])
	if !ok {
		return resp.MakeError(errInvalidExpire)
	}
	return resp.MakeBool(req.storage.Expire(req.args[0], durationOf(seconds, time.Second)))
}

func rename(req *request) resp.Value {
	return resp.MakeBool(req.storage.Rename(req.args[0], req.args[1]))
}

func ttl(req *request) resp.Value {
	remaining, status := req.storage.Expiry(req.args[0])
	if status != storage.ExpActive {
		return resp.MakeInteger(int64(status))
	}
	// round to the nearest second
	return resp.MakeInteger(int64((remaining + 500*time.Millisecond) / time.Second))
}

func pttl(req *request) resp.Value {
	remaining, status := req.storage.Expiry(req.args[0])
	if status != storage.ExpActive {
		return resp.MakeInteger(int64(status))
	}
	return resp.MakeInteger(remaining.Milliseconds())
}

func persist(req *request) resp.Value {
	return resp.MakeBool(req.storage.Persist(req.args[0]))
}

// cmd serves COMMAND, COMMAND COUNT and COMMAND DOCS [name...]
func cmd(req *request) resp.Value {
	if len(req.args) == 0 {
		return getAllCommands()
	}

	switch strings.ToUpper(req.args[0]) {
	case "DOCS":
		return getCommandsDocs(req.args[1:])
	case "COUNT":
		return resp.MakeInteger(int64(len(commandRegistry)))
	default:
		return resp.MakeError("ERR unknown subcommand '" + req.args[0] + "'")
	}
}
