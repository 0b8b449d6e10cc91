package server

import (
	"strings"
	"time"

	"github.com/eternalApril/lettuce/internal/resp"
	"github.com/eternalApril/lettuce/internal/storage"
)

func get(req *request) resp.Value {
	value, ok := req.storage.Get(req.args[0])
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(value)
}

// set serves SET key value [NX | XX] [EX seconds | PX milliseconds | EXAT unix | PXAT unix-ms | KEEPTTL]
func set(req *request) resp.Value {
	key, value := req.args[0], req.args[1]

	var options storage.SetOptions
	ttlSpecified := false

	for i := 2; i < len(req.args); i++ {
		opt := strings.ToUpper(req.args[i])

		switch opt {
		case "NX":
			if options.XX {
				return resp.MakeError(errSyntax)
			}
			options.NX = true

		case "XX":
			if options.NX {
				return resp.MakeError(errSyntax)
			}
			options.XX = true

		case "KEEPTTL":
			if ttlSpecified {
				return resp.MakeError(errSyntax)
			}
			options.KeepTTL = true
			ttlSpecified = true

		case "EX", "PX", "EXAT", "PXAT":
			if ttlSpecified || i+1 >= len(req.args) {
				return resp.MakeError(errSyntax)
			}
			i++

			n, ok := parseInt(req.args[i])
			if !ok || n <= 0 {
				return resp.MakeError(errInvalidExpire)
			}
			options.TTL = ttlFromOption(opt, n, time.Now())
			ttlSpecified = true

		default:
			return resp.MakeError(errSyntax)
		}
	}

	if !req.storage.Set(key, value, options) {
		return resp.MakeNilBulkString()
	}
	return resp.MakeSimpleString("OK")
}

// ttlFromOption turns a positive SET expiry argument into a relative TTL.
// An absolute time already in the past expires the key on its next access
func ttlFromOption(opt string, n int64, now time.Time) time.Duration {
	var d time.Duration

	switch opt {
	case "EX":
		d = durationOf(n, time.Second)
	case "PX":
		d = durationOf(n, time.Millisecond)
	case "EXAT":
		d = time.Unix(n, 0).Sub(now)
	case "PXAT":
		d = time.UnixMilli(n).Sub(now)
	}

	if d <= 0 {
		return time.Nanosecond
	}
	return d
}
