package server

import (
	"errors"

	"github.com/eternalApril/lettuce/internal/resp"
)

func save(req *request) resp.Value {
	if err := req.engine.Save(); err != nil {
		return resp.MakeError("ERR " + err.Error())
	}
	return resp.MakeSimpleString("OK")
}

func bgsave(req *request) resp.Value {
	err := req.engine.BackgroundSave()
	switch {
	case err == nil:
		return resp.MakeSimpleString("Background saving started")
	case errors.Is(err, ErrSaveInProgress):
		return resp.MakeError("ERR Background save already in progress")
	default:
		return resp.MakeError("ERR " + err.Error())
	}
}
