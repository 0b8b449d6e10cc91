package server

import (
	"github.com/eternalApril/lettuce/internal/resp"
	"github.com/eternalApril/lettuce/internal/storage"
)

// request carries everything a handler needs to serve one command
type request struct {
	args    []string // arguments without the command name
	storage storage.Storage
	engine  *Engine
}

type command interface {
	execute(req *request) resp.Value
}

type commandFunc func(req *request) resp.Value

func (c commandFunc) execute(req *request) resp.Value {
	return c(req)
}
