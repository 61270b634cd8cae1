package interfaces

import "errors"

var (
	ErrNoInput               = errors.New("no input documents found")
	ErrNoChunks              = errors.New("document produced no chunks")
	ErrUnknownSection        = errors.New("unknown section")
	ErrNodeNotFound          = errors.New("node not found")
	ErrTaskNotFound          = errors.New("task not found")
	ErrProviderNotConfigured = errors.New("provider not configured")
)
