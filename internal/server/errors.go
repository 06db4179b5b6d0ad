package server

import "errors"

var (
	ErrNilClient     = errors.New("nil client")
	ErrDuplicateID   = errors.New("client id already registered")
	ErrUnknownClient = errors.New("client not registered")
	ErrEmptyNickname = errors.New("nickname must not be empty")
	ErrNoTransport   = errors.New("client has no transport")
	ErrHubClosed     = errors.New("hub is shut down")
)
