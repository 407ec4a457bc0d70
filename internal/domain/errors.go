package domain

import "errors"

var (
	ErrGlobalCapacityExceeded = errors.New("global connection capacity exceeded")
	ErrOriginCapacityExceeded = errors.New("origin connection capacity exceeded")
	ErrShuttingDown           = errors.New("server is shutting down")
	ErrConnectionClosed       = errors.New("connection closed")
	ErrSendBufferFull         = errors.New("send buffer full")
	ErrDuplicateEvent         = errors.New("event already exists")
	ErrEventRejected          = errors.New("event rejected")
)
