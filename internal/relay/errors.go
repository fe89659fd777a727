package relay

import "errors"

var (
	ErrInvalidHandshake   = errors.New("invalid handshake parameters")
	ErrRoomNotExist       = errors.New("room not exist")
	ErrConnectionNotFound = errors.New("connection not registered")
	ErrUnknownEvent       = errors.New("unknown message event")
)
