package client

import (
	"errors"
)

// Validation errors surfaced synchronously to the caller. Everything
// else in this package degrades to a logged warning plus a state
// transition; no failure here is fatal to the hosting process.
var (
	// ErrInvalidEndpoint means the endpoint was empty or not a ws:// or
	// wss:// URL. The connection state is unchanged.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrNoValidSubjects means filtering left no usable subject ids.
	// Nothing was sent.
	ErrNoValidSubjects = errors.New("no valid subject ids")

	// ErrNotConnected means the operation requires a live session.
	ErrNotConnected = errors.New("client is not connected")
)
