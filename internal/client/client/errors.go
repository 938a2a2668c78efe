package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected means the server refused the request as invalid.
	ErrRejected = errors.New("request rejected by server")
)
