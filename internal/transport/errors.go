package transport

import "errors"

// Connection errors
var (
	ErrEndpointMissing     = errors.New("transport: endpoint does not exist")
	ErrEndpointUnreachable = errors.New("transport: endpoint unreachable")
)

// Configuration errors
var (
	ErrConfiguration   = errors.New("transport: failed to apply socket timeout")
	ErrInvalidEndpoint = errors.New("transport: invalid endpoint address")
)
