package hypervisor

import "errors"

// Session errors
var (
	ErrHandshakeFailed = errors.New("hypervisor: capability negotiation failed")
	ErrNotNegotiated   = errors.New("hypervisor: capabilities not negotiated")
)

// Command errors
var (
	ErrMonitorCommandFailed  = errors.New("hypervisor: monitor command failed")
	ErrShutdownRequestFailed = errors.New("hypervisor: shutdown request failed")
)
