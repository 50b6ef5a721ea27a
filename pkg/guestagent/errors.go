package guestagent

import "errors"

var (
	ErrAgentUnresponsive = errors.New("guestagent: agent did not answer ping")
	ErrFreezeFailed      = errors.New("guestagent: filesystem freeze failed")
	ErrThawFailed        = errors.New("guestagent: filesystem thaw failed")
	ErrStatusFailed      = errors.New("guestagent: freeze status query failed")
)
