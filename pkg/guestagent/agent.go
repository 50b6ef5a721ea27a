// Package guestagent provides the guest-side control channel of a VM: the
// QEMU guest agent running inside it.
package guestagent

import (
	"fmt"
	"io"

	"github.com/javanstorm/stasis/internal/qapi"
)

// Agent is the interface the snapshot orchestrator and the agent poller drive.
type Agent interface {
	// Ping checks that the agent is alive, not merely that its socket accepts.
	Ping() error

	// Freeze suspends writes on all guest filesystems and returns how many
	// were frozen.
	Freeze() (int, error)

	// Thaw resumes writes and returns how many filesystems were thawed.
	Thaw() (int, error)
}

// FreezeStatus is the guest's filesystem freeze state.
type FreezeStatus string

const (
	StatusThawed FreezeStatus = "thawed"
	StatusFrozen FreezeStatus = "frozen"
)

// QGA is an Agent speaking the QEMU guest agent protocol over one connection.
// Each method is one blocking request/response exchange; a QGA value must
// not be used from more than one goroutine.
type QGA struct {
	client *qapi.Client
}

var _ Agent = (*QGA)(nil)

// NewQGA returns an agent channel over rw. The caller owns rw and closes it.
func NewQGA(rw io.ReadWriter) *QGA {
	return &QGA{client: qapi.NewClient(rw)}
}

// Ping runs guest-ping.
func (a *QGA) Ping() error {
	if err := a.client.Execute("guest-ping", nil, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrAgentUnresponsive, err)
	}
	return nil
}

// Freeze runs guest-fsfreeze-freeze.
func (a *QGA) Freeze() (int, error) {
	var count int
	if err := a.client.Execute("guest-fsfreeze-freeze", nil, &count); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFreezeFailed, err)
	}
	if count < 0 {
		return 0, fmt.Errorf("%w: agent reported %d filesystems", ErrFreezeFailed, count)
	}
	return count, nil
}

// Thaw runs guest-fsfreeze-thaw.
func (a *QGA) Thaw() (int, error) {
	var count int
	if err := a.client.Execute("guest-fsfreeze-thaw", nil, &count); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrThawFailed, err)
	}
	if count < 0 {
		return 0, fmt.Errorf("%w: agent reported %d filesystems", ErrThawFailed, count)
	}
	return count, nil
}

// FreezeStatus runs guest-fsfreeze-status.
func (a *QGA) FreezeStatus() (FreezeStatus, error) {
	var status FreezeStatus
	if err := a.client.Execute("guest-fsfreeze-status", nil, &status); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStatusFailed, err)
	}
	return status, nil
}
