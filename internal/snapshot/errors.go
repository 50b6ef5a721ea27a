package snapshot

import (
	"errors"
	"fmt"
	"time"
)

// Stage names the step of a run at which a failure occurred.
type Stage string

const (
	StageConnect   Stage = "connect"
	StageHandshake Stage = "handshake"
	StageFreeze    Stage = "freeze"
	StageSnapshot  Stage = "snapshot"
	StageThaw      Stage = "thaw"
	StageShutdown  Stage = "shutdown"
	StageWait      Stage = "wait"
)

// ErrAgentWaitTimeout is matched by the error returned when the guest agent
// never answered within the wait budget.
var ErrAgentWaitTimeout = errors.New("snapshot: timed out waiting for guest agent")

// StageError ties a failure to the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// WaitTimeoutError reports an exhausted agent wait budget.
type WaitTimeoutError struct {
	Elapsed  time.Duration
	Attempts int
	LastErr  error
}

func (e *WaitTimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %d seconds waiting for guest agent (%d attempts)",
		int(e.Elapsed.Seconds()), e.Attempts)
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *WaitTimeoutError) Is(target error) bool {
	return target == ErrAgentWaitTimeout
}

func (e *WaitTimeoutError) Unwrap() error {
	return e.LastErr
}
