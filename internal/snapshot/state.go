package snapshot

import "fmt"

// State is a step of the snapshot state machine.
type State int

const (
	Idle State = iota
	Connecting
	CapabilitiesNegotiated
	Frozen
	SnapshotAttempted
	Thawed
	ShuttingDown
	Done
	Failed
)

var stateNames = [...]string{
	Idle:                   "idle",
	Connecting:             "connecting",
	CapabilitiesNegotiated: "capabilities-negotiated",
	Frozen:                 "frozen",
	SnapshotAttempted:      "snapshot-attempted",
	Thawed:                 "thawed",
	ShuttingDown:           "shutting-down",
	Done:                   "done",
	Failed:                 "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}
