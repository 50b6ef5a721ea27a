// Package hypervisor provides the hypervisor-side control channel of a VM:
// the QEMU Machine Protocol monitor.
package hypervisor

// Monitor is the interface the snapshot orchestrator drives.
// QMP satisfies it; tests substitute fakes.
type Monitor interface {
	// Negotiate completes the capability handshake. It must succeed exactly
	// once per connection before any other call.
	Negotiate() error

	// HumanMonitorCommand passes commandLine through to the human monitor
	// and returns its output verbatim. Success only means the monitor
	// accepted and answered the command; the output may describe an error.
	HumanMonitorCommand(commandLine string) (string, error)

	// Info returns what the greeting announced. It is zero before a
	// successful Negotiate.
	Info() Info

	// PowerDown requests an ACPI shutdown. It returns once the request is
	// accepted, not when the guest has stopped.
	PowerDown() error
}

// Info describes the monitor on the other end of a negotiated connection.
type Info struct {
	Version      string   // QEMU version, e.g. "8.2.1"
	Package      string   // distribution package string, often empty
	Capabilities []string // capabilities offered in the greeting
}
