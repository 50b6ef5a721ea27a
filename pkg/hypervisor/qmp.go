package hypervisor

import (
	"fmt"
	"io"

	"github.com/javanstorm/stasis/internal/qapi"
)

// QMP is a Monitor speaking the QEMU Machine Protocol over one connection.
type QMP struct {
	client     *qapi.Client
	info       Info
	attempted  bool
	negotiated bool
}

var _ Monitor = (*QMP)(nil)

// NewQMP returns a monitor channel over rw. The caller owns rw and closes it.
func NewQMP(rw io.ReadWriter) *QMP {
	return &QMP{client: qapi.NewClient(rw)}
}

// Negotiate reads the greeting and leaves capabilities negotiation mode.
// A failed handshake is final for the connection.
func (m *QMP) Negotiate() error {
	if m.attempted {
		return fmt.Errorf("%w: handshake already attempted on this connection", ErrHandshakeFailed)
	}
	m.attempted = true

	greeting, err := m.client.ReadGreeting()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if err := m.client.Execute("qmp_capabilities", nil, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	m.negotiated = true
	m.info = Info{
		Version:      greeting.QMP.Version.QEMU.String(),
		Package:      greeting.QMP.Version.Package,
		Capabilities: greeting.QMP.Capabilities,
	}
	return nil
}

// Info returns what the greeting announced. It is zero before Negotiate.
func (m *QMP) Info() Info {
	return m.info
}

type humanMonitorCommandArgs struct {
	CommandLine string `json:"command-line"`
}

// HumanMonitorCommand runs commandLine through human-monitor-command.
func (m *QMP) HumanMonitorCommand(commandLine string) (string, error) {
	if !m.negotiated {
		return "", ErrNotNegotiated
	}

	var out string
	if err := m.client.Execute("human-monitor-command", humanMonitorCommandArgs{CommandLine: commandLine}, &out); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrMonitorCommandFailed, commandLine, err)
	}
	return out, nil
}

// PowerDown issues system_powerdown.
func (m *QMP) PowerDown() error {
	if !m.negotiated {
		return ErrNotNegotiated
	}

	if err := m.client.Execute("system_powerdown", nil, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrShutdownRequestFailed, err)
	}
	return nil
}
