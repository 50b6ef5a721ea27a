package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/javanstorm/stasis/internal/transport"
	"github.com/javanstorm/stasis/pkg/hypervisor"
)

// callLog records the calls made on fake channels, in order, across roles.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.all() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeAgent struct {
	log       *callLog
	pingErr   error
	freezeN   int
	freezeErr error
	thawN     int
	thawErr   error
}

func (a *fakeAgent) Ping() error {
	a.log.add("agent.ping")
	return a.pingErr
}

func (a *fakeAgent) Freeze() (int, error) {
	a.log.add("agent.freeze")
	return a.freezeN, a.freezeErr
}

func (a *fakeAgent) Thaw() (int, error) {
	a.log.add("agent.thaw")
	return a.thawN, a.thawErr
}

func (a *fakeAgent) Close() error {
	a.log.add("agent.close")
	return nil
}

type fakeMonitor struct {
	log          *callLog
	negotiateErr error
	response     string
	commandErr   error
	powerDownErr error
	commandLines []string
	info         hypervisor.Info
}

func (m *fakeMonitor) Negotiate() error {
	m.log.add("monitor.negotiate")
	return m.negotiateErr
}

func (m *fakeMonitor) HumanMonitorCommand(commandLine string) (string, error) {
	m.log.add("monitor.hmp")
	m.commandLines = append(m.commandLines, commandLine)
	return m.response, m.commandErr
}

func (m *fakeMonitor) Info() hypervisor.Info {
	return m.info
}

func (m *fakeMonitor) PowerDown() error {
	m.log.add("monitor.powerdown")
	return m.powerDownErr
}

func (m *fakeMonitor) Close() error {
	m.log.add("monitor.close")
	return nil
}

// presentEndpoint returns a unix endpoint whose path exists on disk.
func presentEndpoint(t *testing.T, name string) transport.Endpoint {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, nil, 0600))
	ep, err := transport.ParseEndpoint(path)
	require.NoError(t, err)
	return ep
}

func absentEndpoint(t *testing.T, name string) transport.Endpoint {
	t.Helper()
	ep, err := transport.ParseEndpoint(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	return ep
}

// dialers returns dialers handing out the given fakes, recording each dial
// and its policy in the log.
func dialers(log *callLog, agent *fakeAgent, mon *fakeMonitor) (AgentDialer, MonitorDialer) {
	dialAgent := func(_ context.Context, _ transport.Endpoint, policy transport.Policy) (AgentConn, error) {
		log.add("dial.agent." + policy.String())
		return agent, nil
	}
	dialMonitor := func(_ context.Context, _ transport.Endpoint, policy transport.Policy) (MonitorConn, error) {
		log.add("dial.monitor." + policy.String())
		return mon, nil
	}
	return dialAgent, dialMonitor
}
