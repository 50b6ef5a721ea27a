package guestagent

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/javanstorm/stasis/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialAgent(t *testing.T, handler testutil.Handler) (*QGA, *testutil.Server) {
	t.Helper()
	srv := testutil.NewQGAServer(t, handler)
	conn, err := net.Dial("unix", srv.Path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewQGA(conn), srv
}

func TestQGAFreezeThaw(t *testing.T) {
	agent, srv := dialAgent(t, func(cmd string, _ json.RawMessage) (any, *testutil.CommandError) {
		switch cmd {
		case "guest-fsfreeze-freeze", "guest-fsfreeze-thaw":
			return 2, nil
		}
		return nil, nil
	})

	require.NoError(t, agent.Ping())

	frozen, err := agent.Freeze()
	require.NoError(t, err)
	assert.Equal(t, 2, frozen)

	thawed, err := agent.Thaw()
	require.NoError(t, err)
	assert.Equal(t, 2, thawed)

	assert.Equal(t, []string{"guest-ping", "guest-fsfreeze-freeze", "guest-fsfreeze-thaw"}, srv.Calls())
}

func TestQGAErrors(t *testing.T) {
	agent, _ := dialAgent(t, func(cmd string, _ json.RawMessage) (any, *testutil.CommandError) {
		return nil, &testutil.CommandError{Class: "GenericError", Desc: cmd + " refused"}
	})

	err := agent.Ping()
	assert.ErrorIs(t, err, ErrAgentUnresponsive)

	_, err = agent.Freeze()
	assert.ErrorIs(t, err, ErrFreezeFailed)
	assert.Contains(t, err.Error(), "guest-fsfreeze-freeze refused")

	_, err = agent.Thaw()
	assert.ErrorIs(t, err, ErrThawFailed)

	_, err = agent.FreezeStatus()
	assert.ErrorIs(t, err, ErrStatusFailed)
}

func TestQGANegativeCount(t *testing.T) {
	agent, _ := dialAgent(t, func(cmd string, _ json.RawMessage) (any, *testutil.CommandError) {
		return -1, nil
	})

	_, err := agent.Freeze()
	assert.ErrorIs(t, err, ErrFreezeFailed)
	_, err = agent.Thaw()
	assert.ErrorIs(t, err, ErrThawFailed)
}

func TestQGAFreezeStatus(t *testing.T) {
	agent, _ := dialAgent(t, func(cmd string, _ json.RawMessage) (any, *testutil.CommandError) {
		return "frozen", nil
	})

	status, err := agent.FreezeStatus()
	require.NoError(t, err)
	assert.Equal(t, StatusFrozen, status)
}
