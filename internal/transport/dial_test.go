package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketPath returns a path short enough for sun_path.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "stasis")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "test.sock")
}

// listenUnix accepts connections and hands them to serve.
func listenUnix(t *testing.T, serve func(net.Conn)) string {
	t.Helper()
	path := socketPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(conn)
		}
	}()
	return path
}

func TestDialEagerMissingEndpoint(t *testing.T) {
	ep, err := ParseEndpoint(filepath.Join(t.TempDir(), "absent.sock"))
	require.NoError(t, err)

	_, err = Dial(context.Background(), ep, Eager, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEndpointMissing)
}

func TestDialPollingSkipsPresenceCheck(t *testing.T) {
	ep, err := ParseEndpoint(filepath.Join(t.TempDir(), "absent.sock"))
	require.NoError(t, err)

	_, err = Dial(context.Background(), ep, Polling, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEndpointUnreachable)
	assert.False(t, errors.Is(err, ErrEndpointMissing))
}

func TestDialUnixEcho(t *testing.T) {
	path := listenUnix(t, func(c net.Conn) {
		defer c.Close()
		io.Copy(c, c)
	})

	ep, err := ParseEndpoint(path, WithTimeout(time.Second))
	require.NoError(t, err)

	conn, err := Dial(context.Background(), ep, Eager, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, conn.deadlines)

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestConnIdleLongerThanTimeout(t *testing.T) {
	path := listenUnix(t, func(c net.Conn) {
		defer c.Close()
		io.Copy(c, c)
	})

	ep, err := ParseEndpoint(path, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	conn, err := Dial(context.Background(), ep, Eager, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	echo := func(msg string) {
		t.Helper()
		_, err := conn.Write([]byte(msg))
		require.NoError(t, err)
		buf := make([]byte, len(msg))
		_, err = io.ReadFull(conn, buf)
		require.NoError(t, err)
		assert.Equal(t, msg, string(buf))
	}

	echo("frz1")
	time.Sleep(200 * time.Millisecond)
	echo("thw1")
}

func TestDialAsync(t *testing.T) {
	t.Run("returns the connection", func(t *testing.T) {
		client, server := net.Pipe()
		defer server.Close()

		conn, err := dialAsync(context.Background(), time.Second, func() (net.Conn, error) {
			return client, nil
		})
		require.NoError(t, err)
		assert.Same(t, client, conn)
		conn.Close()
	})

	t.Run("gives up on cancel and closes a late connection", func(t *testing.T) {
		client, server := net.Pipe()
		defer server.Close()
		release := make(chan struct{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := dialAsync(ctx, time.Minute, func() (net.Conn, error) {
			<-release
			return client, nil
		})
		require.ErrorIs(t, err, context.Canceled)

		close(release)
		// The late connection is closed, so the peer sees EOF.
		server.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, err = server.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("gives up after the timeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		start := time.Now()
		_, err := dialAsync(context.Background(), 20*time.Millisecond, func() (net.Conn, error) {
			<-release
			return nil, errors.New("never")
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestConnReadTimeout(t *testing.T) {
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	path := listenUnix(t, func(c net.Conn) {
		defer c.Close()
		<-hold
	})

	ep, err := ParseEndpoint(path, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	conn, err := Dial(context.Background(), ep, Eager, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	start := time.Now()
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr), "expected net.Error, got %T", err)
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDialTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ep, err := ParseEndpoint("tcp://"+addr, WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = Dial(context.Background(), ep, Eager, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEndpointUnreachable)
}

// noDeadlineConn is a net.Conn that cannot take deadlines, like an SSH channel.
type noDeadlineConn struct {
	net.Conn
	closed bool
}

func (c *noDeadlineConn) SetReadDeadline(time.Time) error {
	return errors.New("deadline not supported")
}
func (c *noDeadlineConn) SetWriteDeadline(time.Time) error {
	return errors.New("deadline not supported")
}
func (c *noDeadlineConn) Close() error {
	c.closed = true
	return nil
}

func TestWrapTimeoutFailure(t *testing.T) {
	ep, err := ParseEndpoint("/tmp/unused.sock")
	require.NoError(t, err)

	t.Run("eager is fatal", func(t *testing.T) {
		nc := &noDeadlineConn{}
		_, err := wrap(nc, ep, Eager, zerolog.Nop())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.True(t, nc.closed, "connection should be closed on failure")
	})

	t.Run("polling only logs", func(t *testing.T) {
		var buf bytes.Buffer
		nc := &noDeadlineConn{}
		conn, err := wrap(nc, ep, Polling, zerolog.New(&buf))
		require.NoError(t, err)
		assert.False(t, conn.deadlines)
		assert.False(t, nc.closed)
		assert.Contains(t, buf.String(), "Failed to set socket timeout")
		assert.Contains(t, buf.String(), `"level":"warn"`)
	})
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "eager", Eager.String())
	assert.Equal(t, "polling", Polling.String())
	assert.Equal(t, "policy(7)", Policy(7).String())
}
