package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog"
)

// Policy selects how Dial treats a missing endpoint and a timeout that
// cannot be applied.
type Policy int

const (
	// Eager requires the endpoint to exist before connecting and fails with
	// ErrConfiguration when the timeout cannot be applied.
	Eager Policy = iota

	// Polling skips the presence check, since absence is expected while
	// waiting, and only logs a timeout that cannot be applied.
	Polling
)

func (p Policy) String() string {
	switch p {
	case Eager:
		return "eager"
	case Polling:
		return "polling"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Dial connects to ep and applies its timeout to both directions.
func Dial(ctx context.Context, ep Endpoint, policy Policy, logger zerolog.Logger) (*Conn, error) {
	if policy == Eager {
		if err := ep.Exists(); err != nil {
			return nil, err
		}
	}

	nc, err := dialRaw(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEndpointUnreachable, ep, err)
	}

	return wrap(nc, ep, policy, logger)
}

// wrap turns an established net.Conn into a timeout-configured Conn.
func wrap(nc net.Conn, ep Endpoint, policy Policy, logger zerolog.Logger) (*Conn, error) {
	c := &Conn{Conn: nc, timeout: ep.timeout, deadlines: true}
	if err := c.applyTimeouts(); err != nil {
		if policy == Eager {
			nc.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrConfiguration, ep, err)
		}
		logger.Warn().Err(err).Str("endpoint", ep.String()).Msg("Failed to set socket timeout, continuing without it")
		c.deadlines = false
	}
	return c, nil
}

func dialRaw(ctx context.Context, ep Endpoint) (net.Conn, error) {
	switch ep.kind {
	case KindUnix, KindTCP:
		d := net.Dialer{Timeout: ep.timeout}
		return d.DialContext(ctx, string(ep.kind), ep.address)
	case KindVsock:
		return dialAsync(ctx, ep.timeout, func() (net.Conn, error) {
			c, err := vsock.Dial(ep.cid, ep.port, nil)
			if err != nil {
				return nil, err
			}
			return c, nil
		})
	case KindSSH:
		return dialSSH(ctx, ep)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidEndpoint, ep.kind)
	}
}

// dialAsync runs a dial that takes no context, giving up when ctx is done
// or timeout elapses. A connection that completes after that is closed.
func dialAsync(ctx context.Context, timeout time.Duration, dial func() (net.Conn, error)) (net.Conn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := dial()
		done <- result{conn: c, err: err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
