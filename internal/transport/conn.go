package transport

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"
)

// Conn is a connection whose reads and writes each get a fresh deadline of
// the endpoint's timeout. The deadline is only in force while a call is in
// progress, so an idle connection never expires. A Conn serves one session
// and is not safe for concurrent use.
type Conn struct {
	net.Conn
	timeout   time.Duration
	deadlines bool
}

func (c *Conn) Read(p []byte) (n int, err error) {
	if !c.deadlines {
		return c.Conn.Read(p)
	}
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, fmt.Errorf("set read timeout: %w", err)
	}
	n, err = c.Conn.Read(p)
	if err == nil {
		if cerr := c.Conn.SetReadDeadline(time.Time{}); cerr != nil {
			err = fmt.Errorf("clear read timeout: %w", cerr)
		}
	}
	return n, err
}

func (c *Conn) Write(p []byte) (n int, err error) {
	if !c.deadlines {
		return c.Conn.Write(p)
	}
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, fmt.Errorf("set write timeout: %w", err)
	}
	n, err = c.Conn.Write(p)
	if err == nil {
		if cerr := c.Conn.SetWriteDeadline(time.Time{}); cerr != nil {
			err = fmt.Errorf("clear write timeout: %w", cerr)
		}
	}
	return n, err
}

// applyTimeouts arms and clears both directions once so that an endpoint
// that cannot honour deadlines is detected at connect time rather than
// mid-operation.
func (c *Conn) applyTimeouts() error {
	deadline := time.Now().Add(c.timeout)
	if err := c.Conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}
	if err := c.Conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write timeout: %w", err)
	}
	return multierr.Combine(c.Conn.SetReadDeadline(time.Time{}), c.Conn.SetWriteDeadline(time.Time{}))
}
