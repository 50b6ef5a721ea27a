// Package transport opens the byte streams that the guest agent and the
// hypervisor monitor are reached over.
//
// An endpoint is either a bare unix socket path (the common case for a
// local QEMU) or a URI:
//
//	unix:///run/qemu/vm0/qga.sock
//	tcp://127.0.0.1:4444
//	vsock://3:1234
//	ssh://root@hypervisor01:22/run/qemu/vm0/qmp.sock
//
// Every connection carries a fixed timeout that is re-armed before each read
// and each write. There is no other cancellation mechanism once a connection
// is established.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Kind identifies how an endpoint is reached.
type Kind string

const (
	KindUnix  Kind = "unix"
	KindTCP   Kind = "tcp"
	KindVsock Kind = "vsock"
	KindSSH   Kind = "ssh"
)

// DefaultTimeout is used when an endpoint is built without WithTimeout.
const DefaultTimeout = 30 * time.Second

const defaultSSHPort = "22"

// SSHAuth holds the credentials used to reach ssh:// endpoints.
type SSHAuth struct {
	// KeyPath is the private key used for public key authentication.
	KeyPath string

	// KnownHostsPath is the known_hosts file host keys are verified against.
	KnownHostsPath string

	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool
}

// Endpoint identifies one control channel. It is immutable once built.
type Endpoint struct {
	kind    Kind
	address string // socket path, host:port, or remote socket path for ssh
	host    string // ssh host:port
	user    string // ssh user
	cid     uint32
	port    uint32
	timeout time.Duration
	auth    SSHAuth
	raw     string
}

// Option customizes an Endpoint at parse time.
type Option func(*Endpoint)

// WithTimeout sets the read/write timeout applied to connections.
func WithTimeout(d time.Duration) Option {
	return func(e *Endpoint) { e.timeout = d }
}

// WithSSHAuth sets the credentials for ssh:// endpoints. Ignored for other kinds.
func WithSSHAuth(auth SSHAuth) Option {
	return func(e *Endpoint) { e.auth = auth }
}

// ParseEndpoint parses a socket path or endpoint URI.
func ParseEndpoint(raw string, opts ...Option) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty address", ErrInvalidEndpoint)
	}

	ep := Endpoint{raw: raw, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&ep)
	}
	if ep.timeout <= 0 {
		return Endpoint{}, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidEndpoint, ep.timeout)
	}

	if !strings.Contains(raw, "://") {
		ep.kind = KindUnix
		ep.address = raw
		return ep, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	switch Kind(u.Scheme) {
	case KindUnix:
		path := u.Path
		if u.Host != "" {
			// unix://relative/path
			path = u.Host + u.Path
		}
		if path == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no socket path", ErrInvalidEndpoint, raw)
		}
		ep.kind = KindUnix
		ep.address = path

	case KindTCP:
		if _, _, err := net.SplitHostPort(u.Host); err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, raw, err)
		}
		ep.kind = KindTCP
		ep.address = u.Host

	case KindVsock:
		cid, port, err := parseVsockAddr(u.Host)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, raw, err)
		}
		ep.kind = KindVsock
		ep.cid = cid
		ep.port = port
		ep.address = u.Host

	case KindSSH:
		if u.User == nil || u.User.Username() == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no user", ErrInvalidEndpoint, raw)
		}
		if u.Path == "" || u.Path == "/" {
			return Endpoint{}, fmt.Errorf("%w: %q has no remote socket path", ErrInvalidEndpoint, raw)
		}
		host := u.Host
		if u.Port() == "" {
			host = net.JoinHostPort(u.Hostname(), defaultSSHPort)
		}
		ep.kind = KindSSH
		ep.user = u.User.Username()
		ep.host = host
		ep.address = u.Path

	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}

	return ep, nil
}

func parseVsockAddr(hostport string) (cid, port uint32, err error) {
	c, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return 0, 0, err
	}
	cid64, err := strconv.ParseUint(c, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("context id: %w", err)
	}
	port64, err := strconv.ParseUint(p, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("port: %w", err)
	}
	return uint32(cid64), uint32(port64), nil
}

// Kind returns how the endpoint is reached.
func (e Endpoint) Kind() Kind { return e.kind }

// Timeout returns the read/write timeout for connections to this endpoint.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// String returns the address the endpoint was parsed from.
func (e Endpoint) String() string { return e.raw }

// Exists reports whether the endpoint is present. Only unix sockets can be
// checked locally; every other kind is assumed present and fails at dial time
// if it is not.
func (e Endpoint) Exists() error {
	if e.kind != KindUnix {
		return nil
	}
	if _, err := os.Stat(e.address); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrEndpointMissing, e.address)
		}
		return fmt.Errorf("%w: %s: %v", ErrEndpointMissing, e.address, err)
	}
	return nil
}
