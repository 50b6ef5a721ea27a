package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshConn is a unix socket on a remote host reached through an SSH
// streamlocal channel. Channels do not support deadlines, so timeouts are
// applied to the TCP connection carrying the SSH session. Conn keeps them
// armed only while a call is in progress.
type sshConn struct {
	net.Conn
	client *ssh.Client
	tcp    net.Conn
}

func (c *sshConn) Close() error {
	return multierr.Combine(c.Conn.Close(), c.client.Close())
}

func (c *sshConn) SetDeadline(t time.Time) error      { return c.tcp.SetDeadline(t) }
func (c *sshConn) SetReadDeadline(t time.Time) error  { return c.tcp.SetReadDeadline(t) }
func (c *sshConn) SetWriteDeadline(t time.Time) error { return c.tcp.SetWriteDeadline(t) }

func dialSSH(ctx context.Context, ep Endpoint) (net.Conn, error) {
	cfg, err := sshClientConfig(ep)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: ep.timeout}
	tcp, err := d.DialContext(ctx, "tcp", ep.host)
	if err != nil {
		return nil, fmt.Errorf("dial ssh host: %w", err)
	}

	// Bound the SSH handshake by the same timeout as everything else.
	if err := tcp.SetDeadline(time.Now().Add(ep.timeout)); err != nil {
		tcp.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}
	sc, chans, reqs, err := ssh.NewClientConn(tcp, ep.host, cfg)
	if err != nil {
		tcp.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	if err := tcp.SetDeadline(time.Time{}); err != nil {
		sc.Close()
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}

	client := ssh.NewClient(sc, chans, reqs)
	ch, err := client.Dial("unix", ep.address)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open remote socket %s: %w", ep.address, err)
	}

	return &sshConn{Conn: ch, client: client, tcp: tcp}, nil
}

func sshClientConfig(ep Endpoint) (*ssh.ClientConfig, error) {
	if ep.auth.KeyPath == "" {
		return nil, fmt.Errorf("ssh endpoint %s: no private key configured", ep)
	}
	keyData, err := os.ReadFile(ep.auth.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", ep.auth.KeyPath, err)
	}

	hostKeyCallback, err := hostKeyCallback(ep.auth)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            ep.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         ep.timeout,
	}, nil
}

func hostKeyCallback(auth SSHAuth) (ssh.HostKeyCallback, error) {
	if auth.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if auth.KnownHostsPath == "" {
		return nil, fmt.Errorf("no known_hosts file configured for host key verification")
	}
	cb, err := knownhosts.New(auth.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}
