// Package testutil provides common test helpers for stasis tests, most
// importantly fake QEMU monitor and guest agent servers on unix sockets.
package testutil

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// CommandError is sent back to the client as a QAPI error response.
type CommandError struct {
	Class string
	Desc  string
}

// Handler answers one command. A nil *CommandError sends result as the
// "return" value; a nil result is sent as an empty object.
type Handler func(command string, args json.RawMessage) (any, *CommandError)

// NoReply can be returned as a result to make the server swallow the request,
// which lets tests exercise read timeouts.
var NoReply = &struct{ noReply bool }{true}

// Server is a fake QAPI endpoint (QMP when it sends a greeting, QGA otherwise).
type Server struct {
	Path string

	t        *testing.T
	ln       net.Listener
	greeting bool
	handler  Handler

	mu    sync.Mutex
	calls []string
	conns int
	wg    sync.WaitGroup
}

// SocketPath returns a unix socket path short enough for sun_path limits.
// The directory is removed when the test ends.
func SocketPath(t *testing.T, name string) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "stasis")
	if err != nil {
		t.Fatalf("failed to create socket directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, name)
}

// NewQMPServer starts a fake monitor that greets each connection.
func NewQMPServer(t *testing.T, handler Handler) *Server {
	t.Helper()
	return newServer(t, "qmp.sock", true, handler)
}

// NewQGAServer starts a fake guest agent.
func NewQGAServer(t *testing.T, handler Handler) *Server {
	t.Helper()
	return newServer(t, "qga.sock", false, handler)
}

func newServer(t *testing.T, name string, greeting bool, handler Handler) *Server {
	t.Helper()

	path := SocketPath(t, name)
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("failed to listen on %s: %v", path, err)
	}

	s := &Server{Path: path, t: t, ln: ln, greeting: greeting, handler: handler}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Close stops the server and waits for connection handlers to exit.
func (s *Server) Close() {
	s.ln.Close()
	s.wg.Wait()
}

// Calls returns the commands received so far, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Connections returns how many connections were accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

type request struct {
	Execute   string          `json:"execute"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	ID        any             `json:"id,omitempty"`
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)

	if s.greeting {
		greeting := map[string]any{
			"QMP": map[string]any{
				"version": map[string]any{
					"qemu":    map[string]int{"major": 9, "minor": 0, "micro": 0},
					"package": "",
				},
				"capabilities": []string{"oob"},
			},
		}
		if err := enc.Encode(greeting); err != nil {
			return
		}
	}

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}

		s.mu.Lock()
		s.calls = append(s.calls, req.Execute)
		s.mu.Unlock()

		result, cmdErr := s.handler(req.Execute, req.Arguments)
		if result == NoReply {
			continue
		}

		resp := map[string]any{}
		if req.ID != nil {
			resp["id"] = req.ID
		}
		if cmdErr != nil {
			resp["error"] = map[string]string{"class": cmdErr.Class, "desc": cmdErr.Desc}
		} else if result == nil {
			resp["return"] = map[string]any{}
		} else {
			resp["return"] = result
		}
		if err := enc.Encode(resp); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.t.Logf("fake server write failed: %v", err)
			}
			return
		}
	}
}

// Logger returns a logger that writes through t.Log.
func Logger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
}
