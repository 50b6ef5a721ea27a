// Package qapi is the request/response codec shared by the QEMU monitor and
// the QEMU guest agent. It executes one named command at a time and decodes
// its "return" value or "error" object; it knows nothing about what the
// commands mean.
package qapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ErrUnexpectedMessage is returned when a response carries neither a return
// value nor an error.
var ErrUnexpectedMessage = errors.New("qapi: unexpected message")

// Error is an error reported by the remote end for a command.
type Error struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

func (e *Error) Error() string {
	if e.Class == "" {
		return e.Desc
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Desc)
}

// Version is the QEMU version announced in a monitor greeting.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Micro int `json:"micro"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// Greeting is the banner a monitor sends when a client connects.
type Greeting struct {
	QMP struct {
		Version struct {
			QEMU    Version `json:"qemu"`
			Package string  `json:"package"`
		} `json:"version"`
		Capabilities []string `json:"capabilities"`
	} `json:"QMP"`
}

type request struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
	ID        string `json:"id,omitempty"`
}

type message struct {
	QMP    json.RawMessage `json:"QMP,omitempty"`
	Event  string          `json:"event,omitempty"`
	Return json.RawMessage `json:"return,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	ID     json.RawMessage `json:"id,omitempty"`
}

// Client executes commands over a single byte stream. Calls must not overlap.
type Client struct {
	enc *json.Encoder
	dec *json.Decoder
}

// NewClient returns a Client that speaks over rw.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{
		enc: json.NewEncoder(rw),
		dec: json.NewDecoder(rw),
	}
}

// ReadGreeting reads the monitor banner, skipping any events queued ahead of it.
func (c *Client) ReadGreeting() (*Greeting, error) {
	for {
		var raw json.RawMessage
		if err := c.dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("read greeting: %w", err)
		}
		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("decode greeting: %w", err)
		}
		if msg.Event != "" {
			continue
		}
		if msg.QMP == nil {
			return nil, fmt.Errorf("%w: expected greeting, got %s", ErrUnexpectedMessage, raw)
		}
		var g Greeting
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("decode greeting: %w", err)
		}
		return &g, nil
	}
}

// Execute runs command with args (nil for none) and decodes the return value
// into result (nil to discard it). Events and responses tagged with another
// request's id are skipped.
func (c *Client) Execute(command string, args any, result any) error {
	id := uuid.NewString()
	if err := c.enc.Encode(request{Execute: command, Arguments: args, ID: id}); err != nil {
		return fmt.Errorf("send %s: %w", command, err)
	}

	for {
		var msg message
		if err := c.dec.Decode(&msg); err != nil {
			return fmt.Errorf("read %s response: %w", command, err)
		}
		if msg.Event != "" || msg.QMP != nil {
			continue
		}
		if len(msg.ID) > 0 {
			var got string
			if err := json.Unmarshal(msg.ID, &got); err != nil || got != id {
				continue
			}
		}
		if msg.Error != nil {
			return msg.Error
		}
		if msg.Return == nil {
			return fmt.Errorf("%w: %s response has no return value", ErrUnexpectedMessage, command)
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(msg.Return, result); err != nil {
			return fmt.Errorf("decode %s result: %w", command, err)
		}
		return nil
	}
}
