// Package adminrpc is the wire protocol between cmd/iohc-admin and
// cmd/iohc-controllerd: newline-free JSON requests and responses over
// a ZeroMQ REQ/REP pair, the same transport shape used for the radio
// command channel, reused here for an operator control channel
// instead of a radio daemon boundary.
package adminrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-zeromq/zmq4"
)

// Request is one operator command: pair, autopair, cancel, list, info,
// delete, on, off, status, send-raw, or verify-crypto.
type Request struct {
	Verb    string   `json:"verb"`
	Address string   `json:"address,omitempty"` // lowercase hex, 3 bytes
	Cmd     byte     `json:"cmd,omitempty"`     // sendRaw only
	Bytes   []byte   `json:"bytes,omitempty"`   // sendRaw only
	Args    []string `json:"args,omitempty"`
}

// Response carries either a result or an error message, never both.
type Response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Server is the daemon side: a ZeroMQ REP socket bound to listenURL,
// dispatching every decoded Request to handle.
type Server struct {
	sock   zmq4.Socket
	handle func(Request) Response
}

// NewServer binds a REP socket at listenURL. handle is called
// synchronously for every request on the goroutine running Serve.
// iohc-controllerd's handler takes the same lock as its tick loop and
// inbound-frame dispatch, so the admin channel never runs concurrently
// with the pairing engine's own tick/inbound handling.
func NewServer(ctx context.Context, listenURL string, handle func(Request) Response) (*Server, error) {
	sock := zmq4.NewRep(ctx)
	if err := sock.Listen(listenURL); err != nil {
		return nil, fmt.Errorf("adminrpc: listen %s: %w", listenURL, err)
	}
	return &Server{sock: sock, handle: handle}, nil
}

// Serve blocks, answering one request at a time, until ctx is
// cancelled or a receive fails terminally.
func (s *Server) Serve(ctx context.Context) error {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("adminrpc: recv: %w", err)
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(msg.Bytes(), &req); err != nil {
			resp = Response{OK: false, Error: fmt.Sprintf("bad request: %v", err)}
		} else {
			resp = s.handle(req)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("adminrpc: marshal response: %w", err)
		}
		if err := s.sock.Send(zmq4.NewMsg(out)); err != nil {
			return fmt.Errorf("adminrpc: send response: %w", err)
		}
	}
}

// Close releases the REP socket.
func (s *Server) Close() error {
	return s.sock.Close()
}

// Client is the iohc-admin side: a ZeroMQ REQ socket dialed against a
// running daemon's admin endpoint.
type Client struct {
	sock zmq4.Socket
}

// Dial connects to a daemon's admin endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	sock := zmq4.NewReq(ctx)
	if err := sock.Dial(url); err != nil {
		return nil, fmt.Errorf("adminrpc: dial %s: %w", url, err)
	}
	return &Client{sock: sock}, nil
}

// Call sends req and blocks for the daemon's Response.
func (c *Client) Call(req Request) (Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("adminrpc: marshal request: %w", err)
	}
	if err := c.sock.Send(zmq4.NewMsg(data)); err != nil {
		return Response{}, fmt.Errorf("adminrpc: send: %w", err)
	}
	msg, err := c.sock.Recv()
	if err != nil {
		return Response{}, fmt.Errorf("adminrpc: recv: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(msg.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("adminrpc: unmarshal response: %w", err)
	}
	return resp, nil
}

// Close releases the REQ socket.
func (c *Client) Close() error {
	return c.sock.Close()
}
