// Package client is a small newline-JSON command client used by the CLI
// subcommands and by other processes embedding hostlink tooling.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hostlink/hostlink/internal/protocol"
)

// Client holds one TCP connection to a hostlink instance.  It is not safe
// for concurrent use; callers issue one command at a time.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration

	// ClientID tags every request so the server's session tracking can
	// tell callers apart.  Empty means the server default.
	ClientID string
	// Token, when set, is attached to authenticate calls.
	Token string
}

// Options tunes connection behavior.
type Options struct {
	// DialTimeout bounds the TCP connect.  Zero means 5s.
	DialTimeout time.Duration
	// CallTimeout bounds each round trip.  Zero means 30s.
	CallTimeout time.Duration
	ClientID    string
}

// Dial connects to a hostlink instance at host:port.
func Dial(host string, port int, opts Options) (*Client, error) {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect %s:%d: %w", host, port, err)
	}
	return &Client{
		conn:     conn,
		r:        bufio.NewReaderSize(conn, 64<<10),
		timeout:  callTimeout,
		ClientID: opts.ClientID,
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one command and waits for its response line.  The context
// deadline, when earlier than the call timeout, wins.
func (c *Client) Call(ctx context.Context, cmdType string, params map[string]any) (protocol.Response, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if c.ClientID != "" {
		if params == nil {
			params = map[string]any{}
		}
		if _, ok := params["client_id"]; !ok {
			params["client_id"] = c.ClientID
		}
	}
	req := protocol.NewRequest(cmdType, params)
	line, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmdType, err)
	}
	if _, err := c.conn.Write(line); err != nil {
		return nil, fmt.Errorf("send %s: %w", cmdType, err)
	}

	raw, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", cmdType, err)
	}
	return protocol.DecodeResponse(raw)
}

// Authenticate performs the token handshake for this client's id.
func (c *Client) Authenticate(ctx context.Context, token string) error {
	resp, err := c.Call(ctx, protocol.CmdAuthenticate, map[string]any{"token": token})
	if err != nil {
		return err
	}
	if !resp.Succeeded() {
		return fmt.Errorf("authenticate: %s", resp.ErrorMessage())
	}
	c.Token = token
	return nil
}

// Ping checks connectivity and returns the round-trip time.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	resp, err := c.Call(ctx, protocol.CmdPing, nil)
	if err != nil {
		return 0, err
	}
	if !resp.Succeeded() {
		return 0, fmt.Errorf("ping: %s", resp.ErrorMessage())
	}
	return time.Since(start), nil
}
