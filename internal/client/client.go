// Package client implements the resident process's client side: dialing
// the local byte-stream endpoint and sending one framed request per call,
// using internal/wire's framing and message types. Grounded on the
// teacher's internal/server/client.go (Client wraps a transport, one
// method per RPC, NewClient/NewClientWithSocket constructors) generalized
// from its http.Client-over-Unix-socket transport to a raw net.Conn
// speaking internal/wire's length-prefixed framing directly, per spec.md
// §4.9's wire protocol.
package client

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/wire"
)

// DialTimeout bounds how long Dial waits for the Unix socket to accept a
// connection, mirroring the teacher's 30-second http.Client.Timeout but
// scoped to just the dial rather than the whole call.
const DialTimeout = 5 * time.Second

// Conn is a single connection to the resident process. One request is
// in flight at a time per Conn; callers that need concurrent requests
// open multiple Conns (Dial is cheap: a Unix socket connect).
type Conn struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the resident process listening on socketPath.
func Dial(socketPath string) (*Conn, error) {
	d := net.Dialer{Timeout: DialTimeout}
	nc, err := d.Dial("unix", socketPath)
	if err != nil {
		return nil, errors.IoTransient("client.dial", err)
	}
	return &Conn{conn: nc}, nil
}

// Close releases the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// call sends req as an envelope of kind k and decodes the response into
// resp. It is the single choke point every typed method below routes
// through, so framing and locking only need to be right once.
func (c *Conn) call(k wire.Kind, req any, resp any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		return errors.InvalidRequest("client.call.marshal", err)
	}
	env := wire.Envelope{Kind: k, Body: body}
	if err := errors.Retry(func() error { return wire.WriteMessage(c.conn, env) }); err != nil {
		return err
	}

	var payload []byte
	if err := errors.Retry(func() error {
		var readErr error
		payload, readErr = wire.ReadFrame(c.conn)
		return readErr
	}); err != nil {
		return err
	}
	return decodeReply(payload, resp)
}

// decodeReply distinguishes a wire.ErrorResponse frame from a successful
// typed reply: the server writes one or the other as the whole frame
// body with no outer discriminator, so a bare "error" key in the decoded
// object is what marks a failed call.
func decodeReply(payload []byte, resp any) error {
	var probe struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil && probe.Error != "" {
		return errors.Wire(probe.Kind, probe.Error)
	}
	if err := json.Unmarshal(payload, resp); err != nil {
		return errors.InvalidRequest("client.call.unmarshal", err)
	}
	return nil
}

// Search issues a Search request and returns its response.
func (c *Conn) Search(req wire.SearchRequest) (*wire.SearchResponse, error) {
	var resp wire.SearchResponse
	if err := c.call(wire.KindSearch, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status issues a Status request and returns its response.
func (c *Conn) Status() (*wire.StatusResponse, error) {
	var resp wire.StatusResponse
	if err := c.call(wire.KindStatus, wire.StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rebuild issues a Rebuild request and returns its response.
func (c *Conn) Rebuild(req wire.RebuildRequest) (*wire.RebuildResponse, error) {
	var resp wire.RebuildResponse
	if err := c.call(wire.KindRebuild, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown issues a Shutdown request and waits for acknowledgment.
func (c *Conn) Shutdown() error {
	var resp wire.Ok
	return c.call(wire.KindShutdown, wire.ShutdownRequest{}, &resp)
}

// Ping reports whether the resident process at socketPath is reachable,
// used by the CLI and by tests to decide whether a daemon needs starting.
func Ping(ctx context.Context, socketPath string) bool {
	d := net.Dialer{Timeout: DialTimeout}
	nc, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return false
	}
	nc.Close()
	return true
}
