package ipc

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"slidebridge/internal/config"
)

// Client errors.
var (
	// ErrNotConnected means the client has no open connection.
	ErrNotConnected = errors.New("ipc: not connected to daemon")

	// ErrDaemonNotRunning wraps a failed dial.
	ErrDaemonNotRunning = errors.New("ipc: daemon is not running")
)

// Client is a synchronous control-socket client. One request is in
// flight at a time; calls serialize on the connection.
type Client struct {
	cfg     config.IPCConfig
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	nextID atomic.Uint32
}

// Dial connects to a running daemon.
func Dial(cfg config.IPCConfig, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := dial(cfg, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	return &Client{cfg: cfg, timeout: timeout, conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// roundTrip sends one request and reads its response, verifying the
// request id matches.
func (c *Client) roundTrip(msgType MessageType, payload any) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	id := c.nextID.Add(1)
	msg, err := Marshal(msgType, id, payload)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	c.conn.SetWriteDeadline(deadline)
	if err := msg.Write(c.conn); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	c.conn.SetReadDeadline(deadline)
	resp, err := ReadMessage(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Header.RequestID != id {
		return nil, fmt.Errorf("response id %d does not match request %d", resp.Header.RequestID, id)
	}
	return resp, nil
}

// call performs a round trip, decodes an MsgError into an error, and
// unmarshals the expected response payload into out (which may be nil).
func (c *Client) call(msgType, wantResp MessageType, payload, out any) error {
	resp, err := c.roundTrip(msgType, payload)
	if err != nil {
		return err
	}
	if resp.Header.Type == MsgError {
		var ep ErrorPayload
		if err := resp.Decode(&ep); err != nil {
			return fmt.Errorf("daemon error, payload undecodable: %w", err)
		}
		return fmt.Errorf("daemon: %s (%s)", ep.Message, ep.Kind)
	}
	if resp.Header.Type != wantResp {
		return fmt.Errorf("unexpected response type 0x%04x", uint16(resp.Header.Type))
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// Ping checks the daemon answers.
func (c *Client) Ping() error {
	return c.call(MsgPing, MsgPong, nil, nil)
}

// Status fetches the daemon's bridge state summary.
func (c *Client) Status() (StatusPayload, error) {
	var p StatusPayload
	err := c.call(MsgStatusRequest, MsgStatusResponse, nil, &p)
	return p, err
}

// Navigate moves one slide: direction 1 for next, -1 for previous.
func (c *Client) Navigate(direction int) (SlidePayload, error) {
	var p SlidePayload
	err := c.call(MsgNavigate, MsgNavigateResp, NavigatePayload{Direction: direction}, &p)
	return p, err
}

// FocusComment requests focus on a comment by 1-based ordinal.
func (c *Client) FocusComment(ordinal int) (FocusResultPayload, error) {
	var p FocusResultPayload
	err := c.call(MsgFocusComment, MsgFocusResp, FocusPayload{Ordinal: ordinal}, &p)
	return p, err
}

// ReadNotes fetches the current slide's speaker notes.
func (c *Client) ReadNotes() (NotesPayload, error) {
	var p NotesPayload
	err := c.call(MsgReadNotes, MsgReadNotesResp, nil, &p)
	return p, err
}

// Refresh re-observes the current slide and re-reads comment status.
func (c *Client) Refresh() (SlidePayload, error) {
	var p SlidePayload
	err := c.call(MsgRefresh, MsgRefreshResp, nil, &p)
	return p, err
}

// RecentEvents fetches the newest journal entries, oldest first.
func (c *Client) RecentEvents(count int) ([]JournalEventPayload, error) {
	var p RecentEventsRespPayload
	err := c.call(MsgRecentEvents, MsgRecentEventsResp, RecentEventsPayload{Count: count}, &p)
	return p.Events, err
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown() error {
	return c.call(MsgShutdown, MsgShutdownAck, nil, nil)
}
