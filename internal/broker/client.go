// ABOUTME: Delegated-side client for the storage broker channel
// ABOUTME: Correlates NDJSON requests and responses by UUID over the unix socket

package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/notedock/notedock/internal/store"
)

// ErrClosed is returned for calls made after the channel went down.
var ErrClosed = errors.New("broker channel closed")

// RemoteError is a failure reported by the privileged side. It is
// distinguishable from transport errors, though callers treat both the same
// way: fall back.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "broker: " + e.Message
}

// Client is the delegated context's handle on the storage channel. A single
// client multiplexes concurrent calls over one connection, correlating
// responses by request ID.
//
// No timeout is imposed here: a hung privileged side leaves Call pending
// until its context is cancelled. That mirrors the channel's contract; it is
// the caller's context that bounds a round-trip.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool
}

// Dial connects to the broker socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[string]chan Response),
	}
	go c.readLoop()
	return c, nil
}

// Close tears the channel down. Pending calls fail once the read loop
// observes the closed connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one request and waits for its response or context cancellation.
func (c *Client) Call(ctx context.Context, msgType string, payload any) (json.RawMessage, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		raw = b
	}

	req := Request{
		ID:      uuid.New().String(),
		Type:    msgType,
		Payload: raw,
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	_, err = c.conn.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if resp.Error != "" {
			return nil, &RemoteError{Message: resp.Error}
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLoop dispatches responses to their pending calls until the connection
// drops.
func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	c.failPending()
}

// failPending closes every waiting call after the channel goes down. Only
// the read loop calls this, so it never races a response send.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// GetNote fetches the note text; empty string when no note exists.
func (c *Client) GetNote(ctx context.Context) (string, error) {
	raw, err := c.Call(ctx, TypeGetNote, nil)
	if err != nil {
		return "", err
	}
	var result NoteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decoding note result: %w", err)
	}
	return result.Content, nil
}

// SaveNote stores the full note text.
func (c *Client) SaveNote(ctx context.Context, content string) error {
	_, err := c.Call(ctx, TypeSaveNote, SaveNotePayload{Content: content})
	return err
}

// GetLayout fetches the stored panel layout; a zero layout when none exists.
func (c *Client) GetLayout(ctx context.Context) (*store.PanelLayout, error) {
	raw, err := c.Call(ctx, TypeGetLayout, nil)
	if err != nil {
		return nil, err
	}
	var layout store.PanelLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return nil, fmt.Errorf("decoding layout result: %w", err)
	}
	return &layout, nil
}

// SaveLayout upserts exactly the fields present in layout.
func (c *Client) SaveLayout(ctx context.Context, layout *store.PanelLayout) error {
	_, err := c.Call(ctx, TypeSaveLayout, SaveLayoutPayload{Layout: *layout})
	return err
}

// GetButtonLayout fetches the stored button layout; a zero layout when none
// exists.
func (c *Client) GetButtonLayout(ctx context.Context) (*store.ButtonLayout, error) {
	raw, err := c.Call(ctx, TypeGetButtonLayout, nil)
	if err != nil {
		return nil, err
	}
	var layout store.ButtonLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return nil, fmt.Errorf("decoding button layout result: %w", err)
	}
	return &layout, nil
}

// SaveButtonLayout upserts exactly the fields present in layout.
func (c *Client) SaveButtonLayout(ctx context.Context, layout *store.ButtonLayout) error {
	_, err := c.Call(ctx, TypeSaveButtonLayout, SaveButtonLayoutPayload{Layout: *layout})
	return err
}

// CloseSession asks the server to drop this session, then closes the local
// end.
func (c *Client) CloseSession(ctx context.Context) error {
	_, err := c.Call(ctx, TypeCloseSession, nil)
	c.Close()
	return err
}
