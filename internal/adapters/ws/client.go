// Package ws connects a saga participant to its coordinator over WebSocket.
package ws

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/saga"

	"github.com/gorilla/websocket"
)

// Frame types exchanged with the coordinator.
const (
	frameRegister = "register"
	frameTask     = "task"
	frameResult   = "result"
	frameRevert   = "revert"
	frameReverted = "reverted"
)

type frame struct {
	Type         string             `json:"type"`
	Registration *saga.Registration `json:"registration,omitempty"`
	Task         *saga.Task         `json:"task,omitempty"`
	Result       *saga.Result       `json:"result,omitempty"`
	Recorded     *saga.Result       `json:"recorded,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Client keeps one participant connected to the coordinator: it registers,
// then serves tasks and reverts until the context ends. Every task frame
// produces a result frame, even when the handler fails.
type Client struct {
	url         string
	participant *saga.Participant
	logf        func(format string, args ...any)

	// mu guards conn and serializes writes; gorilla conns allow only one
	// concurrent writer, and Close may race Connect/Run otherwise.
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient constructs a client for the given coordinator URL.
func NewClient(url string, participant *saga.Participant, logf func(format string, args ...any)) *Client {
	if logf == nil {
		logf = log.Printf
	}
	return &Client{
		url:         url,
		participant: participant,
		logf:        logf,
	}
}

// Connect dials the coordinator and sends the participant's registration.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial coordinator %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	registration := c.participant.Registration()
	if err := c.writeFrame(frame{Type: frameRegister, Registration: &registration}); err != nil {
		_ = conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		return fmt.Errorf("register %s: %w", registration.Name, err)
	}
	return nil
}

// Run reads coordinator frames until the context ends or the connection
// drops. Connect must have succeeded first.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	// Unblock the read loop when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read coordinator frame: %w", err)
		}

		switch f.Type {
		case frameTask:
			if f.Task == nil {
				c.logf("task frame without task, ignoring")
				continue
			}
			result := c.participant.Execute(ctx, *f.Task)
			if err := c.writeFrame(frame{Type: frameResult, Task: f.Task, Result: &result}); err != nil {
				return fmt.Errorf("send result for task %s: %w", f.Task.ID, err)
			}
		case frameRevert:
			if f.Task == nil || f.Recorded == nil {
				c.logf("revert frame without task or recorded result, ignoring")
				continue
			}
			ack := frame{Type: frameReverted, Task: f.Task}
			if err := c.participant.Revert(ctx, *f.Task, *f.Recorded); err != nil {
				ack.Error = err.Error()
			}
			if err := c.writeFrame(ack); err != nil {
				return fmt.Errorf("send revert ack for task %s: %w", f.Task.ID, err)
			}
		default:
			c.logf("unknown coordinator frame type %q, ignoring", f.Type)
		}
	}
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) writeFrame(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(f)
}
