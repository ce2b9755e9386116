// Package client is a WebSocket load test client for the thread helper
// gateway. It connects the way the host runtime does, pushes trigger frames
// and pairs every reply with the frame it answers to measure ack latency.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Gateway reply types (local equivalents of internal/protocol constants).
const (
	TypeAck   = "ack"
	TypeError = "error"
	TypePong  = "pong"
)

// Reply is a decoded gateway reply.
type Reply struct {
	Type       string `json:"type"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

// Outcome is one gateway reply paired with the frame it answers.
type Outcome struct {
	Trigger string        // type of the answered frame
	Reply   Reply         // decoded reply
	Latency time.Duration // from write to reply
}

// sentFrame is a frame awaiting its reply.
type sentFrame struct {
	trigger string
	at      time.Time
}

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency time.Duration
	Sent           int
	Acked          int
	Rejected       int
	Errors         int
}

// Client is one simulated runtime connection to the gateway.
type Client struct {
	conn net.Conn

	mu      sync.Mutex
	pending []sentFrame
	metrics Metrics
	onReply func(Outcome)

	done      chan struct{}
	closeOnce sync.Once
}

// New dials the gateway at url. A non-empty token is sent as a bearer
// Authorization header on the upgrade request. onReply, if set, is called
// from the read loop once per reply.
func New(ctx context.Context, url, token string, onReply func(Outcome)) (*Client, error) {
	dialer := ws.Dialer{}
	if token != "" {
		dialer.Header = ws.HandshakeHeaderHTTP(http.Header{
			"Authorization": []string{"Bearer " + token},
		})
	}

	start := time.Now()
	conn, _, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:    conn,
		onReply: onReply,
		done:    make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)

	go c.readLoop()
	return c, nil
}

// Send writes one frame of the given trigger type. The gateway answers frames
// on a connection in order, so each frame is queued and matched to the next
// reply.
func (c *Client) Send(trigger string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, data); err != nil {
		c.metrics.Errors++
		return err
	}
	c.pending = append(c.pending, sentFrame{trigger: trigger, at: time.Now()})
	c.metrics.Sent++
	return nil
}

// Pending returns the number of frames still awaiting a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// WaitIdle blocks until every sent frame has been answered, the connection
// closes or ctx is done.
func (c *Client) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("connection closed with %d frames unanswered", c.Pending())
		case <-ticker.C:
		}
	}
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// readLoop reads gateway replies until the connection closes.
// wsutil.ReadServerText answers the gateway's heartbeat pings.
func (c *Client) readLoop() {
	defer c.Close()
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.mu.Lock()
			c.metrics.Errors++
			c.mu.Unlock()
			return
		}

		var r Reply
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}

		out := Outcome{Reply: r}
		c.mu.Lock()
		if len(c.pending) > 0 {
			out.Trigger = c.pending[0].trigger
			out.Latency = time.Since(c.pending[0].at)
			c.pending = c.pending[1:]
		}
		switch r.Type {
		case TypeAck:
			c.metrics.Acked++
		case TypeError:
			c.metrics.Rejected++
		}
		c.mu.Unlock()

		if c.onReply != nil {
			c.onReply(out)
		}
	}
}
